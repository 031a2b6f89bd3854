package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusportal/internal/model"
)

var teacher = model.User{ID: "2", RollNo: "T001", Name: "Teacher User", Type: model.UserTeacher}

func TestSigner_IssueParse(t *testing.T) {
	s := NewSigner("test-key", "campus-portal", 15*time.Minute, 24*time.Hour)

	pair, err := s.Issue(teacher)
	require.NoError(t, err)
	assert.True(t, pair.RefreshExp.After(pair.AccessExp))

	claims, err := s.Parse(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "2", claims.Subject)
	assert.Equal(t, model.UserTeacher, claims.Role)
	assert.Equal(t, "T001", claims.RollNo)

	_, err = s.Parse(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken, "refresh token is not an access token")
	_, err = s.ParseRefresh(pair.RefreshToken)
	assert.NoError(t, err)
}

func TestSigner_Rejects(t *testing.T) {
	s := NewSigner("test-key", "campus-portal", time.Minute, time.Hour)
	pair, err := s.Issue(teacher)
	require.NoError(t, err)

	other := NewSigner("other-key", "campus-portal", time.Minute, time.Hour)
	_, err = other.Parse(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer := NewSigner("test-key", "someone-else", time.Minute, time.Hour)
	_, err = wrongIssuer.Parse(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	late := NewSigner("test-key", "campus-portal", time.Minute, time.Hour)
	late.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = late.Parse(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.Parse("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewSigner("test-key", "", time.Minute, time.Hour)
	pair, err := s.Issue(teacher)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/teachers", RequireSession(s), RequireRole(model.UserTeacher, model.UserAdmin), func(c *gin.Context) {
		claims, _ := ClaimsFrom(c)
		c.String(http.StatusOK, claims.Subject)
	})
	r.GET("/admins", RequireSession(s), RequireRole(model.UserAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"no header", "/teachers", "", http.StatusUnauthorized},
		{"garbage token", "/teachers", "Bearer nope", http.StatusUnauthorized},
		{"allowed role", "/teachers", "Bearer " + pair.AccessToken, http.StatusOK},
		{"lowercase scheme", "/teachers", "bearer " + pair.AccessToken, http.StatusOK},
		{"wrong role", "/admins", "Bearer " + pair.AccessToken, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
