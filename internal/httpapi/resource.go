package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"campusportal/internal/auth"
	"campusportal/internal/model"
)

// resource is the CRUD surface of one entity as served over HTTP.
type resource[T, P any] struct {
	list   func(ctx context.Context) ([]T, error)
	get    func(ctx context.Context, id string) (*T, error)
	add    func(ctx context.Context, v T) (T, error)
	update func(ctx context.Context, id string, p P) (*T, error)
	remove func(ctx context.Context, id string) (bool, error)

	// public lets anonymous callers read.
	public bool
	// writers may add, update and delete.
	writers []model.UserType
}

// mount registers GET/POST on path and GET/PATCH/DELETE on path/:id. A nil
// list or add leaves that route to the caller.
func mount[T, P any](s *Server, g *gin.RouterGroup, path string, r resource[T, P]) {
	read := []gin.HandlerFunc{}
	if !r.public {
		read = append(read, s.session)
	}
	write := []gin.HandlerFunc{s.session, auth.RequireRole(r.writers...)}

	if r.list != nil {
		g.GET(path, chain(read, func(c *gin.Context) {
			items, err := r.list(c.Request.Context())
			if err != nil {
				s.fail(c, err)
				return
			}
			c.JSON(http.StatusOK, items)
		})...)
	}

	g.GET(path+"/:id", chain(read, func(c *gin.Context) {
		item, err := r.get(c.Request.Context(), c.Param("id"))
		if err != nil {
			s.fail(c, err)
			return
		}
		if item == nil {
			notFound(c)
			return
		}
		c.JSON(http.StatusOK, item)
	})...)

	if r.add != nil {
		g.POST(path, chain(write, func(c *gin.Context) {
			var v T
			if err := c.ShouldBindJSON(&v); err != nil {
				badRequest(c, err)
				return
			}
			added, err := r.add(c.Request.Context(), v)
			if err != nil {
				s.fail(c, err)
				return
			}
			c.JSON(http.StatusCreated, added)
		})...)
	}

	g.PATCH(path+"/:id", chain(write, func(c *gin.Context) {
		var p P
		if err := c.ShouldBindJSON(&p); err != nil {
			badRequest(c, err)
			return
		}
		updated, err := r.update(c.Request.Context(), c.Param("id"), p)
		if err != nil {
			s.fail(c, err)
			return
		}
		if updated == nil {
			notFound(c)
			return
		}
		c.JSON(http.StatusOK, updated)
	})...)

	g.DELETE(path+"/:id", chain(write, func(c *gin.Context) {
		ok, err := r.remove(c.Request.Context(), c.Param("id"))
		if err != nil {
			s.fail(c, err)
			return
		}
		if !ok {
			notFound(c)
			return
		}
		c.Status(http.StatusNoContent)
	})...)
}

// chain returns base followed by h in a fresh slice.
func chain(base []gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(base)+1)
	return append(append(out, base...), h)
}
