package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"campusportal/internal/metrics"
	"campusportal/internal/model"
	"campusportal/internal/portal"
	"campusportal/internal/store"
)

// Auditor records sign-in activity.
type Auditor interface {
	Record(ctx context.Context, action, details string) error
}

// Authenticator signs users in and keeps the current session value in the store.
type Authenticator struct {
	verifier Verifier
	store    *store.Store
	audit    Auditor
	log      *zap.Logger
}

// NewAuthenticator wires a verifier to the session store and the audit log.
func NewAuthenticator(v Verifier, s *store.Store, a Auditor, log *zap.Logger) *Authenticator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Authenticator{verifier: v, store: s, audit: a, log: log}
}

// Login verifies the pair and stores the user as the current session. Failed
// attempts are audited and leave any existing session in place.
func (a *Authenticator) Login(ctx context.Context, rollNo, secret string) (*model.User, error) {
	u, err := a.verifier.Verify(ctx, rollNo, secret)
	if err != nil {
		if !errors.Is(err, ErrInvalidCredentials) {
			return nil, err
		}
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		a.log.Info("login rejected", zap.String("roll_no", rollNo))
		if aerr := a.audit.Record(ctx, "Failed Login", "Failed login attempt for "+rollNo); aerr != nil {
			return nil, aerr
		}
		return nil, err
	}

	data, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	// no session without its audit entry
	if err := a.audit.Record(ctx, "User Login", fmt.Sprintf("%s (%s) signed in", u.Name, u.RollNo)); err != nil {
		return nil, err
	}
	if err := a.store.Set(ctx, portal.SessionKey, data); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	metrics.LoginAttempts.WithLabelValues("success").Inc()
	a.log.Info("login", zap.String("user_id", u.ID), zap.String("role", string(u.Type)))
	return u, nil
}

// Logout clears the session. Without a session it does nothing.
func (a *Authenticator) Logout(ctx context.Context) error {
	u, err := a.Current(ctx)
	if err != nil || u == nil {
		return err
	}
	if err := a.store.Remove(ctx, portal.SessionKey); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return a.audit.Record(ctx, "User Logout", fmt.Sprintf("%s (%s) signed out", u.Name, u.RollNo))
}

// Current returns the signed-in user, nil when nobody is.
func (a *Authenticator) Current(ctx context.Context) (*model.User, error) {
	data, ok, err := a.store.Get(ctx, portal.SessionKey)
	if err != nil || !ok {
		return nil, err
	}
	var u model.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("%w: session: %v", store.ErrCorrupt, err)
	}
	return &u, nil
}
