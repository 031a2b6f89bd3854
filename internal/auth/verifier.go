// Package auth signs users in and protects the HTTP API.
package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"campusportal/internal/model"
)

// ErrInvalidCredentials is returned for any unknown user or wrong secret.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Verifier checks a roll number and secret and returns the matching user.
type Verifier interface {
	Verify(ctx context.Context, rollNo, secret string) (*model.User, error)
}

// UserLookup finds users by roll number.
type UserLookup interface {
	UserByRollNo(ctx context.Context, rollNo string) (*model.User, error)
}

// Rules is the fixed sign-in rule set: one admin pair, one teacher pair and a
// password shared by every stored student.
type Rules struct {
	AdminRollNo     string
	AdminPassword   string
	TeacherRollNo   string
	TeacherPassword string
	StudentPassword string
	Cost            int // bcrypt cost; zero means bcrypt.DefaultCost
}

// RuleVerifier applies Rules. The passwords are held only as bcrypt hashes.
type RuleVerifier struct {
	users         UserLookup
	adminRollNo   string
	teacherRollNo string
	adminHash     []byte
	teacherHash   []byte
	studentHash   []byte
}

// NewRuleVerifier hashes the configured passwords. An empty password disables
// that rule.
func NewRuleVerifier(users UserLookup, r Rules) (*RuleVerifier, error) {
	cost := r.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	v := &RuleVerifier{users: users, adminRollNo: r.AdminRollNo, teacherRollNo: r.TeacherRollNo}
	for _, h := range []struct {
		dst    *[]byte
		secret string
	}{
		{&v.adminHash, r.AdminPassword},
		{&v.teacherHash, r.TeacherPassword},
		{&v.studentHash, r.StudentPassword},
	} {
		if h.secret == "" {
			continue
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(h.secret), cost)
		if err != nil {
			return nil, fmt.Errorf("hash rule password: %w", err)
		}
		*h.dst = hash
	}
	return v, nil
}

// Verify implements Verifier.
func (v *RuleVerifier) Verify(ctx context.Context, rollNo, secret string) (*model.User, error) {
	var hash []byte
	var want model.UserType
	switch {
	case v.adminRollNo != "" && rollNo == v.adminRollNo:
		hash, want = v.adminHash, model.UserAdmin
	case v.teacherRollNo != "" && rollNo == v.teacherRollNo:
		hash, want = v.teacherHash, model.UserTeacher
	default:
		hash, want = v.studentHash, model.UserStudent
	}
	if hash == nil || bcrypt.CompareHashAndPassword(hash, []byte(secret)) != nil {
		return nil, ErrInvalidCredentials
	}
	u, err := v.users.UserByRollNo(ctx, rollNo)
	if err != nil {
		return nil, err
	}
	if u == nil || u.Type != want {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// CredentialStore keeps per-user password hashes.
type CredentialStore interface {
	CredentialFor(ctx context.Context, userID string) (*model.Credential, error)
	SetCredential(ctx context.Context, userID, hash string) error
}

// HashVerifier checks secrets against per-user bcrypt hashes.
type HashVerifier struct {
	users UserLookup
	creds CredentialStore
	cost  int
}

// NewHashVerifier returns a verifier over creds. cost zero means bcrypt.DefaultCost.
func NewHashVerifier(users UserLookup, creds CredentialStore, cost int) *HashVerifier {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &HashVerifier{users: users, creds: creds, cost: cost}
}

// Verify implements Verifier.
func (v *HashVerifier) Verify(ctx context.Context, rollNo, secret string) (*model.User, error) {
	u, err := v.users.UserByRollNo(ctx, rollNo)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}
	cred, err := v.creds.CredentialFor(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if cred == nil || bcrypt.CompareHashAndPassword([]byte(cred.Hash), []byte(secret)) != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// SetPassword stores a new hash of secret for userID.
func (v *HashVerifier) SetPassword(ctx context.Context, userID, secret string) error {
	if secret == "" {
		return fmt.Errorf("%w: empty password", model.ErrInvalid)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), v.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return v.creds.SetCredential(ctx, userID, string(hash))
}
