// Package admin manages back-office accounts.
package admin

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"

	"soulease/backend/internal/domain/user"
)

// Identity is the part of *auth.Client the service uses.
type Identity interface {
	GetUser(ctx context.Context, uid string) (*auth.UserRecord, error)
	GetUserByEmail(ctx context.Context, email string) (*auth.UserRecord, error)
	SetCustomUserClaims(ctx context.Context, uid string, customClaims map[string]interface{}) error
}

type Users interface {
	ListByRole(ctx context.Context, role string) ([]user.Profile, error)
	SaveRole(ctx context.Context, p user.Profile) error
}

type Service struct {
	identity Identity
	users    Users
	log      *zap.Logger
}

func NewService(identity Identity, users Users, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{identity: identity, users: users, log: log}
}

type GrantInput struct {
	UID         string `json:"uid,omitempty"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role"`
	TherapistID string `json:"therapistId,omitempty"`
}

func (in *GrantInput) Trim() {
	in.UID = strings.TrimSpace(in.UID)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	in.Role = strings.TrimSpace(strings.ToLower(in.Role))
	in.TherapistID = strings.TrimSpace(in.TherapistID)
}

func (s *Service) ListAdmins(ctx context.Context) ([]user.Profile, error) {
	out, err := s.users.ListByRole(ctx, user.RoleAdmin)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

// Grant gives an existing auth account the admin or therapist role.
func (s *Service) Grant(ctx context.Context, actorUID string, in GrantInput) (*user.Profile, error) {
	in.Trim()
	if in.UID == "" && in.Email == "" {
		return nil, fmt.Errorf("%w: uid or email is required", ErrBadRequest)
	}
	if in.Role != user.RoleAdmin && in.Role != user.RoleTherapist {
		return nil, fmt.Errorf("%w: role must be admin or therapist", ErrBadRequest)
	}
	if in.Role == user.RoleTherapist && in.TherapistID == "" {
		return nil, fmt.Errorf("%w: therapistId is required for therapist accounts", ErrBadRequest)
	}

	rec, err := s.lookup(ctx, in.UID, in.Email)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, actorUID, rec, in.Role, in.TherapistID)
}

// Revoke drops uid back to a plain user. Admins cannot revoke themselves.
func (s *Service) Revoke(ctx context.Context, actorUID, uid string) (*user.Profile, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, fmt.Errorf("%w: uid is required", ErrBadRequest)
	}
	if uid == actorUID {
		return nil, fmt.Errorf("%w: cannot revoke your own access", ErrForbidden)
	}
	rec, err := s.lookup(ctx, uid, "")
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, actorUID, rec, user.RoleUser, "")
}

func (s *Service) lookup(ctx context.Context, uid, email string) (*auth.UserRecord, error) {
	var (
		rec *auth.UserRecord
		err error
	)
	if uid != "" {
		rec, err = s.identity.GetUser(ctx, uid)
	} else {
		rec, err = s.identity.GetUserByEmail(ctx, email)
	}
	if auth.IsUserNotFound(err) {
		return nil, fmt.Errorf("%w: no account for %s%s", ErrNotFound, uid, email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	return rec, nil
}

func (s *Service) apply(ctx context.Context, actorUID string, rec *auth.UserRecord, role, therapistID string) (*user.Profile, error) {
	if err := s.identity.SetCustomUserClaims(ctx, rec.UID, Claims(role, therapistID)); err != nil {
		return nil, fmt.Errorf("failed to set claims: %w", err)
	}
	p := user.Profile{
		UID:         rec.UID,
		Email:       rec.Email,
		DisplayName: rec.DisplayName,
		Role:        role,
		TherapistID: therapistID,
		GrantedBy:   actorUID,
	}
	if err := s.users.SaveRole(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info("role changed",
		zap.String("uid", rec.UID), zap.String("role", role), zap.String("by", actorUID))
	return &p, nil
}
