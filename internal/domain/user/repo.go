package user

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Repo struct {
	fs *firestore.Client
}

func NewRepo(fs *firestore.Client) *Repo {
	return &Repo{fs: fs}
}

// Get returns the stored profile, or a bare profile when none exists yet.
func (r *Repo) Get(ctx context.Context, uid string) (*Profile, error) {
	doc, err := r.fs.Collection(Collection).Doc(uid).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return &Profile{UID: uid, Role: RoleUser}, nil
	}
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := doc.DataTo(&p); err != nil {
		return nil, err
	}
	if p.UID == "" {
		p.UID = uid
	}
	return &p, nil
}

// SaveRole merges p's identity and role into users/{uid}.
func (r *Repo) SaveRole(ctx context.Context, p Profile) error {
	ref := r.fs.Collection(Collection).Doc(p.UID)
	_, err := ref.Set(ctx, map[string]any{
		"uid":         p.UID,
		"email":       p.Email,
		"displayName": p.DisplayName,
		"role":        p.Role,
		"therapistId": p.TherapistID,
		"grantedBy":   p.GrantedBy,
		"updatedAt":   time.Now().UTC(),
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to save user %s: %w", p.UID, err)
	}
	return nil
}

func (r *Repo) ListByRole(ctx context.Context, role string) ([]Profile, error) {
	iter := r.fs.Collection(Collection).Where("role", "==", role).Documents(ctx)
	defer iter.Stop()

	out := []Profile{}
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list users: %w", err)
		}
		var p Profile
		if err := doc.DataTo(&p); err != nil {
			continue
		}
		if p.UID == "" {
			p.UID = doc.Ref.ID
		}
		out = append(out, p)
	}
	return out, nil
}
