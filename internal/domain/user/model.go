package user

import "time"

const Collection = "users"

const (
	RoleAdmin     = "admin"
	RoleTherapist = "therapist"
	RoleUser      = "user"
)

// Profile mirrors the role granted in the user's auth claims so back-office
// screens can list accounts without scanning Firebase Auth.
type Profile struct {
	UID         string `firestore:"uid" json:"uid"`
	Email       string `firestore:"email,omitempty" json:"email,omitempty"`
	DisplayName string `firestore:"displayName,omitempty" json:"displayName,omitempty"`

	Role        string `firestore:"role,omitempty" json:"role,omitempty"`
	TherapistID string `firestore:"therapistId,omitempty" json:"therapistId,omitempty"`
	GrantedBy   string `firestore:"grantedBy,omitempty" json:"grantedBy,omitempty"`

	CreatedAt time.Time `firestore:"createdAt,omitempty" json:"createdAt,omitempty"`
	UpdatedAt time.Time `firestore:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

func (p Profile) HasRole(r string) bool {
	if r == RoleUser {
		return true
	}
	return p.Role == r
}

// ValidRole reports whether r can be granted.
func ValidRole(r string) bool {
	return r == RoleAdmin || r == RoleTherapist || r == RoleUser
}
