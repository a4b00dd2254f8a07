package admin

import (
	"time"

	"soulease/backend/internal/domain/user"
)

// Claims builds the custom auth claims for role. therapistId links a
// therapist account to its roster entry.
func Claims(role, therapistID string) map[string]interface{} {
	c := map[string]interface{}{
		"role":            role,
		"roles":           map[string]bool{role: true},
		"admin":           role == user.RoleAdmin,
		"claimsUpdatedAt": time.Now().Unix(),
	}
	if role == user.RoleTherapist && therapistID != "" {
		c["therapistId"] = therapistID
	}
	return c
}
