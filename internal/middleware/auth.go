package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
)

type ctxKey string

const authUserKey ctxKey = "authUser"

type AuthUser struct {
	UID    string
	Email  string
	Claims map[string]any
}

// Admin reports whether the caller holds the admin role.
func (u *AuthUser) Admin() bool { return u != nil && IsAdmin(u.Claims) }

// TherapistID is the roster entry linked to a therapist account, or "".
func (u *AuthUser) TherapistID() string {
	if u == nil {
		return ""
	}
	return TherapistID(u.Claims)
}

// TokenVerifier is the part of *auth.Client WithAuth needs.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

func WithAuth(verifier TokenVerifier, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if h == "" || !strings.HasPrefix(strings.ToLower(h), "bearer ") {
				writeError(w, http.StatusUnauthorized, "missing Authorization: Bearer <token>")
				return
			}
			idToken := strings.TrimSpace(h[len("Bearer "):])

			tok, err := verifier.VerifyIDToken(r.Context(), idToken)
			if err != nil {
				log.Debug("id token rejected", zap.Error(err))
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			au := &AuthUser{
				UID:    tok.UID,
				Claims: tok.Claims,
			}
			if v, ok := tok.Claims["email"].(string); ok {
				au.Email = v
			}

			ctx := WithAuthUser(r.Context(), au)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithAuthUser stores au on ctx.
func WithAuthUser(ctx context.Context, au *AuthUser) context.Context {
	return context.WithValue(ctx, authUserKey, au)
}

func GetAuthUser(ctx context.Context) (*AuthUser, bool) {
	v := ctx.Value(authUserKey)
	if v == nil {
		return nil, false
	}
	au, ok := v.(*AuthUser)
	return au, ok
}

// RequireAdmin rejects callers without the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		au, _ := GetAuthUser(r.Context())
		if !au.Admin() {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireTherapist rejects callers whose account is not linked to a therapist.
func RequireTherapist(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		au, _ := GetAuthUser(r.Context())
		if au.TherapistID() == "" {
			writeError(w, http.StatusForbidden, "therapist account required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IsAdmin checks if the user has admin role in their claims
func IsAdmin(claims map[string]any) bool {
	return hasRole(claims, "admin")
}

func IsTherapist(claims map[string]any) bool {
	return hasRole(claims, "therapist")
}

// TherapistID returns the therapistId claim of a therapist account.
func TherapistID(claims map[string]any) string {
	if !IsTherapist(claims) {
		return ""
	}
	id, _ := claims["therapistId"].(string)
	return id
}

func hasRole(claims map[string]any, role string) bool {
	if claims == nil {
		return false
	}
	// Check flag
	if v, ok := claims[role].(bool); ok && v {
		return true
	}
	// Check role field
	if r, ok := claims["role"].(string); ok && r == role {
		return true
	}
	// Check roles map
	if roles, ok := claims["roles"].(map[string]interface{}); ok {
		if b, ok := roles[role].(bool); ok && b {
			return true
		}
	}
	// Check roles array
	if roles, ok := claims["roles"].([]interface{}); ok {
		for _, r := range roles {
			if s, ok := r.(string); ok && s == role {
				return true
			}
		}
	}
	return false
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
