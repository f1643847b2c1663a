package domain

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleUser  = "ROLE_USER"
	RoleAdmin = "ROLE_ADMIN"
)

// CustomClaims: claims токена внешнего IdP (Keycloak).
// Роли приходят либо плоским списком "roles", либо в realm_access.roles.
type CustomClaims struct {
	Roles       []string `json:"roles,omitempty"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access,omitzero"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	jwt.RegisteredClaims
}

// Identity: аутентифицированный субъект HTTP-запроса или STOMP-сессии.
type Identity struct {
	Subject     string   `json:"subject"`
	Username    string   `json:"username,omitempty"`
	Authorities []string `json:"authorities"`
}

// Authorities переводит роли токена в "ROLE_<UPPER>".
func (c *CustomClaims) Authorities() []string {
	roles := c.Roles
	if len(roles) == 0 {
		roles = c.RealmAccess.Roles
	}
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		r = strings.ToUpper(r)
		if !strings.HasPrefix(r, "ROLE_") {
			r = "ROLE_" + r
		}
		out = append(out, r)
	}
	return out
}

func (c *CustomClaims) Identity() *Identity {
	return &Identity{
		Subject:     c.Subject,
		Username:    c.PreferredUsername,
		Authorities: c.Authorities(),
	}
}

// HasAnyRole: nil-безопасная проверка прав.
func (i *Identity) HasAnyRole(roles ...string) bool {
	if i == nil {
		return false
	}
	for _, have := range i.Authorities {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}
