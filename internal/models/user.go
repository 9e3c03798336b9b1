package models

import "time"

// RoleCrossTenantAdmin allows reading documents outside the user's own tenant.
const RoleCrossTenantAdmin = "cross_tenant_admin"

// User is the gateway-side projection of a portal user (mapped from the
// identity provider's claims). The portal owns the full account record; the
// gateway only needs identity, tenant scoping and roles.
type User struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	Sub       string    `bson:"sub" json:"sub"` // OIDC subject
	TenantID  string    `bson:"tenantId" json:"tenantId"`
	Email     string    `bson:"email" json:"email"`
	Name      string    `bson:"name" json:"name"`
	Roles     []string  `bson:"roles,omitempty" json:"roles,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// HasRole reports whether the user carries the given role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
