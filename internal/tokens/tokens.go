package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verification errors surfaced to callers. HandleCallback and ServeDocument
// map these onto wire-level auth failures.
var (
	ErrMissingClaims    = errors.New("editor claims missing required fields")
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrTokenExpired     = errors.New("token expired")
)

// expiry checks tolerate a small amount of clock skew between the gateway
// and the external Document Server.
const expiryLeeway = 5 * time.Second

// Permissions is the permission set bound into an editor token.
type Permissions struct {
	Edit     bool `json:"edit"`
	Download bool `json:"download"`
	Print    bool `json:"print"`
	Review   bool `json:"review"`
}

// ReadOnly returns the downgraded permission set handed out when another
// session already holds the document's write lock.
func (p Permissions) ReadOnly() Permissions {
	return Permissions{Edit: false, Download: p.Download, Print: p.Print, Review: false}
}

// EditorClaims binds a document, tenant, user and editing session to a
// permission set. The external Document Server presents these back to the
// gateway on every file fetch and save callback.
type EditorClaims struct {
	DocumentID  string      `json:"docId"`
	TenantID    string      `json:"tenantId"`
	UserID      string      `json:"userId"`
	SessionKey  string      `json:"sessionKey"`
	Permissions Permissions `json:"permissions"`
	jwt.RegisteredClaims
}

// Codec signs and verifies editor tokens with a process-wide secret loaded
// once at startup. The secret is never mutated at runtime; rotation happens
// by redeploy.
type Codec struct {
	secret []byte
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// Issue serializes the claims and returns a signed compact JWT (HS256).
func (c *Codec) Issue(claims EditorClaims, ttl time.Duration) (string, error) {
	if claims.DocumentID == "" || claims.TenantID == "" || claims.SessionKey == "" {
		return "", ErrMissingClaims
	}
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return jt.SignedString(c.secret)
}

// Verify recomputes the signature over the payload (constant-time compare
// inside the HMAC verification) and rejects expired or malformed tokens.
func (c *Codec) Verify(raw string) (*EditorClaims, error) {
	var claims EditorClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(expiryLeeway),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, ErrMalformedToken
		}
	}
	if claims.ExpiresAt == nil {
		return nil, ErrMalformedToken
	}
	if claims.DocumentID == "" || claims.SessionKey == "" {
		return nil, ErrMissingClaims
	}
	return &claims, nil
}
