package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the access-token claims. CompanyID is omitted for platform
// admins running unscoped.
type Claims struct {
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	CompanyID *int64 `json:"company_id,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject as an int64
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid subject claim: %w", err)
	}
	return id, nil
}

// Issuer mints and verifies signed access tokens. Keys are held in a keyring
// indexed by key ID so the signing key can rotate without invalidating
// tokens signed by the previous key.
type Issuer struct {
	keys      map[string][]byte
	activeKid string
	issuer    string
	ttl       time.Duration
}

// NewIssuer creates an issuer. keys maps key IDs to HMAC secrets; activeKid
// selects the signing key for new tokens.
func NewIssuer(keys map[string][]byte, activeKid, issuer string, ttl time.Duration) (*Issuer, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("at least one signing key required")
	}
	if _, ok := keys[activeKid]; !ok {
		return nil, fmt.Errorf("active key %q not in keyring", activeKid)
	}
	return &Issuer{
		keys:      keys,
		activeKid: activeKid,
		issuer:    issuer,
		ttl:       ttl,
	}, nil
}

// AccessTTL returns the access-token lifetime
func (i *Issuer) AccessTTL() time.Duration {
	return i.ttl
}

// Issue mints a signed access token. companyID is nil for unscoped platform
// admins. The jti claim exists for traceability only; access tokens are never
// individually revoked, they expire.
func (i *Issuer) Issue(userID int64, email, name string, companyID *int64) (string, error) {
	now := time.Now()
	claims := Claims{
		Email:     email,
		Name:      name,
		CompanyID: companyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ID:        uuid.NewString(),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = i.activeKid

	signed, err := token.SignedString(i.keys[i.activeKid])
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates an access token, selecting the verification
// key by the token's kid header.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		key, ok := i.keys[kid]
		if !ok {
			return nil, fmt.Errorf("unknown key id: %q", kid)
		}
		return key, nil
	}, jwt.WithIssuer(i.issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrUnauthenticated
	}
	return claims, nil
}
