package backend

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is what the client can read out of its bearer token without
// holding the signing secret: who the token says the student is and when it
// stops working. Verification is the platform's job on every request.
type Identity struct {
	StudentID string
	Name      string
	ExpiresAt *time.Time
}

type tokenClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Identity parses the configured bearer token's claims. The signature is not
// checked here; an invalid token is still rejected server-side.
func (c *Client) Identity() (*Identity, error) {
	if c.token == "" {
		return nil, fmt.Errorf("no token configured")
	}

	var claims tokenClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(c.token, &claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	id := &Identity{
		StudentID: claims.Subject,
		Name:      claims.Name,
	}
	if claims.ExpiresAt != nil {
		t := claims.ExpiresAt.Time
		id.ExpiresAt = &t
	}
	return id, nil
}

// Expired reports whether the token's expiry has passed at now.
func (i *Identity) Expired(now time.Time) bool {
	return i.ExpiresAt != nil && now.After(*i.ExpiresAt)
}
