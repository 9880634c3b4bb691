package safety

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidOptOutToken signals an expired, malformed or mis-signed
// opt-out token.
var ErrInvalidOptOutToken = errors.New("safety: invalid opt-out token")

// OptOutClaims identify the lead behind a verified opt-out link.
type OptOutClaims struct {
	LeadID string
	Email  string
}

// OptOutIssuer signs and verifies the opt-out tokens embedded in
// outbound messages. A verified token adds the lead and address to the
// DNC lists without the recipient needing an account.
type OptOutIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewOptOutIssuer(secret string) *OptOutIssuer {
	return &OptOutIssuer{
		secret: []byte(secret),
		ttl:    90 * 24 * time.Hour,
		now:    time.Now,
	}
}

func (i *OptOutIssuer) WithTTL(ttl time.Duration) *OptOutIssuer {
	i.ttl = ttl
	return i
}

func (i *OptOutIssuer) WithClock(now func() time.Time) *OptOutIssuer {
	i.now = now
	return i
}

// Issue returns a signed token for the lead's opt-out link.
func (i *OptOutIssuer) Issue(leadID, email string) (string, error) {
	issued := i.now()
	claims := jwt.MapClaims{
		"lead_id": leadID,
		"email":   email,
		"exp":     issued.Add(i.ttl).Unix(),
		"iat":     issued.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("safety: sign opt-out token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns its claims, rejecting anything not
// HMAC-signed with the issuer's secret.
func (i *OptOutIssuer) Verify(tokenString string) (OptOutClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return OptOutClaims{}, fmt.Errorf("%w: %v", ErrInvalidOptOutToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return OptOutClaims{}, ErrInvalidOptOutToken
	}
	leadID, _ := claims["lead_id"].(string)
	email, _ := claims["email"].(string)
	if leadID == "" && email == "" {
		return OptOutClaims{}, ErrInvalidOptOutToken
	}
	return OptOutClaims{LeadID: leadID, Email: email}, nil
}
