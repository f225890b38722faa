package gateway

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const stateIssuer = "availability-service/consent"

// StateSigner issues and checks the OAuth2 state parameter as a short-lived
// HS256 token, so a callback is only accepted for a flow this process began.
type StateSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewStateSigner returns a signer using secret. An empty secret is replaced
// with random bytes, which invalidates pending flows on restart.
func NewStateSigner(secret []byte, ttl time.Duration) (*StateSigner, error) {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate state secret: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StateSigner{secret: secret, ttl: ttl, now: time.Now}, nil
}

func (s *StateSigner) Issue() (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    stateIssuer,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign state: %w", err)
	}
	return signed, nil
}

func (s *StateSigner) Verify(state string) error {
	_, err := jwt.ParseWithClaims(state, &jwt.RegisteredClaims{}, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return fmt.Errorf("verify state: %w", err)
	}
	return nil
}
