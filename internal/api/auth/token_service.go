package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/podjdr/pkg/models"
)

const issuer = "podjdr"

// TokenService signs and verifies session tokens. Sessions are stateless:
// everything a request needs to know about its caller lives in the claims.
type TokenService struct {
	secretKey []byte

	// SessionDuration is the lifetime of an issued token
	SessionDuration time.Duration
}

// SessionClaims represents the claims in our JWT tokens
type SessionClaims struct {
	Kind             models.Kind `json:"kind"`
	ID               int64       `json:"id"`
	Name             string      `json:"name"`
	Admin            bool        `json:"admin"`
	ImpersonatorID   int64       `json:"impersonator_id,omitempty"`
	ImpersonatorName string      `json:"impersonator_name,omitempty"`
	jwt.RegisteredClaims
}

// NewTokenService creates a new token service
func NewTokenService(secretKey string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{secretKey: []byte(secretKey), SessionDuration: ttl}
}

// Issue signs a token for the session and returns it with its expiry
func (ts *TokenService) Issue(s *models.Session) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ts.SessionDuration)
	claims := &SessionClaims{
		Kind:             s.Kind,
		ID:               s.ID,
		Name:             s.Name,
		Admin:            s.IsAdmin,
		ImpersonatorID:   s.ImpersonatorID,
		ImpersonatorName: s.ImpersonatorName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   s.Ref().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign JWT: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate verifies a token and returns the session it carries
func (ts *TokenService) Validate(tokenString string) (*models.Session, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ts.secretKey, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || !claims.Kind.Valid() || claims.ID <= 0 {
		return nil, ErrInvalidToken
	}
	return &models.Session{
		Kind:             claims.Kind,
		ID:               claims.ID,
		Name:             claims.Name,
		IsAdmin:          claims.Admin,
		ImpersonatorID:   claims.ImpersonatorID,
		ImpersonatorName: claims.ImpersonatorName,
	}, nil
}
