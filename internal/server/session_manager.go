package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"fourkind-server/internal/fourkind"
)

var ErrTokenInvalid = errors.New("TOKEN_INVALID: Invalid or expired session token")

type sessionClaims struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	jwt.RegisteredClaims
}

// SessionManager issues and checks signed player tokens. It keeps no state;
// the player identity lives in the token.
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionManager(secret string, ttl time.Duration) *SessionManager {
	return &SessionManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue creates a new player identity and its token.
func (sm *SessionManager) Issue(name, avatarURL string) (string, fourkind.Player, error) {
	name = strings.TrimSpace(name)
	if err := ValidateUsername(name); err != nil {
		return "", fourkind.Player{}, err
	}

	player := fourkind.Player{ID: uuid.NewString(), Name: name, AvatarURL: avatarURL}
	now := sm.now()
	claims := sessionClaims{
		Name:      player.Name,
		AvatarURL: player.AvatarURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   player.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sm.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(sm.secret)
	if err != nil {
		return "", fourkind.Player{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, player, nil
}

// Parse returns the player a token was issued to.
func (sm *SessionManager) Parse(token string) (fourkind.Player, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return sm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(sm.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fourkind.Player{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.Subject == "" || claims.Name == "" {
		return fourkind.Player{}, ErrTokenInvalid
	}
	return fourkind.Player{ID: claims.Subject, Name: claims.Name, AvatarURL: claims.AvatarURL}, nil
}
