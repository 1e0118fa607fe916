package conference

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/acadlive/backend/internal/models"
)

var (
	// ErrMissingSecret means no signing key is configured; issuance is a
	// fatal configuration error, not a per-request failure.
	ErrMissingSecret = errors.New("conference: no token signing secret configured")
	// ErrInvalidToken is returned when a room token fails validation.
	ErrInvalidToken = errors.New("conference: invalid room token")
)

// Identity is the subject a room token is issued for.
type Identity struct {
	UserID uuid.UUID
	Name   string
	Email  string
}

// Capabilities are the elevated controls asserted on moderator tokens. They
// are consumed only by the conferencing backend.
type Capabilities struct {
	MuteAudio   bool `json:"mute_audio"`
	MuteVideo   bool `json:"mute_video"`
	ScreenShare bool `json:"screen_share"`
	ChatControl bool `json:"chat_control"`
}

// RoomClaims is the credential contract handed to the conferencing backend.
type RoomClaims struct {
	Name         string        `json:"name"`
	Email        string        `json:"email"`
	Room         string        `json:"room"`
	Moderator    bool          `json:"moderator"`
	Capabilities *Capabilities `json:"capabilities,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer builds signed, time-bounded room credentials. Issue is a pure
// function of (session, identity, role, now): no storage, no network.
type TokenIssuer struct {
	issuer   string
	audience string
	secret   []byte
}

// NewTokenIssuer creates an issuer. An empty secret is refused so a
// misconfigured deployment fails at boot rather than per request.
func NewTokenIssuer(issuer, audience, secret string) (*TokenIssuer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &TokenIssuer{issuer: issuer, audience: audience, secret: []byte(secret)}, nil
}

// Issue signs a room credential for the identity at the given permission
// tier. The expiry is pinned to the session's scheduled end: a token issued
// one minute before the boundary lives one minute, one issued at the start
// lives the whole scheduled duration.
func (i *TokenIssuer) Issue(session *models.LiveSession, id Identity, role models.ParticipantRole, now time.Time) (string, error) {
	claims := RoomClaims{
		Name:      id.Name,
		Email:     id.Email,
		Room:      session.RoomName,
		Moderator: role == models.RoleModerator,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			Subject:   id.UserID.String(),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(session.ScheduledEndAt),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	if claims.Moderator {
		claims.Capabilities = &Capabilities{
			MuteAudio:   true,
			MuteVideo:   true,
			ScreenShare: true,
			ChatControl: true,
		}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Parse validates a room token and returns its claims.
func (i *TokenIssuer) Parse(tokenString string) (*RoomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &RoomClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*RoomClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
