package conference

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acadlive/backend/internal/models"
)

// testSession returns a session currently inside its scheduled window so
// issued tokens are parseable (nbf in the past, exp in the future).
func testSession() *models.LiveSession {
	now := time.Now().Truncate(time.Second)
	return &models.LiveSession{
		ID:               uuid.New(),
		CourseID:         uuid.New(),
		ScheduledStartAt: now.Add(-time.Hour),
		ScheduledEndAt:   now.Add(time.Hour),
		RoomName:         "acad-12345678-87654321-abcdef0123",
		Status:           models.StatusLive,
	}
}

func newTestIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer("acadlive", "conference", "test-secret")
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	return issuer
}

func TestNewTokenIssuerRequiresSecret(t *testing.T) {
	if _, err := NewTokenIssuer("acadlive", "conference", ""); err != ErrMissingSecret {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
}

func TestIssueExpiryPinnedToScheduledEnd(t *testing.T) {
	issuer := newTestIssuer(t)
	session := testSession()
	id := Identity{UserID: uuid.New(), Name: "Ada Lovelace", Email: "ada@example.com"}

	// Issuance time must not move the expiry: a token minted at session
	// start and one minted an hour in expire at the same boundary.
	issueTimes := []time.Time{
		session.ScheduledStartAt,
		session.ScheduledStartAt.Add(time.Hour),
	}
	for _, now := range issueTimes {
		token, err := issuer.Issue(session, id, models.RoleParticipant, now)
		if err != nil {
			t.Fatalf("Issue at %v: %v", now, err)
		}
		claims, err := issuer.Parse(token)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if !claims.ExpiresAt.Time.Equal(session.ScheduledEndAt) {
			t.Errorf("issued at %v: exp = %v, want %v", now, claims.ExpiresAt.Time, session.ScheduledEndAt)
		}
	}
}

func TestIssueClaims(t *testing.T) {
	issuer := newTestIssuer(t)
	session := testSession()
	id := Identity{UserID: uuid.New(), Name: "Ada Lovelace", Email: "ada@example.com"}
	now := session.ScheduledStartAt

	token, err := issuer.Issue(session, id, models.RoleParticipant, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != id.UserID.String() {
		t.Errorf("sub = %q, want %q", claims.Subject, id.UserID.String())
	}
	if claims.Name != id.Name || claims.Email != id.Email {
		t.Errorf("identity = %q/%q, want %q/%q", claims.Name, claims.Email, id.Name, id.Email)
	}
	if claims.Room != session.RoomName {
		t.Errorf("room = %q, want %q", claims.Room, session.RoomName)
	}
	if claims.Issuer != "acadlive" {
		t.Errorf("iss = %q, want acadlive", claims.Issuer)
	}
	if len(claims.Audience) != 1 || claims.Audience[0] != "conference" {
		t.Errorf("aud = %v, want [conference]", claims.Audience)
	}
	if !claims.NotBefore.Time.Equal(now) {
		t.Errorf("nbf = %v, want %v", claims.NotBefore.Time, now)
	}
	if claims.ID == "" {
		t.Error("jti is empty")
	}
}

func TestIssueModeratorCapabilities(t *testing.T) {
	issuer := newTestIssuer(t)
	session := testSession()
	id := Identity{UserID: uuid.New(), Name: "Grace Hopper", Email: "grace@example.com"}

	token, err := issuer.Issue(session, id, models.RoleModerator, session.ScheduledStartAt)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !claims.Moderator {
		t.Fatal("moderator flag not set")
	}
	caps := claims.Capabilities
	if caps == nil {
		t.Fatal("moderator token missing capabilities")
	}
	if !caps.MuteAudio || !caps.MuteVideo || !caps.ScreenShare || !caps.ChatControl {
		t.Errorf("capabilities = %+v, want all enabled", caps)
	}
}

func TestIssueParticipantHasNoCapabilities(t *testing.T) {
	issuer := newTestIssuer(t)
	session := testSession()
	id := Identity{UserID: uuid.New(), Name: "Student", Email: "s@example.com"}

	token, err := issuer.Issue(session, id, models.RoleParticipant, session.ScheduledStartAt)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Moderator {
		t.Error("participant token has moderator flag")
	}
	if claims.Capabilities != nil {
		t.Errorf("participant token has capabilities: %+v", claims.Capabilities)
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	issuer := newTestIssuer(t)
	other, err := NewTokenIssuer("acadlive", "conference", "different-secret")
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	session := testSession()
	token, err := issuer.Issue(session, Identity{UserID: uuid.New()}, models.RoleParticipant, session.ScheduledStartAt)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := other.Parse(token); err == nil {
		t.Fatal("expected parse failure with wrong key")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	issuer := newTestIssuer(t)
	session := testSession()
	session.ScheduledEndAt = time.Now().Add(-time.Minute)

	token, err := issuer.Issue(session, Identity{UserID: uuid.New()}, models.RoleParticipant, session.ScheduledStartAt)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := issuer.Parse(token); err == nil {
		t.Fatal("expected parse failure for token past its scheduled end")
	}
}
