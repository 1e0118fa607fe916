package conference

import (
	"fmt"
	"net/url"
	"strings"
)

// JoinURLParams are the inputs for building a room join URL.
type JoinURLParams struct {
	ServerURL string
	Room      string
	Token     string
	Password  string // optional
}

// BuildJoinURL composes the single URL a client opens to enter the room:
// the room's address on the conferencing server with the signed token, the
// optional room password, and fixed UX flags as query parameters. Stateless
// and stable: identical inputs always produce an identical URL.
func BuildJoinURL(p JoinURLParams) (string, error) {
	if p.ServerURL == "" {
		return "", fmt.Errorf("join url: server url is required")
	}
	if p.Room == "" {
		return "", fmt.Errorf("join url: room is required")
	}
	base, err := url.Parse(p.ServerURL)
	if err != nil {
		return "", fmt.Errorf("join url: parse server url: %w", err)
	}
	base.Path = strings.TrimRight(base.Path, "/") + "/" + url.PathEscape(p.Room)

	q := url.Values{}
	q.Set("token", p.Token)
	if p.Password != "" {
		q.Set("password", p.Password)
	}
	// Skip the backend's welcome and close pages so clients land straight
	// in the room and back in the app afterwards.
	q.Set("skip_welcome", "1")
	q.Set("skip_close_page", "1")
	base.RawQuery = q.Encode()

	return base.String(), nil
}
