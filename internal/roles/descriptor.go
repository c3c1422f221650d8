package roles

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

// CookieName is the cookie mirroring the browser's stored user descriptor.
const CookieName = "user"

// ErrNoDescriptor is returned when the request carries no descriptor.
var ErrNoDescriptor = errors.New("roles: no stored user descriptor")

// Descriptor is the stored user descriptor. Only the role is relied on.
type Descriptor struct {
	Role     string `json:"role"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// DisplayName prefers the full name over the login.
func (d Descriptor) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Username
}

// ReadDescriptor decodes the descriptor cookie, a URL-escaped JSON object.
func ReadDescriptor(r *http.Request) (Descriptor, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return Descriptor{}, ErrNoDescriptor
	}
	raw, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return Descriptor{}, fmt.Errorf("unescape user descriptor: %w", err)
	}
	var d Descriptor
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return Descriptor{}, fmt.Errorf("decode user descriptor: %w", err)
	}
	return d, nil
}

// ActorFromRequest picks the maintenance actor for r. A missing or
// unreadable descriptor selects the driver tab.
func ActorFromRequest(r *http.Request, logger *slog.Logger) (Actor, Descriptor) {
	d, err := ReadDescriptor(r)
	if err != nil {
		logDescriptor(logger, err)
		return Driver{}, Descriptor{}
	}
	return ActorFor(d.Role), d
}

// RequesterFromRequest picks the request page audience for r. A missing
// descriptor selects corporator, an unreadable one user.
func RequesterFromRequest(r *http.Request, logger *slog.Logger) (Requester, Descriptor) {
	d, err := ReadDescriptor(r)
	switch {
	case errors.Is(err, ErrNoDescriptor):
		return Corporator{}, Descriptor{}
	case err != nil:
		logDescriptor(logger, err)
		return User{}, Descriptor{}
	}
	return RequesterFor(d.Role), d
}

func logDescriptor(logger *slog.Logger, err error) {
	if logger != nil && !errors.Is(err, ErrNoDescriptor) {
		logger.Debug("stored user descriptor ignored", slog.Any("error", err))
	}
}
