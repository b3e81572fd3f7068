package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/clinsys/clinsys/internal/platform/gateway"
)

// Landing destinations returned by Login and Logout.
const (
	AuthenticatedHome   = "/patients"
	UnauthenticatedHome = "/login"
)

const loginPath = "/auth/login"

// ErrInvalidCredentials is returned when the backend refuses a login.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrNoSession is returned by Claims when no token is stored.
var ErrNoSession = errors.New("not logged in")

// Credentials is the login request body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Claims is what the client can read out of the stored token. Nothing here
// is verified; the backend stays the authority.
type Claims struct {
	Subject   string
	Email     string
	Name      string
	ExpiresAt *time.Time
}

// Expired reports whether the token carries an expiry in the past.
func (c *Claims) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// Doer performs backend calls.
type Doer = gateway.Doer

// Manager owns the bearer token and the pending appointment handoff.
type Manager struct {
	store  Store
	logger zerolog.Logger
}

func NewManager(store Store, logger zerolog.Logger) *Manager {
	return &Manager{store: store, logger: logger}
}

// Token implements gateway.TokenStore.
func (m *Manager) Token() string {
	v, _ := m.store.Get(TokenKey)
	return v
}

// SetToken stores token as the current session.
func (m *Manager) SetToken(token string) error {
	return m.store.Put(TokenKey, token)
}

// ClearToken implements gateway.TokenStore.
func (m *Manager) ClearToken() error {
	return m.store.Delete(TokenKey)
}

// IsAuthenticated reports whether a non-empty token is stored.
func (m *Manager) IsAuthenticated() bool {
	return m.Token() != ""
}

// Login posts the credentials without any existing token and stores the
// token returned by the backend. It returns where to navigate next.
func (m *Manager) Login(ctx context.Context, api Doer, creds Credentials) (string, error) {
	creds.Email = strings.TrimSpace(creds.Email)
	if creds.Email == "" || creds.Password == "" {
		return "", ErrInvalidCredentials
	}

	resp, err := api.Do(ctx, loginPath, gateway.Options{
		Method:   http.MethodPost,
		Body:     creds,
		SkipAuth: true,
	})
	if err != nil {
		if status := gateway.StatusOf(err); status >= 400 && status < 500 {
			m.logger.Info().Int("status", status).Msg("login rejected")
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("login: %w", err)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := resp.Decode(&out); err != nil {
		return "", fmt.Errorf("login: decode response: %w", err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("login: response carried no token")
	}

	if err := m.SetToken(out.Token); err != nil {
		return "", fmt.Errorf("login: store token: %w", err)
	}
	m.logger.Info().Msg("logged in")
	return AuthenticatedHome, nil
}

// Logout forgets the token and returns where to navigate next.
func (m *Manager) Logout() (string, error) {
	if err := m.ClearToken(); err != nil {
		return "", fmt.Errorf("logout: %w", err)
	}
	m.logger.Info().Msg("logged out")
	return UnauthenticatedHome, nil
}

// Claims decodes the stored token without verifying its signature.
func (m *Manager) Claims() (*Claims, error) {
	token := m.Token()
	if token == "" {
		return nil, ErrNoSession
	}

	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	mc := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, mc); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}

	c := &Claims{}
	c.Subject, _ = mc.GetSubject()
	if s, ok := mc["email"].(string); ok {
		c.Email = s
	}
	if s, ok := mc["name"].(string); ok {
		c.Name = s
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		c.ExpiresAt = &t
	}
	return c, nil
}

// SetHandoff records a patient id to prefill on the next new-appointment form.
func (m *Manager) SetHandoff(patientID string) error {
	return m.store.Put(HandoffKey, patientID)
}

// TakeHandoff returns and removes the pending patient id, if any.
func (m *Manager) TakeHandoff() (string, bool) {
	v, ok := m.store.Get(HandoffKey)
	if !ok || v == "" {
		return "", false
	}
	if err := m.store.Delete(HandoffKey); err != nil {
		m.logger.Warn().Err(err).Msg("failed to clear appointment handoff")
	}
	return v, true
}
