package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/clinsys/clinsys/internal/platform/gateway"
)

type fakeDoer struct {
	path string
	opts gateway.Options
	resp *gateway.Response
	err  error
}

func (f *fakeDoer) Do(_ context.Context, path string, opts gateway.Options) (*gateway.Response, error) {
	f.path = path
	f.opts = opts
	return f.resp, f.err
}

func newLevelManager(t *testing.T) *Manager {
	t.Helper()
	store, err := OpenMemLevelStore()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewManager(store, zerolog.Nop())
}

func TestManager_LoginStoresToken(t *testing.T) {
	m := newLevelManager(t)
	api := &fakeDoer{resp: &gateway.Response{Status: 200, JSON: json.RawMessage(`{"token":"tok-1"}`)}}

	dest, err := m.Login(context.Background(), api, Credentials{Email: " ana@clinic.test ", Password: "secret"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dest != AuthenticatedHome {
		t.Errorf("expected %s, got %s", AuthenticatedHome, dest)
	}
	if !m.IsAuthenticated() || m.Token() != "tok-1" {
		t.Errorf("expected token tok-1 stored, got %q", m.Token())
	}
	if api.path != "/auth/login" || api.opts.Method != http.MethodPost {
		t.Errorf("unexpected call %s %s", api.opts.Method, api.path)
	}
	if !api.opts.SkipAuth {
		t.Error("login must not attach an existing token")
	}
	creds, ok := api.opts.Body.(Credentials)
	if !ok || creds.Email != "ana@clinic.test" {
		t.Errorf("expected trimmed credentials body, got %#v", api.opts.Body)
	}
}

func TestManager_LoginRejected(t *testing.T) {
	m := newLevelManager(t)
	api := &fakeDoer{err: &gateway.RequestError{Status: http.StatusUnauthorized}}

	_, err := m.Login(context.Background(), api, Credentials{Email: "a@b.c", Password: "wrong"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if m.IsAuthenticated() {
		t.Error("expected no token after rejected login")
	}
}

func TestManager_LoginServerError(t *testing.T) {
	m := newLevelManager(t)
	api := &fakeDoer{err: &gateway.RequestError{Status: http.StatusInternalServerError}}

	_, err := m.Login(context.Background(), api, Credentials{Email: "a@b.c", Password: "x"})
	if err == nil || errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected a non-credential error, got %v", err)
	}
}

func TestManager_LoginEmptyCredentials(t *testing.T) {
	m := newLevelManager(t)
	api := &fakeDoer{}

	_, err := m.Login(context.Background(), api, Credentials{Email: "  ", Password: "x"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if api.path != "" {
		t.Error("expected no request for empty credentials")
	}
}

func TestManager_LoginWithoutToken(t *testing.T) {
	m := newLevelManager(t)
	api := &fakeDoer{resp: &gateway.Response{Status: 200, JSON: json.RawMessage(`{}`)}}

	if _, err := m.Login(context.Background(), api, Credentials{Email: "a@b.c", Password: "x"}); err == nil {
		t.Fatal("expected error when response has no token")
	}
	if m.IsAuthenticated() {
		t.Error("expected nothing stored")
	}
}

func TestManager_Logout(t *testing.T) {
	m := NewManager(NewMemoryStore(), zerolog.Nop())
	m.store.Put(TokenKey, "tok")

	dest, err := m.Logout()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dest != UnauthenticatedHome {
		t.Errorf("expected %s, got %s", UnauthenticatedHome, dest)
	}
	if m.IsAuthenticated() {
		t.Error("expected token cleared")
	}
}

func TestManager_TokenPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenLevelStore(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	NewManager(store, zerolog.Nop()).store.Put(TokenKey, "persisted")
	store.Close()

	store, err = OpenLevelStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	if got := NewManager(store, zerolog.Nop()).Token(); got != "persisted" {
		t.Errorf("expected persisted token, got %q", got)
	}
}

func TestManager_Claims(t *testing.T) {
	m := NewManager(NewMemoryStore(), zerolog.Nop())
	if _, err := m.Claims(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}

	exp := time.Now().Add(-time.Hour).Truncate(time.Second)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "42",
		"email": "doc@clinic.test",
		"exp":   exp.Unix(),
	})
	signed, err := tok.SignedString([]byte("not-known-to-the-client"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	m.store.Put(TokenKey, signed)

	c, err := m.Claims()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Subject != "42" || c.Email != "doc@clinic.test" {
		t.Errorf("unexpected claims %+v", c)
	}
	if c.ExpiresAt == nil || !c.ExpiresAt.Equal(exp) {
		t.Errorf("expected expiry %v, got %v", exp, c.ExpiresAt)
	}
	if !c.Expired(time.Now()) {
		t.Error("expected claims to report expiry")
	}
}

func TestManager_ClaimsOpaqueToken(t *testing.T) {
	m := NewManager(NewMemoryStore(), zerolog.Nop())
	m.store.Put(TokenKey, "opaque")
	if _, err := m.Claims(); err == nil {
		t.Error("expected decode error for non-JWT token")
	}
}

func TestManager_Handoff(t *testing.T) {
	m := newLevelManager(t)
	if _, ok := m.TakeHandoff(); ok {
		t.Fatal("expected no handoff initially")
	}

	if err := m.SetHandoff("17"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok := m.TakeHandoff()
	if !ok || v != "17" {
		t.Errorf("expected 17, got %q (%v)", v, ok)
	}
	if _, ok := m.TakeHandoff(); ok {
		t.Error("expected handoff to be consumed")
	}
}

func TestLevelStore_DeleteMissingKey(t *testing.T) {
	store, err := OpenMemLevelStore()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	if err := store.Delete("missing"); err != nil {
		t.Errorf("expected nil deleting a missing key, got %v", err)
	}
}

func TestLevelStore_GetLogsReadFailures(t *testing.T) {
	var buf bytes.Buffer
	store, err := OpenMemLevelStore()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	store.WithLogger(zerolog.New(&buf))

	if _, ok := store.Get("missing"); ok {
		t.Fatal("expected a missing key to be absent")
	}
	if buf.Len() != 0 {
		t.Errorf("expected no log for a missing key, got %s", buf.String())
	}

	store.Close()
	if _, ok := store.Get(TokenKey); ok {
		t.Fatal("expected a closed store to read as absent")
	}
	if !bytes.Contains(buf.Bytes(), []byte("session store read failed")) {
		t.Errorf("expected the read failure to be logged, got %s", buf.String())
	}
}
