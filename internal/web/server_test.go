package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/clinsys/clinsys/internal/config"
	"github.com/clinsys/clinsys/internal/platform/gateway"
	"github.com/clinsys/clinsys/internal/platform/session"
)

func signToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "7",
		"name": "Dr. Lima",
		"exp":  exp.Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

// fakeBackend answers the login and patient list endpoints. Only token is
// accepted as a bearer credential.
func fakeBackend(t *testing.T, token string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/auth/login":
			var creds session.Credentials
			json.NewDecoder(r.Body).Decode(&creds)
			if creds.Password != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				io.WriteString(w, `{"message":"bad credentials"}`)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"token": token})
		case r.URL.Path == "/patients":
			if r.Header.Get("Authorization") != "Bearer "+token {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			io.WriteString(w, `[{"id":1,"name":"Ana <b>Souza</b>","cpf":"12345678901"},{"id":2,"name":"Bruno"}]`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testApp struct {
	url      string
	client   *http.Client
	sessions *session.Manager
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	return newTestAppAccepting(t, signToken(t, time.Now().Add(time.Hour)))
}

func newTestAppAccepting(t *testing.T, token string) *testApp {
	t.Helper()
	backend := fakeBackend(t, token)
	sessions := session.NewManager(session.NewMemoryStore(), zerolog.Nop())
	cfg := &config.Config{
		APIBaseURL:     backend.URL,
		PageSize:       10,
		RequestTimeout: 5 * time.Second,
	}
	s, err := New(cfg, sessions, gateway.NewClient(backend.URL, sessions), zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	front := httptest.NewServer(s.Handler())
	t.Cleanup(front.Close)

	jar, _ := cookiejar.New(nil)
	return &testApp{url: front.URL, client: &http.Client{Jar: jar}, sessions: sessions}
}

func (a *testApp) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := a.client.Get(a.url + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func (a *testApp) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := a.client.PostForm(a.url+path, form)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

// csrf loads the login page and returns the token issued with it.
func (a *testApp) csrf(t *testing.T) string {
	t.Helper()
	a.get(t, "/login")
	u, _ := url.Parse(a.url)
	for _, c := range a.client.Jar.Cookies(u) {
		if c.Name == "_csrf" {
			return c.Value
		}
	}
	t.Fatal("no csrf cookie issued")
	return ""
}

func (a *testApp) login(t *testing.T, password string) (*http.Response, string) {
	t.Helper()
	return a.post(t, "/login", url.Values{
		"email":    {"doc@clinic.test"},
		"password": {password},
		"_csrf":    {a.csrf(t)},
	})
}

func TestServer_GuardRedirectsToLogin(t *testing.T) {
	app := newTestApp(t)

	resp, body := app.get(t, "/patients")
	if resp.Request.URL.Path != "/login" {
		t.Fatalf("expected to land on /login, got %s", resp.Request.URL.Path)
	}
	if !strings.Contains(body, "Please log in.") {
		t.Errorf("expected the login prompt, got %s", body)
	}
}

func TestServer_LoginAndListPatients(t *testing.T) {
	app := newTestApp(t)

	resp, body := app.login(t, "secret")
	if resp.StatusCode != http.StatusOK || resp.Request.URL.Path != "/patients" {
		t.Fatalf("expected the patient list, got %d at %s", resp.StatusCode, resp.Request.URL.Path)
	}
	for _, want := range []string{"Welcome back.", "Dr. Lima", "Ana &lt;b&gt;Souza&lt;/b&gt;", "Bruno", "Page 1 of 1"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected page to contain %q", want)
		}
	}
	if strings.Contains(body, "<b>Souza</b>") {
		t.Error("patient name must be escaped")
	}
	if resp.Header.Get("Content-Security-Policy") == "" || resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected security and request id headers")
	}
}

func TestServer_LoginRejected(t *testing.T) {
	app := newTestApp(t)

	resp, body := app.login(t, "wrong")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Invalid email or password.") || !strings.Contains(body, `value="doc@clinic.test"`) {
		t.Errorf("expected the login form with an alert, got %s", body)
	}
	if app.sessions.IsAuthenticated() {
		t.Error("expected no session")
	}
}

func TestServer_PostWithoutCSRFIsRefused(t *testing.T) {
	app := newTestApp(t)

	resp, _ := app.post(t, "/login", url.Values{"email": {"doc@clinic.test"}, "password": {"secret"}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	if app.sessions.IsAuthenticated() {
		t.Error("expected no session")
	}
}

func TestServer_Logout(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "secret")

	resp, body := app.post(t, "/logout", url.Values{"_csrf": {app.csrf(t)}})
	if resp.Request.URL.Path != "/login" {
		t.Fatalf("expected to land on /login, got %s", resp.Request.URL.Path)
	}
	if !strings.Contains(body, "You have been logged out.") {
		t.Errorf("expected logout notice, got %s", body)
	}
	if app.sessions.IsAuthenticated() {
		t.Error("expected the token to be cleared")
	}
}

func TestServer_RejectedTokenIsCleared(t *testing.T) {
	app := newTestApp(t)
	// Well formed and not yet expired, but unknown to the backend.
	if err := app.sessions.SetToken(signToken(t, time.Now().Add(2*time.Hour))); err != nil {
		t.Fatal(err)
	}

	resp, body := app.get(t, "/patients")
	if resp.Request.URL.Path != "/login" {
		t.Fatalf("expected to land on /login, got %s", resp.Request.URL.Path)
	}
	if !strings.Contains(body, "session expired") {
		t.Errorf("expected the expiry notice, got %s", body)
	}
	if app.sessions.IsAuthenticated() {
		t.Error("expected the token to be cleared")
	}
}

func TestServer_PastExpiryStillServedWhileBackendAccepts(t *testing.T) {
	stale := signToken(t, time.Now().Add(-time.Hour))
	app := newTestAppAccepting(t, stale)
	if err := app.sessions.SetToken(stale); err != nil {
		t.Fatal(err)
	}

	resp, body := app.get(t, "/patients")
	if resp.StatusCode != http.StatusOK || resp.Request.URL.Path != "/patients" {
		t.Fatalf("expected the patient list, got %d at %s", resp.StatusCode, resp.Request.URL.Path)
	}
	if !strings.Contains(body, "Bruno") {
		t.Errorf("expected patient rows, got %s", body)
	}
	if !app.sessions.IsAuthenticated() {
		t.Error("expected the token to be kept")
	}
}

func TestServer_Health(t *testing.T) {
	app := newTestApp(t)

	resp, body := app.get(t, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		t.Fatalf("expected JSON, got %s", body)
	}
	if out["status"] != "ok" || out["authenticated"] != false {
		t.Errorf("unexpected health %v", out)
	}
}

func TestServer_NotFoundRendersErrorPage(t *testing.T) {
	app := newTestApp(t)
	app.login(t, "secret")

	resp, body := app.get(t, "/nowhere")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "alert-danger") {
		t.Errorf("expected an error page, got %s", body)
	}
}

func TestServer_UnknownPathNeedsSession(t *testing.T) {
	app := newTestApp(t)

	resp, _ := app.get(t, "/nowhere")
	if resp.Request.URL.Path != "/login" {
		t.Errorf("expected to land on /login, got %s", resp.Request.URL.Path)
	}
}

func TestServer_StaticAssets(t *testing.T) {
	app := newTestApp(t)

	resp, body := app.get(t, "/static/app.js")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "data-confirm") {
		t.Errorf("expected the bundled script, got %d", resp.StatusCode)
	}
}
