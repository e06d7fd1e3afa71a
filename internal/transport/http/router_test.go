package http

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/genclean-otp/internal/application/otp"
	"github.com/genclean-otp/internal/application/registration"
	"github.com/genclean-otp/internal/config"
	"github.com/genclean-otp/internal/domain"
	"github.com/genclean-otp/internal/infrastructure/memory"
	jwtinfra "github.com/genclean-otp/internal/infrastructure/jwt"
	"github.com/genclean-otp/internal/infrastructure/ws"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var codePattern = regexp.MustCompile(`\b[0-9]{6}\b`)

// inbox captures outgoing mail so tests can read the code back.
type inbox struct {
	mu   sync.Mutex
	last map[string]string
}

func (b *inbox) SendEmail(to, _, body string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last == nil {
		b.last = make(map[string]string)
	}
	b.last[to] = codePattern.FindString(body)
	return nil
}

func (b *inbox) code(to string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last[to]
}

func newTestProvider(t *testing.T) *jwtinfra.Provider {
	t.Helper()
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	dir := t.TempDir()
	privPath := filepath.Join(dir, "private.pem")
	pubPath := filepath.Join(dir, "public.pem")
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privKey)})
	require.NoError(t, os.WriteFile(privPath, privPEM, 0600))
	pubBytes, err := x509.MarshalPKIXPublicKey(&privKey.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	require.NoError(t, os.WriteFile(pubPath, pubPEM, 0600))

	p, err := jwtinfra.NewProvider(&config.Config{JWTPrivateKeyPath: privPath, JWTPublicKeyPath: pubPath, JWTExpiry: time.Hour})
	require.NoError(t, err)
	return p
}

type testApp struct {
	srv    *httptest.Server
	mail   *inbox
	jwt    *jwtinfra.Provider
	hub    *ws.Hub
	client *http.Client
}

func newTestApp(t *testing.T, burst int) *testApp {
	t.Helper()
	return newTestAppWithConfig(t, &config.Config{AllowedOrigins: []string{"*"}, RateLimitRPS: 100, RateLimitBurst: burst})
}

func newTestAppWithConfig(t *testing.T, cfg *config.Config) *testApp {
	t.Helper()

	codes := memory.NewCodeStore(memory.Options{})
	regs := memory.NewRegistrationStore(memory.Options{})
	mail := &inbox{}
	provider := newTestProvider(t)
	hub := ws.NewHub(cfg.AllowedOrigins)
	registry := otp.NewRegistry(codes, otp.Options{})

	router, rl := NewRouter(cfg, &Deps{
		OTP: otp.NewService(registry, mail),
		Registrations: registration.NewService(registration.ServiceDeps{
			Codes:         registry,
			Registrations: regs,
			Users:         memory.NewUserStore(),
			Mailer:        mail,
			Signer:        provider,
			Events:        hub,
		}),
		Verifier: provider,
		Events:   hub,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		rl.Stop()
		codes.Close()
		regs.Close()
	})
	return &testApp{srv: srv, mail: mail, jwt: provider, hub: hub, client: srv.Client()}
}

func (a *testApp) post(t *testing.T, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := a.client.Post(a.srv.URL+path, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestRouter_Ping(t *testing.T) {
	app := newTestApp(t, 10)
	resp, err := app.client.Get(app.srv.URL + "/v1/health-check/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_OTPSendVerify(t *testing.T) {
	app := newTestApp(t, 10)

	resp, _ := app.post(t, "/v1/otp/send", map[string]string{"email": " User@Example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	code := app.mail.code("user@example.com")
	require.Len(t, code, 6)

	resp, body := app.post(t, "/v1/otp/verify", map[string]string{"email": "USER@example.com", "code": "000000x"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid or expired code", body["message"])

	resp, _ = app.post(t, "/v1/otp/verify", map[string]string{"email": "USER@example.com", "code": code})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Single use.
	resp, _ = app.post(t, "/v1/otp/verify", map[string]string{"email": "user@example.com", "code": code})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRouter_RegistrationFlow(t *testing.T) {
	app := newTestApp(t, 10)

	resp, _ := app.post(t, "/v1/registrations", map[string]string{
		"email": "ada@example.com", "password": "correct horse", "first_name": "Ada", "last_name": "Lovelace",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, body := app.post(t, "/v1/registrations/confirm", map[string]string{
		"email": "ada@example.com", "code": app.mail.code("ada@example.com"),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	bearer, _ := body["Bearer"].(string)
	require.NotEmpty(t, bearer)

	claims, err := app.jwt.Verify(bearer)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, claims.Role)

	resp, _ = app.post(t, "/v1/registrations", map[string]string{
		"email": "ada@example.com", "password": "correct horse", "first_name": "Ada", "last_name": "Lovelace",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRouter_RateLimited(t *testing.T) {
	app := newTestApp(t, 1)

	resp, _ := app.post(t, "/v1/otp/send", map[string]string{"email": "a@x.io"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = app.post(t, "/v1/otp/send", map[string]string{"email": "a@x.io"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func (a *testApp) sendFrom(t *testing.T, forwardedFor string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, a.srv.URL+"/v1/otp/send", strings.NewReader(`{"email":"a@x.io"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", forwardedFor)
	resp, err := a.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestRouter_ForwardedForIgnoredByDefault(t *testing.T) {
	app := newTestApp(t, 1)

	assert.Equal(t, http.StatusOK, app.sendFrom(t, "203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, app.sendFrom(t, "203.0.113.2"))
}

func TestRouter_ForwardedForHonoredBehindTrustedProxy(t *testing.T) {
	app := newTestAppWithConfig(t, &config.Config{
		AllowedOrigins: []string{"*"}, RateLimitRPS: 100, RateLimitBurst: 1, TrustProxyHeaders: true,
	})

	assert.Equal(t, http.StatusOK, app.sendFrom(t, "203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, app.sendFrom(t, "203.0.113.1"))
	assert.Equal(t, http.StatusOK, app.sendFrom(t, "203.0.113.2"))
}

func TestRouter_EventsRequireAdmin(t *testing.T) {
	app := newTestApp(t, 10)

	resp, err := app.client.Get(app.srv.URL + "/v1/events")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	userToken, err := app.jwt.Sign("u1", domain.RoleUser)
	require.NoError(t, err)
	req, _ := http.NewRequest(http.MethodGet, app.srv.URL+"/v1/events", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	resp, err = app.client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRouter_EventsStreamToAdmin(t *testing.T) {
	app := newTestApp(t, 10)

	adminToken, err := app.jwt.Sign("admin1", domain.RoleAdmin)
	require.NoError(t, err)
	header := http.Header{"Authorization": []string{"Bearer " + adminToken}}
	url := "ws" + strings.TrimPrefix(app.srv.URL, "http") + "/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return app.hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	resp, _ := app.post(t, "/v1/registrations", map[string]string{
		"email": "ada@example.com", "password": "correct horse", "first_name": "Ada", "last_name": "Lovelace",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var e domain.Event
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, domain.EventOTPIssued, e.Type)
	assert.Equal(t, "ada@example.com", e.Email)

	raw, err := json.Marshal(e)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), app.mail.code("ada@example.com"))
}
