package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/adapters/wallet"
	"github.com/layer-3/walletauth/core"
)

// fakeBackend is a minimal identity provider and API issuing a1/r1, a2/... tokens
type fakeBackend struct {
	mu          sync.Mutex
	accessN     int
	refreshN    int
	validAccess map[string]bool
	requestIDs  []string
	authHeaders []string
	lastMessage string

	rotate        bool
	loginStatus   int
	refreshStatus int
	denyAll       bool
	loginGate     chan struct{}
	refreshGate   chan struct{}

	loginCalls   atomic.Int32
	refreshCalls atomic.Int32
	logoutCalls  atomic.Int32
	unauthorized atomic.Int32
	total        atomic.Int32
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{validAccess: map[string]bool{}}
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.total.Add(1)

	switch r.URL.Path {
	case walletLoginPath:
		b.login(w, r)
	case refreshPath:
		b.refresh(w, r)
	case logoutPath:
		b.logoutCalls.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{})
	case "/api/me":
		if !b.authorize(w, r) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case "/api/text":
		if !b.authorize(w, r) {
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "pong")
	case "/api/echo":
		if !b.authorize(w, r) {
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", r.Header.Get("Content-Type"))
		_, _ = w.Write(body)
	case "/api/fail":
		if !b.authorize(w, r) {
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "boom"})
	case "/public/health":
		b.mu.Lock()
		b.authHeaders = append(b.authHeaders, r.Header.Get("Authorization"))
		b.mu.Unlock()
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "ok")
	default:
		http.NotFound(w, r)
	}
}

func (b *fakeBackend) login(w http.ResponseWriter, r *http.Request) {
	b.loginCalls.Add(1)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := wallet.VerifySignature(req.Message, req.Signature, req.WalletAddress); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
		return
	}

	if b.loginGate != nil {
		<-b.loginGate
	}
	if b.loginStatus != 0 {
		writeJSON(w, b.loginStatus, map[string]string{"error": "wallet not allowed"})
		return
	}

	b.mu.Lock()
	b.lastMessage = req.Message
	access, refresh := b.nextAccess(), b.nextRefresh()
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, loginResponse{
		User:         core.User{ID: "user-1", Username: "alice", Address: req.WalletAddress, Role: "user"},
		AccessToken:  access,
		RefreshToken: refresh,
	})
}

func (b *fakeBackend) refresh(w http.ResponseWriter, r *http.Request) {
	b.refreshCalls.Add(1)

	if b.refreshGate != nil {
		<-b.refreshGate
	}
	if b.refreshStatus != 0 {
		writeJSON(w, b.refreshStatus, map[string]string{"error": "refresh token expired"})
		return
	}

	b.mu.Lock()
	resp := refreshResponse{AccessToken: b.nextAccess()}
	if b.rotate {
		resp.RefreshToken = b.nextRefresh()
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func (b *fakeBackend) authorize(w http.ResponseWriter, r *http.Request) bool {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	b.mu.Lock()
	b.requestIDs = append(b.requestIDs, r.Header.Get(requestIDHeader))
	ok := b.validAccess[token] && !b.denyAll
	b.mu.Unlock()

	if !ok {
		b.unauthorized.Add(1)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "token expired"})
	}
	return ok
}

func (b *fakeBackend) message() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.lastMessage
}

// expire invalidates every access token issued so far
func (b *fakeBackend) expire() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.validAccess = map[string]bool{}
}

func (b *fakeBackend) nextAccess() string {
	b.accessN++
	token := fmt.Sprintf("a%d", b.accessN)
	b.validAccess[token] = true
	return token
}

func (b *fakeBackend) nextRefresh() string {
	b.refreshN++
	return fmt.Sprintf("r%d", b.refreshN)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type harness struct {
	backend    *fakeBackend
	server     *httptest.Server
	kv         *store.MemoryStore
	creds      *CredentialStore
	projection *Projection
	auth       *Authenticator
	exec       *Executor
	wallet     *wallet.KeyWallet
}

func newHarness(t *testing.T, configure ...func(*Config, *fakeBackend)) *harness {
	t.Helper()

	backend := newFakeBackend()
	cfg := Config{Logger: zap.NewNop()}
	for _, fn := range configure {
		fn(&cfg, backend)
	}

	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)
	cfg.BaseURL = server.URL
	cfg.HTTPClient = server.Client()

	w, err := wallet.GenerateKeyWallet()
	require.NoError(t, err)

	kv := store.NewMemoryStore()
	creds := NewCredentialStore(kv, "test", cfg.Logger)
	projection := NewProjection(nil, cfg.Logger)
	auth := NewAuthenticator(cfg, w, creds, projection)

	return &harness{
		backend:    backend,
		server:     server,
		kv:         kv,
		creds:      creds,
		projection: projection,
		auth:       auth,
		exec:       NewExecutor(cfg, creds, projection, auth),
		wallet:     w,
	}
}

// gatedWallet signs with a real key once release is closed, or fails with err when set
type gatedWallet struct {
	*wallet.KeyWallet
	signing chan struct{}
	release chan struct{}
	err     error
}

func newGatedWallet(w *wallet.KeyWallet, err error) *gatedWallet {
	return &gatedWallet{KeyWallet: w, signing: make(chan struct{}), release: make(chan struct{}), err: err}
}

func (w *gatedWallet) SignMessage(ctx context.Context, message string) (string, error) {
	close(w.signing)
	<-w.release
	if w.err != nil {
		return "", w.err
	}
	return w.KeyWallet.SignMessage(ctx, message)
}
