package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"shorty.local/internal/app/link"
	"shorty.local/internal/platform/auth"
)

// stubStore 内存版 LinkStore，够 handler 层测试用。
type stubStore struct {
	mu     sync.Mutex
	links  map[string]link.Link
	nextID int
	cleanN int64
}

func newStubStore() *stubStore {
	return &stubStore{links: make(map[string]link.Link)}
}

func (s *stubStore) Create(ctx context.Context, url string) (link.Link, error) {
	return s.CreateWithConfig(ctx, link.LinkConfig{Link: url})
}

func (s *stubStore) CreateWithConfig(_ context.Context, cfg link.LinkConfig) (link.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.Link == "" {
		return link.Link{}, link.ErrLinkEmpty
	}
	id := ""
	if cfg.CustomID != nil && *cfg.CustomID != "" {
		id = link.SanitizeID(*cfg.CustomID)
	} else {
		s.nextID++
		id = fmt.Sprintf("gen%05d", s.nextID)
	}
	now := link.Now()
	if old, ok := s.links[id]; ok && !old.IsExpiredAt(now) {
		return link.Link{}, link.ErrLinkConflict
	}

	l := link.Link{ID: id, RedirectTo: link.EnsureHTTPPrefix(cfg.Link), CreatedAt: now}
	if cfg.MaxUses != nil {
		l.MaxUses = *cfg.MaxUses
	}
	if cfg.ValidFor != nil {
		l.ValidFor = *cfg.ValidFor
	}
	if l.IsExpiredAt(now) {
		return link.Link{}, link.ErrExpiredLinkProvided
	}
	s.links[id] = l
	return l, nil
}

func (s *stubStore) Get(_ context.Context, id string) (*link.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.links[id]
	if !ok || l.IsExpiredAt(link.Now()) {
		return nil, nil
	}
	l.Invocations++
	s.links[id] = l
	return &l, nil
}

func (s *stubStore) FindByID(_ context.Context, id string) (*link.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.links[id]
	if !ok {
		return nil, link.ErrLinkNotFound
	}
	return &l, nil
}

func (s *stubStore) Clean(_ context.Context) (int64, error) {
	return s.cleanN, nil
}

func testTokenService(t *testing.T) auth.TokenService {
	t.Helper()
	ts, err := auth.NewHS256Service("test-secret", "shorty", time.Hour)
	if err != nil {
		t.Fatalf("NewHS256Service: %v", err)
	}
	return ts
}

func newTestRouter(t *testing.T, store LinkStore, passwordHash string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	pub := PublicConfig{
		PublicURL:         "http://localhost:9999",
		MaxLinkLength:     2048,
		MaxCustomIDLength: 64,
	}
	r := gin.New()
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	RegisterAPIRoutes(r.Group("/api/v1"), store, pub, passwordHash, testTokenService(t), nil)
	RegisterPublicRoutes(r, store, pub, nil)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateThenRedirect(t *testing.T) {
	r := newTestRouter(t, newStubStore(), "")

	w := doJSON(t, r, http.MethodPost, "/api/v1/links", gin.H{"link": "example.com", "custom_id": "mylink"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("create: status %d, body %s", w.Code, w.Body.String())
	}
	var resp CreateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != "mylink" {
		t.Errorf("ID: got %q", resp.ID)
	}
	if resp.ShortURL != "http://localhost:9999/mylink" {
		t.Errorf("ShortURL: got %q", resp.ShortURL)
	}
	if resp.RedirectTo != "http://example.com" {
		t.Errorf("RedirectTo: got %q", resp.RedirectTo)
	}

	w = doJSON(t, r, http.MethodGet, "/mylink", nil, nil)
	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("redirect: status %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "http://example.com" {
		t.Errorf("Location: got %q", loc)
	}
}

func TestCreateIDAlias(t *testing.T) {
	r := newTestRouter(t, newStubStore(), "")

	w := doJSON(t, r, http.MethodPost, "/api/v1/links", gin.H{"link": "example.com", "id": "alias"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("create: status %d, body %s", w.Code, w.Body.String())
	}
	var resp CreateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != "alias" {
		t.Errorf("ID via alias: got %q", resp.ID)
	}
}

func TestCreateErrors(t *testing.T) {
	r := newTestRouter(t, newStubStore(), "")

	t.Run("invalid json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/links", bytes.NewBufferString("{"))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status %d, want 400", w.Code)
		}
	})

	t.Run("empty link", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/v1/links", gin.H{"link": ""}, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status %d, want 400", w.Code)
		}
	})

	t.Run("conflict", func(t *testing.T) {
		if w := doJSON(t, r, http.MethodPost, "/api/v1/links", gin.H{"link": "a.com", "custom_id": "dup"}, nil); w.Code != http.StatusOK {
			t.Fatalf("first create: status %d", w.Code)
		}
		w := doJSON(t, r, http.MethodPost, "/api/v1/links", gin.H{"link": "b.com", "custom_id": "dup"}, nil)
		if w.Code != http.StatusConflict {
			t.Errorf("status %d, want 409", w.Code)
		}
	})
}

func TestRedirectNotFound(t *testing.T) {
	r := newTestRouter(t, newStubStore(), "")

	for _, path := range []string{"/nosuch", "/a/b"} {
		w := doJSON(t, r, http.MethodGet, path, nil, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("GET %s: status %d, want 404", path, w.Code)
		}
	}
}

// 用完次数后的短链对外是 404。
func TestRedirectExhausted(t *testing.T) {
	r := newTestRouter(t, newStubStore(), "")

	w := doJSON(t, r, http.MethodPost, "/api/v1/links", gin.H{"link": "example.com", "custom_id": "once", "max_uses": 1}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("create: status %d", w.Code)
	}

	if w := doJSON(t, r, http.MethodGet, "/once", nil, nil); w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("first use: status %d, want 307", w.Code)
	}
	if w := doJSON(t, r, http.MethodGet, "/once", nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("second use: status %d, want 404", w.Code)
	}
}

func TestFindLink(t *testing.T) {
	store := newStubStore()
	r := newTestRouter(t, store, "")

	if _, err := store.CreateWithConfig(context.Background(), link.LinkConfig{Link: "example.com", CustomID: strPtr("info")}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := doJSON(t, r, http.MethodGet, "/api/v1/links/info", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var resp struct {
		Link    link.Link `json:"link"`
		Expired bool      `json:"expired"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Link.ID != "info" || resp.Expired {
		t.Errorf("got link=%q expired=%v", resp.Link.ID, resp.Expired)
	}

	if w := doJSON(t, r, http.MethodGet, "/api/v1/links/ghost", nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown id: status %d, want 404", w.Code)
	}
}

func TestConfigEndpoint(t *testing.T) {
	r := newTestRouter(t, newStubStore(), "")

	w := doJSON(t, r, http.MethodGet, "/config", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var pub PublicConfig
	if err := json.Unmarshal(w.Body.Bytes(), &pub); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pub.PublicURL != "http://localhost:9999" || pub.MaxLinkLength != 2048 {
		t.Errorf("unexpected config: %+v", pub)
	}
}

func TestLoginAndClean(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	store := newStubStore()
	store.cleanN = 3
	r := newTestRouter(t, store, string(hash))

	t.Run("wrong password", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/v1/login", gin.H{"password": "nope"}, nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status %d, want 401", w.Code)
		}
	})

	t.Run("clean without token", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/v1/admin/clean", nil, nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status %d, want 401", w.Code)
		}
	})

	t.Run("login then clean", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/v1/login", gin.H{"password": "hunter2"}, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("login: status %d, body %s", w.Code, w.Body.String())
		}
		var resp struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}

		h := http.Header{}
		h.Set("Authorization", "Bearer "+resp.Token)
		w = doJSON(t, r, http.MethodPost, "/api/v1/admin/clean", nil, h)
		if w.Code != http.StatusOK {
			t.Fatalf("clean: status %d, body %s", w.Code, w.Body.String())
		}
		var cleanResp struct {
			Removed int64 `json:"removed"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &cleanResp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if cleanResp.Removed != 3 {
			t.Errorf("removed: got %d, want 3", cleanResp.Removed)
		}
	})
}

func TestLoginDisabled(t *testing.T) {
	r := newTestRouter(t, newStubStore(), "")

	w := doJSON(t, r, http.MethodPost, "/api/v1/login", gin.H{"password": "whatever"}, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status %d, want 503", w.Code)
	}
}

func strPtr(s string) *string { return &s }
