package sprite

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"timeline-engine/internal/media"

	"github.com/go-chi/chi/v5"
)

func newTestHandler(t *testing.T) (*Handler, *MemoryStore) {
	t.Helper()
	st := NewMemoryStore()
	dec := &fakeDecoder{info: media.Info{Width: 640, Height: 360, DurationSec: 22}}
	c := newTestCache(st, dec)
	return NewHandler(c, testLogger(), CreateDefaults{}), st
}

func newSpriteRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/v1/sprites", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Post("/prune", h.Prune)
		r.Route("/{key}", func(r chi.Router) {
			r.Delete("/", h.Delete)
			r.Get("/image", h.GetImage)
			r.Get("/meta", h.GetMeta)
			r.Get("/rect", h.GetRect)
		})
	})
	return r
}

func createSprite(t *testing.T, r *chi.Mux, key string) Meta {
	t.Helper()
	body, _ := json.Marshal(CreateRequest{Key: key, Source: "video.mp4", IntervalSec: 5, TileHeight: 90})
	req := httptest.NewRequest(http.MethodPost, "/v1/sprites", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("create sprite: expected 200, got %d", rec.Code)
	}
	var m Meta
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode meta: %v", err)
	}
	return m
}

func TestHandler_Create(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newSpriteRouter(h)

	m := createSprite(t, r, "k1")
	if m.TileCount != 5 || m.Cols != 3 || m.Rows != 2 {
		t.Errorf("unexpected geometry: %+v", m)
	}
	if m.Format != "png" {
		t.Errorf("expected png format, got %q", m.Format)
	}
}

func TestHandler_Create_defaults(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newSpriteRouter(h)

	body := `{"key":"k1","source":"video.mp4"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/sprites", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var m Meta
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode meta: %v", err)
	}
	if m.IntervalSec != DefaultIntervalSec || m.TileHeight != DefaultTileHeight {
		t.Errorf("expected defaults %v/%v, got %v/%v",
			DefaultIntervalSec, DefaultTileHeight, m.IntervalSec, m.TileHeight)
	}
}

func TestHandler_Create_bad_request(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newSpriteRouter(h)

	cases := []string{
		"not json",
		`{"key":"","source":"v.mp4","intervalSec":5,"tileHeight":90}`,
		`{"key":"k","source":"","intervalSec":5,"tileHeight":90}`,
		`{"key":"k","source":"v.mp4","intervalSec":-1,"tileHeight":90}`,
		`{"key":"k","source":"v.mp4","intervalSec":5,"tileHeight":-1}`,
	}
	for _, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/v1/sprites", bytes.NewReader([]byte(body)))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestHandler_GetImage(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newSpriteRouter(h)
	createSprite(t, r, "k1")

	req := httptest.NewRequest(http.MethodGet, "/v1/sprites/k1/image", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Errorf("expected image/png, got %s", got)
	}
	// PNG magic bytes.
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("response body is not a PNG")
	}
}

func TestHandler_GetRect(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newSpriteRouter(h)
	createSprite(t, r, "k1")

	cases := []struct {
		t         string
		wantIndex int
	}{
		{"0", 0},
		{"4.9", 0},
		{"5.1", 1},
		{"9999", 4},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, "/v1/sprites/k1/rect?t="+c.t, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("t=%s: expected 200, got %d", c.t, rec.Code)
		}
		var rect Rect
		if err := json.Unmarshal(rec.Body.Bytes(), &rect); err != nil {
			t.Fatalf("decode rect: %v", err)
		}
		if rect.Index != c.wantIndex {
			t.Errorf("t=%s: expected index %d, got %d", c.t, c.wantIndex, rect.Index)
		}
	}
}

func TestHandler_GetRect_missing_t(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newSpriteRouter(h)
	createSprite(t, r, "k1")

	req := httptest.NewRequest(http.MethodGet, "/v1/sprites/k1/rect", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_not_found(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newSpriteRouter(h)

	for _, path := range []string{"/v1/sprites/missing/meta", "/v1/sprites/missing/image", "/v1/sprites/missing/rect?t=0"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, rec.Code)
		}
	}
}

func TestHandler_Delete(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newSpriteRouter(h)
	createSprite(t, r, "k1")

	req := httptest.NewRequest(http.MethodDelete, "/v1/sprites/k1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/sprites/k1/meta", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}

	// Deleting an absent key is a no-op.
	req = httptest.NewRequest(http.MethodDelete, "/v1/sprites/k1", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 on repeat delete, got %d", rec.Code)
	}
}

func TestHandler_Prune(t *testing.T) {
	h, st := newTestHandler(t)
	r := newSpriteRouter(h)

	// Seed a record aged past the default max age.
	stale := time.Now().UTC().Add(-31 * 24 * time.Hour)
	err := st.PutRecord(context.Background(), Record{Key: "k1"}, Metadata{CreatedAt: stale, LastUsedAt: stale})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/sprites/prune", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["pruned"] != 1 {
		t.Errorf("expected 1 pruned, got %d", resp["pruned"])
	}
}
