package sprite

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

const pngContentType = "image/png"

// Fallback values for CreateRequest fields the client omits.
const (
	DefaultIntervalSec = 5.0
	DefaultTileHeight  = 90
)

// CreateDefaults fills CreateRequest fields the client omits. Zero or
// negative fields fall back to the package defaults.
type CreateDefaults struct {
	IntervalSec float64
	TileHeight  int
}

// Handler exposes the sprite cache over HTTP using go-chi.
type Handler struct {
	cache    *Cache
	log      *slog.Logger
	defaults CreateDefaults
}

// NewHandler returns a Handler backed by the given Cache.
func NewHandler(cache *Cache, log *slog.Logger, defaults CreateDefaults) *Handler {
	if defaults.IntervalSec <= 0 {
		defaults.IntervalSec = DefaultIntervalSec
	}
	if defaults.TileHeight <= 0 {
		defaults.TileHeight = DefaultTileHeight
	}
	return &Handler{cache: cache, log: log, defaults: defaults}
}

// CreateRequest is the body for POST /v1/sprites. IntervalSec and TileHeight
// may be omitted, in which case the server defaults apply.
type CreateRequest struct {
	Key         string  `json:"key"`
	Source      string  `json:"source"`
	IntervalSec float64 `json:"intervalSec"`
	TileHeight  int     `json:"tileHeight"`
}

// Create handles POST /v1/sprites: get-or-create the sprite for the given
// key and return its geometry. The response waits for generation; the caller
// is expected to show its own loading state.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid sprite body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.Key == "" || req.Source == "" || req.IntervalSec < 0 || req.TileHeight < 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.IntervalSec == 0 {
		req.IntervalSec = h.defaults.IntervalSec
	}
	if req.TileHeight == 0 {
		req.TileHeight = h.defaults.TileHeight
	}

	sp, err := h.cache.GetOrCreate(r.Context(), req.Key, req.Source, req.IntervalSec, req.TileHeight)
	if err != nil {
		h.log.Error("sprite generation failed",
			slog.String("key", req.Key), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusUnprocessableEntity)
		return
	}

	writeJSON(w, http.StatusOK, sp.Meta)
}

// GetImage handles GET /v1/sprites/{key}/image.
func (h *Handler) GetImage(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	sp, ok := h.lookup(w, r, key)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", pngContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(sp.PNG)
}

// GetMeta handles GET /v1/sprites/{key}/meta.
func (h *Handler) GetMeta(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	sp, ok := h.lookup(w, r, key)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sp.Meta)
}

// GetRect handles GET /v1/sprites/{key}/rect?t=SECONDS.
func (h *Handler) GetRect(w http.ResponseWriter, r *http.Request) {
	ts, err := strconv.ParseFloat(r.URL.Query().Get("t"), 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	key := chi.URLParam(r, "key")
	sp, ok := h.lookup(w, r, key)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sp.Meta.RectForTime(ts))
}

// Delete handles DELETE /v1/sprites/{key}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := h.cache.Delete(r.Context(), key); err != nil {
		h.log.Error("sprite delete failed",
			slog.String("key", key), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Prune handles POST /v1/sprites/prune: an explicit age-based eviction pass.
func (h *Handler) Prune(w http.ResponseWriter, r *http.Request) {
	n, err := h.cache.Prune(r.Context())
	if err != nil {
		h.log.Error("sprite prune failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"pruned": n})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request, key string) (*Sprite, bool) {
	if key == "" {
		w.WriteHeader(http.StatusBadRequest)
		return nil, false
	}
	sp, ok, err := h.cache.Get(r.Context(), key)
	if err != nil {
		h.log.Error("sprite lookup failed",
			slog.String("key", key), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return nil, false
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return nil, false
	}
	return sp, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
