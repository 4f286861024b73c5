package timeline

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
)

func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	h := NewHandler(log)
	r := chi.NewRouter()
	r.Route("/v1/timeline", func(r chi.Router) {
		r.Post("/plan", h.Plan)
		r.Post("/locate", h.Locate)
	})
	return r
}

func TestHandler_Plan(t *testing.T) {
	r := newTestRouter(t)

	limit := 80
	body, _ := json.Marshal(PlanRequest{
		Segments: []SourceSegment{
			{StartFrame: 0, EndFrame: 50},
			{StartFrame: 100, EndFrame: 150},
		},
		BaseSpeed:          1,
		DurationTrimFrames: &limit,
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/timeline/plan", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp PlanResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TotalOutDuration != 80 {
		t.Errorf("expected total 80, got %d", resp.TotalOutDuration)
	}
	if len(resp.Segments) != 2 {
		t.Errorf("expected 2 segments, got %d", len(resp.Segments))
	}
}

func TestHandler_Plan_defaults_base_speed(t *testing.T) {
	r := newTestRouter(t)

	body := []byte(`{"segments":[{"startFrame":0,"endFrame":100}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/timeline/plan", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp PlanResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TotalOutDuration != 100 {
		t.Errorf("omitted baseSpeed should default to 1, got total %d", resp.TotalOutDuration)
	}
}

func TestHandler_Plan_bad_request(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/timeline/plan", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_Locate(t *testing.T) {
	r := newTestRouter(t)

	body, _ := json.Marshal(LocateRequest{
		Segments:    []SourceSegment{{StartFrame: 100, EndFrame: 200}},
		OutputFrame: 50,
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/timeline/locate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp LocateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SourceFrame != 150 {
		t.Errorf("expected source frame 150, got %d", resp.SourceFrame)
	}
}

func TestHandler_Locate_negative_frame(t *testing.T) {
	r := newTestRouter(t)

	body, _ := json.Marshal(LocateRequest{OutputFrame: -1})
	req := httptest.NewRequest(http.MethodPost, "/v1/timeline/locate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
