package timeline

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Handler exposes the segment planner over HTTP using go-chi.
// Both endpoints are stateless: the edit list travels in the request body.
type Handler struct {
	log *slog.Logger
}

// NewHandler returns a Handler that logs with the given logger.
func NewHandler(log *slog.Logger) *Handler {
	return &Handler{log: log}
}

// PlanRequest is the body for POST /v1/timeline/plan.
// DurationTrimFrames nil means no cap on output duration.
type PlanRequest struct {
	Segments           []SourceSegment `json:"segments"`
	BaseSpeed          float64         `json:"baseSpeed"`
	StartTrimFrames    int             `json:"startTrimFrames"`
	DurationTrimFrames *int            `json:"durationTrimFrames"`
}

// PlanResponse carries the computed playback plan.
type PlanResponse struct {
	Segments         []RenderSegment `json:"segments"`
	TotalOutDuration int             `json:"totalOutDuration"`
}

// LocateRequest is the body for POST /v1/timeline/locate.
type LocateRequest struct {
	Segments    []SourceSegment `json:"segments"`
	OutputFrame int             `json:"outputFrame"`
}

// LocateResponse carries the source frame that plays at the requested
// output frame.
type LocateResponse struct {
	SourceFrame int `json:"sourceFrame"`
}

// Plan handles POST /v1/timeline/plan.
func (h *Handler) Plan(w http.ResponseWriter, r *http.Request) {
	var req PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid plan body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if req.BaseSpeed == 0 {
		req.BaseSpeed = 1
	}
	limit := NoDurationLimit
	if req.DurationTrimFrames != nil {
		limit = *req.DurationTrimFrames
	}

	segs := BuildRenderSegments(req.Segments, req.BaseSpeed, req.StartTrimFrames, limit)
	writeJSON(w, http.StatusOK, PlanResponse{
		Segments:         segs,
		TotalOutDuration: TotalOutDuration(segs),
	})
}

// Locate handles POST /v1/timeline/locate.
func (h *Handler) Locate(w http.ResponseWriter, r *http.Request) {
	var req LocateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid locate body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.OutputFrame < 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, LocateResponse{
		SourceFrame: SourceFrameAtOutputFrame(req.Segments, req.OutputFrame),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
