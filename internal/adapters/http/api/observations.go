package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/axelofwar/be-community-gamification/internal/domain/dedupe"
	"github.com/axelofwar/be-community-gamification/internal/domain/model"
)

// ObservationDependencies defines what POST /observations needs.
type ObservationDependencies interface {
	dedupe.Deduper
	Enqueue(ctx context.Context, o model.Observation) bool
}

// ObservationRequest is the body of POST /observations.
type ObservationRequest struct {
	ID          string  `json:"id"`
	Key         string  `json:"key" validate:"required"`
	Name        string  `json:"name"`
	Likes       int64   `json:"likes" validate:"gte=0"`
	Retweets    int64   `json:"retweets" validate:"gte=0"`
	Replies     int64   `json:"replies" validate:"gte=0"`
	Impressions int64   `json:"impressions" validate:"gte=0"`
	PFPURL      string  `json:"pfp_url" validate:"required,url|eq=None"`
	Description *string `json:"description"`
	BioLink     *string `json:"bio_link"`
	ObservedAt  string  `json:"observed_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

func (r *ObservationRequest) normalize() {
	r.ID = strings.TrimSpace(r.ID)
	r.Key = strings.TrimSpace(r.Key)
	r.Name = strings.TrimSpace(r.Name)
	r.PFPURL = strings.TrimSpace(r.PFPURL)
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
}

// Observation converts a validated request. A missing observed_at means now.
func (r *ObservationRequest) Observation() model.Observation {
	at := time.Now().UTC()
	if r.ObservedAt != "" {
		if ts, err := time.Parse(time.RFC3339, r.ObservedAt); err == nil {
			at = ts
		}
	}
	return model.Observation{
		ID:       r.ID,
		Identity: model.Identity{Key: r.Key, DisplayName: r.Name},
		Metrics: model.Metrics{
			Likes:       r.Likes,
			Retweets:    r.Retweets,
			Replies:     r.Replies,
			Impressions: r.Impressions,
		},
		ProfileImageURL: r.PFPURL,
		BioDescription:  r.Description,
		BioLink:         r.BioLink,
		ObservedAt:      at,
	}
}

// ObservationsHandler accepts observations from the stream driver.
type ObservationsHandler struct {
	deps ObservationDependencies
}

// NewObservationsHandler creates a new observations handler.
func NewObservationsHandler(deps ObservationDependencies) *ObservationsHandler {
	return &ObservationsHandler{deps: deps}
}

// HandlePostObservation handles POST /observations requests.
func (h *ObservationsHandler) HandlePostObservation(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_observation"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req ObservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	req.normalize()
	if err := validateStruct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	if h.deps.SeenAndRecord(r.Context(), req.ID) {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", ID: req.ID})
		return
	}
	if ok := h.deps.Enqueue(r.Context(), req.Observation()); !ok {
		h.deps.Unrecord(r.Context(), req.ID)
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", ID: req.ID})
}
