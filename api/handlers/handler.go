package handlers

import (
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/mux"

	"github.com/jusunglee/subway-board/internal/display"
	"github.com/jusunglee/subway-board/internal/engine"
	"github.com/jusunglee/subway-board/internal/models"
	"github.com/jusunglee/subway-board/pkg/mta"
)

// Handler handles HTTP requests
type Handler struct {
	client mta.Client
	now    func() time.Time
}

// NewHandler creates a new HTTP handler
func NewHandler(client mta.Client) *Handler {
	return &Handler{client: client, now: time.Now}
}

// RegisterRoutes registers all routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", h.handleIndex).Methods("GET")
	r.HandleFunc("/board", h.handleBoard).Methods("GET")
	r.HandleFunc("/board/text", h.handleBoardText).Methods("GET")
	r.HandleFunc("/lines/{line}", h.handleLine).Methods("GET")
	r.HandleFunc("/healthz", h.handleHealth).Methods("GET")
}

// ResponseMetadata describes where the board came from
type ResponseMetadata struct {
	Station     string           `json:"station"`
	Updated     string           `json:"updated,omitempty"`
	Freshness   engine.Freshness `json:"freshness"`
	Error       string           `json:"error,omitempty"`
	AuthFailing bool             `json:"auth_failing,omitempty"`
}

// BoardResponse wraps the arrival board
type BoardResponse struct {
	Data models.ArrivalBoard `json:"data"`
	ResponseMetadata
}

// LineResponse holds one line's arrivals
type LineResponse struct {
	Data []models.StationArrival `json:"data"`
	ResponseMetadata
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	station := h.client.GetStation()
	response := map[string]interface{}{
		"title":   "subway-board",
		"station": station.Name,
		"lines":   h.client.GetLines(),
	}
	h.writeJSON(w, http.StatusOK, response)
}

func (h *Handler) handleBoard(w http.ResponseWriter, r *http.Request) {
	res := h.client.GetResult()
	response := BoardResponse{
		Data:             res.Board,
		ResponseMetadata: h.getResponseMetadata(res),
	}
	if response.Data == nil {
		response.Data = models.ArrivalBoard{}
	}

	status := http.StatusOK
	if res.Freshness == engine.NoData {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, response)
}

func (h *Handler) handleBoardText(w http.ResponseWriter, r *http.Request) {
	res := h.client.GetResult()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if res.Freshness == engine.NoData {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	for _, line := range display.FormatResult(res, h.now()) {
		_, _ = w.Write([]byte(line + "\n"))
	}
}

func (h *Handler) handleLine(w http.ResponseWriter, r *http.Request) {
	line := models.NormalizeLine(mux.Vars(r)["line"])

	station := h.client.GetStation()
	if !station.Serves(line) {
		h.writeError(w, "line "+string(line)+" does not stop at "+station.Name, http.StatusNotFound)
		return
	}
	if !slices.Contains(h.client.GetLines(), line) {
		h.writeError(w, "line "+string(line)+" is not on this board", http.StatusNotFound)
		return
	}

	res := h.client.GetResult()
	data := []models.StationArrival{}
	for _, dir := range []models.Direction{models.North, models.South} {
		if a, ok := res.Board.Get(line, dir); ok {
			data = append(data, a)
		}
	}

	h.writeJSON(w, http.StatusOK, LineResponse{
		Data:             data,
		ResponseMetadata: h.getResponseMetadata(res),
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	res := h.client.GetResult()

	status := http.StatusOK
	if res.Freshness == engine.NoData || res.AuthFailing {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, h.getResponseMetadata(res))
}

func (h *Handler) getResponseMetadata(res engine.Result) ResponseMetadata {
	meta := ResponseMetadata{
		Station:     h.client.GetStation().ID,
		Freshness:   res.Freshness,
		AuthFailing: res.AuthFailing,
	}
	if !res.CapturedAt.IsZero() {
		meta.Updated = res.CapturedAt.Format(time.RFC3339)
	}
	if res.Err != nil {
		meta.Error = res.Err.Error()
	}
	return meta
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		h.writeError(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func (h *Handler) writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
