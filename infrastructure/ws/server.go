package ws

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"net/url"
	"orchestra/auth"
	"orchestra/contract"
	"orchestra/domain/meeting"
	"orchestra/errors"
	"orchestra/infrastructure/storage"
	"orchestra/observability"
	"orchestra/services"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

type Config struct {
	ConnectionBufferSize int
	DeliveryTimeout      time.Duration
	MaxMessageSize       int64
	// AllowedOrigins empty or containing "*" accepts every origin.
	AllowedOrigins []string
}

type Server struct {
	log        *slog.Logger
	service    services.IMeetingService
	monitoring *observability.MonitoringManager
	upgrader   websocket.Upgrader
	cfg        Config
}

func NewServer(log *slog.Logger, service services.IMeetingService, monitoring *observability.MonitoringManager, cfg Config) *Server {
	s := &Server{log: log, service: service, monitoring: monitoring, cfg: cfg}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4 * 1024,
		WriteBufferSize: 4 * 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// NewRouter exposes the meeting websocket and the read-only API.
// Everything but /up requires a valid token, checked before the upgrade.
func NewRouter(s *Server, authenticator contract.Authenticator) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/up", s.handleUp).Methods(http.MethodGet)

	protected := r.NewRoute().Subrouter()
	protected.Use(auth.Middleware(authenticator))
	protected.HandleFunc("/ws/meetings/{meetingID}", s.handleWebSocket).Methods(http.MethodGet)
	protected.HandleFunc("/api/meetings/{meetingID}/stats", s.handleStats).Methods(http.MethodGet)
	protected.HandleFunc("/api/meetings/{meetingID}/events", s.handleEvents).Methods(http.MethodGet)
	protected.HandleFunc("/api/rooms", s.handleRooms).Methods(http.MethodGet)
	return r
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 || lo.Contains(s.cfg.AllowedOrigins, "*") {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return lo.ContainsBy(s.cfg.AllowedOrigins, func(allowed string) bool {
		return strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Host)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomID := meeting.RoomID(mux.Vars(r)["meetingID"])
	caller, _ := auth.CallerFromContext(r.Context())
	credential, _ := auth.CredentialFromContext(r.Context())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Failed to upgrade connection", "room_id", roomID, "error", err)
		return
	}
	if s.monitoring != nil {
		s.monitoring.IncrConnections()
		defer s.monitoring.DecrConnections()
	}

	client := NewClient(s.log, conn, s.service, s.monitoring, roomID, caller, credential, s.cfg)
	s.log.Debug("Connection opened", "room_id", roomID, "participant_id", caller.ParticipantID)
	go client.WritePump()
	client.ReadPump(r.Context())
	s.log.Debug("Connection closed", "room_id", roomID, "participant_id", caller.ParticipantID)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	credential, _ := auth.CredentialFromContext(r.Context())
	stats, err := s.service.Stats(r.Context(), credential, meeting.RoomID(mux.Vars(r)["meetingID"]))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

type eventView struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Participant string         `json:"participant_id,omitempty"`
	Version     uint64         `json:"version,omitempty"`
	Data        map[string]any `json:"data"`
	At          time.Time      `json:"timestamp"`
}

type eventsPage struct {
	Events []eventView `json:"events"`
	Cursor *string     `json:"cursor"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	credential, _ := auth.CredentialFromContext(r.Context())
	var cursor *string
	if c := r.URL.Query().Get("cursor"); c != "" {
		cursor = &c
	}
	events, next, err := s.service.Events(r.Context(), credential, meeting.RoomID(mux.Vars(r)["meetingID"]), cursor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, eventsPage{
		Events: lo.Map(events, func(e storage.RoomEvent, _ int) eventView {
			return eventView{
				ID:          e.ID.String(),
				Type:        e.Type,
				Participant: e.Participant,
				Version:     e.Version,
				Data:        e.Data,
				At:          e.At,
			}
		}),
		Cursor: next,
	})
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	credential, _ := auth.CredentialFromContext(r.Context())
	report, err := s.service.Rooms(r.Context(), credential)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleUp(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case stderrors.Is(err, errors.ErrInvalidToken), stderrors.Is(err, errors.ErrMissingCredentials):
		status = http.StatusUnauthorized
	case stderrors.Is(err, errors.ErrPermissionDenied), stderrors.Is(err, errors.ErrUnknownRole):
		status = http.StatusForbidden
	case stderrors.Is(err, errors.ErrUnknownRoom):
		status = http.StatusNotFound
	case stderrors.Is(err, errors.ErrInvalidPayload):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.log.Error("Request failed", "error", err)
	}
	s.writeJSON(w, status, map[string]string{"code": errors.Code(err), "message": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn("Failed to encode response", "error", err)
	}
}
