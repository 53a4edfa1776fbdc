package httpctrl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Agrid-Dev/thermoguard/internal/hvac"
	"github.com/Agrid-Dev/thermoguard/internal/ports"
	"github.com/Agrid-Dev/thermoguard/internal/safety"
)

const maxEventsLimit = 1000

type Server struct {
	svc    ports.Service
	events ports.EventLog
	srv    *http.Server
	log    *zap.SugaredLogger
}

// New returns a runnable server. events may be nil when no event log is
// configured.
func New(svc ports.Service, events ports.EventLog, addr string, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	mux := http.NewServeMux()
	s := &Server{svc: svc, events: events, log: log}

	// Read
	mux.HandleFunc("GET /v1", s.handleGet)
	mux.HandleFunc("GET /v1/events", s.handleGetEvents)
	mux.HandleFunc("GET /v1/ws", s.handleWS)

	// Write: one endpoint per variable
	mux.HandleFunc("POST /v1/temperature_setpoint", s.handlePostSetpoint)
	mux.HandleFunc("POST /v1/mode", s.handlePostMode)
	mux.HandleFunc("POST /v1/override/clear", s.handleClearOverride)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// ---- DTOs ----

type statusDTO struct {
	DeviceID            string      `json:"device_id"`
	AmbientTemperature  *float64    `json:"ambient_temperature"`
	TemperatureSetpoint *float64    `json:"temperature_setpoint"`
	Mode                string      `json:"mode"`
	Action              string      `json:"action"`
	ObservedAt          *time.Time  `json:"observed_at,omitempty"`
	Safety              safetyDTO   `json:"safety"`
	Override            overrideDTO `json:"override"`
	HeatingHoursToday   float64     `json:"heating_hours_today"`
	CoolingHoursToday   float64     `json:"cooling_hours_today"`
}

type safetyDTO struct {
	State      string   `json:"state"`
	MinTemp    *float64 `json:"min_temp"`
	MaxTemp    *float64 `json:"max_temp"`
	Hysteresis float64  `json:"hysteresis"`
}

type overrideDTO struct {
	Active    bool       `json:"active"`
	Since     *time.Time `json:"since,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func toDTO(st ports.Status) statusDTO {
	dto := statusDTO{
		DeviceID:            st.DeviceID,
		AmbientTemperature:  st.AmbientTemperature,
		TemperatureSetpoint: st.TemperatureSetpoint,
		Mode:                st.Mode.String(),
		Action:              st.Action.String(),
		Safety: safetyDTO{
			State:      st.Safety.State,
			MinTemp:    st.Safety.MinTemp,
			MaxTemp:    st.Safety.MaxTemp,
			Hysteresis: st.Safety.Hysteresis,
		},
		Override: overrideDTO{
			Active:    st.Override.Active,
			Since:     st.Override.Since,
			ExpiresAt: st.Override.ExpiresAt,
		},
		HeatingHoursToday: st.HeatingHoursToday,
		CoolingHoursToday: st.CoolingHoursToday,
	}
	if !st.ObservedAt.IsZero() {
		at := st.ObservedAt
		dto.ObservedAt = &at
	}
	return dto
}

// ---- Handlers ----

func (s *Server) handleGet(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w)
}

func (s *Server) handlePostSetpoint(w http.ResponseWriter, r *http.Request) {
	postValue(s, w, r, func(v float64) error {
		return s.svc.SetSetpoint(v)
	})
}

func (s *Server) handlePostMode(w http.ResponseWriter, r *http.Request) {
	// body: {"value": "heat"}
	postValue(s, w, r, func(v string) error {
		m, err := hvac.ParseMode(v)
		if err != nil {
			return err
		}
		return s.svc.SetMode(m)
	})
}

func (s *Server) handleClearOverride(w http.ResponseWriter, _ *http.Request) {
	s.svc.ClearOverride()
	s.respondStatus(w)
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeJSON(w, http.StatusOK, []safety.Event{})
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxEventsLimit {
			writeErr(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	events, err := s.events.List(r.Context(), limit)
	if err != nil {
		s.log.Errorw("http: list safety events", "error", err)
		writeErr(w, http.StatusInternalServerError, "could not list events")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// ---- generic helpers ----
func (s *Server) respondStatus(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, toDTO(s.svc.Status()))
}

func postValue[T any](s *Server, w http.ResponseWriter, r *http.Request, apply func(T) error) {
	dec := json.NewDecoder(r.Body)
	var req struct {
		Value *T `json:"value"`
	}
	if err := dec.Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Value == nil {
		writeErr(w, http.StatusBadRequest, "missing field 'value'")
		return
	}

	if err := apply(*req.Value); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	s.respondStatus(w)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
