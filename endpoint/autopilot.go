package endpoint

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/c360/streampilot/autopilot"
	"github.com/c360/streampilot/errors"
)

// AutopilotEndpoint exposes manual worker scaling and autopilot
// observability.
type AutopilotEndpoint struct {
	pilot   *autopilot.Autopilot
	timeout time.Duration
	logger  *slog.Logger
}

// NewAutopilotEndpoint creates the autopilot endpoint. timeout bounds the
// lock acquisition and the wait for the scaling primitive.
func NewAutopilotEndpoint(pilot *autopilot.Autopilot, timeout time.Duration, logger *slog.Logger) *AutopilotEndpoint {
	if logger == nil {
		logger = slog.Default()
	}
	return &AutopilotEndpoint{pilot: pilot, timeout: timeout, logger: logger}
}

// RegisterHTTPHandlers registers the endpoint under prefix.
func (e *AutopilotEndpoint) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	mux.HandleFunc(prefix+AutopilotID, e.handle)
	e.logger.Info("Autopilot endpoint registered", "prefix", prefix+AutopilotID)
}

func (e *AutopilotEndpoint) handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		e.handleStatus(w)
	case http.MethodPost:
		e.handleScale(w, e.pilot.AddStreamThread)
	case http.MethodDelete:
		e.handleScale(w, e.pilot.RemoveStreamThread)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleStatus serves the autopilot's observable state.
func (e *AutopilotEndpoint) handleStatus(w http.ResponseWriter) {
	threads := make(map[string]int64)
	for name, partitionLag := range e.pilot.ThreadInfo() {
		var total int64
		for _, lag := range partitionLag {
			total += lag
		}
		threads[name] = total
	}

	writeJSON(w, map[string]any{
		"state":                e.pilot.State().String(),
		"desired_thread_count": e.pilot.DesiredThreadCount(),
		"target_thread_count":  e.pilot.TargetThreadCount(),
		"threads":              threads,
	})
}

type scaleFunc func(timeout time.Duration) (<-chan autopilot.Result, error)

// handleScale runs one manual add/remove and forwards failures verbatim.
func (e *AutopilotEndpoint) handleScale(w http.ResponseWriter, scale scaleFunc) {
	completion, err := scale(e.timeout)
	if err != nil {
		e.writeFailure(w, err)
		return
	}

	select {
	case result := <-completion:
		if result.Err != nil {
			e.writeFailure(w, result.Err)
			return
		}
		writeJSON(w, map[string]string{"thread": result.ThreadName})
	case <-time.After(e.timeout):
		e.writeFailure(w, errors.ErrConnectionTimeout)
	}
}

func (e *AutopilotEndpoint) writeFailure(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.IsInvalid(err) || stderrors.Is(err, errors.ErrLockUnavailable) {
		status = http.StatusConflict
	}

	e.logger.Debug("Autopilot operation rejected", "error", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body, _ := json.Marshal(map[string]string{errorMessageKey: err.Error()})
	_, _ = w.Write(body)
}
