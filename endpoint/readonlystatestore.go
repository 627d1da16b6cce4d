// Package endpoint exposes the management HTTP surface: interactive
// state-store queries, manual autopilot operation, health, and metrics.
// Each endpoint registers itself on a mux only when the management
// exposure include-list names its id.
package endpoint

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/c360/streampilot/query"
)

// Endpoint ids used by the management exposure include-list.
const (
	ReadOnlyStateStoreID = "readonlystatestore"
	AutopilotID          = "autopilot"
	HealthID             = "health"
	MetricsID            = "metrics"
)

const errorMessageKey = "message"

// ReadOnlyStateStoreEndpoint answers point queries against the
// application's key/value state stores.
type ReadOnlyStateStoreEndpoint struct {
	executor *query.Executor
	logger   *slog.Logger
}

// NewReadOnlyStateStoreEndpoint creates the query endpoint.
func NewReadOnlyStateStoreEndpoint(executor *query.Executor, logger *slog.Logger) *ReadOnlyStateStoreEndpoint {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReadOnlyStateStoreEndpoint{executor: executor, logger: logger}
}

// RegisterHTTPHandlers registers the endpoint under prefix.
func (e *ReadOnlyStateStoreEndpoint) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	mux.HandleFunc(prefix+ReadOnlyStateStoreID+"/", e.handleFind)
	e.logger.Info("Read-only state store endpoint registered", "prefix", prefix+ReadOnlyStateStoreID)
}

// handleFind serves GET {prefix}/readonlystatestore/{store}/{key}?serde={name}.
// The reply is always well-formed JSON with status 200: a degraded reply
// beats a 5xx for the dashboards that poll this endpoint.
func (e *ReadOnlyStateStoreEndpoint) handleFind(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	storeName, key, ok := splitStoreAndKey(r.URL.Path)
	if !ok {
		writeJSON(w, map[string]string{errorMessageKey: "expected path {store}/{key}"})
		return
	}

	value, found, err := e.executor.Execute(r.Context(), query.Request{
		StoreName:      storeName,
		StringifiedKey: key,
		SerdeName:      r.URL.Query().Get("serde"),
	})
	if err != nil {
		e.logger.Debug("Query failed at endpoint boundary", "store", storeName, "key", key, "error", err)
		writeJSON(w, map[string]string{errorMessageKey: err.Error()})
		return
	}

	if !found {
		writeJSON(w, map[string]string{key: ""})
		return
	}
	writeJSON(w, map[string]string{key: string(value)})
}

// splitStoreAndKey extracts the trailing {store}/{key} pair from the
// request path.
func splitStoreAndKey(path string) (string, string, bool) {
	path = strings.TrimSuffix(path, "/")
	marker := "/" + ReadOnlyStateStoreID + "/"
	idx := strings.LastIndex(path, marker)
	if idx < 0 {
		return "", "", false
	}

	rest := path[idx+len(marker):]
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}

	storeName, err := url.PathUnescape(parts[0])
	if err != nil {
		return "", "", false
	}
	key, err := url.PathUnescape(parts[1])
	if err != nil || strings.Contains(key, "/") {
		return "", "", false
	}
	return storeName, key, true
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}
