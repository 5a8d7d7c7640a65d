package render

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/omni/bridge-relayer/logging"
)

type errorResult struct {
	Error string `json:"error"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, res interface{}) {
	raw, err := marshal(r, res)
	if err != nil {
		Error(w, r, fmt.Errorf("failed to marshal JSON result: %w", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err = w.Write(raw); err != nil {
		logging.LoggerFromContext(r.Context()).WithError(err).Warn("failed to write http response")
	}
}

func marshal(r *http.Request, res interface{}) ([]byte, error) {
	if pretty, _ := strconv.ParseBool(r.URL.Query().Get("pretty")); pretty {
		return json.MarshalIndent(res, "", "  ")
	}
	return json.Marshal(res)
}

// Error is used for unexpected failures, client mistakes should be rendered with Status.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.LoggerFromContext(r.Context())
	logger.WithError(err).Error("request handling failed")
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func Status(w http.ResponseWriter, r *http.Request, status int, err error) {
	logging.LoggerFromContext(r.Context()).WithError(err).WithField("status", status).Debug("rejecting http request")
	JSON(w, r, status, errorResult{Error: err.Error()})
}
