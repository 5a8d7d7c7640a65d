package middleware

import (
	"net/http"

	"github.com/omni/bridge-relayer/logging"
)

func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger := logging.LoggerFromContext(r.Context())
				if err, ok := rec.(error); ok {
					logger = logger.WithError(err)
				} else {
					logger = logger.WithField("recovered", rec)
				}
				logger.Error("recovered panic from the http handler")
				w.WriteHeader(http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
