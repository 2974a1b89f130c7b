package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog/log"

	"github.com/pointline/pointline-api/internal/pkg/response"
)

// Recover turns a handler panic into a logged 500. http.ErrAbortHandler is
// re-panicked. Nothing is written once the handler has sent its headers.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracked := &headerTracker{ResponseWriter: w}
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			err := panicError(rec)
			log.Error().
				Err(err).
				Bytes("stack", debug.Stack()).
				Str("request_id", GetRequestID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Bool("headers_sent", tracked.sent).
				Msg("handler panicked")

			if !tracked.sent {
				response.InternalError(w)
			}
		}()

		next.ServeHTTP(tracked, r)
	})
}

func panicError(rec interface{}) error {
	if err, ok := rec.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return errors.New(fmt.Sprint("panic: ", rec))
}

// headerTracker records whether the wrapped handler started its response.
type headerTracker struct {
	http.ResponseWriter
	sent bool
}

func (t *headerTracker) WriteHeader(code int) {
	t.sent = true
	t.ResponseWriter.WriteHeader(code)
}

func (t *headerTracker) Write(b []byte) (int, error) {
	t.sent = true
	return t.ResponseWriter.Write(b)
}
