package errorhandler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/pointline/pointline-api/internal/middleware"
	"github.com/pointline/pointline-api/internal/pkg/response"
)

// Mapping binds a sentinel error to the status and code written for it.
type Mapping struct {
	Err    error
	Status int
	Code   string
}

// Kind returns the first mapping matching err, or the internal error mapping.
func Kind(err error, mappings []Mapping) Mapping {
	for _, m := range mappings {
		if errors.Is(err, m.Err) {
			return m
		}
	}
	return Mapping{Err: err, Status: http.StatusInternalServerError, Code: "INTERNAL_ERROR"}
}

// HandleError maps a domain error onto the response envelope.
// Client errors carry the wrapped message; internal errors are logged and hidden.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []Mapping) {
	m := Kind(err, mappings)

	if m.Status >= http.StatusInternalServerError {
		log.Error().
			Str("request_id", middleware.GetRequestID(ctx)).
			Str("error_code", m.Code).
			Int("status_code", m.Status).
			Err(err).
			Msg("Request error")
		response.InternalError(w)
		return
	}

	log.Warn().
		Str("request_id", middleware.GetRequestID(ctx)).
		Str("error_code", m.Code).
		Int("status_code", m.Status).
		Err(err).
		Msg("Request rejected")
	response.Error(w, m.Status, m.Code, err.Error())
}

// HandleValidation logs field errors and writes a 422 response.
func HandleValidation(ctx context.Context, w http.ResponseWriter, fieldErrors map[string]string) {
	log.Warn().
		Str("request_id", middleware.GetRequestID(ctx)).
		Interface("validation_errors", fieldErrors).
		Msg("Validation error")
	response.ValidationError(w, fieldErrors)
}
