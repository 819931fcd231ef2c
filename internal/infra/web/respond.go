package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"collab-billing/internal/domain"
	"collab-billing/internal/infra/logging"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// statusFor maps an error to the HTTP status the client sees.
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		if errors.Is(err, domain.ErrRateLimited) {
			return http.StatusTooManyRequests
		}
		return http.StatusBadRequest
	case domain.KindAuth:
		if errors.Is(err, domain.ErrForbidden) {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindGateway:
		if errors.Is(err, domain.ErrPaymentDeclined) {
			return http.StatusPaymentRequired
		}
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with a user-safe message. Internal errors are logged with the trace id
// and replaced by a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	kind := domain.KindOf(err)
	msg := err.Error()
	l := logging.With(r.Context(), s.log)
	if status >= http.StatusInternalServerError {
		l.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		msg = "internal error"
	} else {
		l.Debug().Err(err).Int("status", status).Msg("request rejected")
	}
	writeJSON(w, status, errorBody{Error: msg, Code: string(kind)})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return domain.ErrInvalidArgument
	}
	return nil
}
