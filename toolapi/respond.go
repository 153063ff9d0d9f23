package toolapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	goRemote "github.com/MrEthical07/goRemote"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type dataResponse struct {
	Data     string `json:"data"`
	Encoding string `json:"encoding"`
}

var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an Engine error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, goRemote.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, goRemote.ErrSessionUnknownOrExpired):
		return http.StatusNotFound, "session_unknown_or_expired"
	case errors.Is(err, goRemote.ErrConnectThrottled):
		return http.StatusTooManyRequests, "throttled"
	case errors.Is(err, goRemote.ErrTimeout):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, goRemote.ErrTransport):
		return http.StatusBadGateway, "transport"
	case errors.Is(err, goRemote.ErrEngineNotReady):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (a *api) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		a.logger.Error("tool call failed",
			"path", r.URL.Path,
			"request_id", goRemote.RequestIDFromContext(r.Context()),
			"error", err,
		)
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: msg}})
}

// decode reads exactly one JSON object with no unknown fields.
func (a *api) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, a.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: body exceeds %d bytes", errBadRequest, tooLarge.Limit)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("%w: trailing data after JSON object", errBadRequest)
	}
	return nil
}

func decodeBase64(field, s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not valid base64", errBadRequest, field)
	}
	return b, nil
}

func encodeBase64(b []byte) dataResponse {
	return dataResponse{Data: base64.StdEncoding.EncodeToString(b), Encoding: "base64"}
}

// maxTimeout caps client-supplied timeouts well below the point where a
// millisecond count overflows time.Duration.
const maxTimeout = 24 * time.Hour

// millis converts an optional millisecond timeout. Nil means the engine
// default.
func millis(field string, v *int64) (time.Duration, error) {
	if v == nil {
		return 0, nil
	}
	if *v <= 0 {
		return 0, fmt.Errorf("%w: %s must be > 0", errBadRequest, field)
	}
	if *v > maxTimeout.Milliseconds() {
		return 0, fmt.Errorf("%w: %s must be <= %d", errBadRequest, field, maxTimeout.Milliseconds())
	}
	return time.Duration(*v) * time.Millisecond, nil
}
