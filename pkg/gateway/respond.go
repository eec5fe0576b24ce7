package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/harun/toolgate/pkg/faults"
)

// statusFor maps an error kind to the HTTP status of a failed request.
func statusFor(kind faults.Kind) int {
	switch kind {
	case faults.KindValidation:
		return http.StatusBadRequest
	case faults.KindCircuitOpen, faults.KindUnavailable, faults.KindRateLimit:
		return http.StatusServiceUnavailable
	case faults.KindAuth, faults.KindSync, faults.KindToolExecution, faults.KindDispatch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with the status and body for err. status is attached to 503s.
func writeError(w http.ResponseWriter, err error, status *ServiceStatus) {
	kind := faults.KindOf(err)
	if kind == "" {
		kind = faults.KindChatFailed
	}
	code := statusFor(kind)

	body := ErrorResponse{
		Error:   string(kind),
		Message: faults.Message(err),
	}
	if code == http.StatusServiceUnavailable {
		body.ServiceStatus = status
	}
	writeJSON(w, code, body)
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return faults.Wrapf(faults.KindValidation, "gateway.decode", err, "invalid request body: %v", err)
	}
	return nil
}
