package httptransport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Aafimalek/prompt-to-animate/internal/entity"
)

// apiError is the body of every non-2xx JSON response. ResetAt is only set
// on admission denials.
type apiError struct {
	Message string     `json:"message"`
	ResetAt *time.Time `json:"reset_at,omitempty"`
}

var kindStatus = map[entity.ErrorKind]int{
	entity.KindUnauthenticated:       http.StatusUnauthorized,
	entity.KindInvalidRequest:        http.StatusBadRequest,
	entity.KindAdmissionDenied:       http.StatusForbidden,
	entity.KindCollaboratorFailure:   http.StatusBadGateway,
	entity.KindTimeoutFailure:        http.StatusGatewayTimeout,
	entity.KindInfrastructureFailure: http.StatusServiceUnavailable,
}

func respond(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func respondMessage(w http.ResponseWriter, code int, msg string) {
	respond(w, code, apiError{Message: msg})
}

// respondError picks the status from the error's kind. Untagged errors are
// a 500.
func respondError(w http.ResponseWriter, err error) {
	code, ok := kindStatus[entity.KindOf(err)]
	if !ok {
		code = http.StatusInternalServerError
	}
	respondMessage(w, code, entity.UserMessage(err))
}
