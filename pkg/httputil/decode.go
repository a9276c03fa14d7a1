package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"

	dErrors "worksign/pkg/domain-errors"
)

// Validatable lets request types carry their own validation.
type Validatable interface {
	Validate() error
}

// DecodeAndPrepare decodes a JSON body into T and runs its validation,
// writing the error response itself on failure. The boolean tells the
// handler whether to continue.
func DecodeAndPrepare[T any, PT interface {
	*T
	Validatable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*T, bool) {
	req := new(T)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		logger.DebugContext(r.Context(), "request body decode failed", "error", err)
		WriteError(w, dErrors.Wrap(err, dErrors.CodeBadJSON, "request body is not valid JSON"))
		return nil, false
	}
	if err := PT(req).Validate(); err != nil {
		WriteError(w, err)
		return nil, false
	}
	return req, true
}
