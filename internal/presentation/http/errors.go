package httppresentation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	domainOrder "github.com/brewtopia/cafepos/internal/domain/order"
	"github.com/brewtopia/cafepos/internal/infrastructure/auth"
	"github.com/brewtopia/cafepos/internal/observability"
	"github.com/brewtopia/cafepos/internal/observability/logctx"
)

const (
	codeUnauthorized     = "unauthorized"
	codeValidation       = "validation_error"
	codeInvalidMenuItem  = "invalid_menu_item"
	codeInvalidRange     = "invalid_range"
	codeOrderNotFound    = "order_not_found"
	codeOrderAlreadyPaid = "order_already_paid"
	codeInternal         = "internal_error"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

// writeDomainError maps a failure to its status and stable code. Storage
// detail is logged and replaced with a generic message.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domainOrder.ValidationError
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		msg := "authentication required"
		if errors.Is(err, auth.ErrInvalidCredentials) {
			msg = "invalid credentials"
		}
		writeError(w, http.StatusUnauthorized, codeUnauthorized, msg)
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, codeValidation, verr.Reason)
	case errors.Is(err, domainOrder.ErrInvalidMenuItem):
		writeError(w, http.StatusBadRequest, codeInvalidMenuItem, detail(err, domainOrder.ErrInvalidMenuItem))
	case errors.Is(err, domainOrder.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, codeInvalidRange, detail(err, domainOrder.ErrInvalidRange))
	case errors.Is(err, domainOrder.ErrNotFound):
		writeError(w, http.StatusNotFound, codeOrderNotFound, "order not found")
	case errors.Is(err, domainOrder.ErrAlreadyPaid):
		writeError(w, http.StatusConflict, codeOrderAlreadyPaid, "order is already paid")
	default:
		logctx.FromOr(r.Context(), observability.NopLogger()).Error("http_internal_error",
			observability.F("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
	}
}

// detail strips the sentinel prefix so clients see only the specific reason.
func detail(err, sentinel error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok {
		return rest
	}
	return msg
}
