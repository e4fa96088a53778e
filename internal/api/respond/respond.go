package respond

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/ewaste-exchange/internal/apperr"
	"github.com/example/ewaste-exchange/internal/logger"
)

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Error renders err as an error envelope. Internal errors are logged and
// replaced by their public message.
func Error(ctx context.Context, log *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := apperr.As(err)
	if typed == nil {
		typed = apperr.Wrap(apperr.CodeInternal, err, "unexpected error")
	}
	meta := apperr.MetadataFor(typed.Code())

	payload := ErrorEnvelope{Error: APIError{
		Code:    string(typed.Code()),
		Message: meta.PublicMessage,
	}}
	if typed.Code() != apperr.CodeInternal && typed.Message() != "" {
		payload.Error.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		payload.Error.Details = typed.Details()
	}

	if log != nil {
		fields := map[string]any{"error_code": string(typed.Code()), "status": meta.HTTPStatus}
		if meta.HTTPStatus >= http.StatusInternalServerError {
			log.Error(ctx, "request failed", err, fields)
		} else {
			fields["error"] = err.Error()
			log.Debug(ctx, "request rejected", fields)
		}
	}

	JSON(w, meta.HTTPStatus, payload)
}
