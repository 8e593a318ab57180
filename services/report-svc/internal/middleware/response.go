package middleware

import (
	"encoding/json"
	"net/http"

	"workshop/pkg/apperror"
	"workshop/pkg/logger"
)

// ErrorBody тело ответа с ошибкой
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail описание ошибки для клиента
type ErrorDetail struct {
	Code    apperror.ErrorCode `json:"code"`
	Message string             `json:"message"`
	Field   string             `json:"field,omitempty"`
	Details map[string]any     `json:"details,omitempty"`
}

// WriteJSON пишет v как JSON с указанным статусом
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Заголовки уже отправлены
		logger.Log.Debug("failed to encode response", "error", err)
	}
}

// WriteError переводит ошибку в HTTP ответ. Ошибки без кода
// отдаются как INTERNAL_ERROR без текста причины.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperror.As(err)
	if !ok {
		appErr = apperror.Wrap(err, apperror.CodeInternal, "internal error")
	}

	status := appErr.HTTPStatus()
	log := logger.WithContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "code", appErr.Code, "error", err)
	} else {
		log.Debug("request rejected", "code", appErr.Code, "error", err)
	}

	WriteJSON(w, status, ErrorBody{Error: ErrorDetail{
		Code:    appErr.Code,
		Message: appErr.Message,
		Field:   appErr.Field,
		Details: appErr.Details,
	}})
}
