package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/vedran77/riffchat/internal/apperr"
	"github.com/vedran77/riffchat/pkg/validator"
	"go.uber.org/zap"
)

// envelope is a successful response body. "success" is added by writeJSON.
type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, data envelope) {
	body := envelope{"success": true}
	for k, v := range data {
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeFailure(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"message": message,
		"error":   code,
	})
}

// writeError answers with the status of err's kind. Internal errors are
// logged under op and their details are not sent to the client.
func writeError(w http.ResponseWriter, log *zap.Logger, op string, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.Internal {
		log.Error(op, zap.Error(err))
	}
	writeFailure(w, kind.HTTPStatus(), kind.String(), apperr.Message(err))
}

func writeValidationErrors(w http.ResponseWriter, errs validator.ValidationErrors) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"message": "Validation failed",
		"error":   apperr.InvalidInput.String(),
		"fields":  errs,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeFailure(w, http.StatusBadRequest, apperr.InvalidInput.String(), "Invalid request body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeFailure(w, http.StatusBadRequest, apperr.InvalidInput.String(), "Invalid "+what+" ID")
		return uuid.Nil, false
	}
	return id, true
}
