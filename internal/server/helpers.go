package server

import (
	"encoding/json"
	"errors"
	"net/http"

	kterrors "github.com/tjdeveng/KeepTower-sub010/internal/errors"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps the domain error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, kterrors.ErrAuthenticationFailed),
		errors.Is(err, kterrors.ErrInvalidPassword):
		status = http.StatusUnauthorized
	case errors.Is(err, kterrors.ErrPermissionDenied),
		errors.Is(err, kterrors.ErrCannotRemoveSelf),
		errors.Is(err, kterrors.ErrCannotRemoveLastAdmin):
		status = http.StatusForbidden
	case errors.Is(err, kterrors.ErrUserNotFound),
		errors.Is(err, kterrors.ErrFileNotFound):
		status = http.StatusNotFound
	case errors.Is(err, kterrors.ErrDuplicateUser),
		errors.Is(err, kterrors.ErrDuplicateName):
		status = http.StatusConflict
	case errors.Is(err, kterrors.ErrWeakPassword),
		errors.Is(err, kterrors.ErrPasswordReused),
		errors.Is(err, kterrors.ErrInvalidUsername),
		errors.Is(err, kterrors.ErrValidationFailed):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, kterrors.ErrVaultNotOpen):
		status = http.StatusConflict
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return false
	}
	return true
}
