package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vnmchuo/contentgen/internal/generator"
	"github.com/vnmchuo/contentgen/internal/provider"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

// statusFor maps a generation failure to its HTTP status and error code.
// Errors of unknown type are reported as internal errors without detail.
func statusFor(err error) (int, string, string) {
	var gerr *generator.Error
	if errors.As(err, &gerr) {
		switch gerr.Kind {
		case generator.ErrValidation, generator.ErrUnknownModel, generator.ErrMissingModelConfig:
			return http.StatusBadRequest, gerr.Code, gerr.Message
		case generator.ErrMissingCredential:
			return http.StatusPreconditionFailed, gerr.Code, gerr.Message
		case generator.ErrInvalidJSON:
			return http.StatusBadGateway, gerr.Code, gerr.Message
		}
		return http.StatusInternalServerError, gerr.Code, gerr.Message
	}

	var perr *provider.Error
	if errors.As(err, &perr) {
		if perr.Kind == provider.ErrPollTimeout {
			return http.StatusGatewayTimeout, string(perr.Kind), perr.Message
		}
		return http.StatusBadGateway, string(perr.Kind), perr.Message
	}

	return http.StatusInternalServerError, "internal_error", "Something went wrong."
}
