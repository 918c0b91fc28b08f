package api

import (
	"context"
	"errors"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/TheEntropyCollective/asyncdemo/pkg/demo"
	"github.com/TheEntropyCollective/asyncdemo/pkg/history"
	"github.com/TheEntropyCollective/asyncdemo/pkg/util"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// APIResponse is the envelope for failed requests and for endpoints without
// a payload of their own
type APIResponse struct {
	Success    bool        `json:"success"`
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
	Suggestion string      `json:"suggestion,omitempty"`
}

func sendJSON(w http.ResponseWriter, data interface{}) {
	sendJSONStatus(w, http.StatusOK, data)
}

func sendJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func sendError(w http.ResponseWriter, err error, status int) {
	sendJSONStatus(w, status, APIResponse{
		Success:    false,
		Error:      err.Error(),
		Suggestion: util.GetErrorSuggestion(err),
	})
}

// statusFor maps an error to its HTTP status
func statusFor(err error) int {
	var invalid ValidationError
	switch {
	case errors.As(err, &invalid), errors.Is(err, demo.ErrInvalidOptions):
		return http.StatusBadRequest
	case errors.Is(err, history.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
