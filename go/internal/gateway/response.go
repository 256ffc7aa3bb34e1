package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Response is the JSON envelope of every HTTP response
type Response struct {
	Code    int         `json:"code"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeResponse(w, status, Response{Code: status, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeResponse(w, status, Response{Code: status, Message: message})
}

func writeResponse(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
