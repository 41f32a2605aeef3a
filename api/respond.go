package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// Time format of the timestamps in response bodies
const timeFormat = "2006-01-02 15:04:05"

// timeNow returns the current time
var timeNow = time.Now

func timestamp() string {
	return timeNow().Format(timeFormat)
}

// respondWithError responds with an error
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithFailure responds with an error marked as a failure at the
// current time, the shape used by the authentication errors.
func respondWithFailure(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{
		"error":     message,
		"fail_time": timestamp(),
		"status":    "failure",
	})
}

// respondWithJSON responds with JSON
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	// Create response
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}

	// Set headers
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
