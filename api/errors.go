package api

import (
	"errors"
	"net/http"

	"github.com/jmcleod/sks/token"
)

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

// writeStatus sends a status with no body.
func writeStatus(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(status)
}

// mapError translates an authority error into a response. Backend faults
// carry no body so store details never reach clients.
func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, token.ErrMalformedRequest):
		writeText(w, http.StatusBadRequest, "ERR: "+err.Error()+"\n")
	case errors.Is(err, token.ErrAuthenticationDenied):
		writeStatus(w, http.StatusForbidden)
	default:
		writeStatus(w, http.StatusInternalServerError)
	}
}
