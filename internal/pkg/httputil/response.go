package httputil

import (
	"encoding/json"
	"log"
	"net/http"
)

// ErrorBody is the JSON envelope for every non-2xx response.
type ErrorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

const maxBodyBytes = 1 << 20

func respond(w http.ResponseWriter, status int, v any) {
	buf, err := json.Marshal(v)
	if err != nil {
		log.Printf("[HTTP] response encode failed: %v", err)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"internal server error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf)
}

// JSON writes v with an arbitrary status code.
func JSON(w http.ResponseWriter, status int, v any) { respond(w, status, v) }

// OK writes v with a 200.
func OK(w http.ResponseWriter, v any) { respond(w, http.StatusOK, v) }

// Created writes v with a 201.
func Created(w http.ResponseWriter, v any) { respond(w, http.StatusCreated, v) }

// Accepted writes v with a 202. Used by endpoints that kick off work and
// return before it completes.
func Accepted(w http.ResponseWriter, v any) { respond(w, http.StatusAccepted, v) }

// NoContent writes an empty 204.
func NoContent(w http.ResponseWriter) { w.WriteHeader(http.StatusNoContent) }

// Fail writes an error envelope with the given status.
func Fail(w http.ResponseWriter, status int, msg string) {
	respond(w, status, ErrorBody{Error: msg})
}

// BadRequest writes a 400 envelope.
func BadRequest(w http.ResponseWriter, msg string) { Fail(w, http.StatusBadRequest, msg) }

// NotFound writes a 404 envelope.
func NotFound(w http.ResponseWriter, msg string) { Fail(w, http.StatusNotFound, msg) }

// Conflict writes a 409 envelope. Used for rejected state transitions.
func Conflict(w http.ResponseWriter, msg string) { Fail(w, http.StatusConflict, msg) }

// InternalError logs err and writes a generic 500 envelope. The real error
// never reaches the client.
func InternalError(w http.ResponseWriter, err error) {
	log.Printf("[HTTP] internal error: %v", err)
	Fail(w, http.StatusInternalServerError, "internal server error")
}

// Decode parses the request body into dst, capped at 1MB. On failure it
// writes a 400 and returns false; handlers return immediately in that case.
func Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		BadRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
