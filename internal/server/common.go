package server

import (
	"encoding/json"
	"net/http"
)

// writeJSON writes v as a JSON body with the given status code. A nil v
// writes an empty JSON object, matching spec.md §6's "status codes...400
// for malformed input" guidance without ever leaving a handler silent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		w.Write([]byte("{}"))
		return
	}
	json.NewEncoder(w).Encode(v)
}

// corsMiddleware mirrors the teacher's Access-Control-Allow-Origin
// header on every response so a browser dashboard can poll any node.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
