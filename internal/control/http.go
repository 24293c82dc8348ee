package control

import (
	"encoding/json"
	"io"
	"net/http"
)

const maxCommandBytes = 64 << 10

// NewHTTPHandler serves GET /status and POST /control.
func NewHTTPHandler(d *Dispatcher) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, d.Dispatch(Command{Command: "status"}))
	})
	mux.HandleFunc("/control", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var cmd Command
		if err := json.NewDecoder(io.LimitReader(r.Body, maxCommandBytes)).Decode(&cmd); err != nil {
			writeJSON(w, http.StatusBadRequest, Response{CommandAck: "unknown", Status: "error", Error: "invalid JSON"})
			return
		}
		resp := d.Dispatch(cmd)
		code := http.StatusOK
		if resp.Status == "error" {
			code = http.StatusBadRequest
		}
		writeJSON(w, code, resp)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
