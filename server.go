package main

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"github.com/rs/zerolog"
)

// newMux registers the control server routes
func newMux(a *app) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/go", corsHandler(a.handleGo))
	mux.HandleFunc("/api/status", corsHandler(a.handleStatus))
	mux.HandleFunc("/api/routes", corsHandler(handleAPIRoutes))
	return mux
}

type statusResponse struct {
	Location   string   `json:"location"`
	Title      string   `json:"title"`
	Folder     string   `json:"folder"`
	Path       []string `json:"path"`
	Index      bool     `json:"index"`
	Nsfw       bool     `json:"nsfw"`
	Mode       string   `json:"mode"`
	Generation uint64   `json:"generation"`
	Busy       bool     `json:"busy"`
	Nodes      int      `json:"nodes"`
	History    int      `json:"history"`
	Share      string   `json:"share,omitempty"`
}

// handleGo navigates the browser to the query of the request. HEAD
// answers with the current status and does not navigate.
func (a *app) handleGo(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodHead:
		writeJSON(w, a.status())
		return
	default:
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := a.ctrl.Go(r.URL.RawQuery); err != nil {
		a.log.Error().Err(err).Str("query", r.URL.RawQuery).Msg("navigation failed")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.log.Info().Str("query", r.URL.RawQuery).Msg("navigated from control server")
	writeJSON(w, a.status())
}

// handleStatus returns the navigation state
func (a *app) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.status())
}

func (a *app) status() statusResponse {
	st := a.ctrl.State()
	snap := a.region.Snapshot()
	return statusResponse{
		Location:   a.session.Location().String(),
		Title:      st.Title,
		Folder:     st.Folder(),
		Path:       st.Path,
		Index:      st.IsIndex(),
		Nsfw:       a.ctrl.Nsfw(),
		Mode:       a.bus.Mode().String(),
		Generation: snap.Generation,
		Busy:       snap.Busy,
		Nodes:      len(snap.Nodes),
		History:    a.session.Len(),
		Share:      a.shareLink(),
	}
}

// handleAPIRoutes returns available routes
func handleAPIRoutes(w http.ResponseWriter, r *http.Request) {
	host := r.Host
	if host == "" {
		host = "localhost:8080"
	}
	writeJSON(w, map[string]interface{}{
		"base": fmt.Sprintf("http://%s", host),
		"routes": map[string]string{
			"/go":         "Navigate the browser (query: ?folder=a/b&isNsfw=false)",
			"/api/status": "Navigation state JSON",
			"/api/routes": "This endpoint",
		},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// corsHandler adds CORS headers so bookmark pages on any origin can call the server
func corsHandler(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		// Handle OPTIONS preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// findAvailablePort finds a free port starting from the preferred port
func findAvailablePort(preferred int, log zerolog.Logger) (int, net.Listener, error) {
	if preferred == 0 {
		preferred = 8080
	}

	for port := preferred; port < preferred+100; port++ {
		listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			if port != preferred {
				log.Warn().Msgf("Port %d in use, using %d instead", preferred, port)
			}
			return port, listener, nil
		}
	}

	return 0, nil, fmt.Errorf("no available port found in range %d-%d", preferred, preferred+99)
}

// serve runs the control server until it fails
func (a *app) serve(listener net.Listener) {
	if err := http.Serve(listener, newMux(a)); err != nil {
		a.log.Error().Err(err).Msg("HTTP server error")
	}
}
