// Package server wires HTTP handlers into a ServeMux for the relay
// application via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
func (s *Server) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", ChatPageHandler)
	mux.HandleFunc("/health", HealthHandler)
	mux.HandleFunc("/stats", s.StatsHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	mux.HandleFunc("/upload", s.UploadHandler)
	mux.Handle("/uploads/", http.StripPrefix("/uploads/", noDirListing(uploadHeaders(http.FileServer(http.Dir(s.cfg.UploadDir))))))
	return mux
}
