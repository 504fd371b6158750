// Package server wires HTTP handlers into a ServeMux for the relaychat
// application via routing helpers.
package server

import "net/http"

// Routes configures and returns an HTTP ServeMux with all application routes.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.HealthHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	mux.HandleFunc("/schedules", s.adminOnly(s.SchedulesHandler))
	mux.HandleFunc("DELETE /schedules/{id}", s.adminOnly(s.DeleteScheduleHandler))
	mux.HandleFunc("/console", s.adminOnly(s.ConsoleHandler))
	return mux
}
