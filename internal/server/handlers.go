// Package server exposes HTTP handlers: the WebSocket upgrade, health
// checks, the schedule admin API, and the operator console.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode"

	"github.com/Tyrowin/relaychat/internal/announce"
)

const (
	maxRoomNameLength = 64
	maxScheduleBody   = 64 << 10
)

func (s *Server) checkOrigin(r *http.Request) bool {
	if s.cfg.originAllowed(r) {
		return true
	}
	s.log.Warnw("ws", "error", "disallowed origin", "origin", r.Header.Get("Origin"))
	return false
}

// roomFromRequest returns the requested room or the default one.
func (s *Server) roomFromRequest(r *http.Request) (string, error) {
	room := strings.TrimSpace(r.URL.Query().Get("room"))
	if room == "" {
		return s.cfg.DefaultRoom, nil
	}
	if len(room) > maxRoomNameLength {
		return "", fmt.Errorf("room name longer than %d bytes", maxRoomNameLength)
	}
	for _, ch := range room {
		if unicode.IsSpace(ch) || unicode.IsControl(ch) {
			return "", errors.New("room name contains whitespace")
		}
	}
	return room, nil
}

// WebSocketHandler upgrades GET requests to WebSocket and registers the new
// client with the hub, which launches its pumps.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	room, err := s.roomFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("ws", "error", "upgrade failed", "cause", err)
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr, room)
	if !s.hub.Register(client) {
		conn.Close()
	}
}

// HealthHandler reports that the server is up.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "relaychat server is running! clients: %d", s.hub.ClientCount())
}

// SchedulesHandler lists (GET), adds (POST), or clears (DELETE) scheduled
// server messages.
func (s *Server) SchedulesHandler(w http.ResponseWriter, r *http.Request) {
	if s.announcer == nil {
		http.Error(w, "scheduled messages are disabled", http.StatusServiceUnavailable)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.announcer.List())

	case http.MethodPost:
		var m announce.Message
		r.Body = http.MaxBytesReader(w, r.Body, maxScheduleBody)
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			http.Error(w, "invalid schedule: "+err.Error(), http.StatusBadRequest)
			return
		}
		m.ID = ""

		added, err := s.announcer.Add(m)
		if err != nil {
			s.writeScheduleError(w, err)
			return
		}
		s.console.Notice(fmt.Sprintf("Scheduled %s message %s", added.Mode, added.ID), false)
		s.writeJSON(w, http.StatusCreated, added)

	case http.MethodDelete:
		n, err := s.announcer.Clear()
		if err != nil {
			s.writeScheduleError(w, err)
			return
		}
		s.console.Notice(fmt.Sprintf("Cleared %d scheduled messages", n), false)
		s.writeJSON(w, http.StatusOK, map[string]int{"removed": n})

	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		http.Error(w, "Method not allowed.", http.StatusMethodNotAllowed)
	}
}

// DeleteScheduleHandler removes one scheduled message by id.
func (s *Server) DeleteScheduleHandler(w http.ResponseWriter, r *http.Request) {
	if s.announcer == nil {
		http.Error(w, "scheduled messages are disabled", http.StatusServiceUnavailable)
		return
	}

	id := r.PathValue("id")
	removed, err := s.announcer.Remove(id)
	if err != nil {
		s.writeScheduleError(w, err)
		return
	}
	if !removed {
		http.Error(w, "no such scheduled message", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ConsoleHandler returns the retained operator notices.
func (s *Server) ConsoleHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed.", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.console.Entries())
}

func (s *Server) writeScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, announce.ErrInvalidMessage):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, announce.ErrNotRunning):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		s.log.Errorw("schedules", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warnw("http", "error", "encode response", "cause", err)
	}
}
