// Package server bundles the hub, the announcer, and the console behind
// one set of HTTP handlers.
package server

import (
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/relaychat/internal/announce"
)

// Server holds what the HTTP handlers need. The announcer may be nil, in
// which case the schedule endpoints report 503.
type Server struct {
	cfg       *Config
	hub       *Hub
	announcer *announce.Announcer
	console   *Console
	upgrader  websocket.Upgrader
	log       *zap.SugaredLogger
}

// New creates a Server around an already constructed hub.
func New(cfg *Config, hub *Hub, announcer *announce.Announcer, console *Console, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if console == nil {
		console = NewConsole(log)
	}
	s := &Server{
		cfg:       cfg,
		hub:       hub,
		announcer: announcer,
		console:   console,
		log:       log,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Hub returns the server's hub.
func (s *Server) Hub() *Hub {
	return s.hub
}
