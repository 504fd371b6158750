// Package server implements the relaychat HTTP and WebSocket server.
//
// Clients join a room over /ws. Chat, command, and file-transfer frames are
// relayed to the other clients of the sender's room; server announcements
// reach every client. The implementation is organized into files for
// configuration, hub management, clients, routing, and HTTP handlers.
package server
