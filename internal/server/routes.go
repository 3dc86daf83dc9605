// Package server wires the HTTP handlers into a ServeMux for the chat
// relay via routing helpers.
package server

import "net/http"

// Routes configures and returns the application's ServeMux: the health
// check, the WebSocket endpoint, the read API, and the test page.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("GET /test", s.handleTestPage)
	mux.HandleFunc("GET /ws/chat/{room}", s.handleWebSocket)
	mux.HandleFunc("GET /api/conversations/{$}", s.handleListConversations)
	mux.HandleFunc("GET /api/conversations/{name}/{$}", s.handleGetConversation)
	mux.HandleFunc("GET /api/conversations/{name}/messages/{$}", s.handleListMessages)
	mux.HandleFunc("GET /api/dashboard/stats/{$}", s.handleDashboardStats)
	return mux
}
