// Package server exposes the HTTP surface of the chat relay: WebSocket
// upgrades, the read API, the health check, and the built-in test page.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Mohamed-Silaya/chat-app/internal/store"
)

// Server holds the collaborators every handler needs: the room registry,
// the persistence gateway, the configuration, and the logger. It replaces
// ambient package state with explicit injection.
type Server struct {
	cfg      Config
	hub      *Hub
	store    store.Store
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewServer wires the handler set around an already-running hub and store.
func NewServer(cfg Config, hub *Hub, st store.Store, logger *zap.Logger) *Server {
	policy := newOriginPolicy(cfg.AllowedOrigins, logger)

	return &Server{
		cfg:    cfg,
		hub:    hub,
		store:  st,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.check,
		},
	}
}

// handleWebSocket upgrades the connection and registers a session under the
// room named by the path segment. The room name is fixed for the session's
// lifetime.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	room := r.PathValue("room")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.String("room", room), zap.Error(err))
		return
	}

	client := NewClient(conn, s.hub, s.store, room, r.RemoteAddr, s.cfg, s.logger)

	// The hub launches the pump goroutines and sends the welcome frame.
	s.hub.register <- client
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Chat relay is running!")
}

// handleTestPage serves a minimal HTML client for exercising the room
// protocol by hand: pick a room and username, connect, and watch the
// fan-out.
func (s *Server) handleTestPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>Chat Relay Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { padding: 5px; margin-right: 10px; }
        #messageInput { width: 300px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        .system { color: gray; font-style: italic; }
        .chat .user { color: #005a87; font-weight: bold; }
    </style>
</head>
<body>
    <h1>Chat Relay Test</h1>

    <div>
        <input type="text" id="roomInput" placeholder="Room" value="lobby">
        <input type="text" id="usernameInput" placeholder="Username">
        <button id="connectButton" onclick="toggleConnection()">Join</button>
    </div>

    <div id="messages"></div>

    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');

        function addMessage(frame) {
            const el = document.createElement('div');
            if (frame.type === 'system_message') {
                el.className = 'system';
                el.textContent = frame.message;
            } else {
                el.className = 'chat';
                const user = document.createElement('span');
                user.className = 'user';
                user.textContent = frame.username + ': ';
                el.appendChild(user);
                el.appendChild(document.createTextNode(frame.message));
            }
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function setConnected(connected) {
            messageInput.disabled = !connected;
            sendButton.disabled = !connected;
            connectButton.textContent = connected ? 'Leave' : 'Join';
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
                return;
            }
            const room = document.getElementById('roomInput').value.trim() || 'lobby';
            ws = new WebSocket('ws://' + location.host + '/ws/chat/' + encodeURIComponent(room));
            ws.onopen = () => setConnected(true);
            ws.onmessage = (event) => {
                for (const line of event.data.split('\n')) {
                    addMessage(JSON.parse(line));
                }
            };
            ws.onclose = () => { setConnected(false); ws = null; };
        }

        function sendMessage() {
            const message = messageInput.value.trim();
            if (!message || !ws || ws.readyState !== WebSocket.OPEN) {
                return;
            }
            ws.send(JSON.stringify({
                message: message,
                username: document.getElementById('usernameInput').value.trim()
            }));
            messageInput.value = '';
        }

        messageInput.addEventListener('keypress', (e) => {
            if (e.key === 'Enter') { sendMessage(); }
        });
    </script>
</body>
</html>`
	if _, err := fmt.Fprint(w, html); err != nil {
		s.logger.Warn("error writing test page", zap.Error(err))
	}
}
