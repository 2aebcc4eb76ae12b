// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in chat page.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// ServeWS handles WebSocket upgrade requests. It validates the method,
// upgrades the connection, and registers a new client with the hub, which
// launches the pump goroutines.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(conn, h, r.RemoteAddr)
	h.register <- client
}

// HealthHandler provides a simple health check endpoint.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "chat relay is running")
}

// IndexHandler serves the chat page: a minimal browser client for the relay's
// event protocol.
func IndexHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, indexHTML); err != nil {
		log.Warn().Err(err).Msg("error writing chat page")
	}
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Chat Relay</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; max-width: 720px; }
        #messages { border: 1px solid #ccc; height: 360px; padding: 10px; overflow-y: scroll; margin: 10px 0; background-color: #f9f9f9; }
        .line { margin: 4px 0; }
        .meta { color: #888; font-size: 0.8em; margin-left: 6px; }
        .seen { color: #2a7; font-size: 0.8em; margin-left: 6px; }
        .line img { max-width: 240px; display: block; margin-top: 4px; }
        #typing { color: #888; font-style: italic; height: 1.2em; }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 6px; }
        button { padding: 5px 12px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        .msgbtn { background: none; color: #007cba; border: none; padding: 0 3px; cursor: pointer; font-size: 0.8em; }
    </style>
</head>
<body>
    <h1>Chat Relay</h1>

    <div>
        <input type="text" id="nameInput" placeholder="Display name...">
        <button onclick="setName()">Join</button>
    </div>

    <div id="messages"></div>
    <div id="typing"></div>

    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
        <input type="file" id="fileInput" accept=".png,.jpg,.jpeg,.gif,.webp,.avif" disabled>
    </div>

    <script>
        let ws = null;
        let myName = '';
        const messagesDiv = document.getElementById('messages');
        const messageInput = document.getElementById('messageInput');
        const typingDiv = document.getElementById('typing');

        function send(event, data) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({event: event, data: data}));
            }
        }

        function connect() {
            ws = new WebSocket('ws://' + location.host + '/ws');
            ws.onopen = function() {
                send('set username', myName);
                messageInput.disabled = false;
                document.getElementById('sendButton').disabled = false;
                document.getElementById('fileInput').disabled = false;
            };
            ws.onmessage = function(e) {
                // frames may arrive newline-concatenated
                e.data.split('\n').forEach(function(raw) {
                    if (raw) { handle(JSON.parse(raw)); }
                });
            };
        }

        function setName() {
            const name = document.getElementById('nameInput').value;
            if (!name) { return; }
            myName = name;
            if (ws && ws.readyState === WebSocket.OPEN) {
                send('set username', myName);
            } else {
                connect();
            }
        }

        function handle(frame) {
            switch (frame.event) {
                case 'load history':
                    messagesDiv.innerHTML = '';
                    (frame.data || []).forEach(renderMessage);
                    break;
                case 'chat message':
                    renderMessage(frame.data);
                    if (frame.data.user !== myName) { send('mark seen', frame.data.id); }
                    break;
                case 'delete message': {
                    const el = document.getElementById('msg-' + frame.data);
                    if (el) { el.remove(); }
                    break;
                }
                case 'edit message confirmed': {
                    const el = document.querySelector('#msg-' + frame.data.id + ' .body');
                    if (el) { el.textContent = frame.data.newText; }
                    break;
                }
                case 'message seen': {
                    const el = document.querySelector('#msg-' + frame.data + ' .seen');
                    if (el) { el.textContent = 'seen'; }
                    break;
                }
                case 'typing':
                    typingDiv.textContent = frame.data + ' is typing...';
                    break;
                case 'stop typing':
                    typingDiv.textContent = '';
                    break;
                case 'user disconnected':
                    addInfo(frame.data + ' disconnected');
                    break;
            }
        }

        function renderMessage(m) {
            const line = document.createElement('div');
            line.className = 'line';
            line.id = 'msg-' + m.id;
            const user = document.createElement('strong');
            user.textContent = m.user + ': ';
            line.appendChild(user);
            const body = document.createElement('span');
            body.className = 'body';
            if (m.text.startsWith('/uploads/')) {
                const img = document.createElement('img');
                img.src = m.text;
                body.appendChild(img);
            } else {
                body.textContent = m.text;
            }
            line.appendChild(body);
            const meta = document.createElement('span');
            meta.className = 'meta';
            meta.textContent = m.time;
            line.appendChild(meta);
            const seen = document.createElement('span');
            seen.className = 'seen';
            seen.textContent = m.seen ? 'seen' : '';
            line.appendChild(seen);
            if (m.user === myName) {
                const del = document.createElement('button');
                del.className = 'msgbtn';
                del.textContent = 'delete';
                del.onclick = function() { send('delete message', m.id); };
                line.appendChild(del);
                const edit = document.createElement('button');
                edit.className = 'msgbtn';
                edit.textContent = 'edit';
                edit.onclick = function() {
                    const t = prompt('New text:', m.text);
                    if (t !== null) { send('edit message', {id: m.id, newText: t}); }
                };
                line.appendChild(edit);
            }
            messagesDiv.appendChild(line);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function addInfo(text) {
            const line = document.createElement('div');
            line.className = 'line';
            line.innerHTML = '<em>' + text + '</em>';
            messagesDiv.appendChild(line);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function sendMessage() {
            const text = messageInput.value.trim();
            if (!text) { return; }
            send('chat message', {text: text});
            send('stop typing', myName);
            messageInput.value = '';
        }

        let typingTimer = null;
        messageInput.addEventListener('input', function() {
            send('typing', myName);
            clearTimeout(typingTimer);
            typingTimer = setTimeout(function() { send('stop typing', myName); }, 1500);
        });
        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') { sendMessage(); }
        });

        document.getElementById('fileInput').addEventListener('change', function() {
            const file = this.files[0];
            if (!file) { return; }
            const reader = new FileReader();
            reader.onload = function() {
                send('image upload', {fileData: reader.result, fileName: file.name});
            };
            reader.readAsDataURL(file);
            this.value = '';
        });
    </script>
</body>
</html>`
