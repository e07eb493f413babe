package transport

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"collision-server/internal/netsync"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser peers don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func bearerToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	h := r.Header.Get("Authorization")
	if t, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(t)
	}
	return ""
}

type loginRequest struct {
	Name   string `json:"name"`
	Secret string `json:"secret"`
}

type loginResponse struct {
	PeerID int64  `json:"peer_id,omitempty"`
	Token  string `json:"token,omitempty"`
	Error  string `json:"error,omitempty"`
}

// HealthFunc reports extra fields for /health.
type HealthFunc func() map[string]any

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// SetupRoutes configures the peer websocket, login and health endpoints.
func SetupRoutes(hub *Hub, health HealthFunc) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{
			"status":   "ok",
			"peers":    hub.PeerCount(),
			"received": hub.Received(),
		}
		if hub.inbox != nil {
			body["inbox"] = hub.inbox.Len()
		}
		if health != nil {
			for k, v := range health() {
				body[k] = v
			}
		}
		writeJSON(w, http.StatusOK, body)
	})

	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, loginResponse{Error: "POST only"})
			return
		}
		if hub.auth == nil {
			writeJSON(w, http.StatusServiceUnavailable, loginResponse{Error: "auth disabled"})
			return
		}
		var req loginRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, loginResponse{Error: "bad request"})
			return
		}
		id, token, err := hub.auth.Login(req.Name, req.Secret, extractIP(r))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, loginResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, loginResponse{PeerID: id, Token: token})
	})

	mux.HandleFunc("/peer", func(w http.ResponseWriter, r *http.Request) {
		var (
			id   int64
			name = "anonymous"
		)
		if hub.auth != nil {
			var err error
			id, name, err = hub.auth.ValidateToken(bearerToken(r))
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		ip := extractIP(r)
		if !hub.CanAccept(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Warn("upgrade error", "addr", ip, "err", err)
			return
		}

		hub.TrackConnect(ip)

		p := newPeer(hub, conn, id, name, ip)
		if !hub.registerPeer(p) {
			hub.TrackDisconnect(ip)
			conn.Close()
			return
		}
		p.sendFrame(netsync.Frame{T: netsync.MsgWelcome, Peer: name})

		go p.WritePump()
		go p.ReadPump()
	})

	return mux
}
