package chat

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/TienThuan29/FreelanceIT-App-sub003/logger"
	"github.com/TienThuan29/FreelanceIT-App-sub003/tools/ids"
)

const writeWait = 10 * time.Second

// WSServer is the HTTP-facing side of the gateway: it upgrades connections,
// runs the handshake authentication, and drives each connection's read loop.
type WSServer struct {
	g        *Gateway
	upgrader websocket.Upgrader
}

func NewWSServer(g *Gateway, allowedOrigins []string) *WSServer {
	return &WSServer{
		g: g,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// An empty allow-list accepts every origin (development mode).
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimSuffix(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.TrimSuffix(origin, "/")]
		return ok
	}
}

// HandleWS is the gin handler for the websocket endpoint.
func (s *WSServer) HandleWS(c *gin.Context) {
	token := bearerToken(c.Request)

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Non-websocket request or handshake failure.
		logger.Infof("[ws] upgrade error: %v", err)
		return
	}

	identity, err := s.g.deps.Verifier.Verify(token)
	if err != nil {
		logger.Infof("[ws] auth failed remote=%s: %v", ws.RemoteAddr(), err)
		s.rejectAndClose(ws, ConnectionErrorData{
			Error:   KindAuthenticationFailed,
			Message: "authentication failed",
		})
		return
	}

	client := NewClient(ids.GenerateString(), ws, s.g.cfg.SendQueueSize)
	client.UserID = identity.UserID
	client.Role = identity.Role

	emits, err := s.g.Connect(client)
	if err != nil {
		logger.Infof("[ws] connection limit user=%s conn=%s", client.UserID, client.ConnID)
		s.rejectAndClose(ws, ConnectionErrorData{
			Error:   KindConnectionLimitExceeded,
			Message: "too many concurrent connections",
		})
		return
	}

	go client.writePump(s.g.cfg.PingInterval, writeWait)
	s.g.Dispatch(emits)

	s.readLoop(client)

	s.g.Dispatch(s.g.Disconnect(client))
	client.close()
}

// readLoop processes inbound frames in order for this connection until the
// transport closes.
func (s *WSServer) readLoop(client *Client) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ws := client.WS
	ws.SetReadLimit(s.g.cfg.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(s.g.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.g.cfg.PongWait))
	})

	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[ws] peer closed conn=%s", client.ConnID)
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[ws] read timeout conn=%s", client.ConnID)
			} else {
				logger.Infof("[ws] read error conn=%s err=%v", client.ConnID, rerr)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		frame, perr := ParseFrame(data)
		if perr != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Warnf("[ws] bad frame conn=%s err=%v sample=%q", client.ConnID, perr, sample)
			continue
		}

		s.g.Dispatch(s.g.Handle(ctx, client, frame))
	}
}

// rejectAndClose delivers a terminal error frame directly (the client never
// got a writer goroutine) and closes the transport.
func (s *WSServer) rejectAndClose(ws *websocket.Conn, data ConnectionErrorData) {
	if payload, err := EncodeFrame(EvtConnectionError, data); err == nil {
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = ws.WriteMessage(websocket.TextMessage, payload)
	}
	_ = ws.Close()
}

func bearerToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
