package adaptor

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/ponyo877/huddle/server/auth"
	"github.com/ponyo877/huddle/server/domain"
	"go.uber.org/zap"
)

const closeWriteWait = time.Second

// upgradeWS authenticates the upgrade request. A bad token still upgrades as
// anonymous so that the session can send its rejection frame.
func (s *Server) upgradeWS(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	token := c.Query("token")
	if token == "" {
		token, _ = auth.ParseBearerToken(c.Get(fiber.HeaderAuthorization))
	}
	c.Locals(identityKey, authenticate(c.UserContext(), s.auth, s.logger, token, c.IP()))
	return c.Next()
}

func (s *Server) serveWS(conn *websocket.Conn) {
	who, _ := conn.Locals(identityKey).(domain.Identity)
	t := newWSTransport(conn)
	if err := s.sessions.Serve(context.Background(), t, who, conn.Params("room")); err != nil {
		s.logger.Debug("websocket session rejected", zap.String("remote", t.Remote()), zap.Error(err))
	}
}

// wsTransport adapts a websocket connection to usecase.Transport. Reads and
// writes each happen on a single goroutine; Close may race with both.
type wsTransport struct {
	conn      *websocket.Conn
	remote    string
	closeOnce sync.Once
	closeErr  error
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	remote := "unknown"
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	return &wsTransport{conn: conn, remote: remote}
}

func (t *wsTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mt, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (t *wsTransport) WriteFrame(ctx context.Context, data []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close(code int, reason string) error {
	t.closeOnce.Do(func() {
		// the peer may already be gone; the close frame is best effort
		msg := websocket.FormatCloseMessage(code, reason)
		_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

func (t *wsTransport) Remote() string {
	return t.remote
}
