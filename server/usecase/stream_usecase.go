package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ponyo877/huddle/server/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type SessionConfig struct {
	OutboxSize    int
	RatePerSecond float64
	Burst         int
	HistorySize   int
	CloseTimeout  time.Duration
	WriteTimeout  time.Duration
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		OutboxSize:    64,
		RatePerSecond: 20,
		Burst:         40,
		HistorySize:   50,
		CloseTimeout:  5 * time.Second,
		WriteTimeout:  10 * time.Second,
	}
}

var errShuttingDown = fmt.Errorf("%w: server is shutting down", domain.ErrTransient)

type SessionStats struct {
	ActiveSessions int
	TotalSessions  int64
	Uptime         string
}

// SessionManager starts connection sessions and tracks them for shutdown.
type SessionManager struct {
	coord  *Coordinator
	relay  *Relay
	cfg    SessionConfig
	logger *zap.Logger

	mu        sync.Mutex
	wg        sync.WaitGroup
	sessions  map[string]*Session
	total     int64
	closing   bool
	startTime time.Time
}

func NewSessionManager(coord *Coordinator, relay *Relay, cfg SessionConfig, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		coord:     coord,
		relay:     relay,
		cfg:       cfg,
		logger:    logger,
		sessions:  make(map[string]*Session),
		startTime: time.Now(),
	}
}

// Serve runs one connection until it ends. It returns the rejection error when
// the connection was refused.
func (m *SessionManager) Serve(ctx context.Context, t Transport, who domain.Identity, roomRef string) error {
	s := newSession(t, who, roomRef, m.coord, m.relay, m.cfg, m.logger)
	if !m.register(s) {
		return s.reject(errShuttingDown)
	}
	defer m.unregister(s)
	return s.Run(ctx)
}

func (m *SessionManager) register(s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing {
		return false
	}
	m.wg.Add(1)
	m.sessions[s.ID()] = s
	m.total++
	return true
}

func (m *SessionManager) unregister(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.ID())
	m.mu.Unlock()
	m.wg.Done()
}

// Shutdown refuses new sessions, stops the open ones and waits for them to
// finish closing.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	for _, s := range open {
		s.stop(CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to close sessions: %w", ctx.Err())
	}
}

func (m *SessionManager) Stats() SessionStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return SessionStats{
		ActiveSessions: len(m.sessions),
		TotalSessions:  m.total,
		Uptime:         time.Since(m.startTime).String(),
	}
}

// Session drives one connection through
// connecting, authorizing, joined, closing and closed.
type Session struct {
	id        string
	identity  domain.Identity
	roomRef   string
	room      domain.RoomID
	transport Transport
	coord     *Coordinator
	relay     *Relay
	cfg       SessionConfig
	limiter   *rate.Limiter
	logger    *zap.Logger

	// mu guards state, the outbox close and cancel
	mu         sync.Mutex
	state      domain.SessionState
	outbox     chan domain.Event
	cancel     context.CancelFunc
	stopOnce   sync.Once
	writerDone chan struct{}
}

func newSession(t Transport, who domain.Identity, roomRef string, coord *Coordinator, relay *Relay, cfg SessionConfig, logger *zap.Logger) *Session {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	id := uuid.NewString()
	return &Session{
		id:         id,
		identity:   who,
		roomRef:    roomRef,
		transport:  t,
		coord:      coord,
		relay:      relay,
		cfg:        cfg,
		limiter:    rate.NewLimiter(limit, max(cfg.Burst, 1)),
		logger:     logger.With(zap.String("session_id", id), zap.String("user", who.ID.String()), zap.String("remote", t.Remote())),
		state:      domain.StateConnecting,
		outbox:     make(chan domain.Event, max(cfg.OutboxSize, 1)),
		writerDone: make(chan struct{}),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state domain.SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Deliver enqueues event without blocking. It fails once the session is
// closed. A full outbox means the client fell behind: the session is stopped
// so that it reconnects and resyncs from history instead of missing events.
func (s *Session) Deliver(event domain.Event) bool {
	s.mu.Lock()
	if s.state == domain.StateClosed {
		s.mu.Unlock()
		return false
	}
	select {
	case s.outbox <- event:
		s.mu.Unlock()
		return true
	default:
	}
	s.mu.Unlock()

	s.logger.Warn("outbox full, closing slow consumer", zap.String("type", string(event.Type)))
	go s.stop(CloseTryAgainLater, "slow consumer")
	return false
}

// Run authorizes the connection, then serves it until the client leaves, the
// transport fails or the session is stopped.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.setState(domain.StateAuthorizing)
	if err := s.authorize(ctx); err != nil {
		return s.reject(err)
	}
	s.setState(domain.StateJoined)

	go s.writeLoop()
	s.sendHistory(ctx)
	s.readLoop(ctx)
	s.close()
	return nil
}

func (s *Session) authorize(ctx context.Context) error {
	if !s.identity.IsAuthenticated() {
		return fmt.Errorf("%w: authentication required", domain.ErrUnauthorized)
	}
	id, err := s.coord.ResolveRoom(ctx, s.roomRef)
	if err != nil {
		return err
	}
	s.room = id
	s.logger = s.logger.With(zap.String("room_id", id.String()))

	_, count, err := s.coord.Join(ctx, id, s.identity, s)
	if err != nil {
		return err
	}
	s.logger.Info("session joined", zap.Int("online_count", count))
	return nil
}

// reject sends a fatal error frame and closes without ever joining.
func (s *Session) reject(err error) error {
	s.logger.Info("session rejected", zap.String("room", s.roomRef), zap.Error(err))

	if data, merr := json.Marshal(domain.NewErrorEvent(err, true)); merr == nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
		if werr := s.transport.WriteFrame(ctx, data); werr != nil {
			s.logger.Debug("failed to write rejection", zap.Error(werr))
		}
		cancel()
	}

	s.mu.Lock()
	s.state = domain.StateClosed
	close(s.outbox)
	s.mu.Unlock()
	close(s.writerDone)

	s.stop(ClosePolicyViolation, domain.CodeOf(err))
	return err
}

func (s *Session) sendHistory(ctx context.Context) {
	messages, err := s.coord.Recent(ctx, s.room, s.identity.ID, time.Time{}, s.cfg.HistorySize)
	if err != nil {
		s.logger.Warn("failed to load history", zap.Error(err))
		return
	}
	s.enqueue(domain.NewHistoryEvent(s.room, messages))
}

func (s *Session) readLoop(ctx context.Context) {
	for {
		data, err := s.transport.ReadFrame(ctx)
		if errors.Is(err, domain.ErrInvalidRequest) {
			s.fail(err)
			continue
		}
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Debug("transport closed", zap.Error(err))
			}
			return
		}
		if !s.limiter.Allow() {
			s.enqueue(domain.NewErrorEvent(domain.ErrRateLimited, false))
			continue
		}
		req, err := domain.ParseRequest(data)
		if err != nil {
			s.fail(err)
			continue
		}
		s.coord.Touch(s.room, s.identity.ID)
		if leave := s.dispatch(ctx, req); leave {
			return
		}
	}
}

func (s *Session) dispatch(ctx context.Context, req domain.Request) bool {
	switch req.Type {
	case domain.RequestLeave:
		return true
	case domain.RequestPing:
		s.enqueue(domain.NewPongEvent())
	case domain.RequestMessage:
		_, err := s.coord.PostMessage(ctx, s.room, s.identity, PostParams{
			Content:  req.Message,
			Kind:     req.Kind,
			ReplyTo:  req.ReplyTo,
			ImageURL: req.ImageURL,
			FileURL:  req.FileURL,
		})
		if err != nil {
			s.fail(err)
		}
	default:
		if err := s.relay.Route(ctx, s.room, s.identity, req); err != nil {
			s.fail(err)
		}
	}
	return false
}

// fail reports a non-fatal error to the client.
func (s *Session) fail(err error) {
	if kind := domain.KindOf(err); kind == domain.KindInternal || kind == domain.KindTransient {
		s.logger.Warn("frame failed", zap.Error(err))
	} else {
		s.logger.Debug("frame rejected", zap.Error(err))
	}
	s.enqueue(domain.NewErrorEvent(err, false))
}

func (s *Session) enqueue(event domain.Event) {
	if !s.Deliver(event) {
		s.logger.Debug("event not delivered", zap.String("type", string(event.Type)))
	}
}

func (s *Session) writeLoop() {
	defer close(s.writerDone)
	for event := range s.outbox {
		data, err := json.Marshal(event)
		if err != nil {
			s.logger.Error("failed to encode event", zap.String("type", string(event.Type)), zap.Error(err))
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
		err = s.transport.WriteFrame(ctx, data)
		cancel()
		if err != nil {
			s.logger.Debug("failed to write event", zap.Error(err))
			s.stop(CloseGoingAway, "write failed")
			return
		}
		if event.Terminal() {
			s.stop(CloseNormal, string(event.Type))
			return
		}
	}
}

// close leaves the room with a bounded deadline, then stops delivery and the
// transport.
func (s *Session) close() {
	s.setState(domain.StateClosing)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CloseTimeout)
	defer cancel()
	count, err := s.coord.Leave(ctx, s.room, s.identity, s.id)
	if err != nil {
		s.logger.Warn("failed to leave room", zap.Error(err))
	}
	s.relay.MemberLeft(ctx, s.room, s.identity.ID)

	s.mu.Lock()
	s.state = domain.StateClosed
	close(s.outbox)
	s.mu.Unlock()

	select {
	case <-s.writerDone:
	case <-ctx.Done():
		s.logger.Warn("writer did not finish before close timeout")
	}
	s.stop(CloseNormal, "")
	s.logger.Info("session closed", zap.Int("online_count", count))
}

// stop cancels the session and closes the transport, which unblocks the reader.
func (s *Session) stop(code int, reason string) {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if err := s.transport.Close(code, reason); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Debug("failed to close transport", zap.Error(err))
		}
	})
}
