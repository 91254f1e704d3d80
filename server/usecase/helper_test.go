package usecase_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ponyo877/huddle/server/broadcast"
	"github.com/ponyo877/huddle/server/domain"
	"github.com/ponyo877/huddle/server/repository"
	"github.com/ponyo877/huddle/server/usecase"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	alice = domain.NewIdentity("alice@example.com", "Alice")
	bob   = domain.NewIdentity("bob@example.com", "Bob")
	carol = domain.NewIdentity("carol@example.com", "Carol")
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeNotifier struct {
	mu     sync.Mutex
	err    error
	notice []domain.Invitation
}

func (n *fakeNotifier) SendInvitationNotice(_ context.Context, inv domain.Invitation, _ domain.Room) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.notice = append(n.notice, inv)
	return nil
}

type testEnv struct {
	coord    *usecase.Coordinator
	relay    *usecase.Relay
	calls    *usecase.CallLog
	manager  *usecase.SessionManager
	repo     *repository.Repository
	presence *domain.PresenceRegistry
	hub      *recordingHub
	notifier *fakeNotifier
	clock    *fakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := repository.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	logger := zap.NewNop()
	repo := repository.NewRepository(db)
	presence := domain.NewPresenceRegistry()
	hub := &recordingHub{Hub: broadcast.NewHub(logger), subs: make(map[string]domain.Subscriber)}
	notifier := &fakeNotifier{}
	coord := usecase.NewCoordinator(repo, repo, repo, presence, hub, notifier, logger, usecase.WithClock(clock.Now))
	calls := usecase.NewCallLog(repo, logger, usecase.WithCallClock(clock.Now))
	relay := usecase.NewRelay(presence, hub, logger, calls)

	cfg := usecase.DefaultSessionConfig()
	cfg.CloseTimeout = time.Second
	cfg.WriteTimeout = time.Second
	manager := usecase.NewSessionManager(coord, relay, cfg, logger)

	return &testEnv{
		coord:    coord,
		relay:    relay,
		calls:    calls,
		manager:  manager,
		repo:     repo,
		presence: presence,
		hub:      hub,
		notifier: notifier,
		clock:    clock,
	}
}

func (e *testEnv) createRoom(t *testing.T, creator domain.Identity, name, roomType string, capacity int) domain.Room {
	t.Helper()
	room, err := e.coord.CreateRoom(context.Background(), creator, usecase.CreateRoomParams{Name: name, Type: roomType, Capacity: capacity})
	require.NoError(t, err)
	return room
}

type fakeSubscriber struct {
	id     string
	outbox chan domain.Event
}

func newFakeSubscriber(id string) *fakeSubscriber {
	return &fakeSubscriber{id: id, outbox: make(chan domain.Event, 64)}
}

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) Deliver(e domain.Event) bool {
	select {
	case f.outbox <- e:
		return true
	default:
		return false
	}
}

// next returns the next event of type typ, skipping others.
func (f *fakeSubscriber) next(t *testing.T, typ domain.EventType) domain.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-f.outbox:
			if e.Type == typ {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
			return domain.Event{}
		}
	}
}

// recordingHub remembers every subscriber so tests can reach sessions after
// they left their groups.
type recordingHub struct {
	*broadcast.Hub

	mu   sync.Mutex
	subs map[string]domain.Subscriber
}

func (h *recordingHub) Subscribe(group domain.GroupID, sub domain.Subscriber) error {
	h.mu.Lock()
	h.subs[sub.ID()] = sub
	h.mu.Unlock()
	return h.Hub.Subscribe(group, sub)
}

func (h *recordingHub) subscribers() []domain.Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := make([]domain.Subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	return subs
}

var errTransportClosed = errors.New("transport closed")

type fakeTransport struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once

	mu        sync.Mutex
	gate      chan struct{}
	closeCode int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case b := <-f.in:
		return b, nil
	case <-f.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// stall blocks writes, ignoring write deadlines, until the transport closes.
func (f *fakeTransport) stall() {
	f.mu.Lock()
	f.gate = make(chan struct{})
	f.mu.Unlock()
}

func (f *fakeTransport) WriteFrame(ctx context.Context, data []byte) error {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-f.closed:
			return errTransportClosed
		}
	}
	select {
	case <-f.closed:
		return errTransportClosed
	default:
	}
	select {
	case f.out <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeTransport) Close(code int, _ string) error {
	f.once.Do(func() {
		f.mu.Lock()
		f.closeCode = code
		f.mu.Unlock()
		close(f.closed)
	})
	return nil
}

func (f *fakeTransport) code() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCode
}

func (f *fakeTransport) Remote() string { return "test" }

func (f *fakeTransport) send(t *testing.T, frame string) {
	t.Helper()
	select {
	case f.in <- []byte(frame):
	case <-time.After(2 * time.Second):
		t.Fatal("timed out sending frame")
	}
}

func (f *fakeTransport) next(t *testing.T, typ domain.EventType) domain.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case b := <-f.out:
			var e domain.Event
			require.NoError(t, json.Unmarshal(b, &e))
			if e.Type == typ {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
			return domain.Event{}
		}
	}
}

// pending reports whether a written frame is waiting to be read.
func (f *fakeTransport) pending() bool {
	return len(f.out) > 0
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}
