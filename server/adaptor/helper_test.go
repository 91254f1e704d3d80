package adaptor_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/ponyo877/huddle/server/adaptor"
	"github.com/ponyo877/huddle/server/auth"
	"github.com/ponyo877/huddle/server/broadcast"
	"github.com/ponyo877/huddle/server/domain"
	"github.com/ponyo877/huddle/server/notify"
	"github.com/ponyo877/huddle/server/repository"
	"github.com/ponyo877/huddle/server/usecase"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeUploader struct {
	mu   sync.Mutex
	keys []string
	body []byte
}

func (u *fakeUploader) Upload(_ context.Context, key, _ string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.keys = append(u.keys, key)
	u.body = data
	return "https://cdn.example.com/" + key, nil
}

type testServer struct {
	app      *fiber.App
	repo     *repository.Repository
	coord    *usecase.Coordinator
	calls    *usecase.CallLog
	manager  *usecase.SessionManager
	authn    *auth.JWTAuthenticator
	uploader *fakeUploader
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := repository.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zap.NewNop()
	repo := repository.NewRepository(db)
	presence := domain.NewPresenceRegistry()
	hub := broadcast.NewHub(logger)
	coord := usecase.NewCoordinator(repo, repo, repo, presence, hub, notify.NewLogNotifier(logger), logger)
	calls := usecase.NewCallLog(repo, logger)
	relay := usecase.NewRelay(presence, hub, logger, calls)
	cfg := usecase.DefaultSessionConfig()
	cfg.CloseTimeout = time.Second
	cfg.WriteTimeout = time.Second
	manager := usecase.NewSessionManager(coord, relay, cfg, logger)
	authn := auth.NewJWTAuthenticator("test-secret", "huddle")
	uploader := &fakeUploader{}

	srv := adaptor.NewServer(coord, manager, calls, authn, uploader, logger)
	return &testServer{
		app:      srv.App(1 << 20),
		repo:     repo,
		coord:    coord,
		calls:    calls,
		manager:  manager,
		authn:    authn,
		uploader: uploader,
	}
}

func (s *testServer) token(t *testing.T, who domain.Identity) string {
	t.Helper()
	token, err := s.authn.Issue(who.Email, who.DisplayName, time.Hour)
	require.NoError(t, err)
	return token
}

// do sends a JSON request as who (anonymous when who has no email) and
// decodes the response body into out when out is non-nil.
func (s *testServer) do(t *testing.T, who domain.Identity, method, path string, body interface{}, out interface{}) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if who.IsAuthenticated() {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+s.token(t, who))
	}
	return s.send(t, req, out)
}

func (s *testServer) send(t *testing.T, req *http.Request, out interface{}) int {
	t.Helper()
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, out), string(data))
	}
	return resp.StatusCode
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
