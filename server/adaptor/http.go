package adaptor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"
	"github.com/ponyo877/huddle/server/auth"
	"github.com/ponyo877/huddle/server/domain"
	"github.com/ponyo877/huddle/server/usecase"
	"go.uber.org/zap"
)

const identityKey = "identity"

// Server exposes the websocket transport and the REST API on one fiber app.
type Server struct {
	uc       Usecase
	sessions SessionServer
	calls    CallHistory
	auth     Authenticator
	uploader usecase.Uploader
	logger   *zap.Logger
}

// NewServer builds the HTTP surface. uploader may be nil, in which case
// attachment uploads answer 501.
func NewServer(uc Usecase, sessions SessionServer, calls CallHistory, authn Authenticator, uploader usecase.Uploader, logger *zap.Logger) *Server {
	return &Server{uc: uc, sessions: sessions, calls: calls, auth: authn, uploader: uploader, logger: logger}
}

func (s *Server) App(bodyLimit int) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "huddle",
		BodyLimit:             bodyLimit,
		UnescapePath:          true,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	app.Use(recover.New())
	app.Use(s.logRequest)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	ws := app.Group("/ws", s.upgradeWS)
	ws.Get("/rooms/:room", websocket.New(s.serveWS))

	api := app.Group("/api/v1", s.requireAuth)
	api.Get("/rooms", s.listRooms)
	api.Post("/rooms", s.createRoom)
	api.Get("/rooms/:room", s.getRoom)
	api.Patch("/rooms/:room", s.renameRoom)
	api.Delete("/rooms/:room", s.deactivateRoom)
	api.Get("/rooms/:room/presence", s.presence)
	api.Get("/rooms/:room/messages", s.listMessages)
	api.Patch("/rooms/:room/messages/:id", s.editMessage)
	api.Delete("/rooms/:room/messages/:id", s.hideMessage)
	api.Post("/rooms/:room/participants", s.addParticipant)
	api.Delete("/rooms/:room/participants/:user", s.removeParticipant)
	api.Post("/rooms/:room/admins", s.promoteAdmin)
	api.Post("/rooms/:room/invitations", s.invite)
	api.Post("/rooms/:room/attachments", s.uploadAttachment)
	api.Post("/invitations/:token/accept", s.acceptInvitation)
	api.Post("/invitations/:token/decline", s.declineInvitation)
	api.Get("/calls", s.listCalls)
	api.Post("/logout", s.logout)

	return app
}

func (s *Server) logRequest(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.logger.Debug("http request",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", c.Response().StatusCode()),
		zap.Duration("latency", time.Since(start)),
	)
	return err
}

func (s *Server) requireAuth(c *fiber.Ctx) error {
	token, err := auth.ParseBearerToken(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	}
	who, err := s.auth.Authenticate(c.UserContext(), token)
	if err != nil || !who.IsAuthenticated() {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
	}
	c.Locals(identityKey, who)
	return c.Next()
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := strings.ToLower(strings.ReplaceAll(utils.StatusMessage(fe.Code), " ", "_"))
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message, "code": code})
	}
	status := httpStatus(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error(), "code": domain.CodeOf(err)})
}

func httpStatus(err error) int {
	switch domain.KindOf(err) {
	case domain.KindUnauthorized:
		return fiber.StatusForbidden
	case domain.KindNotFound:
		return fiber.StatusNotFound
	case domain.KindConflict:
		return fiber.StatusConflict
	case domain.KindExpired:
		return fiber.StatusGone
	case domain.KindInvalid:
		return fiber.StatusBadRequest
	case domain.KindTransient:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// authenticate never fails; unknown callers become anonymous.
func authenticate(ctx context.Context, authn Authenticator, logger *zap.Logger, token, remote string) domain.Identity {
	if token == "" {
		return domain.Anonymous()
	}
	who, err := authn.Authenticate(ctx, token)
	if err != nil {
		logger.Info("authentication failed", zap.String("remote", remote), zap.Error(err))
		return domain.Anonymous()
	}
	return who
}

func identityOf(c *fiber.Ctx) domain.Identity {
	who, _ := c.Locals(identityKey).(domain.Identity)
	return who
}

func (s *Server) roomID(c *fiber.Ctx) (domain.RoomID, error) {
	return s.uc.ResolveRoom(c.UserContext(), c.Params("room"))
}

func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	return nil
}

func (s *Server) listRooms(c *fiber.Ctx) error {
	rooms, err := s.uc.ListRooms(c.UserContext(), identityOf(c).ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"rooms": rooms})
}

type createRoomBody struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Capacity    int    `json:"capacity"`
}

func (s *Server) createRoom(c *fiber.Ctx) error {
	var body createRoomBody
	if err := parseBody(c, &body); err != nil {
		return err
	}
	room, err := s.uc.CreateRoom(c.UserContext(), identityOf(c), usecase.CreateRoomParams{
		Name:        body.Name,
		Type:        body.Type,
		Description: body.Description,
		Capacity:    body.Capacity,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(room)
}

func (s *Server) getRoom(c *fiber.Ctx) error {
	id, err := s.roomID(c)
	if err != nil {
		return err
	}
	room, err := s.uc.GetRoom(c.UserContext(), id, identityOf(c).ID)
	if err != nil {
		return err
	}
	return c.JSON(room)
}

func (s *Server) renameRoom(c *fiber.Ctx) error {
	var body struct {
		Name string `json:"name"`
	}
	if err := parseBody(c, &body); err != nil {
		return err
	}
	id, err := s.roomID(c)
	if err != nil {
		return err
	}
	who := identityOf(c)
	if err := s.uc.RenameRoom(c.UserContext(), id, who, body.Name); err != nil {
		return err
	}
	room, err := s.uc.GetRoom(c.UserContext(), id, who.ID)
	if err != nil {
		return err
	}
	return c.JSON(room)
}

func (s *Server) deactivateRoom(c *fiber.Ctx) error {
	id, err := s.roomID(c)
	if err != nil {
		return err
	}
	if err := s.uc.DeactivateRoom(c.UserContext(), id, identityOf(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) presence(c *fiber.Ctx) error {
	id, err := s.roomID(c)
	if err != nil {
		return err
	}
	users, err := s.uc.OnlineUsers(c.UserContext(), id, identityOf(c).ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"room_id": id, "online_count": len(users), "users": users})
}

// parseTime reads an RFC 3339 time or unix nanoseconds. "0" is the zero
// cursor, the start of the log.
func parseTime(c *fiber.Ctx, key string) (time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return time.Time{}, nil
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		if n <= 0 {
			return time.Time{}, nil
		}
		return time.Unix(0, n).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be RFC 3339 or unix nanoseconds", domain.ErrInvalidRequest, key)
	}
	return t, nil
}

// listMessages serves three reads: q searches, since tails after a cursor,
// and otherwise the newest page before "before" is returned.
func (s *Server) listMessages(c *fiber.Ctx) error {
	id, err := s.roomID(c)
	if err != nil {
		return err
	}
	since, err := parseTime(c, "since")
	if err != nil {
		return err
	}
	before, err := parseTime(c, "before")
	if err != nil {
		return err
	}
	limit := c.QueryInt("limit", domain.DefaultPageSize)
	viewer := identityOf(c).ID

	var messages []domain.Message
	switch {
	case c.Query("q") != "":
		messages, err = s.uc.Search(c.UserContext(), id, viewer, c.Query("q"), limit)
	case c.Query("since") != "":
		messages, err = s.uc.Tail(c.UserContext(), id, viewer, since, limit)
	default:
		messages, err = s.uc.Recent(c.UserContext(), id, viewer, before, limit)
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"messages": messages})
}

func (s *Server) editMessage(c *fiber.Ctx) error {
	var body struct {
		Message string `json:"message"`
	}
	if err := parseBody(c, &body); err != nil {
		return err
	}
	id, err := s.roomID(c)
	if err != nil {
		return err
	}
	msg, err := s.uc.EditMessage(c.UserContext(), id, identityOf(c), domain.MessageID(c.Params("id")), body.Message)
	if err != nil {
		return err
	}
	return c.JSON(msg)
}

func (s *Server) hideMessage(c *fiber.Ctx) error {
	id, err := s.roomID(c)
	if err != nil {
		return err
	}
	if err := s.uc.HideMessage(c.UserContext(), id, identityOf(c).ID, domain.MessageID(c.Params("id"))); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type userBody struct {
	User string `json:"user"`
}

func (s *Server) addParticipant(c *fiber.Ctx) error {
	var body userBody
	if err := parseBody(c, &body); err != nil {
		return err
	}
	id, err := s.roomID(c)
	if err != nil {
		return err
	}
	if err := s.uc.AddParticipant(c.UserContext(), id, identityOf(c), domain.NewUserID(body.User)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) removeParticipant(c *fiber.Ctx) error {
	id, err := s.roomID(c)
	if err != nil {
		return err
	}
	if err := s.uc.RemoveParticipant(c.UserContext(), id, identityOf(c), domain.NewUserID(c.Params("user"))); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) promoteAdmin(c *fiber.Ctx) error {
	var body userBody
	if err := parseBody(c, &body); err != nil {
		return err
	}
	id, err := s.roomID(c)
	if err != nil {
		return err
	}
	if err := s.uc.PromoteAdmin(c.UserContext(), id, identityOf(c), domain.NewUserID(body.User)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) invite(c *fiber.Ctx) error {
	var body struct {
		Email string `json:"email"`
	}
	if err := parseBody(c, &body); err != nil {
		return err
	}
	id, err := s.roomID(c)
	if err != nil {
		return err
	}
	result, err := s.uc.InviteUser(c.UserContext(), id, identityOf(c), body.Email)
	if err != nil {
		return err
	}
	resp := fiber.Map{"invitation": result.Invitation, "notified": result.NotificationErr == nil}
	if result.NotificationErr != nil {
		resp["notification_error"] = result.NotificationErr.Error()
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (s *Server) acceptInvitation(c *fiber.Ctx) error {
	room, err := s.uc.AcceptInvitation(c.UserContext(), c.Params("token"), identityOf(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"room": room})
}

func (s *Server) declineInvitation(c *fiber.Ctx) error {
	if err := s.uc.DeclineInvitation(c.UserContext(), c.Params("token"), identityOf(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// uploadAttachment stores the multipart "file" field and returns its URL for
// use as image_url or file_url in a message frame.
func (s *Server) uploadAttachment(c *fiber.Ctx) error {
	if s.uploader == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "attachment storage is not configured")
	}
	id, err := s.roomID(c)
	if err != nil {
		return err
	}
	if _, err := s.uc.GetRoom(c.UserContext(), id, identityOf(c).ID); err != nil {
		return err
	}
	header, err := c.FormFile("file")
	if err != nil {
		return fmt.Errorf("%w: missing file: %v", domain.ErrInvalidRequest, err)
	}
	f, err := header.Open()
	if err != nil {
		return fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	contentType := header.Header.Get(fiber.HeaderContentType)
	if contentType == "" {
		contentType = fiber.MIMEOctetStream
	}
	key := fmt.Sprintf("rooms/%s/%s%s", id, uuid.NewString(), strings.ToLower(filepath.Ext(header.Filename)))
	url, err := s.uploader.Upload(c.UserContext(), key, contentType, f)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}
	kind := domain.KindFile
	if strings.HasPrefix(contentType, "image/") {
		kind = domain.KindImage
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"url":  url,
		"kind": kind,
		"size": header.Size,
	})
}

func (s *Server) listCalls(c *fiber.Ctx) error {
	calls, err := s.calls.History(c.UserContext(), identityOf(c).ID, c.QueryInt("limit", domain.DefaultPageSize))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"calls": calls})
}

func (s *Server) logout(c *fiber.Ctx) error {
	rooms := s.uc.UserLoggedOut(c.UserContext(), identityOf(c))
	return c.JSON(fiber.Map{"rooms": rooms})
}
