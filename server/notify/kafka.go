package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ponyo877/huddle/server/domain"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// InvitationNotice is the record published for every new invitation.
type InvitationNotice struct {
	InvitationID string    `json:"invitation_id"`
	RoomID       string    `json:"room_id"`
	RoomName     string    `json:"room_name"`
	Inviter      string    `json:"inviter"`
	Invitee      string    `json:"invitee"`
	Token        string    `json:"token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type BreakerConfig struct {
	MaxFailures uint32
	Timeout     time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaNotifier publishes invitation notices behind a circuit breaker so a
// broker outage fails fast instead of stalling invitations.
type KafkaNotifier struct {
	writer  messageWriter
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewKafkaNotifier(brokers []string, topic string, cfg BreakerConfig, logger *zap.Logger) *KafkaNotifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		Async:        false,
	}
	return newKafkaNotifier(w, cfg, logger)
}

func newKafkaNotifier(w messageWriter, cfg BreakerConfig, logger *zap.Logger) *KafkaNotifier {
	st := gobreaker.Settings{
		Name:        "invitation-notifier",
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= max(cfg.MaxFailures, 1)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &KafkaNotifier{
		writer:  w,
		breaker: gobreaker.NewCircuitBreaker(st),
		logger:  logger,
	}
}

func (n *KafkaNotifier) SendInvitationNotice(ctx context.Context, inv domain.Invitation, room domain.Room) error {
	b, err := json.Marshal(InvitationNotice{
		InvitationID: inv.ID,
		RoomID:       room.ID.String(),
		RoomName:     room.Name,
		Inviter:      inv.Inviter.String(),
		Invitee:      inv.Invitee.String(),
		Token:        inv.Token,
		ExpiresAt:    inv.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode invitation notice: %w", err)
	}
	msg := kafkago.Message{
		Key:   []byte(inv.ID),
		Value: b,
		Time:  time.Now(),
	}
	_, err = n.breaker.Execute(func() (interface{}, error) {
		return nil, n.writer.WriteMessages(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to publish invitation notice: %w", err)
	}
	return nil
}

func (n *KafkaNotifier) State() gobreaker.State {
	return n.breaker.State()
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
