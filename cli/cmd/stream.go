/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	pb "github.com/ponyo877/huddle/grpc"
	"github.com/ponyo877/huddle/server/domain"
	"google.golang.org/grpc/metadata"
)

func openRoom(ctx context.Context, room string) (pb.RoomService_ConnectClient, error) {
	md := metadata.Pairs(pb.RoomKey, room, pb.AuthorizationKey, "Bearer "+token)
	stream, err := roomClient.Connect(metadata.NewOutgoingContext(ctx, md))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to room %s: %w", room, err)
	}
	return stream, nil
}

func sendRequest(stream pb.RoomService_ConnectClient, req map[string]interface{}) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	frame, err := pb.EncodeFrame(data)
	if err != nil {
		return err
	}
	return stream.Send(frame)
}

// recvEvent returns io.EOF once the server has ended the stream.
func recvEvent(stream pb.RoomService_ConnectClient) (domain.Event, error) {
	frame, err := stream.Recv()
	if err != nil {
		return domain.Event{}, err
	}
	data, err := pb.DecodeFrame(frame)
	if err != nil {
		return domain.Event{}, err
	}
	var event domain.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	return event, nil
}

func formatMessage(m domain.Message) string {
	name := m.SenderName
	if name == "" {
		name = m.Sender.String()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s", m.CreatedAt.Local().Format("01/02 15:04"), name, m.Content)
	if m.ImageURL != "" {
		fmt.Fprintf(&b, " [image %s]", m.ImageURL)
	}
	if m.FileURL != "" {
		fmt.Fprintf(&b, " [file %s]", m.FileURL)
	}
	if m.ReplyTo != "" {
		fmt.Fprintf(&b, " (reply to %s)", m.ReplyTo)
	}
	if m.Edited {
		b.WriteString(" (edited)")
	}
	return b.String()
}

// formatEvent renders one server frame for the terminal. It returns "" for
// frames that are not worth a line.
func formatEvent(e domain.Event) string {
	count := ""
	if e.OnlineCount != nil {
		count = fmt.Sprintf(" (%d online)", *e.OnlineCount)
	}
	switch e.Type {
	case domain.EventChatMessage:
		return formatMessage(domain.Message{
			ID:         e.MessageID,
			Sender:     e.Sender,
			SenderName: e.DisplayName,
			Content:    e.Message,
			ReplyTo:    e.ReplyTo,
			ImageURL:   e.ImageURL,
			FileURL:    e.FileURL,
			CreatedAt:  e.Timestamp,
		}) + "  #" + string(e.MessageID)
	case domain.EventMessageEdited:
		return fmt.Sprintf("* %s edited #%s: %s", e.DisplayName, e.MessageID, e.Message)
	case domain.EventHistory:
		lines := make([]string, 0, len(e.Messages))
		for _, m := range e.Messages {
			lines = append(lines, formatMessage(m)+"  #"+string(m.ID))
		}
		return strings.Join(lines, "\n")
	case domain.EventUserJoined:
		return fmt.Sprintf("* %s joined%s", e.DisplayName, count)
	case domain.EventUserLeft:
		return fmt.Sprintf("* %s left%s", e.DisplayName, count)
	case domain.EventTyping:
		if e.IsTyping != nil && !*e.IsTyping {
			return ""
		}
		return fmt.Sprintf("* %s is typing...", e.DisplayName)
	case domain.EventReadReceipt:
		return fmt.Sprintf("* %s read #%s", e.DisplayName, e.MessageID)
	case domain.EventCallOffer:
		return fmt.Sprintf("* %s call offer from %s: %s", e.CallType, e.CallerName, e.Offer)
	case domain.EventCallAnswer:
		return fmt.Sprintf("* call answer from %s: %s", e.DisplayName, e.Answer)
	case domain.EventICECandidate:
		return fmt.Sprintf("* ice candidate from %s: %s", e.DisplayName, e.Candidate)
	case domain.EventCallEnd:
		return fmt.Sprintf("* %s hung up", e.DisplayName)
	case domain.EventRoomClosed:
		return "* the room was closed"
	case domain.EventSessionEnded:
		return "* session ended: " + e.Message
	case domain.EventPong:
		return "* pong"
	case domain.EventError:
		return fmt.Sprintf("! %s (%s)", e.Error, e.Code)
	default:
		return ""
	}
}

func printEvents(w io.Writer, stream pb.RoomService_ConnectClient) error {
	for {
		event, err := recvEvent(stream)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if line := formatEvent(event); line != "" {
			fmt.Fprintln(w, line)
		}
	}
}
