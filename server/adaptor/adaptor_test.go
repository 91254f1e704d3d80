package adaptor_test

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net"
	"testing"
	"time"

	pb "github.com/ponyo877/huddle/grpc"
	"github.com/ponyo877/huddle/server/adaptor"
	"github.com/ponyo877/huddle/server/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func newGRPCClient(t *testing.T, s *testServer) pb.RoomServiceClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	pb.RegisterRoomServiceServer(server, adaptor.NewAdaptor(s.manager, s.authn, zap.NewNop()))
	go server.Serve(lis)
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return pb.NewRoomServiceClient(conn)
}

func connect(t *testing.T, ctx context.Context, client pb.RoomServiceClient, token, room string) pb.RoomService_ConnectClient {
	t.Helper()
	md := metadata.Pairs(pb.RoomKey, room)
	if token != "" {
		md.Append(pb.AuthorizationKey, "Bearer "+token)
	}
	stream, err := client.Connect(metadata.NewOutgoingContext(ctx, md))
	require.NoError(t, err)
	return stream
}

func recvEvent(t *testing.T, stream pb.RoomService_ConnectClient) domain.Event {
	t.Helper()
	frame, err := stream.Recv()
	require.NoError(t, err)
	data, err := pb.DecodeFrame(frame)
	require.NoError(t, err)
	var event domain.Event
	require.NoError(t, json.Unmarshal(data, &event))
	return event
}

func sendFrame(t *testing.T, stream pb.RoomService_ConnectClient, payload map[string]interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	frame, err := pb.EncodeFrame(data)
	require.NoError(t, err)
	require.NoError(t, stream.Send(frame))
}

func TestConnectChat(t *testing.T) {
	s := newTestServer(t)
	client := newGRPCClient(t, s)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Equal(t, 201, s.do(t, alice, "POST", "/api/v1/rooms", map[string]string{"name": "general"}, nil))

	a := connect(t, ctx, client, s.token(t, alice), "general")
	assert.Equal(t, domain.EventUserJoined, recvEvent(t, a).Type)
	assert.Equal(t, domain.EventHistory, recvEvent(t, a).Type)

	b := connect(t, ctx, client, s.token(t, bob), "general")
	assert.Equal(t, domain.EventUserJoined, recvEvent(t, b).Type)
	assert.Equal(t, domain.EventHistory, recvEvent(t, b).Type)

	joined := recvEvent(t, a)
	assert.Equal(t, domain.EventUserJoined, joined.Type)
	assert.Equal(t, bob.ID, joined.Sender)
	require.NotNil(t, joined.OnlineCount)
	assert.Equal(t, 2, *joined.OnlineCount)

	sendFrame(t, b, map[string]interface{}{"type": "message", "message": "hi alice"})
	for _, stream := range []pb.RoomService_ConnectClient{a, b} {
		event := recvEvent(t, stream)
		assert.Equal(t, domain.EventChatMessage, event.Type)
		assert.Equal(t, "hi alice", event.Message)
		assert.Equal(t, "Bob", event.DisplayName)
	}

	sendFrame(t, a, map[string]interface{}{"type": "call_offer", "receiver_id": "bob@example.com", "offer": map[string]string{"sdp": "v=0"}})
	offer := recvEvent(t, b)
	assert.Equal(t, domain.EventCallOffer, offer.Type)
	assert.Equal(t, alice.ID, offer.CallerID)

	sendFrame(t, b, map[string]interface{}{"type": "leave"})
	_, err := b.Recv()
	for err == nil {
		_, err = b.Recv()
	}
	assert.ErrorIs(t, err, io.EOF)

	left := recvEvent(t, a)
	assert.Equal(t, domain.EventUserLeft, left.Type)
	assert.Equal(t, bob.ID, left.Sender)
}

func TestConnectRejectsAnonymous(t *testing.T) {
	s := newTestServer(t)
	client := newGRPCClient(t, s)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Equal(t, 201, s.do(t, alice, "POST", "/api/v1/rooms", map[string]string{"name": "general"}, nil))

	for _, token := range []string{"", "forged"} {
		stream := connect(t, ctx, client, token, "general")
		event := recvEvent(t, stream)
		assert.Equal(t, domain.EventError, event.Type)
		assert.True(t, event.Fatal)
		assert.Equal(t, "unauthorized", event.Code)

		_, err := stream.Recv()
		assert.Equal(t, codes.PermissionDenied, status.Code(err))
	}
}

func TestConnectUnknownRoom(t *testing.T) {
	s := newTestServer(t)
	client := newGRPCClient(t, s)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream := connect(t, ctx, client, s.token(t, alice), "nowhere")
	event := recvEvent(t, stream)
	assert.Equal(t, "room_not_found", event.Code)
	_, err := stream.Recv()
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestConnectReportsUndecodableFrame(t *testing.T) {
	s := newTestServer(t)
	client := newGRPCClient(t, s)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Equal(t, 201, s.do(t, alice, "POST", "/api/v1/rooms", map[string]string{"name": "general"}, nil))

	stream := connect(t, ctx, client, s.token(t, alice), "general")
	assert.Equal(t, domain.EventUserJoined, recvEvent(t, stream).Type)
	assert.Equal(t, domain.EventHistory, recvEvent(t, stream).Type)

	// NaN has no JSON form
	bad := &structpb.Struct{Fields: map[string]*structpb.Value{
		"type":  structpb.NewStringValue("ping"),
		"value": structpb.NewNumberValue(math.NaN()),
	}}
	require.NoError(t, stream.Send(bad))
	event := recvEvent(t, stream)
	assert.Equal(t, domain.EventError, event.Type)
	assert.Equal(t, "invalid_request", event.Code)
	assert.False(t, event.Fatal)

	// the stream is still usable
	sendFrame(t, stream, map[string]interface{}{"type": "ping"})
	assert.Equal(t, domain.EventPong, recvEvent(t, stream).Type)
}
