package adaptor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	pb "github.com/ponyo877/huddle/grpc"
	"github.com/ponyo877/huddle/server/auth"
	"github.com/ponyo877/huddle/server/domain"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type Adaptor struct {
	sessions SessionServer
	auth     Authenticator
	logger   *zap.Logger
	pb.UnimplementedRoomServiceServer
}

func NewAdaptor(sessions SessionServer, authn Authenticator, logger *zap.Logger) *Adaptor {
	return &Adaptor{sessions: sessions, auth: authn, logger: logger}
}

// Connect serves one room connection. Authentication failures are not
// returned here; the session rejects the anonymous identity with an error frame.
func (a *Adaptor) Connect(stream pb.RoomService_ConnectServer) error {
	ctx := stream.Context()

	remote := "unknown"
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		remote = p.Addr.String()
	}
	md, _ := metadata.FromIncomingContext(ctx)
	roomRef := firstValue(md, pb.RoomKey)
	who := a.identify(ctx, firstValue(md, pb.AuthorizationKey), remote)

	t := newStreamTransport(stream, remote)
	defer t.release()
	if err := a.sessions.Serve(ctx, t, who, roomRef); err != nil {
		return status.Error(grpcCode(err), err.Error())
	}
	return nil
}

func (a *Adaptor) identify(ctx context.Context, header, remote string) domain.Identity {
	if header == "" {
		return domain.Anonymous()
	}
	token, err := auth.ParseBearerToken(header)
	if err != nil {
		a.logger.Info("malformed authorization metadata", zap.String("remote", remote), zap.Error(err))
		return domain.Anonymous()
	}
	return authenticate(ctx, a.auth, a.logger, token, remote)
}

func firstValue(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

func grpcCode(err error) codes.Code {
	switch domain.KindOf(err) {
	case domain.KindUnauthorized:
		return codes.PermissionDenied
	case domain.KindNotFound:
		return codes.NotFound
	case domain.KindConflict:
		return codes.AlreadyExists
	case domain.KindExpired:
		return codes.FailedPrecondition
	case domain.KindInvalid:
		return codes.InvalidArgument
	case domain.KindTransient:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

type received struct {
	data []byte
	err  error
}

// streamTransport adapts a server stream to usecase.Transport. Recv runs on
// its own goroutine so that ReadFrame can honor cancellation.
type streamTransport struct {
	stream grpc.BidiStreamingServer[structpb.Struct, structpb.Struct]
	remote string

	incoming  chan received
	done      chan struct{}
	closeOnce sync.Once
	startOnce sync.Once
	sendMu    sync.Mutex
}

func newStreamTransport(stream grpc.BidiStreamingServer[structpb.Struct, structpb.Struct], remote string) *streamTransport {
	return &streamTransport{
		stream:   stream,
		remote:   remote,
		incoming: make(chan received),
		done:     make(chan struct{}),
	}
}

func (t *streamTransport) recvLoop() {
	for {
		frame, err := t.stream.Recv()
		if err != nil {
			select {
			case t.incoming <- received{err: err}:
			case <-t.done:
			}
			return
		}
		r := received{}
		r.data, r.err = pb.DecodeFrame(frame)
		if r.err != nil {
			r.err = fmt.Errorf("%w: undecodable frame: %v", domain.ErrInvalidRequest, r.err)
		}
		select {
		case t.incoming <- r:
		case <-t.done:
			return
		}
	}
}

func (t *streamTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	t.startOnce.Do(func() { go t.recvLoop() })
	select {
	case r := <-t.incoming:
		switch {
		case r.err == nil:
			return r.data, nil
		case isStreamEnd(r.err):
			return nil, io.EOF
		default:
			return nil, r.err
		}
	case <-t.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func isStreamEnd(err error) bool {
	return errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled
}

func (t *streamTransport) WriteFrame(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-t.done:
		return io.ErrClosedPipe
	default:
	}
	frame, err := pb.EncodeFrame(data)
	if err != nil {
		return err
	}
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	return t.stream.Send(frame)
}

// Close records the close code in the trailer. The stream itself ends when
// the handler returns.
func (t *streamTransport) Close(code int, reason string) error {
	t.closeOnce.Do(func() {
		t.stream.SetTrailer(metadata.Pairs(
			pb.CloseCodeKey, strconv.Itoa(code),
			pb.CloseReasonKey, reason,
		))
		close(t.done)
	})
	return nil
}

func (t *streamTransport) release() {
	t.closeOnce.Do(func() { close(t.done) })
}

func (t *streamTransport) Remote() string {
	return t.remote
}
