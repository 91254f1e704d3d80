package grpc

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Metadata keys read by the server on Connect.
const (
	AuthorizationKey = "authorization"
	RoomKey          = "room"
	CloseCodeKey     = "close-code"
	CloseReasonKey   = "close-reason"
)

// EncodeFrame turns a JSON object into a stream frame.
func EncodeFrame(data []byte) (*structpb.Struct, error) {
	frame := &structpb.Struct{}
	if err := protojson.Unmarshal(data, frame); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return frame, nil
}

// DecodeFrame returns the JSON object held by a stream frame.
func DecodeFrame(frame *structpb.Struct) ([]byte, error) {
	data, err := protojson.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return data, nil
}
