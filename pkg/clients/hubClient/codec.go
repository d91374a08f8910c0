package hubClient

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// rawFrame carries already-encoded protobuf bytes through gRPC untouched
type rawFrame struct {
	data []byte
}

// rawCodec passes frames through as-is. It registers under the "proto" name so the
// content type on the wire stays application/grpc+proto.
type rawCodec struct{}

var _ encoding.Codec = rawCodec{}

func (rawCodec) Marshal(v interface{}) ([]byte, error) {
	f, ok := v.(*rawFrame)
	if !ok {
		return nil, fmt.Errorf("raw codec cannot marshal %T", v)
	}
	return f.data, nil
}

func (rawCodec) Unmarshal(data []byte, v interface{}) error {
	f, ok := v.(*rawFrame)
	if !ok {
		return fmt.Errorf("raw codec cannot unmarshal into %T", v)
	}
	f.data = append([]byte(nil), data...)
	return nil
}

func (rawCodec) Name() string {
	return "proto"
}
