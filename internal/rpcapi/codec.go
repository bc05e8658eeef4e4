package rpcapi

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// jsonCodec lets hand-written Go structs travel over grpc-go's wire
// protocol without a protoc-generated protobuf runtime. It is registered
// under the name "proto" (grpc-go's default content-subtype), overriding
// the real protobuf codec the grpc package registers in its own init, so
// that a plain grpc.NewServer/grpc.NewClient pair uses it without any
// extra dial or call options.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("rpcapi: marshal %T: %w", v, err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("rpcapi: unmarshal into %T: %w", v, err)
	}
	return nil
}

func (jsonCodec) Name() string { return "proto" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
