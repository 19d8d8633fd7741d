package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is the content-subtype both client and server negotiate:
// requests ride as "application/grpc+json" instead of the default
// "application/grpc+proto".
const codecName = "json"

// jsonCodec implements google.golang.org/grpc/encoding.Codec by delegating
// straight to encoding/json, letting grpc carry this package's plain Go
// wire structs without a .proto contract.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
