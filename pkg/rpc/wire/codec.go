package wire

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName is registered as the grpc content-subtype; clients and
// servers both select it by setting grpc.CallContentSubtype(codecName)
// / grpc.ForceServerCodec(new(jsonCodec)).
const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal %T: %w", v, err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("wire: unmarshal into %T: %w", v, err)
	}
	return nil
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// Name is exported so pkg/rpc can reference the registered subtype
// without re-declaring the string constant.
const Name = codecName

// Codec returns the grpc encoding.Codec implementation, for servers
// that force it directly via grpc.ForceServerCodec instead of relying
// on content-subtype negotiation.
func Codec() encoding.Codec { return jsonCodec{} }
