package pack

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	rerrors "github.com/nonibytes/edgerelay/edgerelay/errors"
	"github.com/nonibytes/edgerelay/edgerelay/record"
)

// Codec turns a message body into bytes. The packer measures exactly what
// the codec produces, so the transport must send these bytes unchanged.
type Codec interface {
	Name() string
	ContentType() string
	Marshal(chunks []record.DeviceChunk) ([]byte, error)
}

// JSONCodec writes compact JSON.
type JSONCodec struct{}

func (JSONCodec) Name() string        { return "json" }
func (JSONCodec) ContentType() string { return "application/json" }

func (JSONCodec) Marshal(chunks []record.DeviceChunk) ([]byte, error) {
	return json.Marshal(chunks)
}

// CBORCodec writes Core Deterministic CBOR, so the same chunks always
// measure the same.
type CBORCodec struct {
	mode cbor.EncMode
}

func NewCBORCodec() (*CBORCodec, error) {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor encoder: %w", err)
	}
	return &CBORCodec{mode: mode}, nil
}

func (*CBORCodec) Name() string        { return "cbor" }
func (*CBORCodec) ContentType() string { return "application/cbor" }

func (c *CBORCodec) Marshal(chunks []record.DeviceChunk) ([]byte, error) {
	return c.mode.Marshal(chunks)
}

// CodecByName resolves the codec names accepted in configuration.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "cbor":
		return NewCBORCodec()
	default:
		return nil, rerrors.ConfigError(fmt.Sprintf("unknown codec %q", name))
	}
}
