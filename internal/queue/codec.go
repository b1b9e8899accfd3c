package queue

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Message kinds carried in the envelope and as the SQS "kind" attribute.
const (
	KindFetchStep = "fetch_step"
	KindMailTask  = "mail_task"
)

const encodingZstd = "zstd"

// envelope wraps every queue payload. Payloads at or above the codec
// threshold travel zstd-compressed in Data; smaller ones inline in Payload.
type envelope struct {
	Kind     string          `json:"kind"`
	Encoding string          `json:"encoding,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Data     []byte          `json:"data,omitempty"`
}

// Codec encodes queue payloads. It is safe for concurrent use.
type Codec struct {
	threshold int
	encoder   *zstd.Encoder
	decoders  sync.Pool
}

// NewCodec returns a Codec compressing payloads of at least threshold bytes.
// A threshold <= 0 disables compression.
func NewCodec(threshold int) *Codec {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(fmt.Sprintf("failed to create zstd encoder: %v", err))
	}
	return &Codec{
		threshold: threshold,
		encoder:   enc,
		decoders: sync.Pool{
			New: func() any {
				d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
				if err != nil {
					panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
				}
				return d
			},
		},
	}
}

// Encode marshals v into an envelope of the given kind.
func (c *Codec) Encode(kind string, v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("queue: failed to marshal %s: %w", kind, err)
	}
	env := envelope{Kind: kind}
	if c.threshold > 0 && len(raw) >= c.threshold {
		env.Encoding = encodingZstd
		env.Data = c.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2))
	} else {
		env.Payload = raw
	}
	return json.Marshal(env)
}

// Decode unmarshals an envelope of the expected kind into v.
func (c *Codec) Decode(b []byte, kind string, v any) error {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return fmt.Errorf("queue: malformed envelope: %w", err)
	}
	if env.Kind != kind {
		return fmt.Errorf("queue: expected %s message, got %q", kind, env.Kind)
	}

	raw := []byte(env.Payload)
	switch env.Encoding {
	case "":
	case encodingZstd:
		d := c.decoders.Get().(*zstd.Decoder)
		defer c.decoders.Put(d)
		out, err := d.DecodeAll(env.Data, nil)
		if err != nil {
			return fmt.Errorf("queue: zstd decompression failed: %w", err)
		}
		raw = out
	default:
		return fmt.Errorf("queue: unknown encoding %q", env.Encoding)
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("queue: failed to unmarshal %s: %w", kind, err)
	}
	return nil
}
