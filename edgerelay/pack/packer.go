// Package pack splits device chunks into transport messages that stay
// under a byte limit.
package pack

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	rerrors "github.com/nonibytes/edgerelay/edgerelay/errors"
	"github.com/nonibytes/edgerelay/edgerelay/record"
)

// DefaultByteLimit is 256 KiB less a margin for transport framing.
const DefaultByteLimit = 256*1024 - 512

// OversizePolicy decides what happens to a single record that does not fit
// in a message on its own.
type OversizePolicy string

const (
	// OversizeSend emits the record alone in a message over the limit.
	OversizeSend OversizePolicy = "send"
	// OversizeDrop discards the record.
	OversizeDrop OversizePolicy = "drop"
)

// Message is one transport unit. Payload is the exact encoding of Chunks
// that was measured against the limit.
type Message struct {
	Chunks   []record.DeviceChunk
	Payload  []byte
	Records  int
	Oversize bool
}

// Result is the outcome of packing one cycle.
type Result struct {
	Messages []Message
	Dropped  int
}

type Options struct {
	ByteLimit int
	Codec     Codec
	Oversize  OversizePolicy
	Logger    *logrus.Logger
}

func DefaultOptions() Options {
	return Options{ByteLimit: DefaultByteLimit, Codec: JSONCodec{}, Oversize: OversizeSend}
}

type Packer struct {
	opts Options
}

func New(opts Options) (*Packer, error) {
	if opts.ByteLimit <= 0 {
		return nil, rerrors.ConfigError(fmt.Sprintf("byte limit must be positive, got %d", opts.ByteLimit))
	}
	if opts.Codec == nil {
		opts.Codec = JSONCodec{}
	}
	switch opts.Oversize {
	case "":
		opts.Oversize = OversizeSend
	case OversizeSend, OversizeDrop:
	default:
		return nil, rerrors.ConfigError(fmt.Sprintf("unknown oversize policy %q", opts.Oversize))
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Packer{opts: opts}, nil
}

func (p *Packer) Limit() int   { return p.opts.ByteLimit }
func (p *Packer) Codec() Codec { return p.opts.Codec }

// Pack fills messages greedily in input order. For each device the largest
// prefix of its remaining records that keeps the message strictly under
// the limit is found by binary search. A message is flushed once a device
// overflows it, so no message could have taken one more record.
func (p *Packer) Pack(chunks []record.DeviceChunk) (Result, error) {
	var (
		res     Result
		buf     []record.DeviceChunk
		payload []byte
	)
	flush := func() {
		if len(buf) == 0 {
			return
		}
		res.Messages = append(res.Messages, newMessage(buf, payload, false))
		buf, payload = nil, nil
	}

	for _, c := range chunks {
		if len(c.Records) == 0 || len(c.Schema) == 0 {
			continue
		}
		off := 0
		for off < len(c.Records) {
			k, enc, err := p.fit(buf, c, off)
			if err != nil {
				return Result{}, err
			}
			if k == 0 {
				if len(buf) > 0 {
					flush()
					continue
				}
				if err := p.oversize(&res, c.Slice(off, off+1)); err != nil {
					return Result{}, err
				}
				off++
				continue
			}

			buf = append(buf, c.Slice(off, off+k))
			payload = enc
			off += k
			if off < len(c.Records) || len(payload) >= p.opts.ByteLimit {
				flush()
			}
		}
	}
	flush()
	return res, nil
}

// fit returns the largest k in [1, remaining] such that buf plus the next k
// records of c encodes strictly under the limit, with that encoding. k is 0
// when not even one record fits.
func (p *Packer) fit(buf []record.DeviceChunk, c record.DeviceChunk, off int) (int, []byte, error) {
	low, high := 1, len(c.Records)-off
	best := 0
	var bestEnc []byte
	for low <= high {
		mid := (low + high) / 2
		enc, err := p.encode(append(buf[:len(buf):len(buf)], c.Slice(off, off+mid)))
		if err != nil {
			return 0, nil, err
		}
		if len(enc) < p.opts.ByteLimit {
			best, bestEnc = mid, enc
			low = mid + 1
		} else {
			high = mid - 1
		}
	}
	return best, bestEnc, nil
}

func (p *Packer) oversize(res *Result, single record.DeviceChunk) error {
	enc, err := p.encode([]record.DeviceChunk{single})
	if err != nil {
		return err
	}
	degenerate := rerrors.PackingDegenerate(single.DeviceID, len(enc), p.opts.ByteLimit)
	entry := p.opts.Logger.WithError(degenerate).WithFields(logrus.Fields{
		"device": single.DeviceID,
		"size":   humanize.Bytes(uint64(len(enc))),
		"limit":  humanize.Bytes(uint64(p.opts.ByteLimit)),
	})
	switch p.opts.Oversize {
	case OversizeDrop:
		entry.Error("dropping record larger than message limit")
		res.Dropped++
	default:
		entry.Warn("sending record larger than message limit")
		res.Messages = append(res.Messages, newMessage([]record.DeviceChunk{single}, enc, true))
	}
	return nil
}

func (p *Packer) encode(chunks []record.DeviceChunk) ([]byte, error) {
	b, err := p.opts.Codec.Marshal(chunks)
	if err != nil {
		return nil, rerrors.Wrap(rerrors.ErrEncode, "encode message with "+p.opts.Codec.Name(), err)
	}
	return b, nil
}

func newMessage(chunks []record.DeviceChunk, payload []byte, oversize bool) Message {
	n := 0
	for _, c := range chunks {
		n += len(c.Records)
	}
	return Message{Chunks: chunks, Payload: payload, Records: n, Oversize: oversize}
}
