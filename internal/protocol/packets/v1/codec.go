package packets

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/goodieshq/bitbridge/internal/protocol"
	"github.com/rs/zerolog/log"
)

var le = binary.LittleEndian

// Codec converts packets to and from the hub wire format. The zero value is
// ready to use; Stats counts the skip and truncate paths.
type Codec struct {
	Stats protocol.Stats
}

func NewCodec() *Codec {
	return &Codec{}
}

// DecodePayload walks raw payload bytes and returns the typed values. Unknown
// subtype tags are counted and skipped; zero tags are frame padding and are
// skipped silently.
func (c *Codec) DecodePayload(data []byte) ([]Value, error) {
	var values []Value

	for off := 0; off < len(data); {
		tag := protocol.SubType(data[off])
		off++

		switch {
		case tag == 0:
			continue

		case tag&protocol.SubTypeString != 0:
			n := bytes.IndexByte(data[off:], 0x00)
			if n < 0 {
				return nil, fmt.Errorf("string at offset %d: %w", off-1, protocol.ErrTruncatedValue)
			}
			values = append(values, String(string(data[off:off+n])))
			off += n + 1

		case tag&protocol.SubTypeInt != 0:
			if off+4 > len(data) {
				return nil, fmt.Errorf("int at offset %d: %w", off-1, protocol.ErrTruncatedValue)
			}
			values = append(values, Int(int32(le.Uint32(data[off:off+4]))))
			off += 4

		case tag&protocol.SubTypeFloat != 0:
			if off+4 > len(data) {
				return nil, fmt.Errorf("float at offset %d: %w", off-1, protocol.ErrTruncatedValue)
			}
			values = append(values, Float(math.Float32frombits(le.Uint32(data[off:off+4]))))
			off += 4

		default:
			c.Stats.AddSkippedSubtype()
			log.Warn().Uint8("subtype", uint8(tag)).Int("offset", off-1).Msg("Skipping unrecognized payload subtype")
		}
	}

	return values, nil
}

// EncodeValue packs a single value as tag followed by its bytes. The second
// result is false when the value cannot be represented on the wire.
func EncodeValue(v Value) ([]byte, bool) {
	switch v.Kind {
	case KindString:
		buf := make([]byte, 0, len(v.Str)+2)
		buf = append(buf, byte(protocol.SubTypeString))
		buf = append(buf, v.Str...)
		return append(buf, 0x00), true
	case KindInt:
		buf := make([]byte, 5)
		buf[0] = byte(protocol.SubTypeInt)
		le.PutUint32(buf[1:], uint32(v.Int))
		return buf, true
	case KindFloat:
		buf := make([]byte, 5)
		buf[0] = byte(protocol.SubTypeFloat)
		le.PutUint32(buf[1:], math.Float32bits(v.Float))
		return buf, true
	default:
		return nil, false
	}
}

// EncodePayload returns one chunk per encodable value, in order
func (c *Codec) EncodePayload(values []Value) [][]byte {
	chunks := make([][]byte, 0, len(values))
	for i, v := range values {
		buf, ok := EncodeValue(v)
		if !ok {
			c.Stats.AddUnsupportedValue()
			log.Warn().Int("index", i).Str("kind", v.Kind.String()).Msg("Unsupported payload value not encoded")
			continue
		}
		chunks = append(chunks, buf)
	}
	return chunks
}

// FormatFrame produces the fixed-width wire frame: escaped header and payload,
// padded or truncated to FrameBodySize, followed by SLIP_END.
func (c *Codec) FormatFrame(p *Packet) []byte {
	raw := p.Header.Marshal()
	for _, chunk := range c.EncodePayload(p.Payload) {
		raw = append(raw, chunk...)
	}

	body, dropped := protocol.SlipFit(protocol.SlipEscape(raw), protocol.FrameBodySize)
	if dropped > 0 {
		c.Stats.AddTruncation(uint64(dropped))
		log.Debug().
			Uint16("uid", p.UID).
			Int("dropped", dropped).
			Msg("Frame payload truncated to fixed width")
	}

	return append(body, protocol.SlipEnd)
}

// ParseFrame decodes an unescaped frame body into a packet
func (c *Codec) ParseFrame(data []byte) (*Packet, error) {
	header, err := protocol.UnmarshalHeader(data)
	if err != nil {
		return nil, err
	}

	payload, err := c.DecodePayload(data[protocol.HeaderSize:])
	if err != nil {
		return &Packet{Header: *header}, fmt.Errorf("failed to decode payload: %w", err)
	}

	return &Packet{Header: *header, Payload: payload}, nil
}
