package protocol

// SLIP framing bytes
const (
	SlipEnd    byte = 0xC0
	SlipEsc    byte = 0xDB
	SlipEscEnd byte = 0xDC
	SlipEscEsc byte = 0xDD
)

// SlipEscape byte-stuffs END and ESC bytes in data
func SlipEscape(data []byte) []byte {
	out := make([]byte, 0, len(data)+4)
	for _, b := range data {
		switch b {
		case SlipEnd:
			out = append(out, SlipEsc, SlipEscEnd)
		case SlipEsc:
			out = append(out, SlipEsc, SlipEscEsc)
		default:
			out = append(out, b)
		}
	}
	return out
}

// SlipUnframe extracts the frame body from a raw chunk read off the serial
// line. The chunk must carry one complete frame starting at offset 0; the
// body ends at the first unescaped SLIP_END.
func SlipUnframe(chunk []byte) ([]byte, error) {
	end := -1
	for i, b := range chunk {
		if b == SlipEnd {
			end = i
			break
		}
	}
	if end < 0 {
		return nil, ErrNoFrameEnd
	}
	if end == 0 {
		return nil, ErrEmptyFrame
	}

	out := make([]byte, 0, end)
	for i := 0; i < end; i++ {
		b := chunk[i]
		if b != SlipEsc {
			out = append(out, b)
			continue
		}
		if i+1 >= end {
			return nil, ErrBadEscape
		}
		i++
		switch chunk[i] {
		case SlipEscEnd:
			out = append(out, SlipEnd)
		case SlipEscEsc:
			out = append(out, SlipEsc)
		default:
			return nil, ErrBadEscape
		}
	}
	return out, nil
}

// SlipFit zero-pads or truncates escaped data to exactly width bytes. An
// escape pair that would be split by the cut is dropped whole. It returns the
// fitted buffer and the number of escaped bytes dropped.
func SlipFit(escaped []byte, width int) ([]byte, int) {
	out := make([]byte, width)
	if len(escaped) <= width {
		copy(out, escaped)
		return out, 0
	}

	n := 0
	for n < width {
		if escaped[n] == SlipEsc {
			if n+1 >= width {
				break
			}
			n += 2
			continue
		}
		n++
	}
	copy(out, escaped[:n])
	return out, len(escaped) - n
}
