package packets

import (
	"github.com/goodieshq/bitbridge/internal/protocol"
)

// Packet is the unit of exchange with the hub: a fixed header plus an ordered
// list of typed payload values. Index 0 of the payload is the query string.
type Packet struct {
	protocol.Header         // Common packet header
	Payload         []Value // Positional payload values
}

func NewPacket(appID, namespaceID uint8, uid uint16, requestType protocol.RequestType, payload ...Value) *Packet {
	return &Packet{
		Header: protocol.Header{
			AppID:       appID,
			NamespaceID: namespaceID,
			UID:         uid,
			RequestType: requestType,
		},
		Payload: payload,
	}
}

// NewResponse creates a fresh packet addressed back to the sender of req
func NewResponse(req *Packet) *Packet {
	return NewPacket(req.AppID, req.NamespaceID, req.UID, req.RequestType)
}

// NewErrorResponse builds the generic reply sent when a request fails. The hub
// firmware expects application errors as OK plus a single 0, not the ERROR bit.
func NewErrorResponse(hdr protocol.Header) *Packet {
	pkt := NewPacket(hdr.AppID, hdr.NamespaceID, hdr.UID, hdr.RequestType)
	pkt.ClearBit(protocol.StatusMask)
	pkt.SetBit(protocol.StatusOK)
	pkt.Append(Int(0))
	return pkt
}

func (p *Packet) SetBit(bits protocol.RequestType) {
	p.RequestType |= bits
}

func (p *Packet) ClearBit(bits protocol.RequestType) {
	p.RequestType &^= bits
}

func (p *Packet) HasBit(bits protocol.RequestType) bool {
	return p.RequestType.Has(bits)
}

func (p *Packet) Append(vs ...Value) {
	p.Payload = append(p.Payload, vs...)
}

// At returns payload value i, or an invalid value when out of range
func (p *Packet) At(i int) Value {
	if i < 0 || i >= len(p.Payload) {
		return Value{}
	}
	return p.Payload[i]
}

// Query returns payload slot 0 as a string
func (p *Packet) Query() string {
	return p.At(0).AsString()
}
