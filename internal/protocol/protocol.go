package protocol

import (
	"encoding/binary"
	"strings"
)

// Size of the fixed packet header: app id, namespace id, uid, request type
const HeaderSize = 5

// Width of the frame region before the trailing SLIP_END. Fixed by the hub firmware.
const FrameBodySize = 61

// Total frame size on the wire including the trailing SLIP_END
const FrameSize = FrameBodySize + 1

// Request type bits carried in the last header byte
type RequestType uint8

const (
	RequestGet           RequestType = 0x01 // REST GET
	RequestPost          RequestType = 0x02 // REST POST
	RequestCloudVariable RequestType = 0x04 // cloud variable (unimplemented)
	RequestBroadcast     RequestType = 0x08 // broadcast (unimplemented)
	RequestHello         RequestType = 0x10 // hub bonding handshake
	StatusAck            RequestType = 0x20
	StatusError          RequestType = 0x40
	StatusOK             RequestType = 0x80
)

// Mask of all request (non-status) bits
const RequestMask = RequestGet | RequestPost | RequestCloudVariable | RequestBroadcast | RequestHello

// Mask of all status bits
const StatusMask = StatusAck | StatusError | StatusOK

// Payload subtype tags preceding each encoded value
type SubType uint8

const (
	SubTypeString SubType = 0x01
	SubTypeInt    SubType = 0x02
	SubTypeFloat  SubType = 0x04
	SubTypeEvent  SubType = 0x08
)

var le = binary.LittleEndian

// Common header for all packets
type Header struct {
	AppID       uint8
	NamespaceID uint8
	UID         uint16
	RequestType RequestType
}

// UnmarshalHeader parses the first HeaderSize bytes of data into a Header
func UnmarshalHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, ErrShortHeader
	}

	var header Header
	header.AppID = data[0]
	header.NamespaceID = data[1]
	header.UID = le.Uint16(data[2:4])
	header.RequestType = RequestType(data[4])

	return &header, nil
}

// Marshal packs the header into its 5-byte little-endian wire form
func (h Header) Marshal() []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = h.AppID
	buf[1] = h.NamespaceID
	le.PutUint16(buf[2:4], h.UID)
	buf[4] = byte(h.RequestType)
	return buf
}

// Has reports whether any of the given bits are set
func (t RequestType) Has(bits RequestType) bool {
	return t&bits != 0
}

func (t RequestType) String() string {
	if t == 0 {
		return "NONE"
	}

	names := []struct {
		bit  RequestType
		name string
	}{
		{RequestGet, "GET"},
		{RequestPost, "POST"},
		{RequestCloudVariable, "CLOUD_VARIABLE"},
		{RequestBroadcast, "BROADCAST"},
		{RequestHello, "HELLO"},
		{StatusAck, "ACK"},
		{StatusError, "ERROR"},
		{StatusOK, "OK"},
	}

	parts := make([]string, 0, 2)
	for _, n := range names {
		if t&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}
