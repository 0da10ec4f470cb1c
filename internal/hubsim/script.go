package hubsim

import (
	"github.com/goodieshq/bitbridge/internal/protocol"
	"github.com/goodieshq/bitbridge/internal/protocol/packets/v1"
)

// Hello builds the bonding packet a hub sends first
func Hello(uid uint16, schoolID, hubID string) *packets.Packet {
	return packets.NewPacket(0, 0, uid, protocol.RequestHello,
		packets.String(""), packets.String(schoolID), packets.String(hubID))
}

// Query builds a REST request for query, e.g. "carbon/BN1"
func Query(uid uint16, rt protocol.RequestType, query string) *packets.Packet {
	return packets.NewPacket(0, 0, uid, rt, packets.String(query))
}

// Script is a HELLO followed by GET requests for each query
func Script(schoolID, hubID string, queries ...string) []*packets.Packet {
	script := []*packets.Packet{Hello(1, schoolID, hubID)}
	for i, q := range queries {
		script = append(script, Query(uint16(i+2), protocol.RequestGet, q))
	}
	return script
}
