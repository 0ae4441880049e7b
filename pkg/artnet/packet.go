// Package artnet builds ArtNet (ArtDmx/OpOutput) UDP packets (§6 "Outbound
// UDP (ArtNet)").
package artnet

import (
	"encoding/binary"
)

const (
	// OpCodeDMX is the ArtNet OpOutput (ArtDmx) operation code.
	OpCodeDMX uint16 = 0x5000
	// ProtocolVersion is the ArtNet protocol version field (0x000E).
	ProtocolVersion uint16 = 0x000E
	// DMXDataLength is the number of DMX channels carried per universe.
	DMXDataLength uint16 = 512
	// HeaderSize is the number of fixed bytes preceding the DMX data.
	HeaderSize = 18
	// PacketSize is the total size of an ArtDmx packet.
	PacketSize = HeaderSize + int(DMXDataLength)
	// DefaultPort is the standard ArtNet UDP port.
	DefaultPort = 6454
)

// id is the fixed 8-byte ArtNet packet identifier, "Art-Net\0".
var id = []byte{'A', 'r', 't', '-', 'N', 'e', 't', 0x00}

// BuildDMXPacket encodes one ArtDmx packet (§6 packet layout table).
//
// universe is the full 15-bit universe number; it is split into a sub-uni
// low byte and a net high byte (§3 GLOSSARY "Universe"). sequence is the
// per-universe ArtNet sequence byte already computed by the caller (1..255
// wrapping, 0 disables sequencing — §3 "UniverseBuffer"); it is written
// as-is. A dmx shorter than 512 bytes (or nil) is zero-padded; bytes past
// the 512th are ignored.
func BuildDMXPacket(universe int, dmx []byte, sequence byte) []byte {
	packet := make([]byte, PacketSize)

	copy(packet[0:8], id)
	binary.LittleEndian.PutUint16(packet[8:10], OpCodeDMX)
	binary.BigEndian.PutUint16(packet[10:12], ProtocolVersion)
	packet[12] = sequence
	packet[13] = 0 // physical input port, always 0
	packet[14] = byte(universe & 0xFF)        // sub-uni (low byte)
	packet[15] = byte((universe >> 8) & 0x7F) // net (high byte, 7 bits)
	binary.BigEndian.PutUint16(packet[16:18], DMXDataLength)

	copy(packet[HeaderSize:HeaderSize+512], dmx)

	return packet
}
