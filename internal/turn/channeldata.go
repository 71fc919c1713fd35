package turn

import (
	"encoding/binary"
	"fmt"
)

// ChannelDataHeaderSize is the fixed-size prefix of a ChannelData frame
// (RFC 5766 section 11.4): a 16-bit channel number and a 16-bit length.
const ChannelDataHeaderSize = 4

// EncodeChannelData frames data behind the given channel number, padding
// the payload to a 4-byte boundary as required on datagram transports.
func EncodeChannelData(channel uint16, data []byte) []byte {
	buf := make([]byte, ChannelDataHeaderSize, ChannelDataHeaderSize+len(data))
	binary.BigEndian.PutUint16(buf[0:2], channel)
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(data))) // nolint:gosec
	buf = append(buf, data...)
	if rem := len(buf) % 4; rem != 0 {
		buf = append(buf, make([]byte, 4-rem)...)
	}
	return buf
}

// DecodeChannelData extracts the channel number and payload from a
// ChannelData frame.
func DecodeChannelData(buf []byte) (uint16, []byte, error) {
	if len(buf) < ChannelDataHeaderSize {
		return 0, nil, fmt.Errorf("turn: channeldata frame too short (%d bytes)", len(buf))
	}
	channel := binary.BigEndian.Uint16(buf[0:2])
	length := binary.BigEndian.Uint16(buf[2:4])
	data := buf[ChannelDataHeaderSize:]
	if int(length) > len(data) {
		return 0, nil, fmt.Errorf("turn: channeldata declared length %d exceeds payload %d", length, len(data))
	}
	return channel, data[:length], nil
}

// LooksLikeSTUN reports whether the first byte of a datagram indicates a
// STUN/TURN message as opposed to a ChannelData frame. A ChannelData channel
// number always starts with the bits 0b01 (RFC 5766 section 11.5). Only the
// first bytes 0x00 and 0x01 count as STUN here; they cover every message
// whose method is below 0x80, which includes every method this package
// defines. A first byte from 0x02 to 0x3F is not treated as STUN.
func LooksLikeSTUN(firstByte byte) bool {
	return firstByte < 2
}
