package stun

import "encoding/binary"

// EncodeUnknownAttributes renders the UNKNOWN-ATTRIBUTES attribute value
// (RFC 5389 section 15.9): a list of 16-bit attribute type codes.
func EncodeUnknownAttributes(types []AttributeType) []byte {
	buf := make([]byte, 0, 2*len(types))
	for _, t := range types {
		tmp := make([]byte, 2)
		binary.BigEndian.PutUint16(tmp, uint16(t))
		buf = append(buf, tmp...)
	}
	return buf
}
