package turn

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/relaycore/turncore/internal/stun"
)

func xor(content, key []byte) []byte {
	buf := make([]byte, len(content))
	for i := range content {
		buf[i] = content[i] ^ key[i%len(key)]
	}
	return buf
}

// EncodeXORAddr renders addr as an XOR-PEER-ADDRESS / XOR-RELAYED-ADDRESS /
// XOR-MAPPED-ADDRESS attribute value, per RFC 5389 section 15.2.
func EncodeXORAddr(addr netip.AddrPort, trid stun.TransactionID) ([]byte, error) {
	ip := addr.Addr()
	var family uint16
	var key []byte
	switch {
	case ip.Is4() || ip.Is4In6():
		family = 0x01
		ip = ip.Unmap()
		key = stun.MagicCookie[:]
	case ip.Is6():
		family = 0x02
		key = append(append([]byte{}, stun.MagicCookie[:]...), trid[:]...)
	default:
		return nil, fmt.Errorf("turn: invalid address %v", addr)
	}

	magic := binary.BigEndian.Uint16(stun.MagicCookie[:2])
	buf := make([]byte, 0, 8)
	buf = append(buf, byte(family>>8), byte(family))
	port := addr.Port() ^ magic
	buf = append(buf, byte(port>>8), byte(port))
	buf = append(buf, xor(ip.AsSlice(), key)...)
	return buf, nil
}

// DecodeXORAddr parses an XOR-*-ADDRESS attribute value back into an
// AddrPort.
func DecodeXORAddr(value []byte, trid stun.TransactionID) (netip.AddrPort, error) {
	if len(value) < 8 {
		return netip.AddrPort{}, fmt.Errorf("turn: xor address attribute too short (%d bytes)", len(value))
	}
	family := binary.BigEndian.Uint16(value[0:2])
	port := binary.BigEndian.Uint16(value[2:4]) ^ binary.BigEndian.Uint16(stun.MagicCookie[:2])

	var key []byte
	switch family {
	case 0x01:
		key = stun.MagicCookie[:]
	case 0x02:
		key = append(append([]byte{}, stun.MagicCookie[:]...), trid[:]...)
	default:
		return netip.AddrPort{}, fmt.Errorf("turn: invalid address family %#x", family)
	}

	raw := xor(value[4:], key)
	ip, ok := netip.AddrFromSlice(raw)
	if !ok {
		return netip.AddrPort{}, fmt.Errorf("turn: invalid decoded address %x", raw)
	}
	return netip.AddrPortFrom(ip, port), nil
}
