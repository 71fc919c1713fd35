package turn

import (
	"net/netip"
	"testing"

	"github.com/relaycore/turncore/internal/stun"
)

func TestXORAddrRoundTripIPv4(t *testing.T) {
	t.Parallel()

	trid := stun.TransactionID{}
	copy(trid[:], "ASDFASDFASDF")

	addr := netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), 5000)
	encoded, err := EncodeXORAddr(addr, trid)
	if err != nil {
		t.Fatalf("EncodeXORAddr: %v", err)
	}
	decoded, err := DecodeXORAddr(encoded, trid)
	if err != nil {
		t.Fatalf("DecodeXORAddr: %v", err)
	}
	if decoded != addr {
		t.Errorf("expected %v, got %v", addr, decoded)
	}
}

func TestXORAddrRoundTripIPv6(t *testing.T) {
	t.Parallel()

	trid := stun.TransactionID{}
	copy(trid[:], "ASDFASDFASDF")

	addr := netip.AddrPortFrom(netip.MustParseAddr("2001:db8::1"), 12345)
	encoded, err := EncodeXORAddr(addr, trid)
	if err != nil {
		t.Fatalf("EncodeXORAddr: %v", err)
	}
	decoded, err := DecodeXORAddr(encoded, trid)
	if err != nil {
		t.Fatalf("DecodeXORAddr: %v", err)
	}
	if decoded != addr {
		t.Errorf("expected %v, got %v", addr, decoded)
	}
}

func TestChannelDataRoundTrip(t *testing.T) {
	t.Parallel()

	frame := EncodeChannelData(0x4001, []byte("hi"))
	channel, data, err := DecodeChannelData(frame)
	if err != nil {
		t.Fatalf("DecodeChannelData: %v", err)
	}
	if channel != 0x4001 {
		t.Errorf("expected channel 0x4001, got %#x", channel)
	}
	if string(data) != "hi" {
		t.Errorf("expected %q, got %q", "hi", string(data))
	}
}

func TestLooksLikeSTUN(t *testing.T) {
	t.Parallel()
	if !LooksLikeSTUN(0x00) {
		t.Error("expected 0x00 to look like STUN")
	}
	if !LooksLikeSTUN(0x01) {
		t.Error("expected 0x01 to look like STUN")
	}
	if LooksLikeSTUN(0x40) {
		t.Error("expected 0x40 (ChannelData) to not look like STUN")
	}
}
