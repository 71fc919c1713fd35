package session

import (
	"encoding/binary"
	"net/netip"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/relaycore/turncore/internal/registry"
	"github.com/relaycore/turncore/internal/stun"
	"github.com/relaycore/turncore/internal/turn"
)

type fakeSender struct {
	sent [][]byte
	err  error
}

func (f *fakeSender) Send(data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, append([]byte{}, data...))
	return nil
}

func (f *fakeSender) last() []byte {
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

type fakeResolver struct {
	link ParentLink
	err  error
}

func (f *fakeResolver) Resolve(uint16) (ParentLink, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.link, nil
}

type fakeParent struct {
	payloads [][]byte
	checks   []ConnectivityCheck
}

func (f *fakeParent) ForwardConnectivityCheck(c ConnectivityCheck) error {
	f.checks = append(f.checks, c)
	return nil
}

func (f *fakeParent) ForwardICEPayload(data []byte) error {
	f.payloads = append(f.payloads, append([]byte{}, data...))
	return nil
}

func newTestSession(t *testing.T, sender *fakeSender) (*Session, clock.Clock) {
	t.Helper()
	mock := clock.NewMock()
	cfg := Config{
		Username:       "alice",
		Realm:          "example.test",
		Key:            "secret",
		ClientAddr:     netip.MustParseAddrPort("203.0.113.5:4000"),
		Transport:      TransportUnreliableDatagram,
		Sender:         sender,
		RelayIPv4:      netip.MustParseAddr("127.0.0.1"),
		MockRelayIP:    netip.MustParseAddr("127.0.0.1"),
		MinPort:        50000,
		MaxPort:        50000,
		MaxPermissions: 2,
		Registry:       registry.New(),
		ParentResolver: &fakeResolver{link: &fakeParent{}},
		Clock:          mock,
		Lifetime:       700 * time.Second,
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, mock
}

func allocateRequest(trid stun.TransactionID) *stun.Message {
	req := stun.New(stun.ClassRequest, turn.MethodAllocate, trid)
	req.Add(turn.AttrRequestedTransport, []byte{byte(turn.RequestedTransportUDP), 0, 0, 0})
	return req
}

func decodeSuccess(t *testing.T, raw []byte) *stun.Message {
	t.Helper()
	msg, err := stun.Decode(raw)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return msg
}

func TestSuccessfulAllocation(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	s, _ := newTestSession(t, sender)

	trid := stun.TransactionID{1}
	s.handleClientBytes(encode(t, allocateRequest(trid)))

	if s.State() != Active {
		t.Fatalf("state = %v, want Active", s.State())
	}
	resp := decodeSuccess(t, sender.last())
	if resp.Type.Class != stun.ClassSuccess {
		t.Fatalf("class = %v, want success", resp.Type.Class)
	}
	relayAttr, ok := resp.GetAttribute(turn.AttrXorRelayedAddress)
	if !ok {
		t.Fatal("missing XOR-RELAYED-ADDRESS")
	}
	addr, err := turn.DecodeXORAddr(relayAttr.Value, trid)
	if err != nil {
		t.Fatalf("decode relayed address: %v", err)
	}
	if addr.Port() != 50000 {
		t.Fatalf("relay port = %d, want 50000", addr.Port())
	}

	lifetimeAttr, ok := resp.GetAttribute(turn.AttrLifetime)
	if !ok {
		t.Fatal("missing LIFETIME")
	}
	secs := binary.BigEndian.Uint32(lifetimeAttr.Value)
	if secs < 690 || secs > 700 {
		t.Fatalf("lifetime = %d, want ~700", secs)
	}
}

func TestDontFragmentRejection(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	s, _ := newTestSession(t, sender)

	trid := stun.TransactionID{2}
	req := allocateRequest(trid)
	req.Add(turn.AttrDontFragment, nil)
	s.handleClientBytes(encode(t, req))

	resp := decodeSuccess(t, sender.last())
	if resp.Type.Class != stun.ClassError {
		t.Fatalf("class = %v, want error", resp.Type.Class)
	}
	errAttr, ok := resp.GetAttribute(stun.AttrErrorCode)
	if !ok {
		t.Fatal("missing ERROR-CODE")
	}
	parsed, err := stun.ParseErrorAttribute(errAttr.Value)
	if err != nil {
		t.Fatalf("parse error attribute: %v", err)
	}
	if parsed.Code != stun.ErrUnknownAttribute {
		t.Fatalf("code = %d, want 420", parsed.Code)
	}
	if !s.stopped {
		t.Fatal("session should have terminated")
	}
}

func TestPermissionOverQuota(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	s, _ := newTestSession(t, sender)
	s.handleClientBytes(encode(t, allocateRequest(stun.TransactionID{3})))

	cp := stun.New(stun.ClassRequest, turn.MethodCreatePermission, stun.TransactionID{4})
	addAddr(t, cp, netip.MustParseAddrPort("10.0.0.1:0"), cp.TransactionID)
	addAddr(t, cp, netip.MustParseAddrPort("10.0.0.2:0"), cp.TransactionID)
	s.handleClientBytes(encode(t, cp))
	resp := decodeSuccess(t, sender.last())
	if resp.Type.Class != stun.ClassSuccess {
		t.Fatalf("first CreatePermission should succeed, got class %v", resp.Type.Class)
	}
	if len(s.permissions) != 2 {
		t.Fatalf("permissions = %d, want 2", len(s.permissions))
	}

	cp2 := stun.New(stun.ClassRequest, turn.MethodCreatePermission, stun.TransactionID{5})
	addAddr(t, cp2, netip.MustParseAddrPort("10.0.0.3:0"), cp2.TransactionID)
	addAddr(t, cp2, netip.MustParseAddrPort("10.0.0.4:0"), cp2.TransactionID)
	s.handleClientBytes(encode(t, cp2))
	resp2 := decodeSuccess(t, sender.last())
	errAttr, ok := resp2.GetAttribute(stun.AttrErrorCode)
	if !ok {
		t.Fatal("missing ERROR-CODE")
	}
	parsed, err := stun.ParseErrorAttribute(errAttr.Value)
	if err != nil {
		t.Fatalf("parse error attribute: %v", err)
	}
	if parsed.Code != turn.ErrInsufficientCapacity {
		t.Fatalf("code = %d, want 508", parsed.Code)
	}
	if len(s.permissions) != 2 {
		t.Fatalf("permissions should remain 2, got %d", len(s.permissions))
	}
}

func TestChannelRoundTrip(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	parent := &fakeParent{}
	s, _ := newTestSession(t, sender)
	s.cfg.ParentResolver = &fakeResolver{link: parent}
	s.handleClientBytes(encode(t, allocateRequest(stun.TransactionID{6})))

	peer := netip.MustParseAddrPort("10.0.0.1:5000")
	cb := stun.New(stun.ClassRequest, turn.MethodChannelBind, stun.TransactionID{7})
	cb.Add(turn.AttrChannelNumber, channelNumberBytes(0x4000))
	addAddr(t, cb, peer, cb.TransactionID)
	s.handleClientBytes(encode(t, cb))
	resp := decodeSuccess(t, sender.last())
	if resp.Type.Class != stun.ClassSuccess {
		t.Fatalf("ChannelBind failed: class %v", resp.Type.Class)
	}

	send := stun.New(stun.ClassIndication, turn.MethodSend, stun.TransactionID{8})
	addAddr(t, send, peer, send.TransactionID)
	send.Add(turn.AttrData, []byte("hi"))
	s.handleClientBytes(encode(t, send))
	if len(parent.payloads) != 1 || string(parent.payloads[0]) != "hi" {
		t.Fatalf("parent.payloads = %v, want [\"hi\"]", parent.payloads)
	}

	s.handleParentMessage(ParentMessage{ICEPayload: []byte("hi")})
	last := sender.last()
	channel, data, err := turn.DecodeChannelData(last)
	if err != nil {
		t.Fatalf("decode channeldata: %v", err)
	}
	if channel != 0x4000 || string(data) != "hi" {
		t.Fatalf("got channel=%#x data=%q, want channel=0x4000 data=\"hi\"", channel, data)
	}
}

func TestFamilyMismatch(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	s, _ := newTestSession(t, sender)
	s.handleClientBytes(encode(t, allocateRequest(stun.TransactionID{9})))

	cp := stun.New(stun.ClassRequest, turn.MethodCreatePermission, stun.TransactionID{10})
	addAddr(t, cp, netip.AddrPortFrom(netip.MustParseAddr("::1"), 0), cp.TransactionID)
	s.handleClientBytes(encode(t, cp))

	resp := decodeSuccess(t, sender.last())
	errAttr, ok := resp.GetAttribute(stun.AttrErrorCode)
	if !ok {
		t.Fatal("missing ERROR-CODE")
	}
	parsed, err := stun.ParseErrorAttribute(errAttr.Value)
	if err != nil {
		t.Fatalf("parse error attribute: %v", err)
	}
	if parsed.Code != turn.ErrPeerAddressFamilyMismatch {
		t.Fatalf("code = %d, want 443", parsed.Code)
	}
}

func TestRetransmission(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	s, _ := newTestSession(t, sender)

	trid := stun.TransactionID{11}
	s.handleClientBytes(encode(t, allocateRequest(trid)))
	first := append([]byte{}, sender.last()...)

	permsBefore := len(s.permissions)
	chansBefore := len(s.channels)

	s.handleClientBytes(encode(t, allocateRequest(trid)))
	second := sender.last()

	if string(first) != string(second) {
		t.Fatal("retransmitted response bytes differ from original")
	}
	if len(s.permissions) != permsBefore || len(s.channels) != chansBefore {
		t.Fatal("retransmission should not mutate session state")
	}
}

func encode(t *testing.T, msg *stun.Message) []byte {
	t.Helper()
	data, err := msg.Encode(nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return data
}

func addAddr(t *testing.T, msg *stun.Message, addr netip.AddrPort, trid stun.TransactionID) {
	t.Helper()
	value, err := turn.EncodeXORAddr(addr, trid)
	if err != nil {
		t.Fatalf("encode xor addr: %v", err)
	}
	msg.Add(turn.AttrXorPeerAddress, value)
}

func channelNumberBytes(channel uint16) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, channel)
	return buf
}
