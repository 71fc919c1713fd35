package stun

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	trid := TransactionID{}
	copy(trid[:], "ABCDEFGHIJKL")

	msg := New(ClassSuccess, MethodBinding, trid)
	msg.Add(AttrSoftware, []byte("test-server"))

	encoded, err := msg.Encode(nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if decoded.Type != msg.Type {
		t.Errorf("Type: expected %+v, got %+v", msg.Type, decoded.Type)
	}
	if decoded.TransactionID != msg.TransactionID {
		t.Errorf("TransactionID: expected %q, got %q", msg.TransactionID, decoded.TransactionID)
	}
	attr, ok := decoded.GetAttribute(AttrSoftware)
	if !ok {
		t.Fatal("expected SOFTWARE attribute")
	}
	if string(attr.Value) != "test-server" {
		t.Errorf("SOFTWARE: expected %q, got %q", "test-server", string(attr.Value))
	}
}

func TestEncodeWithMessageIntegrity(t *testing.T) {
	t.Parallel()

	msg := New(ClassRequest, MethodBinding, TransactionID{})
	encoded, err := msg.Encode(&Key{Username: "user", Realm: "realm", Password: "pw"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	attr, ok := decoded.GetAttribute(AttrMessageIntegrity)
	if !ok {
		t.Fatal("expected MESSAGE-INTEGRITY attribute")
	}
	if len(attr.Value) != messageIntegritySize {
		t.Errorf("expected %d byte MAC, got %d", messageIntegritySize, len(attr.Value))
	}
}

func TestAddFingerprint(t *testing.T) {
	t.Parallel()

	msg := New(ClassRequest, MethodBinding, TransactionID{})
	encoded, err := msg.Encode(nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	withFP := AddFingerprint(encoded)

	decoded, err := Decode(withFP)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, ok := decoded.GetAttribute(AttrFingerprint); !ok {
		t.Fatal("expected FINGERPRINT attribute")
	}
}

func TestDecodeRejectsShortPacket(t *testing.T) {
	t.Parallel()
	if _, err := Decode([]byte{0x00, 0x01}); err == nil {
		t.Fatal("expected error for short packet")
	}
}

func TestErrorToAttributeRoundTrip(t *testing.T) {
	t.Parallel()
	e := NewError(ErrBadRequest)
	parsed, err := ParseErrorAttribute(e.ToAttribute())
	if err != nil {
		t.Fatalf("ParseErrorAttribute: %v", err)
	}
	if parsed.Code != ErrBadRequest {
		t.Errorf("expected code %d, got %d", ErrBadRequest, parsed.Code)
	}
	if parsed.Text != "Bad Request" {
		t.Errorf("expected %q, got %q", "Bad Request", parsed.Text)
	}
}
