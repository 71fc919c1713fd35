// Package stun implements the wire-level pieces of RFC 5389 needed by a
// TURN server: message header framing, attribute TLVs, FINGERPRINT and
// MESSAGE-INTEGRITY, and the small set of base STUN error codes.
//
// TURN/RFC 5766 methods and attributes build on top of this package; see
// package turn.
package stun

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

const (
	headerSize           = 20
	messageIntegritySize = 20
	fingerprintSize      = 4
	fingerprintXOR       = 0x5354554e
)

// MagicCookie is the fixed value required by RFC 5389 section 6.
var MagicCookie = [4]byte{0x21, 0x12, 0xa4, 0x42}

// Class is the two-bit STUN message class.
type Class uint8

const (
	ClassRequest    Class = 0x00
	ClassIndication Class = 0x01
	ClassSuccess    Class = 0x02
	ClassError      Class = 0x03
)

func (c Class) String() string {
	switch c {
	case ClassRequest:
		return "Request"
	case ClassIndication:
		return "Indication"
	case ClassSuccess:
		return "Success Response"
	case ClassError:
		return "Error Response"
	default:
		return "Unknown Class"
	}
}

// Method is the 12-bit STUN method.
type Method uint16

const MethodBinding Method = 0x01

// MessageType is the 16-bit value encoded in the first two bytes of the
// header, combining Class and Method as described in RFC 5389 section 6.
type MessageType struct {
	Class  Class
	Method Method
}

func (m MessageType) encode() uint16 {
	class := ((uint16(m.Class) & 0x02) << 7) | ((uint16(m.Class) & 0x01) << 4)
	mth := uint16(m.Method)
	method := (mth & 0x000F) | ((mth & 0x0070) << 1) | ((mth & 0x0F80) << 2)
	return class | method
}

func decodeMessageType(v uint16) MessageType {
	class := ((v & 0x0010) >> 4) | ((v & 0x0100) >> 7)
	method := (v & 0x000F) | ((v & 0x00E0) >> 1) | ((v & 0x3E00) >> 2)
	return MessageType{Class: Class(class), Method: Method(method)}
}

// TransactionID is the 96-bit transaction id carried in every message.
type TransactionID [12]byte

func (t TransactionID) String() string { return string(t[:]) }

// AttributeType is the 16-bit type field of a STUN/TURN attribute.
type AttributeType uint16

const (
	AttrMappedAddress     AttributeType = 0x0001
	AttrUsername          AttributeType = 0x0006
	AttrMessageIntegrity  AttributeType = 0x0008
	AttrErrorCode         AttributeType = 0x0009
	AttrUnknownAttributes AttributeType = 0x000a
	AttrRealm             AttributeType = 0x0014
	AttrNonce             AttributeType = 0x0015
	AttrXorMappedAddress  AttributeType = 0x0020
	AttrSoftware          AttributeType = 0x8022
	AttrAlternateServer   AttributeType = 0x8023
	AttrFingerprint       AttributeType = 0x8028
)

// Attribute is a single decoded TLV.
type Attribute struct {
	Type  AttributeType
	Value []byte
}

func align(n uint16) uint16 { return (n + 3) &^ 3 }

func pad(buf []byte) []byte {
	l := uint16(len(buf))
	return append(buf, make([]byte, align(l)-l)...)
}

func putUint16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func (a Attribute) serialize() []byte {
	buf := putUint16(uint16(a.Type))
	buf = append(buf, putUint16(uint16(len(a.Value)))...) // nolint:gosec
	buf = append(buf, a.Value...)
	return pad(buf)
}

// Message is a decoded STUN message: header plus attribute list.
type Message struct {
	Type          MessageType
	TransactionID TransactionID
	Attributes    []Attribute
}

// New creates an empty message of the given type with the given transaction
// id.
func New(class Class, method Method, trid TransactionID) *Message {
	return &Message{Type: MessageType{Class: class, Method: method}, TransactionID: trid}
}

// GetAttribute returns the first attribute of the given type, and whether it
// was present.
func (m *Message) GetAttribute(t AttributeType) (Attribute, bool) {
	for _, a := range m.Attributes {
		if a.Type == t {
			return a, true
		}
	}
	return Attribute{}, false
}

// GetAttributes returns every attribute of the given type, in order
// (CreatePermission may carry several XOR-PEER-ADDRESS attributes).
func (m *Message) GetAttributes(t AttributeType) []Attribute {
	var out []Attribute
	for _, a := range m.Attributes {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out
}

// Add appends an attribute.
func (m *Message) Add(t AttributeType, value []byte) {
	m.Attributes = append(m.Attributes, Attribute{Type: t, Value: value})
}

// Decode parses a raw packet into a Message. It does not verify
// MESSAGE-INTEGRITY or FINGERPRINT; the caller decides whether and how to do
// so.
func Decode(data []byte) (*Message, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("stun: packet too short (%d bytes)", len(data))
	}
	msgType := decodeMessageType(binary.BigEndian.Uint16(data[0:2]))
	length := binary.BigEndian.Uint16(data[2:4])
	expected := int(length) + headerSize
	if expected != len(data) {
		return nil, fmt.Errorf("stun: attribute length %d does not match packet size %d", expected, len(data))
	}
	var trid TransactionID
	copy(trid[:], data[8:20])

	attrs, err := decodeAttributes(data[headerSize:expected])
	if err != nil {
		return nil, err
	}
	return &Message{Type: msgType, TransactionID: trid, Attributes: attrs}, nil
}

func decodeAttributes(buf []byte) ([]Attribute, error) {
	var attrs []Attribute
	pos := 0
	for pos < len(buf) {
		if pos+4 > len(buf) {
			return nil, errors.New("stun: truncated attribute header")
		}
		t := AttributeType(binary.BigEndian.Uint16(buf[pos : pos+2]))
		l := binary.BigEndian.Uint16(buf[pos+2 : pos+4])
		pos += 4
		if pos+int(l) > len(buf) {
			return nil, errors.New("stun: truncated attribute value")
		}
		value := buf[pos : pos+int(l)]
		pos += int(l)
		if rem := pos % 4; rem != 0 {
			pos += 4 - rem
		}
		attrs = append(attrs, Attribute{Type: t, Value: value})
	}
	return attrs, nil
}

// Key is the long-term credential material used to sign outbound messages.
// Verification of inbound requests is left to an upstream collaborator; this
// package only ever signs.
type Key struct {
	Username string
	Realm    string
	Password string
}

// Encode serializes the message. If key is non-nil a MESSAGE-INTEGRITY
// attribute is computed over the header+attributes (with key.Realm, not any
// REALM attribute on the message itself, used as the signing realm) and
// appended as the last attribute before any FINGERPRINT the caller adds
// afterwards via AddFingerprint.
func (m *Message) Encode(key *Key) ([]byte, error) {
	var attrs []byte
	for _, a := range m.Attributes {
		attrs = append(attrs, a.serialize()...)
	}

	integrityPos := len(attrs)
	if key != nil {
		attrs = append(attrs, putUint16(uint16(AttrMessageIntegrity))...)
		attrs = append(attrs, putUint16(messageIntegritySize)...)
		attrs = append(attrs, make([]byte, messageIntegritySize)...)
	}

	buf := putUint16(m.Type.encode())
	buf = append(buf, putUint16(uint16(len(attrs)))...) // nolint:gosec
	buf = append(buf, MagicCookie[:]...)
	buf = append(buf, m.TransactionID[:]...)
	buf = append(buf, attrs...)

	if key != nil {
		mac, err := messageIntegrity(buf[:integrityPos+headerSize], key.Username, key.Realm, key.Password)
		if err != nil {
			return nil, fmt.Errorf("stun: compute message integrity: %w", err)
		}
		copy(buf[integrityPos+headerSize+4:], mac)
	}

	return buf, nil
}

// AddFingerprint appends a FINGERPRINT attribute computed over buf, fixing
// up the header length in the process. It must be the very last step of
// encoding, per RFC 5389 section 15.5.
func AddFingerprint(buf []byte) []byte {
	currentLen := binary.BigEndian.Uint16(buf[2:4])
	binary.BigEndian.PutUint16(buf[2:4], currentLen+4+fingerprintSize)

	fp := make([]byte, fingerprintSize)
	binary.BigEndian.PutUint32(fp, crc32.ChecksumIEEE(buf)^fingerprintXOR)

	attr := Attribute{Type: AttrFingerprint, Value: fp}.serialize()
	return append(buf, attr...)
}

func messageIntegrity(buf []byte, username, realm, password string) ([]byte, error) {
	key := fmt.Sprintf("%s:%s:%s", username, realm, password)
	md := md5.New()
	if _, err := md.Write([]byte(key)); err != nil {
		return nil, err
	}
	hmacKey := md.Sum(nil)

	h := hmac.New(sha1.New, hmacKey)
	if _, err := h.Write(buf); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
