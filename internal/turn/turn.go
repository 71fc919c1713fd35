// Package turn adds the RFC 5766 TURN method/attribute/error vocabulary on
// top of package stun, plus the XOR-*-ADDRESS encoding and the ChannelData
// framing that are specific to the TURN extension.
package turn

import "github.com/relaycore/turncore/internal/stun"

// Methods defined by RFC 5766 section 13.
const (
	MethodAllocate         stun.Method = 0x03
	MethodRefresh          stun.Method = 0x04
	MethodSend             stun.Method = 0x06
	MethodData             stun.Method = 0x07
	MethodCreatePermission stun.Method = 0x08
	MethodChannelBind      stun.Method = 0x09
)

// Attributes defined by RFC 5766 section 14 and RFC 6156 section 10.1.
const (
	AttrChannelNumber          stun.AttributeType = 0x000c
	AttrLifetime               stun.AttributeType = 0x000d
	AttrXorPeerAddress         stun.AttributeType = 0x0012
	AttrData                   stun.AttributeType = 0x0013
	AttrXorRelayedAddress      stun.AttributeType = 0x0016
	AttrEvenPort               stun.AttributeType = 0x0018
	AttrRequestedTransport     stun.AttributeType = 0x0019
	AttrDontFragment           stun.AttributeType = 0x001a
	AttrReservationToken       stun.AttributeType = 0x0022
	AttrRequestedAddressFamily stun.AttributeType = 0x0017
)

// ICE attributes (RFC 5245 / RFC 8445 section 16.1) tunneled through the
// relay as described in spec §4.5.
const (
	AttrPriority        stun.AttributeType = 0x0024
	AttrUseCandidate    stun.AttributeType = 0x0025
	AttrIceControlled   stun.AttributeType = 0x8029
	AttrIceControlling  stun.AttributeType = 0x802a
)

// Errors defined by RFC 5766 section 15 and RFC 6156 section 10.2.
const (
	ErrForbidden                    stun.ErrorCode = 403
	ErrAllocationMismatch           stun.ErrorCode = 437
	ErrWrongCredentials             stun.ErrorCode = 441
	ErrUnsupportedTransportProtocol stun.ErrorCode = 442
	ErrAddressFamilyNotSupported    stun.ErrorCode = 440
	ErrPeerAddressFamilyMismatch    stun.ErrorCode = 443
	ErrAllocationQuotaReached       stun.ErrorCode = 486
	ErrInsufficientCapacity         stun.ErrorCode = 508
)

func init() {
	stun.RegisterErrorText(ErrForbidden, "Forbidden")
	stun.RegisterErrorText(ErrAllocationMismatch, "Allocation Mismatch")
	stun.RegisterErrorText(ErrWrongCredentials, "Wrong Credentials")
	stun.RegisterErrorText(ErrUnsupportedTransportProtocol, "Unsupported Transport Protocol")
	stun.RegisterErrorText(ErrAddressFamilyNotSupported, "Address Family not supported")
	stun.RegisterErrorText(ErrPeerAddressFamilyMismatch, "Peer Address Family Mismatch")
	stun.RegisterErrorText(ErrAllocationQuotaReached, "Allocation Quota Reached")
	stun.RegisterErrorText(ErrInsufficientCapacity, "Insufficient Capacity")
}

// RequestedTransport values for the REQUESTED-TRANSPORT attribute.
type RequestedTransport uint32

const (
	RequestedTransportUDP RequestedTransport = 0x11
	RequestedTransportTCP RequestedTransport = 0x06
)

// AddressFamily values for REQUESTED-ADDRESS-FAMILY (RFC 6156 section 4.1.1).
type AddressFamily byte

const (
	AddressFamilyIPv4 AddressFamily = 0x01
	AddressFamilyIPv6 AddressFamily = 0x02
)

// Channel numbers valid for CHANNEL-BIND, RFC 5766 section 11.
const (
	MinChannelNumber = 0x4000
	MaxChannelNumber = 0x7FFE
)
