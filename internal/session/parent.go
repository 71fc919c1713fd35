package session

import "github.com/relaycore/turncore/internal/stun"

// ConnectivityCheck carries the fields of an ICE Binding message tunneled
// between the client and a parent, rather than raw encoded bytes — spec
// §4.5. SenderHandle is opaque; the core passes it through unexamined when
// forwarding client->parent (so the parent can tell which session or
// candidate pair this check came from).
type ConnectivityCheck struct {
	Class          stun.Class
	TransactionID  stun.TransactionID
	Username       string
	Priority       uint32
	UseCandidate   bool
	IceControlling bool
	IceControlled  bool
	ErrorCode      *stun.ErrorCode
	SenderHandle   any
}

// ParentLink is the external collaborator real peer traffic flows through:
// the core never opens the actual relay socket, so client->peer payloads
// are handed to the parent as messages instead. Spec §4.5, §6.
type ParentLink interface {
	// ForwardConnectivityCheck is used when the client's payload starts
	// with a byte below 2 and decodes as a STUN message (spec §4.5).
	ForwardConnectivityCheck(check ConnectivityCheck) error
	// ForwardICEPayload is used for any other opaque peer-bound payload.
	ForwardICEPayload(data []byte) error
}

// ParentResolver lazily resolves the parent handle for a relay port the
// first time a peer payload needs to be forwarded. Spec §3.1
// parent_resolver, modeled as a first-class interface per spec §9.
type ParentResolver interface {
	Resolve(port uint16) (ParentLink, error)
}

// ConnectivityCheckParams is the payload of a parent-injected
// send_connectivity_check message (spec §4.5, peer->client direction): the
// core builds a STUN Binding message from these fields, signs it with
// Password, and delivers it to the client.
type ConnectivityCheckParams struct {
	Class          stun.Class
	TransactionID  stun.TransactionID
	Username       string
	Password       string
	Priority       uint32
	UseCandidate   bool
	IceControlling bool
	IceControlled  bool
	ErrorCode      *stun.ErrorCode
}

// ParentMessage is what a parent injects into the session: exactly one of
// the two fields is set. Spec §4.5 "Peer -> Client".
type ParentMessage struct {
	ConnectivityCheck *ConnectivityCheckParams
	ICEPayload        []byte
}
