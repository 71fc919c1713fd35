package stun

import "fmt"

// ErrorCode is a STUN/TURN error response code (RFC 5389 section 15.6).
type ErrorCode uint16

const (
	ErrBadRequest       ErrorCode = 400
	ErrUnauthorized     ErrorCode = 401
	ErrUnknownAttribute ErrorCode = 420
	ErrStaleNonce       ErrorCode = 438
	ErrServerError      ErrorCode = 500
)

var baseErrorText = map[ErrorCode]string{
	ErrBadRequest:       "Bad Request",
	ErrUnauthorized:     "Unauthorized",
	ErrUnknownAttribute: "Unknown Attribute",
	ErrStaleNonce:       "Stale Nonce",
	ErrServerError:      "Server Error",
}

// Error is a protocol-level fault: a STUN error response the core must send
// back to the client instead of (or as well as) terminating the session.
// It implements the error interface so handlers can return it like any
// other error while still carrying the wire-level code and reason phrase.
type Error struct {
	Code ErrorCode
	Text string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d %s", e.Code, e.Text)
}

// NewError looks up the canonical reason phrase for code, falling back to a
// generic text if the code is not one this package or an importer (via
// RegisterErrorText) knows about.
func NewError(code ErrorCode) *Error {
	return &Error{Code: code, Text: ErrorText(code)}
}

// NewErrorText builds an Error with an explicit reason phrase, overriding
// the canonical one (used when the core wants to attach extra context, e.g.
// which attribute was unknown).
func NewErrorText(code ErrorCode, text string) *Error {
	return &Error{Code: code, Text: text}
}

var extraErrorText = map[ErrorCode]string{}

// RegisterErrorText lets other packages (e.g. turn) extend the reason
// phrase table with their own error codes without this package importing
// them.
func RegisterErrorText(code ErrorCode, text string) {
	extraErrorText[code] = text
}

// ErrorText returns the canonical reason phrase for code.
func ErrorText(code ErrorCode) string {
	if t, ok := baseErrorText[code]; ok {
		return t
	}
	if t, ok := extraErrorText[code]; ok {
		return t
	}
	return "Unknown Error"
}

// ToAttribute renders the error as an ERROR-CODE attribute value per RFC
// 5389 section 15.6: reserved byte, reserved byte, class nibble, number,
// then the UTF-8 reason phrase.
func (e *Error) ToAttribute() []byte {
	class := byte(e.Code / 100)
	number := byte(e.Code % 100)
	buf := []byte{0x00, 0x00, class, number}
	return append(buf, []byte(e.Text)...)
}

// ParseErrorAttribute decodes an ERROR-CODE attribute value.
func ParseErrorAttribute(buf []byte) (*Error, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("stun: error-code attribute too short (%d bytes)", len(buf))
	}
	code := ErrorCode(int(buf[2])*100 + int(buf[3]))
	text := string(buf[4:])
	if text == "" {
		text = ErrorText(code)
	}
	return &Error{Code: code, Text: text}, nil
}
