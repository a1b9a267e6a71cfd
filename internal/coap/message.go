// Package coap parses and encodes the RFC 7252 message subset served by the
// responder. Decoded slices alias the input buffer.
package coap

import (
	"encoding/binary"
	"fmt"
	"strings"

	"firestige.xyz/ethresponder/internal/core"
)

const (
	// Version is the only protocol version accepted.
	Version = 1

	// DefaultPort is the IANA-assigned CoAP port.
	DefaultPort = 5683

	headerSize    = 4
	maxTokenLen   = 8
	payloadMarker = 0xff
)

// Type is the message type.
type Type uint8

const (
	Confirmable     Type = 0
	NonConfirmable  Type = 1
	Acknowledgement Type = 2
	Reset           Type = 3
)

func (t Type) String() string {
	switch t {
	case Confirmable:
		return "CON"
	case NonConfirmable:
		return "NON"
	case Acknowledgement:
		return "ACK"
	case Reset:
		return "RST"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Code is a method or response code, class in the top 3 bits.
type Code uint8

const (
	Empty  Code = 0x00
	GET    Code = 0x01
	POST   Code = 0x02
	PUT    Code = 0x03
	DELETE Code = 0x04

	Changed          Code = 0x44 // 2.04
	Content          Code = 0x45 // 2.05
	BadRequest       Code = 0x80 // 4.00
	NotFound         Code = 0x84 // 4.04
	MethodNotAllowed Code = 0x85 // 4.05

	InternalServerError Code = 0xa0 // 5.00
)

// Class returns the code class (0 request, 2 success, 4 client error, ...).
func (c Code) Class() uint8 { return uint8(c) >> 5 }

// Detail returns the code detail.
func (c Code) Detail() uint8 { return uint8(c) & 0x1f }

// IsRequest reports whether c is a method code.
func (c Code) IsRequest() bool { return c.Class() == 0 && c != Empty }

func (c Code) String() string {
	switch c {
	case GET:
		return "GET"
	case POST:
		return "POST"
	case PUT:
		return "PUT"
	case DELETE:
		return "DELETE"
	}
	return fmt.Sprintf("%d.%02d", c.Class(), c.Detail())
}

// OptionID is an option number.
type OptionID uint16

const (
	URIPath       OptionID = 11
	ContentFormat OptionID = 12
)

// Content-Format registry values.
const (
	FormatTextPlain uint16 = 0
	FormatJSON      uint16 = 50
)

// Option is a decoded option. Value aliases the parsed buffer.
type Option struct {
	ID    OptionID
	Value []byte
}

// Message is a decoded or to-be-encoded CoAP message. Options are kept in
// ascending ID order.
type Message struct {
	Type      Type
	Code      Code
	MessageID uint16
	Token     []byte
	Options   []Option
	Payload   []byte
}

// Reset clears m while keeping the option slice capacity.
func (m *Message) Reset() {
	*m = Message{Options: m.Options[:0]}
}

// Unmarshal decodes b into m, reusing m's option storage.
func (m *Message) Unmarshal(b []byte) error {
	m.Reset()
	if len(b) < headerSize {
		return fmt.Errorf("coap: %d bytes: %w", len(b), core.ErrMalformedFrame)
	}
	if v := b[0] >> 6; v != Version {
		return fmt.Errorf("coap: version %d: %w", v, core.ErrMalformedFrame)
	}
	m.Type = Type((b[0] >> 4) & 0x3)
	tkl := int(b[0] & 0xf)
	m.Code = Code(b[1])
	m.MessageID = binary.BigEndian.Uint16(b[2:])
	if tkl > maxTokenLen || headerSize+tkl > len(b) {
		return fmt.Errorf("coap: token length %d: %w", tkl, core.ErrMalformedFrame)
	}
	m.Token = b[headerSize : headerSize+tkl]

	rest := b[headerSize+tkl:]
	var id uint32
	for len(rest) > 0 {
		if rest[0] == payloadMarker {
			if len(rest) == 1 {
				return fmt.Errorf("coap: empty payload after marker: %w", core.ErrMalformedFrame)
			}
			m.Payload = rest[1:]
			return nil
		}
		delta, length := uint32(rest[0]>>4), uint32(rest[0]&0xf)
		rest = rest[1:]
		var err error
		if delta, rest, err = extended(delta, rest); err != nil {
			return err
		}
		if length, rest, err = extended(length, rest); err != nil {
			return err
		}
		if uint32(len(rest)) < length {
			return fmt.Errorf("coap: option value of %d bytes, have %d: %w", length, len(rest), core.ErrMalformedFrame)
		}
		id += delta
		if id > 0xffff {
			return fmt.Errorf("coap: option number %d: %w", id, core.ErrMalformedFrame)
		}
		m.Options = append(m.Options, Option{ID: OptionID(id), Value: rest[:length]})
		rest = rest[length:]
	}
	return nil
}

// extended resolves a 4-bit delta or length nibble.
func extended(v uint32, b []byte) (uint32, []byte, error) {
	switch v {
	case 13:
		if len(b) < 1 {
			return 0, nil, fmt.Errorf("coap: truncated option: %w", core.ErrMalformedFrame)
		}
		return uint32(b[0]) + 13, b[1:], nil
	case 14:
		if len(b) < 2 {
			return 0, nil, fmt.Errorf("coap: truncated option: %w", core.ErrMalformedFrame)
		}
		return uint32(binary.BigEndian.Uint16(b)) + 269, b[2:], nil
	case 15:
		return 0, nil, fmt.Errorf("coap: reserved option nibble: %w", core.ErrMalformedFrame)
	}
	return v, b, nil
}

// MarshalTo encodes m into dst and returns the number of bytes written.
// Options must already be sorted by ID.
func (m *Message) MarshalTo(dst []byte) (int, error) {
	if len(m.Token) > maxTokenLen {
		return 0, fmt.Errorf("coap: token length %d: %w", len(m.Token), core.ErrMalformedFrame)
	}
	w := writer{buf: dst}
	w.putByte(Version<<6 | byte(m.Type)<<4 | byte(len(m.Token)))
	w.putByte(byte(m.Code))
	w.putUint16(m.MessageID)
	w.put(m.Token)

	var prev OptionID
	for _, o := range m.Options {
		if o.ID < prev {
			return 0, fmt.Errorf("coap: option %d after %d: %w", o.ID, prev, core.ErrMalformedFrame)
		}
		delta, length := uint32(o.ID-prev), uint32(len(o.Value))
		dn, dext := nibble(delta)
		ln, lext := nibble(length)
		w.putByte(dn<<4 | ln)
		w.putExt(dn, dext)
		w.putExt(ln, lext)
		w.put(o.Value)
		prev = o.ID
	}
	if len(m.Payload) > 0 {
		w.putByte(payloadMarker)
		w.put(m.Payload)
	}
	if w.short {
		return 0, fmt.Errorf("coap: message does not fit %d bytes: %w", len(dst), core.ErrFrameTooSmall)
	}
	return w.n, nil
}

func nibble(v uint32) (byte, uint32) {
	switch {
	case v < 13:
		return byte(v), 0
	case v < 269:
		return 13, v - 13
	default:
		return 14, v - 269
	}
}

type writer struct {
	buf   []byte
	n     int
	short bool
}

func (w *writer) put(b []byte) {
	if w.n+len(b) > len(w.buf) {
		w.short = true
		return
	}
	w.n += copy(w.buf[w.n:], b)
}

func (w *writer) putByte(b byte) { w.put([]byte{b}) }

func (w *writer) putUint16(v uint16) { w.put([]byte{byte(v >> 8), byte(v)}) }

func (w *writer) putExt(n byte, v uint32) {
	switch n {
	case 13:
		w.putByte(byte(v))
	case 14:
		w.putUint16(uint16(v))
	}
}

// Option returns the first option with the given ID.
func (m *Message) Option(id OptionID) ([]byte, bool) {
	for _, o := range m.Options {
		if o.ID == id {
			return o.Value, true
		}
	}
	return nil, false
}

// PathIs reports whether the Uri-Path options equal segments exactly.
func (m *Message) PathIs(segments ...string) bool {
	i := 0
	for _, o := range m.Options {
		if o.ID != URIPath {
			continue
		}
		if i >= len(segments) || string(o.Value) != segments[i] {
			return false
		}
		i++
	}
	return i == len(segments)
}

// Path joins the Uri-Path options with "/".
func (m *Message) Path() string {
	var sb strings.Builder
	for _, o := range m.Options {
		if o.ID == URIPath {
			sb.WriteByte('/')
			sb.Write(o.Value)
		}
	}
	return sb.String()
}

// EncodeUint returns the minimal big-endian encoding of v used by uint
// options; zero encodes as an empty value. b must hold 4 bytes.
func EncodeUint(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	i := 0
	for i < 4 && tmp[i] == 0 {
		i++
	}
	return b[:copy(b, tmp[i:])]
}
