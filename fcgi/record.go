// Package fcgi implements the Responder role of the FastCGI 1.0 protocol:
// the wire codec, the per-request assembler, the response chunker, and the
// connection/listener plumbing that ties them together.
package fcgi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// version is the only FastCGI protocol version this package speaks.
const version = 1

// RecordType is one of the eleven record types defined by FastCGI 1.0 §8.
type RecordType uint8

const (
	BeginRequest    RecordType = 1
	AbortRequest    RecordType = 2
	EndRequest      RecordType = 3
	Params          RecordType = 4
	Stdin           RecordType = 5
	Stdout          RecordType = 6
	Stderr          RecordType = 7
	Data            RecordType = 8
	GetValues       RecordType = 9
	GetValuesResult RecordType = 10
	UnknownType     RecordType = 11
)

func (t RecordType) String() string {
	switch t {
	case BeginRequest:
		return "BeginRequest"
	case AbortRequest:
		return "AbortRequest"
	case EndRequest:
		return "EndRequest"
	case Params:
		return "Params"
	case Stdin:
		return "Stdin"
	case Stdout:
		return "Stdout"
	case Stderr:
		return "Stderr"
	case Data:
		return "Data"
	case GetValues:
		return "GetValues"
	case GetValuesResult:
		return "GetValuesResult"
	default:
		return "UnknownType"
	}
}

// normalizeType maps any code outside the defined set to UnknownType.
func normalizeType(b byte) RecordType {
	switch RecordType(b) {
	case BeginRequest, AbortRequest, EndRequest, Params, Stdin, Stdout, Stderr, Data, GetValues, GetValuesResult:
		return RecordType(b)
	default:
		return UnknownType
	}
}

// ProtocolStatus is the 4-byte trailer status carried in EndRequestBody.
type ProtocolStatus uint8

const (
	RequestComplete ProtocolStatus = 0
	CantMpxConn     ProtocolStatus = 1
	Overloaded      ProtocolStatus = 2
	UnknownRole     ProtocolStatus = 3
)

// maxContentLen is the 16-bit ceiling on a single record's content.
const maxContentLen = 65535

// Record is the protocol atom: an 8-byte header plus content bytes. Padding
// is consumed and discarded on read and is always zero-length on write.
type Record struct {
	Type      RecordType
	RequestID uint16
	Content   []byte
}

// corruptStreamError wraps the "bad version byte" failure mode: the
// connection must be abandoned, no EndRequest follows.
type corruptStreamError struct {
	got byte
}

func (e *corruptStreamError) Error() string {
	return fmt.Sprintf("fcgi: corrupt stream: version byte %#x != 1", e.got)
}

// IsCorruptStream reports whether err signals a bad version byte.
func IsCorruptStream(err error) bool {
	var e *corruptStreamError
	return errors.As(err, &e)
}

// ReadRecord pulls one complete record off r, blocking until the header,
// content, and padding have all been read. version != 1 is fatal to
// the stream; any other type code is normalised to UnknownType with
// its content preserved verbatim.
func ReadRecord(r io.Reader) (Record, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Record{}, err
	}
	if header[0] != version {
		return Record{}, &corruptStreamError{got: header[0]}
	}
	rec := Record{
		Type:      normalizeType(header[1]),
		RequestID: binary.BigEndian.Uint16(header[2:4]),
	}
	contentLen := binary.BigEndian.Uint16(header[4:6])
	paddingLen := header[6]
	// header[7] is reserved and ignored on read.

	if contentLen > 0 {
		rec.Content = make([]byte, contentLen)
		if _, err := io.ReadFull(r, rec.Content); err != nil {
			return Record{}, err
		}
	}
	if paddingLen > 0 {
		var pad [255]byte
		if _, err := io.ReadFull(r, pad[:paddingLen]); err != nil {
			return Record{}, err
		}
	}
	return rec, nil
}

// WriteRecord emits rec as a single 8-byte header followed by its content.
// Padding length and the reserved byte are always zero on write. Content
// longer than 65535 bytes is a programmer error: callers that need to
// emit larger bodies must chunk before calling WriteRecord.
func WriteRecord(w io.Writer, rec Record) error {
	if len(rec.Content) > maxContentLen {
		return fmt.Errorf("fcgi: oversize record: %d bytes exceeds %d", len(rec.Content), maxContentLen)
	}
	var header [8]byte
	header[0] = version
	header[1] = byte(rec.Type)
	binary.BigEndian.PutUint16(header[2:4], rec.RequestID)
	binary.BigEndian.PutUint16(header[4:6], uint16(len(rec.Content)))
	header[6] = 0 // padding length
	header[7] = 0 // reserved
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if len(rec.Content) > 0 {
		if _, err := w.Write(rec.Content); err != nil {
			return err
		}
	}
	return nil
}

// BeginRequestBody is the 8-byte content of a BeginRequest record.
type BeginRequestBody struct {
	Role     uint16
	KeepConn bool
}

// ParseBeginRequestBody decodes the role (16-bit big-endian, bytes 0-1) and
// the KEEP_CONN flag (bit 0 of byte 2). The remaining five bytes are
// reserved and ignored.
func ParseBeginRequestBody(content []byte) (BeginRequestBody, error) {
	if len(content) < 8 {
		return BeginRequestBody{}, fmt.Errorf("fcgi: short BeginRequestBody: %d bytes", len(content))
	}
	role := binary.BigEndian.Uint16(content[0:2])
	flags := content[2]
	return BeginRequestBody{Role: role, KeepConn: flags&1 != 0}, nil
}

// EndRequestBody is the 8-byte content of an EndRequest record.
type EndRequestBody struct {
	AppStatus      uint32
	ProtocolStatus ProtocolStatus
}

// Encode serialises b into the 8-byte EndRequestBody wire layout.
func (b EndRequestBody) Encode() []byte {
	var content [8]byte
	binary.BigEndian.PutUint32(content[0:4], b.AppStatus)
	content[4] = byte(b.ProtocolStatus)
	return content[:]
}
