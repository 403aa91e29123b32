package fcgi

import (
	"encoding/binary"
	"fmt"
)

// maxPairLen guards against name/value lengths that cannot be represented
// safely as a Go int on 32-bit hosts.
const maxPairLen = 1<<31 - 1

// readVarLen reads one FastCGI variable-length integer from buf starting at
// off, returning the decoded value and the offset just past it. A value
// whose top bit is clear is one byte (0..127); otherwise it occupies four
// bytes, big-endian, with the top bit masked off the first byte.
func readVarLen(buf []byte, off int) (int, int, error) {
	if off >= len(buf) {
		return 0, off, errShortNameValue
	}
	b0 := buf[off]
	if b0&0x80 == 0 {
		return int(b0), off + 1, nil
	}
	if off+4 > len(buf) {
		return 0, off, errShortNameValue
	}
	v := binary.BigEndian.Uint32(buf[off : off+4])
	v &^= 0x80000000
	if v > maxPairLen {
		return 0, off, fmt.Errorf("fcgi: oversize name/value length: %d", v)
	}
	return int(v), off + 4, nil
}

// writeVarLen appends n's FastCGI variable-length encoding to buf.
func writeVarLen(buf []byte, n int) ([]byte, error) {
	if n < 0 || n > maxPairLen {
		return buf, fmt.Errorf("fcgi: oversize name/value length: %d", n)
	}
	if n <= 127 {
		return append(buf, byte(n)), nil
	}
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(n)|0x80000000)
	return append(buf, tmp[:]...), nil
}

var errShortNameValue = fmt.Errorf("fcgi: short read in name/value block")

// ParamMap is a parsed FastCGI parameter map. Names and values are opaque
// byte strings whose encoding is left to convention. Later occurrences
// of the same name overwrite earlier ones.
type ParamMap map[string]string

// EncodeNameValueBlock concatenates <nameLen><valueLen><name><value> tuples
// for every pair in order.
func EncodeNameValueBlock(pairs []NameValue) ([]byte, error) {
	var buf []byte
	var err error
	for _, p := range pairs {
		buf, err = writeVarLen(buf, len(p.Name))
		if err != nil {
			return nil, err
		}
		buf, err = writeVarLen(buf, len(p.Value))
		if err != nil {
			return nil, err
		}
		buf = append(buf, p.Name...)
		buf = append(buf, p.Value...)
	}
	return buf, nil
}

// NameValue is one ordered pair in a name/value block.
type NameValue struct {
	Name  string
	Value string
}

// DecodeNameValueBlock parses buf as a concatenation of name/value tuples
// until the buffer is exhausted. A short read partway through a tuple is
// a framing error.
func DecodeNameValueBlock(buf []byte) (ParamMap, error) {
	params := make(ParamMap)
	off := 0
	for off < len(buf) {
		nameLen, next, err := readVarLen(buf, off)
		if err != nil {
			return nil, err
		}
		off = next
		valueLen, next, err := readVarLen(buf, off)
		if err != nil {
			return nil, err
		}
		off = next
		if off+nameLen+valueLen > len(buf) {
			return nil, errShortNameValue
		}
		name := string(buf[off : off+nameLen])
		off += nameLen
		value := string(buf[off : off+valueLen])
		off += valueLen
		params[name] = value
	}
	return params, nil
}
