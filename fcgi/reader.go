package fcgi

import (
	"net"
	"time"
)

// deadlineReader re-arms the read deadline before every Read call on a
// net.Conn: each read is bounded by the connection's read timeout. It
// implements io.Reader so ReadRecord can be used unchanged against it.
type deadlineReader struct {
	conn    net.Conn
	timeout time.Duration
}

func newDeadlineReader(conn net.Conn, timeout time.Duration) *deadlineReader {
	return &deadlineReader{conn: conn, timeout: timeout}
}

func (d *deadlineReader) Read(p []byte) (int, error) {
	if d.timeout > 0 {
		if err := d.conn.SetReadDeadline(time.Now().Add(d.timeout)); err != nil {
			return 0, err
		}
	}
	return d.conn.Read(p)
}

// readNextRecord reads one complete record off conn, with the deadline
// re-armed for each of the header/content/padding reads it performs
// internally via ReadRecord.
func readNextRecord(conn net.Conn, timeout time.Duration) (Record, error) {
	return ReadRecord(newDeadlineReader(conn, timeout))
}
