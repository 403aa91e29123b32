package fcgi

import (
	"net"
)

// connState is one of the four states a connection's driver loop can be in.
type connState int

const (
	stateIdle connState = iota
	stateBuilding
	stateDispatching
	stateClosing
)

// Conn owns one accepted TCP socket and drives its FastCGI state machine
// to completion. At most one request id is active on a connection at a
// time (multiplexing is not offered: FCGI_MPXS_CONNS=0), so a single
// active *Request is all the state needed.
type Conn struct {
	netConn net.Conn
	l       *Listener

	state   connState
	current *Request
}

func newConn(l *Listener, netConn net.Conn) *Conn {
	return &Conn{netConn: netConn, l: l, state: stateIdle}
}

// serve drives the connection until the peer closes it, a protocol error
// terminates it, or a completed non-keep-alive response flushes and the
// driver closes it itself. It never returns an error to the caller: all
// failure modes end the same way, by closing netConn.
func (c *Conn) serve() {
	defer c.netConn.Close()
	for {
		rec, err := readNextRecord(c.netConn, c.l.readTimeout())
		if err != nil {
			return
		}
		if !c.handleRecord(rec) {
			return
		}
		if c.state == stateClosing {
			return
		}
	}
}

// handleRecord applies one record to the state machine and returns false
// when the connection should be torn down immediately afterward.
func (c *Conn) handleRecord(rec Record) bool {
	switch rec.Type {
	case BeginRequest:
		return c.onBeginRequest(rec)
	case AbortRequest, EndRequest:
		c.dropRequest(rec.RequestID)
		c.state = stateIdle
		return true
	case Params:
		return c.onParams(rec)
	case Stdin:
		return c.onStdin(rec)
	case GetValues:
		return c.onGetValues(rec)
	default:
		// Unknown or out-of-state record type: read and discard.
		return true
	}
}

func (c *Conn) onBeginRequest(rec Record) bool {
	body, err := ParseBeginRequestBody(rec.Content)
	if err != nil {
		return false
	}
	// Duplicate-id recovery: a fresh BeginRequest for an id already being
	// built discards the previous accumulator.
	c.current = newRequest(rec.RequestID, body.KeepConn)
	c.state = stateBuilding
	if c.l.onIncoming != nil {
		c.l.onIncoming(c.current)
	}
	return true
}

func (c *Conn) onParams(rec Record) bool {
	if c.current == nil || rec.RequestID != c.current.ID {
		return true // reaches the assembler only in error; ignored.
	}
	if err := c.current.feedParams(rec.Content); err != nil {
		keepConn := c.current.KeepConn
		c.failRequest(c.current)
		return keepConn
	}
	return true
}

func (c *Conn) onStdin(rec Record) bool {
	if c.current == nil || rec.RequestID != c.current.ID {
		return true
	}
	c.current.feedStdin(rec.Content)
	if c.current.Complete() {
		return c.dispatch()
	}
	return true
}

func (c *Conn) onGetValues(rec Record) bool {
	// Only meaningful in Idle, but answering it
	// regardless of in-flight request bookkeeping is harmless since it
	// always closes the socket afterward.
	pairs := []NameValue{
		{Name: "FCGI_MAX_CONNS", Value: "1"},
		{Name: "FCGI_MAX_REQS", Value: "1"},
		{Name: "FCGI_MPXS_CONNS", Value: "0"},
	}
	content, err := EncodeNameValueBlock(pairs)
	if err != nil {
		return false
	}
	if err := WriteRecord(c.netConn, Record{Type: GetValuesResult, RequestID: 0, Content: content}); err != nil {
		return false
	}
	c.state = stateClosing
	return true
}

// dispatch invokes the application handler for the now-complete request,
// flushes its response if the handler didn't, and decides whether the
// connection stays open.
func (c *Conn) dispatch() bool {
	c.state = stateDispatching
	req := c.current
	resp := newResponse(c.netConn, req.ID)

	c.invokeHandler(req, resp)

	if !resp.Closed() {
		if err := resp.Flush(); err != nil {
			return false
		}
	}
	c.l.noteRequestCompleted()
	c.dropRequest(req.ID)

	if req.KeepConn {
		c.state = stateIdle
		return true
	}
	c.state = stateClosing
	return false
}

// invokeHandler calls the application's onRequestReceived hook, recovering
// from a panic by answering with an empty body and
// EndRequest{RequestComplete}; keep-alive rules are unchanged.
func (c *Conn) invokeHandler(req *Request, resp *Response) {
	defer func() {
		if rec := recover(); rec != nil {
			if !resp.Closed() {
				resp.body.Reset()
				_ = resp.Flush()
			}
		}
	}()
	if c.l.onReceived != nil {
		c.l.onReceived(req, resp)
	}
}

// failRequest answers a request whose PARAMS block failed to parse with an
// empty body and RequestComplete.
func (c *Conn) failRequest(req *Request) {
	resp := newResponse(c.netConn, req.ID)
	_ = resp.SendRaw(nil)
	c.dropRequest(req.ID)
	if req.KeepConn {
		c.state = stateIdle
	} else {
		c.state = stateClosing
	}
}

func (c *Conn) dropRequest(id uint16) {
	if c.current != nil && c.current.ID == id {
		c.current = nil
	}
}
