package fcgi

import "bytes"

// Request is the per-request accumulator. It is created on
// BeginRequest, fed by the assembler as PARAMS/STDIN records arrive, and
// handed to the application once both streams have closed.
type Request struct {
	ID       uint16
	KeepConn bool

	paramBuf bytes.Buffer
	Params   ParamMap

	body       bytes.Buffer
	paramsDone bool
	stdinDone  bool
}

// newRequest creates the per-request state for a freshly begun request id.
func newRequest(id uint16, keepConn bool) *Request {
	return &Request{ID: id, KeepConn: keepConn}
}

// Body returns the accumulated STDIN content. Valid once Complete() is true.
func (r *Request) Body() []byte { return r.body.Bytes() }

// Complete reports whether both the PARAMS and STDIN streams have closed,
// i.e. whether the application handler may now be invoked.
func (r *Request) Complete() bool { return r.paramsDone && r.stdinDone }

// feedParams applies one PARAMS record's content to the assembler, per the
// following rule: non-empty content appends to the raw buffer; empty
// content closes the stream and triggers a parse of everything
// accumulated so far.
func (r *Request) feedParams(content []byte) error {
	if len(content) > 0 {
		r.paramBuf.Write(content)
		return nil
	}
	params, err := DecodeNameValueBlock(r.paramBuf.Bytes())
	if err != nil {
		return &ParamsError{RequestID: r.ID, Err: err}
	}
	r.Params = params
	r.paramsDone = true
	return nil
}

// feedStdin applies one STDIN record's content to the assembler: non-empty
// content appends to the body buffer; empty content closes the STDIN
// stream. The request is complete only once PARAMS has closed as well, so
// an empty STDIN that arrives before the closing PARAMS record does not by
// itself complete the request.
func (r *Request) feedStdin(content []byte) {
	if len(content) > 0 {
		r.body.Write(content)
		return
	}
	r.stdinDone = true
}
