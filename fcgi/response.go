package fcgi

import (
	"bytes"
	"fmt"
	"io"
)

// Response is the per-request response staging area handed to the
// application handler's received callback.
type Response struct {
	w io.Writer
	id uint16

	HTTPVersion string
	StatusCode  int
	body        bytes.Buffer
	closed      bool

	headerOrder []string
	headers     map[string]string

	contentType string
	charset     string
}

const defaultPoweredBy = "MVCXE.NGINX.FCGI"

// newResponse creates a staged Response for request id, defaulting to
// HTTP/1.1, status 200, an X-Powered-By header, and a composed
// Content-Type.
func newResponse(w io.Writer, id uint16) *Response {
	resp := &Response{
		w:           w,
		id:          id,
		HTTPVersion: "HTTP/1.1",
		StatusCode:  200,
		headers:     make(map[string]string),
		contentType: "text/html",
		charset:     "utf-8",
	}
	resp.setHeader("X-Powered-By", defaultPoweredBy)
	resp.refreshContentType()
	return resp
}

func (r *Response) setHeader(name, value string) {
	if _, exists := r.headers[name]; !exists {
		r.headerOrder = append(r.headerOrder, name)
	}
	r.headers[name] = value
}

func (r *Response) refreshContentType() {
	if r.contentType == "" {
		delete(r.headers, "Content-Type")
		return
	}
	if r.charset == "" {
		r.setHeader("Content-Type", r.contentType)
		return
	}
	r.setHeader("Content-Type", fmt.Sprintf("%s; charset=%s", r.contentType, r.charset))
}

// SetStatus sets the HTTP status code to report in the prelude.
func (r *Response) SetStatus(code int) { r.StatusCode = code }

// SetVersion sets the HTTP version string to report in the prelude.
func (r *Response) SetVersion(version string) { r.HTTPVersion = version }

// SetHeader sets an arbitrary response header, preserving first-seen order.
func (r *Response) SetHeader(name, value string) { r.setHeader(name, value) }

// SetContentType sets the content-type component of the Content-Type
// header, rewriting it (with any charset already set) immediately.
func (r *Response) SetContentType(contentType string) {
	r.contentType = contentType
	r.refreshContentType()
}

// SetCharset sets the charset component of the Content-Type header,
// rewriting "<type>; charset=<charset>" immediately if a content type is
// already set.
func (r *Response) SetCharset(charset string) {
	r.charset = charset
	r.refreshContentType()
}

// Write appends to the staged response body.
func (r *Response) Write(p []byte) (int, error) { return r.body.Write(p) }

// Closed reports whether the response has already been flushed.
func (r *Response) Closed() bool { return r.closed }

// Send assembles the CGI-style prelude ("<version> <code> OK\n" followed by
// one "<name>:<value>\n" per header in insertion order, a blank line, then
// the body) and feeds the result to SendRaw.
func (r *Response) Send(body []byte) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %d OK\n", r.HTTPVersion, r.StatusCode)
	for _, name := range r.headerOrder {
		fmt.Fprintf(&buf, "%s:%s\n", name, r.headers[name])
	}
	buf.WriteByte('\n')
	buf.Write(body)
	return r.SendRaw(buf.Bytes())
}

// SendRaw chunks data into segments of at most 65535 bytes, writes each as
// a STDOUT record, then writes a zero-length STDOUT to close the output
// stream followed by an EndRequest with RequestComplete. Exactly one
// closing empty STDOUT is emitted, never a redundant second one.
func (r *Response) SendRaw(data []byte) error {
	for len(data) > 0 {
		n := len(data)
		if n > maxContentLen {
			n = maxContentLen
		}
		if err := WriteRecord(r.w, Record{Type: Stdout, RequestID: r.id, Content: data[:n]}); err != nil {
			return err
		}
		data = data[n:]
	}
	if err := WriteRecord(r.w, Record{Type: Stdout, RequestID: r.id, Content: nil}); err != nil {
		return err
	}
	if err := WriteRecord(r.w, Record{
		Type:      EndRequest,
		RequestID: r.id,
		Content:   EndRequestBody{AppStatus: 0, ProtocolStatus: RequestComplete}.Encode(),
	}); err != nil {
		return err
	}
	r.closed = true
	return nil
}

// Flush closes the response if it has not already been closed, emitting an
// empty STDOUT/EndRequest pair over whatever body was buffered via Write.
// Idempotent.
func (r *Response) Flush() error {
	if r.closed {
		return nil
	}
	return r.Send(r.body.Bytes())
}
