// Package cgiadapt bridges a *fcgi.Request/*fcgi.Response pair to the
// net/http types that gorilla/sessions and golang.org/x/oauth2 expect,
// the same HTTP_-prefixed env convention cmd/spawner/main.go's
// proxyRequest builds going the other way, only read back here instead
// of written.
package cgiadapt

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sylee/fcgi-responder/fcgi"
)

// NewRequest builds an *http.Request from req's CGI-style params, the
// way net/http/fcgi's child-process side does it, but in-process.
func NewRequest(req *fcgi.Request) (*http.Request, error) {
	method := req.Params["REQUEST_METHOD"]
	if method == "" {
		method = http.MethodGet
	}

	target := req.Params["REQUEST_URI"]
	if target == "" {
		target = req.Params["SCRIPT_NAME"]
		if qs := req.Params["QUERY_STRING"]; qs != "" {
			target += "?" + qs
		}
	}
	u, err := url.ParseRequestURI(target)
	if err != nil {
		u = &url.URL{Path: target}
	}

	httpReq, err := http.NewRequest(method, u.String(), bytes.NewReader(req.Body()))
	if err != nil {
		return nil, err
	}
	httpReq.RequestURI = target
	httpReq.RemoteAddr = req.Params["REMOTE_ADDR"]
	httpReq.Host = req.Params["HTTP_HOST"]
	if proto := req.Params["SERVER_PROTOCOL"]; proto != "" {
		httpReq.Proto = proto
	}

	for name, value := range req.Params {
		if !strings.HasPrefix(name, "HTTP_") {
			continue
		}
		header := strings.ReplaceAll(strings.TrimPrefix(name, "HTTP_"), "_", "-")
		httpReq.Header.Set(header, value)
	}
	if ct := req.Params["CONTENT_TYPE"]; ct != "" {
		httpReq.Header.Set("Content-Type", ct)
	}
	return httpReq, nil
}

// ResponseWriter adapts a *fcgi.Response to http.ResponseWriter so
// net/http-shaped middleware (gorilla/sessions, oauth2's exchange
// client) can answer through the FastCGI connection directly.
type ResponseWriter struct {
	resp        *fcgi.Response
	header      http.Header
	wroteHeader bool
}

// NewResponseWriter wraps resp.
func NewResponseWriter(resp *fcgi.Response) *ResponseWriter {
	return &ResponseWriter{resp: resp, header: make(http.Header)}
}

// Header returns the header map that will be flushed to resp on the
// first Write or explicit WriteHeader call.
func (w *ResponseWriter) Header() http.Header { return w.header }

// WriteHeader sets the status code and copies the accumulated headers
// onto the underlying response; a header with several values keeps only
// its last value there. Only the first call has any effect,
// matching net/http.ResponseWriter's documented behavior.
func (w *ResponseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.resp.SetStatus(code)
	for name, values := range w.header {
		for _, v := range values {
			w.resp.SetHeader(name, v)
		}
	}
}

// Write implements io.Writer, sending the first call's headers via
// WriteHeader(http.StatusOK) if none were set explicitly.
func (w *ResponseWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.resp.Write(p)
}

var _ io.Writer = (*ResponseWriter)(nil)
