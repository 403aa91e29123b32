package fcgi

import (
	"io"
	"net"
	"testing"
	"time"
)

// pipeListener wires a *Listener's handler hooks to an in-process net.Pipe
// connection, for driving the per-connection state machine directly
// without binding a real socket.
func pipeListener(t *testing.T, onIncoming func(*Request), onReceived func(*Request, *Response)) (client net.Conn) {
	t.Helper()
	l := NewListener()
	if err := l.SetHandlers(onIncoming, onReceived); err != nil {
		t.Fatalf("SetHandlers() error = %v", err)
	}
	server, client := net.Pipe()
	go newConn(l, server).serve()
	return client
}

func writeBeginRequest(t *testing.T, w io.Writer, id uint16, flags byte) {
	t.Helper()
	content := []byte{0, 1, flags, 0, 0, 0, 0, 0} // role=1 (Responder)
	if err := WriteRecord(w, Record{Type: BeginRequest, RequestID: id, Content: content}); err != nil {
		t.Fatalf("WriteRecord(BeginRequest) error = %v", err)
	}
}

func writeEmptyParamsStdin(t *testing.T, w io.Writer, id uint16) {
	t.Helper()
	if err := WriteRecord(w, Record{Type: Params, RequestID: id, Content: nil}); err != nil {
		t.Fatalf("WriteRecord(Params) error = %v", err)
	}
	if err := WriteRecord(w, Record{Type: Stdin, RequestID: id, Content: nil}); err != nil {
		t.Fatalf("WriteRecord(Stdin) error = %v", err)
	}
}

// S1 — smallest GET: BeginRequest, empty Params, empty Stdin; handler
// writes "hi". Expect STDOUT{prelude+"hi"}, STDOUT{""}, EndRequest, then
// the connection closes (KEEP_CONN=0).
func TestScenarioS1SmallestGET(t *testing.T) {
	client := pipeListener(t, nil, func(req *Request, resp *Response) {
		resp.Write([]byte("hi"))
	})
	writeBeginRequest(t, client, 1, 0)
	writeEmptyParamsStdin(t, client, 1)

	rec1, err := ReadRecord(client)
	if err != nil {
		t.Fatalf("ReadRecord() error = %v", err)
	}
	want := "HTTP/1.1 200 OK\nX-Powered-By:MVCXE.NGINX.FCGI\nContent-Type:text/html; charset=utf-8\n\nhi"
	if rec1.Type != Stdout || string(rec1.Content) != want {
		t.Fatalf("record 1 = %+v, want Stdout %q", rec1, want)
	}

	rec2, err := ReadRecord(client)
	if err != nil || rec2.Type != Stdout || len(rec2.Content) != 0 {
		t.Fatalf("record 2 = %+v, err=%v, want empty Stdout", rec2, err)
	}

	rec3, err := ReadRecord(client)
	if err != nil || rec3.Type != EndRequest {
		t.Fatalf("record 3 = %+v, err=%v, want EndRequest", rec3, err)
	}

	// KEEP_CONN=0: the server must close the socket now.
	buf := make([]byte, 1)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := client.Read(buf); err != io.EOF {
		t.Fatalf("expected EOF after non-keepalive response, got %v", err)
	}
}

// S2 — keep-alive: same as S1 but KEEP_CONN=1; the connection survives to
// serve a second request with a different id.
func TestScenarioS2KeepAlive(t *testing.T) {
	client := pipeListener(t, nil, func(req *Request, resp *Response) {
		resp.Write([]byte("hi"))
	})
	writeBeginRequest(t, client, 1, 1)
	writeEmptyParamsStdin(t, client, 1)
	for i := 0; i < 3; i++ {
		if _, err := ReadRecord(client); err != nil {
			t.Fatalf("draining first response, record %d: %v", i, err)
		}
	}

	writeBeginRequest(t, client, 2, 1)
	writeEmptyParamsStdin(t, client, 2)
	rec, err := ReadRecord(client)
	if err != nil {
		t.Fatalf("ReadRecord() for second request error = %v", err)
	}
	if rec.RequestID != 2 || rec.Type != Stdout {
		t.Fatalf("second response record = %+v, want Stdout for request 2", rec)
	}
}

// S5 — GetValues probe: the listener answers with exactly the advertised
// values and then closes the connection.
func TestScenarioS5GetValues(t *testing.T) {
	client := pipeListener(t, nil, nil)
	content, err := EncodeNameValueBlock([]NameValue{
		{Name: "FCGI_MAX_CONNS"},
		{Name: "FCGI_MAX_REQS"},
		{Name: "FCGI_MPXS_CONNS"},
	})
	if err != nil {
		t.Fatalf("EncodeNameValueBlock() error = %v", err)
	}
	if err := WriteRecord(client, Record{Type: GetValues, RequestID: 0, Content: content}); err != nil {
		t.Fatalf("WriteRecord(GetValues) error = %v", err)
	}

	rec, err := ReadRecord(client)
	if err != nil {
		t.Fatalf("ReadRecord() error = %v", err)
	}
	if rec.Type != GetValuesResult {
		t.Fatalf("Type = %v, want GetValuesResult", rec.Type)
	}
	got, err := DecodeNameValueBlock(rec.Content)
	if err != nil {
		t.Fatalf("DecodeNameValueBlock() error = %v", err)
	}
	want := map[string]string{"FCGI_MAX_CONNS": "1", "FCGI_MAX_REQS": "1", "FCGI_MPXS_CONNS": "0"}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}

	buf := make([]byte, 1)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := client.Read(buf); err != io.EOF {
		t.Fatalf("expected EOF after GetValues probe, got %v", err)
	}
}

// S6 — abort: a partial request is dropped on AbortRequest, the connection
// stays healthy, and no EndRequest is ever sent for the aborted id.
func TestScenarioS6Abort(t *testing.T) {
	var receivedIDs []uint16
	client := pipeListener(t, nil, func(req *Request, resp *Response) {
		receivedIDs = append(receivedIDs, req.ID)
		resp.Write([]byte("ok"))
	})

	writeBeginRequest(t, client, 7, 1)
	if err := WriteRecord(client, Record{Type: Params, RequestID: 7, Content: []byte{5, 0, 'H', 'E', 'L', 'L'}}); err != nil {
		t.Fatalf("WriteRecord(partial Params) error = %v", err)
	}
	if err := WriteRecord(client, Record{Type: AbortRequest, RequestID: 7, Content: nil}); err != nil {
		t.Fatalf("WriteRecord(AbortRequest) error = %v", err)
	}

	// The connection must still answer a fresh, unrelated request.
	writeBeginRequest(t, client, 8, 1)
	writeEmptyParamsStdin(t, client, 8)
	rec, err := ReadRecord(client)
	if err != nil {
		t.Fatalf("ReadRecord() after abort error = %v", err)
	}
	if rec.RequestID != 8 {
		t.Fatalf("RequestID = %d, want 8 (request 7 was aborted)", rec.RequestID)
	}
	if len(receivedIDs) != 1 || receivedIDs[0] != 8 {
		t.Errorf("handler invoked for ids %v, want only [8]", receivedIDs)
	}
}

// Invariant 4: exactly one EndRequest per completed request, preceded by a
// final empty Stdout.
func TestInvariantSingleEndRequest(t *testing.T) {
	client := pipeListener(t, nil, func(req *Request, resp *Response) {
		resp.Write([]byte("x"))
	})
	writeBeginRequest(t, client, 1, 0)
	writeEmptyParamsStdin(t, client, 1)

	var endRequests int
	var lastWasEmptyStdout bool
	for i := 0; i < 3; i++ {
		rec, err := ReadRecord(client)
		if err != nil {
			t.Fatalf("ReadRecord() error = %v", err)
		}
		if rec.Type == EndRequest {
			endRequests++
			if !lastWasEmptyStdout {
				t.Error("EndRequest was not preceded by an empty Stdout")
			}
		}
		lastWasEmptyStdout = rec.Type == Stdout && len(rec.Content) == 0
	}
	if endRequests != 1 {
		t.Errorf("got %d EndRequest records, want exactly 1", endRequests)
	}
}
