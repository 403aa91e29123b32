package fcgi

import (
	"bytes"
	"strings"
	"testing"
)

func readAllRecords(t *testing.T, buf *bytes.Buffer) []Record {
	t.Helper()
	var recs []Record
	for buf.Len() > 0 {
		rec, err := ReadRecord(buf)
		if err != nil {
			t.Fatalf("ReadRecord() error = %v", err)
		}
		recs = append(recs, rec)
	}
	return recs
}

func TestResponseSendSmallBody(t *testing.T) {
	var buf bytes.Buffer
	resp := newResponse(&buf, 1)
	if err := resp.Send([]byte("hi")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	recs := readAllRecords(t, &buf)
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	if recs[0].Type != Stdout || len(recs[0].Content) == 0 {
		t.Errorf("record 0 = %+v, want non-empty Stdout", recs[0])
	}
	want := "HTTP/1.1 200 OK\nX-Powered-By:MVCXE.NGINX.FCGI\nContent-Type:text/html; charset=utf-8\n\nhi"
	if string(recs[0].Content) != want {
		t.Errorf("prelude+body = %q, want %q", recs[0].Content, want)
	}
	if recs[1].Type != Stdout || len(recs[1].Content) != 0 {
		t.Errorf("record 1 = %+v, want empty Stdout", recs[1])
	}
	if recs[2].Type != EndRequest {
		t.Errorf("record 2 type = %v, want EndRequest", recs[2].Type)
	}
	if !resp.Closed() {
		t.Error("response should be closed after Send()")
	}
}

func TestResponseLargeBodyChunking(t *testing.T) {
	var buf bytes.Buffer
	resp := newResponse(&buf, 1)
	body := bytes.Repeat([]byte{'z'}, 200000)
	if err := resp.SendRaw(body); err != nil {
		t.Fatalf("SendRaw() error = %v", err)
	}
	recs := readAllRecords(t, &buf)
	if len(recs) != 6 {
		t.Fatalf("got %d records, want 6 (4 Stdout chunks + closing Stdout + EndRequest)", len(recs))
	}
	wantLens := []int{65535, 65535, 65535, 3395}
	sum := 0
	for i, want := range wantLens {
		if len(recs[i].Content) != want {
			t.Errorf("chunk %d length = %d, want %d", i, len(recs[i].Content), want)
		}
		if len(recs[i].Content) > maxContentLen {
			t.Errorf("chunk %d exceeds 65535 bytes", i)
		}
		sum += len(recs[i].Content)
	}
	if sum != 200000 {
		t.Errorf("sum of chunk lengths = %d, want 200000", sum)
	}
	if len(recs[4].Content) != 0 || recs[4].Type != Stdout {
		t.Errorf("record 4 = %+v, want empty Stdout", recs[4])
	}
	if recs[5].Type != EndRequest {
		t.Errorf("record 5 type = %v, want EndRequest", recs[5].Type)
	}
}

func TestResponseCharsetRewritesContentType(t *testing.T) {
	var buf bytes.Buffer
	resp := newResponse(&buf, 1)
	resp.SetContentType("application/json")
	resp.SetCharset("iso-8859-1")
	if got := resp.headers["Content-Type"]; got != "application/json; charset=iso-8859-1" {
		t.Errorf("Content-Type = %q, want %q", got, "application/json; charset=iso-8859-1")
	}
}

func TestResponseFlushIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	resp := newResponse(&buf, 1)
	resp.Write([]byte("abc"))
	if err := resp.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	lenAfterFirst := buf.Len()
	if err := resp.Flush(); err != nil {
		t.Fatalf("second Flush() error = %v", err)
	}
	if buf.Len() != lenAfterFirst {
		t.Error("second Flush() should be a no-op")
	}
}

func TestResponseHeaderOrderPreserved(t *testing.T) {
	var buf bytes.Buffer
	resp := newResponse(&buf, 1)
	resp.SetHeader("X-First", "1")
	resp.SetHeader("X-Second", "2")
	if err := resp.Send(nil); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	rec, err := ReadRecord(&buf)
	if err != nil {
		t.Fatalf("ReadRecord() error = %v", err)
	}
	prelude := string(rec.Content)
	firstIdx := strings.Index(prelude, "X-First:1")
	secondIdx := strings.Index(prelude, "X-Second:2")
	if firstIdx == -1 || secondIdx == -1 || firstIdx > secondIdx {
		t.Errorf("header order not preserved in prelude: %q", prelude)
	}
}
