// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/absmach/mhttp/pkg/codec"
	mperrors "github.com/absmach/mhttp/pkg/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const pipelined = "POST /a HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello" +
	"GET /b HTTP/1.0\r\nHost: x\r\n\r\n" +
	"DELETE /c HTTP/1.1\r\n\r\n"

func wantPipelined() []*codec.Request {
	return []*codec.Request{
		codec.Post("/a").Body([]byte("hello")).Finish(),
		codec.Get("/b").Version(codec.HTTP10).Header("Host", "x").Finish(),
		codec.Delete("/c").Finish(),
	}
}

func readAll(t *testing.T, br *bufio.Reader) []*codec.Request {
	t.Helper()
	var out []*codec.Request
	for {
		req, err := ReadRequest(br)
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("ReadRequest() error = %v", err)
		}
		out = append(out, req)
	}
}

func TestReadRequest_Pipelined(t *testing.T) {
	readers := map[string]io.Reader{
		"whole":    strings.NewReader(pipelined),
		"one byte": iotest.OneByteReader(strings.NewReader(pipelined)),
		"half":     iotest.HalfReader(strings.NewReader(pipelined)),
	}

	for name, r := range readers {
		t.Run(name, func(t *testing.T) {
			got := readAll(t, bufio.NewReaderSize(r, 64))
			if diff := cmp.Diff(wantPipelined(), got, cmpopts.IgnoreUnexported(codec.Request{})); diff != "" {
				t.Errorf("requests mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadRequest_ExactFit(t *testing.T) {
	msg := "GET / HTTP/1.1\r\n\r\n"
	br := bufio.NewReaderSize(iotest.OneByteReader(strings.NewReader(msg+msg)), len(msg))

	for i := 0; i < 2; i++ {
		if _, err := ReadRequest(br); err != nil {
			t.Fatalf("read %d: error = %v", i, err)
		}
	}
	if _, err := ReadRequest(br); !errors.Is(err, io.EOF) {
		t.Errorf("final read error = %v, want io.EOF", err)
	}
}

func TestReadRequest_TooLarge(t *testing.T) {
	msg := "GET /" + strings.Repeat("a", 64) + " HTTP/1.1\r\n\r\n"
	br := bufio.NewReaderSize(strings.NewReader(msg), 32)

	_, err := ReadRequest(br)
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("error = %v, want ErrMessageTooLarge", err)
	}
	if mperrors.StatusFor(err) != codec.StatusBadRequest {
		t.Errorf("StatusFor() = %v, want 400", mperrors.StatusFor(err))
	}
}

func TestReadRequest_BodyTooLarge(t *testing.T) {
	msg := "PUT / HTTP/1.1\r\nContent-Length: 100\r\n\r\n" + strings.Repeat("b", 100)
	br := bufio.NewReaderSize(strings.NewReader(msg), 64)

	if _, err := ReadRequest(br); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("error = %v, want ErrMessageTooLarge", err)
	}
}

func TestReadRequest_UnexpectedEOF(t *testing.T) {
	for _, msg := range []string{
		"GET / HTTP/1.1\r\n",
		"POST / HTTP/1.1\r\nContent-Length: 4\r\n\r\nab",
	} {
		br := bufio.NewReader(strings.NewReader(msg))
		if _, err := ReadRequest(br); !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("ReadRequest(%q) error = %v, want io.ErrUnexpectedEOF", msg, err)
		}
	}
}

func TestReadRequest_Malformed(t *testing.T) {
	br := bufio.NewReader(strings.NewReader("GET /\r\n\r\n"))

	_, err := ReadRequest(br)
	var perr *codec.ParseError
	if !errors.As(err, &perr) || !errors.Is(err, codec.ErrInvalidHeader) {
		t.Errorf("error = %v, want *codec.ParseError wrapping ErrInvalidHeader", err)
	}
}

func TestReadRequest_ReaderError(t *testing.T) {
	boom := errors.New("boom")
	br := bufio.NewReader(iotest.ErrReader(boom))

	if _, err := ReadRequest(br); !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
}

func TestReadResponse(t *testing.T) {
	stream := "HTTP/1.1 200 OK\r\nContent-Length: 11\r\n\r\nHello World" +
		"HTTP/1.1 404 Not Found\r\n\r\n"
	br := bufio.NewReaderSize(iotest.OneByteReader(strings.NewReader(stream)), 64)

	first, err := ReadResponse(br)
	if err != nil {
		t.Fatalf("ReadResponse() error = %v", err)
	}
	if first.Status != codec.StatusOK || string(first.Body) != "Hello World" {
		t.Errorf("first = %v %q", first.Status, first.Body)
	}

	second, err := ReadResponse(br)
	if err != nil {
		t.Fatalf("ReadResponse() error = %v", err)
	}
	if second.Status != codec.StatusNotFound || second.Body != nil {
		t.Errorf("second = %v %q", second.Status, second.Body)
	}

	if _, err := ReadResponse(br); !errors.Is(err, io.EOF) {
		t.Errorf("final error = %v, want io.EOF", err)
	}
}

func TestWrite_Flushes(t *testing.T) {
	var out bytes.Buffer
	bw := bufio.NewWriter(&out)

	req := codec.Get("/x").Finish()
	if err := WriteRequest(bw, req); err != nil {
		t.Fatalf("WriteRequest() error = %v", err)
	}
	res := codec.OK().Body([]byte("ok")).Finish()
	if err := WriteResponse(bw, res); err != nil {
		t.Fatalf("WriteResponse() error = %v", err)
	}

	want := "GET /x HTTP/1.1\r\n\r\nHTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"
	if out.String() != want {
		t.Errorf("written = %q, want %q", out.String(), want)
	}
}

func TestWrite_Error(t *testing.T) {
	boom := errors.New("closed")
	w := errWriter{boom}

	if err := WriteResponse(w, codec.OK().Finish()); !errors.Is(err, boom) {
		t.Errorf("WriteResponse() error = %v, want %v", err, boom)
	}
}

type errWriter struct{ err error }

func (w errWriter) Write([]byte) (int, error) { return 0, w.err }

func TestLingerClose_DeliversReply(t *testing.T) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer l.Close()

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		// Reply without reading the request, as after a malformed message.
		WriteResponse(conn, codec.BadRequest().Header("Connection", "close").Finish())
		LingerClose(conn)
	}()

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := io.WriteString(conn, strings.Repeat("x", 64<<10)); err != nil {
		t.Fatalf("write error = %v", err)
	}

	br := bufio.NewReader(conn)
	res, err := ReadResponse(br)
	if err != nil {
		t.Fatalf("ReadResponse() error = %v", err)
	}
	if res.Status != codec.StatusBadRequest {
		t.Errorf("Status = %v, want %v", res.Status, codec.StatusBadRequest)
	}
	if _, err := ReadResponse(br); !errors.Is(err, io.EOF) {
		t.Errorf("ReadResponse() after close error = %v, want io.EOF", err)
	}
}
