// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package wire reads and writes whole HTTP/1.x messages on a stream.
//
// Readers are *bufio.Reader values whose size bounds the largest message
// accepted. Bytes that follow a message stay buffered for the next call, so a
// single reader serves every message of a connection.
package wire

import (
	"bufio"
	"errors"
	"io"
	"net"
	"time"

	"github.com/absmach/mhttp/pkg/codec"
	mperrors "github.com/absmach/mhttp/pkg/errors"
)

// ErrMessageTooLarge is returned when the reader's buffer fills up before a
// complete message arrives.
var ErrMessageTooLarge = mperrors.ErrMessageTooLarge

// LingerTimeout bounds how long LingerClose keeps draining a peer.
const LingerTimeout = 500 * time.Millisecond

type message interface {
	Size() int
}

// ReadRequest reads the next request from br.
//
// It returns io.EOF when the stream ends between messages and
// io.ErrUnexpectedEOF when it ends inside one.
func ReadRequest(br *bufio.Reader) (*codec.Request, error) {
	return read(br, codec.ParseRequest)
}

// ReadResponse reads the next response from br.
//
// It returns io.EOF when the stream ends between messages and
// io.ErrUnexpectedEOF when it ends inside one.
func ReadResponse(br *bufio.Reader) (*codec.Response, error) {
	return read(br, codec.ParseResponse)
}

func read[M message](br *bufio.Reader, parse func([]byte) (M, error)) (M, error) {
	var zero M
	for {
		// Peeking what is already buffered never blocks or fails.
		buf, _ := br.Peek(br.Buffered())
		if len(buf) > 0 {
			msg, err := parse(buf)
			switch {
			case err == nil:
				if _, err := br.Discard(msg.Size()); err != nil {
					return zero, err
				}
				return msg, nil
			case !codec.IsNotEnoughData(err):
				return zero, err
			case len(buf) >= br.Size():
				return zero, ErrMessageTooLarge
			}
		}

		if _, err := br.Peek(len(buf) + 1); err != nil {
			if errors.Is(err, io.EOF) {
				if len(buf) == 0 {
					return zero, io.EOF
				}
				return zero, io.ErrUnexpectedEOF
			}
			return zero, err
		}
	}
}

// WriteRequest writes req to w, flushing w if it is a *bufio.Writer.
func WriteRequest(w io.Writer, req *codec.Request) error {
	if _, err := req.WriteTo(w); err != nil {
		return err
	}
	return flush(w)
}

// WriteResponse writes res to w, flushing w if it is a *bufio.Writer.
func WriteResponse(w io.Writer, res *codec.Response) error {
	if _, err := res.WriteTo(w); err != nil {
		return err
	}
	return flush(w)
}

func flush(w io.Writer) error {
	if bw, ok := w.(*bufio.Writer); ok {
		return bw.Flush()
	}
	return nil
}

// LingerClose half-closes conn and discards what the peer still sends, for at
// most LingerTimeout, so a final reply is not lost to a reset caused by
// unread input. The caller still closes conn.
func LingerClose(conn net.Conn) {
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		cw.CloseWrite()
	}
	conn.SetReadDeadline(time.Now().Add(LingerTimeout))
	io.Copy(io.Discard, conn)
}
