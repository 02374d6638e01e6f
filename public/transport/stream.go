package transport

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/RecursiveLabsInc/rpcpair/internal/wire"
	"github.com/RecursiveLabsInc/rpcpair/public/pair"
)

// ParseError reports a stream line that failed to decode. The stream keeps
// running: one bad line never tears the pair down.
type ParseError struct {
	Line     []byte
	Original error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("RpcStreamTransportJsonParseError: %v (line %q)", e.Original, e.Line)
}

func (e *ParseError) Unwrap() error { return e.Original }

// StreamOptions configures a stream wiring.
type StreamOptions struct {
	// OnParseError receives lines that failed to decode. These surface on
	// the stream, not the pair; nil discards them.
	OnParseError func(*ParseError)

	// OnClose fires once when the read loop ends, with the terminal read
	// error (io.EOF on a clean peer close).
	OnClose func(error)
}

// ConnectStream wires p over rw using newline-delimited JSON: each outgoing
// frame is one JSON value followed by a newline, and incoming bytes are
// buffered by newline with any trailing partial line carried to the next
// read.
//
// The read loop runs until rw reports an error (EOF included); after
// Disconnect it keeps reading but drops every frame. Closing rw is the
// caller's job; the returned Disconnect only detaches the pair.
func ConnectStream(p *pair.Pair, rw io.ReadWriter, opts StreamOptions) Disconnect {
	var closed atomic.Bool
	var writeMu sync.Mutex

	p.SetSend(func(msg *wire.Message) error {
		if closed.Load() {
			return nil
		}
		line, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encode frame %s: %w", msg.ID, err)
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if _, err := rw.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("write frame %s: %w", msg.ID, err)
		}
		return nil
	})

	go func() {
		reader := bufio.NewReader(rw)
		for {
			line, err := reader.ReadBytes('\n')
			if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 && !closed.Load() {
				dispatchLine(p, trimmed, opts.OnParseError)
			}
			if err != nil {
				if opts.OnClose != nil {
					opts.OnClose(err)
				}
				return
			}
		}
	}()

	return func() {
		if closed.CompareAndSwap(false, true) {
			p.SetSend(noopSend)
		}
	}
}

func dispatchLine(p *pair.Pair, line []byte, onParseError func(*ParseError)) {
	var msg wire.Message
	if err := json.Unmarshal(line, &msg); err != nil {
		if onParseError != nil {
			// Copy: the slice aliases the reader's buffer.
			onParseError(&ParseError{Line: append([]byte(nil), line...), Original: err})
		}
		return
	}
	p.Incoming(&msg)
}
