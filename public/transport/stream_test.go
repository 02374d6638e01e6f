package transport_test

import (
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/RecursiveLabsInc/rpcpair/public/pair"
	"github.com/RecursiveLabsInc/rpcpair/public/transport"
)

func newTestPair(t *testing.T, name string) *pair.Pair {
	t.Helper()
	p, err := pair.New(pair.Options{Name: name, OnError: func(err error) {
		t.Logf("pair %s sink: %v", name, err)
	}})
	if err != nil {
		t.Fatalf("New(%s): %v", name, err)
	}
	return p
}

func TestStreamRoundTrip(t *testing.T) {
	connA, connB := net.Pipe()
	defer connA.Close()
	defer connB.Close()

	a := newTestPair(t, "a")
	b := newTestPair(t, "b")
	b.Expose("upper", func(args []any) (any, error) {
		return strings.ToUpper(args[0].(string)), nil
	})

	da := transport.ConnectStream(a, connA, transport.StreamOptions{})
	db := transport.ConnectStream(b, connB, transport.StreamOptions{})
	defer da()
	defer db()

	got, err := a.CallWithOptions(pair.CallOptions{Timeout: time.Second}, "upper", "hello")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "HELLO" {
		t.Fatalf("got %v", got)
	}
}

// rwPair glues a read side and a write side into one io.ReadWriter.
type rwPair struct {
	io.Reader
	io.Writer
}

func TestStreamPartialLines(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	b := newTestPair(t, "b")
	delivered := make(chan []any, 1)
	b.On("greet", func(args []any) { delivered <- args })

	disconnect := transport.ConnectStream(b, rwPair{Reader: pr, Writer: io.Discard}, transport.StreamOptions{})
	defer disconnect()

	// One frame, written byte-dribbled across several writes: the reader
	// must buffer the partial line until the newline lands.
	frame := `{"id":"peer:1","type":"notify","event":"greet","data":["hi"]}` + "\n"
	for _, chunk := range []string{frame[:10], frame[10:25], frame[25:]} {
		if _, err := pw.Write([]byte(chunk)); err != nil {
			t.Fatalf("write: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case args := <-delivered:
		if len(args) != 1 || args[0] != "hi" {
			t.Fatalf("delivered %v", args)
		}
	case <-time.After(time.Second):
		t.Fatalf("frame never delivered")
	}
}

func TestStreamParseErrorDoesNotTearDown(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	b := newTestPair(t, "b")
	delivered := make(chan []any, 1)
	b.On("greet", func(args []any) { delivered <- args })

	parseErrs := make(chan *transport.ParseError, 1)
	disconnect := transport.ConnectStream(b, rwPair{Reader: pr, Writer: io.Discard}, transport.StreamOptions{
		OnParseError: func(pe *transport.ParseError) { parseErrs <- pe },
	})
	defer disconnect()

	if _, err := pw.Write([]byte("this is not json\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := pw.Write([]byte(`{"id":"peer:2","type":"notify","event":"greet","data":["still alive"]}` + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case pe := <-parseErrs:
		if string(pe.Line) != "this is not json" {
			t.Fatalf("parse error line %q", pe.Line)
		}
		if pe.Original == nil {
			t.Fatalf("parse error lost its cause")
		}
		if !strings.Contains(pe.Error(), "RpcStreamTransportJsonParseError") {
			t.Fatalf("error shape: %q", pe.Error())
		}
	case <-time.After(time.Second):
		t.Fatalf("parse error never surfaced")
	}

	// The stream survived the bad line.
	select {
	case args := <-delivered:
		if args[0] != "still alive" {
			t.Fatalf("delivered %v", args)
		}
	case <-time.After(time.Second):
		t.Fatalf("stream died after parse error")
	}
}

func TestStreamOnClose(t *testing.T) {
	pr, pw := io.Pipe()

	b := newTestPair(t, "b")
	closed := make(chan error, 1)
	disconnect := transport.ConnectStream(b, rwPair{Reader: pr, Writer: io.Discard}, transport.StreamOptions{
		OnClose: func(err error) { closed <- err },
	})
	defer disconnect()

	pw.Close()
	select {
	case err := <-closed:
		if err != io.EOF {
			t.Fatalf("terminal error %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("OnClose never fired")
	}
}

func TestStreamDisconnectDropsTraffic(t *testing.T) {
	connA, connB := net.Pipe()
	defer connA.Close()
	defer connB.Close()

	a := newTestPair(t, "a")
	b := newTestPair(t, "b")
	b.Expose("ping", func(args []any) (any, error) { return "pong", nil })

	da := transport.ConnectStream(a, connA, transport.StreamOptions{})
	db := transport.ConnectStream(b, connB, transport.StreamOptions{})
	defer db()

	da()

	// After disconnection the send function is a silent no-op, so the
	// call simply times out; nothing reaches the peer.
	_, err := a.CallWithOptions(pair.CallOptions{Timeout: 30 * time.Millisecond}, "ping")
	if err == nil || !strings.Contains(err.Error(), "Timeout") {
		t.Fatalf("got %v", err)
	}
}

func TestLink(t *testing.T) {
	a := newTestPair(t, "a")
	b := newTestPair(t, "b")
	disconnect := transport.Link(a, b)
	defer disconnect()

	b.Expose("ping", func(args []any) (any, error) { return "pong", nil })
	got, err := a.Call("ping")
	if err != nil || got != "pong" {
		t.Fatalf("got %v, %v", got, err)
	}
}
