package transport

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/RecursiveLabsInc/rpcpair/internal/wire"
	"github.com/RecursiveLabsInc/rpcpair/public/pair"
)

// ConnectWebSocket wires p over a gorilla websocket connection, one JSON
// frame per websocket message. Gorilla allows one concurrent reader and one
// concurrent writer, so writes are serialized behind a mutex and the single
// read loop owns the reader.
//
// The read loop runs until the connection reports an error. Closing the
// connection is the caller's job; the returned Disconnect only detaches
// the pair.
func ConnectWebSocket(p *pair.Pair, ws *websocket.Conn) Disconnect {
	var closed atomic.Bool
	var writeMu sync.Mutex

	p.SetSend(func(msg *wire.Message) error {
		if closed.Load() {
			return nil
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := ws.WriteJSON(msg); err != nil {
			return fmt.Errorf("write frame %s: %w", msg.ID, err)
		}
		return nil
	})

	go func() {
		for {
			var msg wire.Message
			if err := ws.ReadJSON(&msg); err != nil {
				return
			}
			if closed.Load() {
				return
			}
			p.Incoming(&msg)
		}
	}()

	return func() {
		if closed.CompareAndSwap(false, true) {
			p.SetSend(noopSend)
		}
	}
}
