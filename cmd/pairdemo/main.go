// Package main runs one endpoint of an RPC pair over TCP, demonstrating
// the full surface of the library: exposed methods, acknowledged events,
// and an actor with forwarded events.
//
// Run the serving side first, then the calling side:
//
//	pairdemo config/server.yaml
//	pairdemo config/client.yaml
//
// A minimal server config:
//
//	name: host
//	listen: ":9300"
//
// and client config:
//
//	name: renderer
//	connect: "localhost:9300"
//
// Setting DEBUG=1 (or debug: true in the config) traces every frame.
package main

import (
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/RecursiveLabsInc/rpcpair/internal/config"
	"github.com/RecursiveLabsInc/rpcpair/public/actors"
	"github.com/RecursiveLabsInc/rpcpair/public/pair"
	"github.com/RecursiveLabsInc/rpcpair/public/transport"
)

func main() {
	var cfg *config.Config
	var configSource string

	// Determine config source using priority hierarchy
	if len(os.Args) >= 2 {
		configFile := os.Args[1]
		loadedCfg, err := config.Load(configFile)
		if err != nil {
			log.Fatalf("Failed to load config from %s: %v", configFile, err)
		}
		cfg = loadedCfg
		configSource = "config file: " + configFile
	} else if _, err := os.Stat("config/pairdemo.yaml"); err == nil {
		loadedCfg, err := config.Load("config/pairdemo.yaml")
		if err != nil {
			log.Fatalf("config/pairdemo.yaml exists but failed to load: %v", err)
		}
		cfg = loadedCfg
		configSource = "config/pairdemo.yaml (default)"
	} else {
		cfg = &config.Config{Name: "host", Listen: ":9300", Codec: "json"}
		configSource = "hardcoded defaults"
	}

	log.Printf("Starting pairdemo %s using %s", cfg.Name, configSource)

	if cfg.Listen != "" {
		runServer(cfg)
	} else {
		runClient(cfg)
	}
}

// newPair builds the endpoint from config; protocol anomalies are logged.
func newPair(cfg *config.Config) *pair.Pair {
	p, err := pair.New(pair.Options{
		Name:        cfg.Name,
		Debug:       cfg.Debug,
		Timeout:     cfg.CallTimeout(),
		EmitTimeout: cfg.EmitTimeout(),
		OnError: func(err error) {
			log.Printf("pair %s: protocol error: %v", cfg.Name, err)
		},
	})
	if err != nil {
		log.Fatalf("Failed to create pair: %v", err)
	}
	return p
}

// connect wires the pair over the connection and returns the disconnect
// handle plus a channel closed when the stream ends.
func connect(cfg *config.Config, p *pair.Pair, conn net.Conn) (transport.Disconnect, <-chan struct{}) {
	done := make(chan struct{})
	opts := transport.StreamOptions{
		OnParseError: func(pe *transport.ParseError) {
			log.Printf("stream: %v", pe)
		},
		OnClose: func(error) { close(done) },
	}
	if cfg.Codec == "msgpack" {
		return transport.ConnectMsgpackStream(p, conn, opts), done
	}
	return transport.ConnectStream(p, conn, opts), done
}

// Incrementer is the demo actor: a counter with a name, publishing a
// "changed" event on every increment.
type Incrementer struct {
	Name   string
	Value  int
	events *pair.Emitter
}

func (i *Incrementer) Events() *pair.Emitter { return i.events }

func (i *Incrementer) Increment() int {
	i.Value++
	i.events.Emit("changed", []any{i.Value})
	return i.Value
}

func runServer(cfg *config.Config) {
	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", cfg.Listen, err)
	}
	log.Printf("Serving on %s (%s)", cfg.Listen, cfg.Codec)

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go serveConn(cfg, conn)
		}
	}()

	// Block until shutdown signal received
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("Received signal: %s, shutting down...", sig)
	listener.Close()
}

// serveConn hosts a fresh logical pair per connection: a reconnect yields a
// new pair, never a resumed one.
func serveConn(cfg *config.Config, conn net.Conn) {
	defer conn.Close()
	log.Printf("Connection from %s", conn.RemoteAddr())

	p := newPair(cfg)
	p.Expose("add", func(args []any) (any, error) {
		sum := 0.0
		for _, a := range args {
			if n, ok := a.(float64); ok {
				sum += n
			}
		}
		return sum, nil
	})
	p.On("hi", func(args []any) {
		log.Printf("peer says hi: %v", args)
	})

	registry := actors.NewRegistry(actors.Options{
		OnForwardError: func(err error) {
			log.Printf("actor event forward: %v", err)
		},
	})
	if err := registry.Expose(p); err != nil {
		log.Printf("Failed to expose registry: %v", err)
		return
	}
	if err := registry.ExposeActor("incrementer-1", &Incrementer{
		Name:   "I am an ACTOR",
		events: pair.NewEmitter(),
	}); err != nil {
		log.Printf("Failed to expose actor: %v", err)
		return
	}

	disconnect, done := connect(cfg, p, conn)
	defer disconnect()

	<-done
	log.Printf("Connection from %s closed", conn.RemoteAddr())
}

func runClient(cfg *config.Config) {
	conn, err := net.Dial("tcp", cfg.Connect)
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", cfg.Connect, err)
	}
	defer conn.Close()

	p := newPair(cfg)
	disconnect, _ := connect(cfg, p, conn)
	defer disconnect()

	sum, err := p.Call("add", 10, 5)
	if err != nil {
		log.Fatalf("add failed: %v", err)
	}
	log.Printf("add(10, 5) = %v", sum)

	if err := p.Emit("hi", "from "+cfg.Name); err != nil {
		log.Fatalf("emit failed: %v", err)
	}
	log.Printf("hi acknowledged")

	client := actors.Mixin(p)
	actor := client.GetActor("incrementer-1")

	sub := actor.On("changed", func(args []any) {
		log.Printf("incrementer changed: %v", args)
	})
	defer sub.Close()

	for i := 0; i < 3; i++ {
		v, err := actor.Call("increment")
		if err != nil {
			log.Fatalf("increment failed: %v", err)
		}
		log.Printf("increment -> %v", v)
	}

	name, err := actor.Get("name")
	if err != nil {
		log.Fatalf("get name failed: %v", err)
	}
	log.Printf("actor name: %v", name)
}
