// Package upstream owns the single client connection to the ocean
// server. One background goroutine reads newline-delimited JSON messages
// and dispatches them by kind; all outbound writes go through a single
// critical section so concurrent callers never interleave bytes.
package upstream

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/oceanlab/shipgate/internal/await"
	"github.com/oceanlab/shipgate/internal/protocol"
)

// DefaultQueryTimeout bounds how long Scan and Radar wait for their
// correlated response.
const DefaultQueryTimeout = 2 * time.Second

const dialTimeout = 5 * time.Second

// ErrNotConnected is returned by Send when no connection is open. No
// I/O is attempted in that case.
var ErrNotConnected = errors.New("upstream: not connected")

// State is a snapshot of the link's cached ship telemetry.
type State struct {
	Connected bool            `json:"connected"`
	ShipID    string          `json:"shipId,omitempty"`
	Sector    *protocol.Vec2D `json:"sector,omitempty"`
	Dir       *protocol.Vec2D `json:"dir,omitempty"`
	AbsPos    *protocol.Vec   `json:"absPos,omitempty"`
}

// Link is the connection to the ocean server. Cached fields are mutated
// only by the receive loop and by Reset; reads go through State().
type Link struct {
	host    string
	port    int
	onEvent func(event string, payload any)

	writeMu sync.Mutex

	mu     sync.Mutex
	conn   net.Conn
	shipID string
	sector *protocol.Vec2D
	dir    *protocol.Vec2D
	absPos *protocol.Vec

	scan  *await.Register[protocol.Scanned]
	radar *await.Register[[]protocol.RadarEcho]
}

// Dial connects to the ocean server and starts the receive loop. The
// caller decides whether to retry on failure; the link never reconnects
// on its own. onEvent receives pushed events (launched, move2d, crash,
// message) and may be nil.
func Dial(host string, port int, onEvent func(event string, payload any)) (*Link, error) {
	l := &Link{
		host:    host,
		port:    port,
		onEvent: onEvent,
		scan:    await.New[protocol.Scanned](),
		radar:   await.New[[]protocol.RadarEcho](),
	}
	if err := l.connect(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Link) connect() error {
	addr := net.JoinHostPort(l.host, strconv.Itoa(l.port))
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return fmt.Errorf("upstream: connect %s: %w", addr, err)
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()

	log.Printf("upstream: connected to ocean server at %s", addr)
	go l.readLoop(conn)
	return nil
}

// Send serializes msg and writes one line. Concurrent senders are
// serialized; a disconnected link fails fast with ErrNotConnected.
func (l *Link) Send(msg any) error {
	line, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	if _, err := conn.Write(line); err != nil {
		return fmt.Errorf("upstream: write: %w", err)
	}
	return nil
}

// Scan sends a scan command and blocks until the scanned response
// arrives or timeout elapses.
func (l *Link) Scan(timeout time.Duration) (protocol.Scanned, error) {
	return l.scan.RequestAndAwait(func() error {
		return l.Send(protocol.Plain{Cmd: protocol.CmdScan})
	}, timeout)
}

// Radar sends a radar command and blocks for the echo list.
func (l *Link) Radar(timeout time.Duration) ([]protocol.RadarEcho, error) {
	return l.radar.RequestAndAwait(func() error {
		return l.Send(protocol.Plain{Cmd: protocol.CmdRadar})
	}, timeout)
}

// State returns a copy of the cached telemetry.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := State{
		Connected: l.conn != nil,
		ShipID:    l.shipID,
	}
	if l.sector != nil {
		v := *l.sector
		s.Sector = &v
	}
	if l.dir != nil {
		v := *l.dir
		s.Dir = &v
	}
	if l.absPos != nil {
		v := *l.absPos
		s.AbsPos = &v
	}
	return s
}

// Reset tears the connection down, clears all cached state and both
// wait registers, then dials again. Safe to call while the old receive
// loop is still draining; its next read observes end-of-stream.
func (l *Link) Reset() error {
	if err := l.Send(protocol.Plain{Cmd: protocol.CmdExit}); err != nil && !errors.Is(err, ErrNotConnected) {
		log.Printf("upstream: send exit before reset: %v", err)
	}

	l.mu.Lock()
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
	}
	l.shipID = ""
	l.sector = nil
	l.dir = nil
	l.absPos = nil
	l.mu.Unlock()

	l.scan.Clear()
	l.radar.Clear()

	return l.connect()
}

// Close shuts the connection down without reconnecting.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.conn = nil
	return err
}

func (l *Link) readLoop(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		env, err := protocol.Decode(line)
		if err != nil {
			log.Printf("upstream: discarding line: %v", err)
			continue
		}
		l.dispatch(env)
	}
	if err := scanner.Err(); err != nil {
		log.Printf("upstream: connection lost: %v", err)
	} else {
		log.Printf("upstream: connection closed by server")
	}

	// A reset may already have swapped in a fresh connection; only
	// mark disconnected if ours is still current.
	l.mu.Lock()
	if l.conn == conn {
		l.conn = nil
	}
	l.mu.Unlock()
	conn.Close()
}

func (l *Link) dispatch(env *protocol.Envelope) {
	switch env.Cmd {
	case protocol.CmdLaunched:
		p, err := protocol.ParseLaunched(env)
		if err != nil {
			log.Printf("upstream: %v", err)
			return
		}
		l.mu.Lock()
		l.shipID = p.ID
		l.sector = p.Sector
		l.absPos = p.AbsPos
		l.mu.Unlock()
		log.Printf("upstream: ship launched, id=%s sector=%v", p.ID, p.Sector)
		l.emit("launched", p)

	case protocol.CmdMove2D:
		p, err := protocol.ParseMove2D(env)
		if err != nil {
			log.Printf("upstream: %v", err)
			return
		}
		l.mu.Lock()
		if p.Sector != nil {
			l.sector = p.Sector
		}
		if p.Dir != nil {
			l.dir = p.Dir
		}
		if p.AbsPos != nil {
			l.absPos = p.AbsPos
		}
		l.mu.Unlock()
		l.emit("move2d", p)

	case protocol.CmdCrash:
		p, err := protocol.ParseCrash(env)
		if err != nil {
			log.Printf("upstream: %v", err)
			return
		}
		log.Printf("upstream: ship crashed: %s sector=%v", p.Message, p.Sector)
		l.emit("crash", p)

	case protocol.CmdScanned:
		p, err := protocol.ParseScanned(env)
		if err != nil {
			log.Printf("upstream: %v", err)
			return
		}
		l.scan.Fulfill(*p)

	case protocol.CmdRadarResponse:
		p, err := protocol.ParseRadarResponse(env)
		if err != nil {
			log.Printf("upstream: %v", err)
			return
		}
		l.radar.Fulfill(p.Echos)

	case protocol.CmdMessage:
		p, err := protocol.ParseInfo(env)
		if err != nil {
			log.Printf("upstream: %v", err)
			return
		}
		log.Printf("upstream: server message (%s): %s", p.Type, p.Text)
		l.emit("message", p)

	default:
		log.Printf("upstream: unhandled message kind %q", env.Cmd)
	}
}

func (l *Link) emit(event string, payload any) {
	if l.onEvent != nil {
		l.onEvent(event, payload)
	}
}
