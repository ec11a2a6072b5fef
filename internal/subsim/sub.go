// Package subsim simulates a submarine agent over a synthetic seafloor.
// It dials the gateway's fleet port, announces itself with a ready
// handshake and then follows pilot commands, streaming measurements
// back as it moves.
package subsim

import (
	"bufio"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/oceanlab/shipgate/internal/protocol"
)

// routeSteps maps pilot routes to position deltas. UP and DOWN change
// depth instead.
var routeSteps = map[protocol.Route]protocol.Vec{
	protocol.RouteNorth:     {Y: 1},
	protocol.RouteNorthEast: {X: 1, Y: 1},
	protocol.RouteEast:      {X: 1},
	protocol.RouteSouthEast: {X: 1, Y: -1},
	protocol.RouteSouth:     {Y: -1},
	protocol.RouteSouthWest: {X: -1, Y: -1},
	protocol.RouteWest:      {X: -1},
	protocol.RouteNorthWest: {X: -1, Y: 1},
}

// Config tunes a simulated submarine.
type Config struct {
	ID       string
	Host     string
	Port     int
	StartPos protocol.Vec

	// MeasureInterval is how often a batch of ground points is sent.
	// Zero disables the periodic stream.
	MeasureInterval time.Duration
}

// Sub is one simulated submarine.
type Sub struct {
	cfg Config

	writeMu sync.Mutex
	conn    net.Conn

	mu    sync.RWMutex
	pos   protocol.Vec
	dir   protocol.Vec
	depth int
	dist  int
	sunk  bool
}

// New creates a simulated submarine.
func New(cfg Config) *Sub {
	if cfg.MeasureInterval == 0 {
		cfg.MeasureInterval = 5 * time.Second
	}
	return &Sub{
		cfg:   cfg,
		pos:   cfg.StartPos,
		dir:   protocol.Vec{X: 1},
		depth: -cfg.StartPos.Z,
	}
}

// Run connects and processes pilot commands until the connection drops
// or the submarine sinks.
func (s *Sub) Run() error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("subsim: connect %s: %w", addr, err)
	}
	s.conn = conn
	defer conn.Close()

	if err := s.sendReady(); err != nil {
		return err
	}
	log.Printf("subsim: %s ready at %v", s.cfg.ID, s.cfg.StartPos)

	stop := make(chan struct{})
	defer close(stop)
	go s.measureLoop(stop)

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		env, err := protocol.Decode(line)
		if err != nil {
			log.Printf("subsim: %s: discarding line: %v", s.cfg.ID, err)
			continue
		}
		if env.Cmd != protocol.CmdPilot {
			continue
		}
		p, err := protocol.ParsePilot(env)
		if err != nil {
			log.Printf("subsim: %s: %v", s.cfg.ID, err)
			continue
		}
		if done := s.handlePilot(p); done {
			return nil
		}
	}
	return scanner.Err()
}

// Pos returns the current position.
func (s *Sub) Pos() protocol.Vec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pos
}

func (s *Sub) send(msg any) error {
	line, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = s.conn.Write(line)
	return err
}

func (s *Sub) sendReady() error {
	s.mu.RLock()
	pos, dir, depth, dist := s.pos, s.dir, s.depth, s.dist
	s.mu.RUnlock()
	return s.send(struct {
		Cmd      string       `json:"cmd"`
		ID       string       `json:"id"`
		Pos      protocol.Vec `json:"pos"`
		Dir      protocol.Vec `json:"dir"`
		Depth    int          `json:"depth"`
		Distance int          `json:"distance"`
	}{protocol.CmdReady, s.cfg.ID, pos, dir, depth, dist})
}

// handlePilot applies one steering command. It reports true when the
// submarine is finished (sunk or surfaced and told to stop).
func (s *Sub) handlePilot(p *protocol.Pilot) bool {
	switch p.Route {
	case protocol.RouteNone:
		if p.Action != nil && *p.Action == "arise" {
			return s.arise()
		}
		return false
	case protocol.RouteCenter:
		return false
	case protocol.RouteUp:
		s.changeDepth(-1)
	case protocol.RouteDown:
		if s.changeDepth(1) {
			return true
		}
	default:
		step, ok := routeSteps[p.Route]
		if !ok {
			log.Printf("subsim: %s: unknown route %q", s.cfg.ID, p.Route)
			return false
		}
		s.move(step)
	}
	return false
}

func (s *Sub) move(step protocol.Vec) {
	s.mu.Lock()
	s.pos.X += step.X
	s.pos.Y += step.Y
	s.dir = step
	s.dist++
	s.mu.Unlock()
}

// changeDepth dives or climbs one step. Diving into the seafloor sinks
// the submarine; the crash message is followed by disconnect.
func (s *Sub) changeDepth(delta int) bool {
	s.mu.Lock()
	s.depth += delta
	if s.depth < 0 {
		s.depth = 0
	}
	pos := s.pos
	depth := s.depth
	s.mu.Unlock()

	if depth > seafloorDepth(pos.X, pos.Y) {
		s.crash(pos, depth)
		return true
	}
	return false
}

func (s *Sub) crash(pos protocol.Vec, depth int) {
	s.mu.Lock()
	s.sunk = true
	s.mu.Unlock()
	log.Printf("subsim: %s hit the seafloor at %v depth=%d", s.cfg.ID, pos, depth)
	s.send(struct {
		Cmd     string        `json:"cmd"`
		Message string        `json:"message"`
		SunkPos *protocol.Vec `json:"sunkPos"`
	}{protocol.CmdCrash, "ground contact", &protocol.Vec{X: pos.X, Y: pos.Y, Z: -depth}})
	s.conn.Close()
}

func (s *Sub) arise() bool {
	s.mu.Lock()
	s.depth = 0
	pos := s.pos
	s.mu.Unlock()
	log.Printf("subsim: %s surfacing at %v", s.cfg.ID, pos)
	s.send(struct {
		Cmd      string        `json:"cmd"`
		ArisePos *protocol.Vec `json:"arisePos"`
	}{protocol.CmdArise, &protocol.Vec{X: pos.X, Y: pos.Y, Z: 0}})
	return false
}

// measureLoop streams ground survey batches around the current position.
func (s *Sub) measureLoop(stop chan struct{}) {
	ticker := time.NewTicker(s.cfg.MeasureInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.RLock()
			pos := s.pos
			sunk := s.sunk
			s.mu.RUnlock()
			if sunk {
				return
			}
			vecs := surveyAround(pos)
			if err := s.send(struct {
				Cmd  string         `json:"cmd"`
				Vecs []protocol.Vec `json:"vecs"`
			}{protocol.CmdMeasure, vecs}); err != nil {
				return
			}
		}
	}
}

// seafloorDepth is the synthetic terrain: gentle rolling hills between
// roughly 20 and 60 units deep.
func seafloorDepth(x, y int) int {
	h := 40.0 + 15.0*math.Sin(float64(x)/7.0) + 8.0*math.Cos(float64(y)/5.0)
	return int(h)
}

// surveyAround samples the terrain in a 3x3 grid with sensor noise.
func surveyAround(pos protocol.Vec) []protocol.Vec {
	vecs := make([]protocol.Vec, 0, 9)
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			x, y := pos.X+dx, pos.Y+dy
			noise := rand.Intn(3) - 1
			vecs = append(vecs, protocol.Vec{X: x, Y: y, Z: -(seafloorDepth(x, y) + noise)})
		}
	}
	return vecs
}
