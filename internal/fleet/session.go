package fleet

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/oceanlab/shipgate/internal/picture"
	"github.com/oceanlab/shipgate/internal/protocol"
)

// Recorder is the persistence boundary for submarine telemetry. Calls
// are best-effort: failures are logged and never retried, and must not
// stall the session receive loop.
type Recorder interface {
	SaveSubmarine(id, shipID string) error
	SavePosition(id string, pos, dir *protocol.Vec, depth, distance int) error
	SaveMeasurements(id string, vecs []protocol.Vec) error
	SavePicture(id, pictureHex, filePath string) error
	SaveCrash(id, message string, sector *protocol.Vec2D, sunkPos *protocol.Vec) error
	SaveArise(id string, pos *protocol.Vec) error
}

// PictureSink writes decoded camera images to durable storage and
// returns the resulting path.
type PictureSink interface {
	Save(id string, data []byte) (string, error)
}

// SessionInfo is a read-only snapshot of a session.
type SessionInfo struct {
	ID        string        `json:"id"`
	Pos       *protocol.Vec `json:"pos,omitempty"`
	Dir       *protocol.Vec `json:"dir,omitempty"`
	Depth     int           `json:"depth"`
	Distance  int           `json:"distance"`
	HasImage  bool          `json:"hasPicture"`
	PictureAt time.Time     `json:"pictureTimestamp,omitzero"`
}

// Session is one accepted submarine connection. It is reachable through
// the registry only after its ready handshake names it.
type Session struct {
	conn     net.Conn
	registry *Registry
	recorder Recorder
	pictures PictureSink
	ownerID  func() string
	events   func(event string, payload any)

	writeMu sync.Mutex

	mu         sync.Mutex
	id         string
	pos        *protocol.Vec
	dir        *protocol.Vec
	depth      int
	distance   int
	pictureHex string
	pictureAt  time.Time

	closeOnce sync.Once
}

func newSession(conn net.Conn, srv *Server) *Session {
	return &Session{
		conn:     conn,
		registry: srv.registry,
		recorder: srv.recorder,
		pictures: srv.pictures,
		ownerID:  srv.ownerID,
		events:   srv.events,
	}
}

// ID returns the session's identifier, or "" before the handshake.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Info returns a snapshot of the cached telemetry.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := SessionInfo{
		ID:        s.id,
		Depth:     s.depth,
		Distance:  s.distance,
		HasImage:  s.pictureHex != "",
		PictureAt: s.pictureAt,
	}
	if s.pos != nil {
		v := *s.pos
		info.Pos = &v
	}
	if s.dir != nil {
		v := *s.dir
		info.Dir = &v
	}
	return info
}

// LastPicture returns the most recent raw picture payload and its
// capture time, or "" if none was received.
func (s *Session) LastPicture() (string, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pictureHex, s.pictureAt
}

// SendPilot steers the submarine. Writes are serialized against other
// senders on this connection.
func (s *Session) SendPilot(route protocol.Route, action string) error {
	line, err := protocol.Encode(protocol.NewPilot(route, action))
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.conn.Write(line); err != nil {
		return fmt.Errorf("fleet: write pilot to %s: %w", s.ID(), err)
	}
	return nil
}

// Terminate closes the connection. Idempotent; the receive loop
// observes end-of-stream and deregisters the session.
func (s *Session) Terminate() {
	s.closeOnce.Do(func() {
		s.conn.Close()
	})
}

// run is the session's receive loop. It registers the session once the
// handshake arrives and deregisters it on the way out.
func (s *Session) run() {
	defer func() {
		if id := s.ID(); id != "" {
			s.registry.remove(id, s)
			log.Printf("fleet: session %s disconnected", id)
			s.emit("sub_disconnected", map[string]string{"id": id})
		} else {
			log.Printf("fleet: session from %s disconnected before handshake", s.conn.RemoteAddr())
		}
		s.conn.Close()
	}()

	scanner := bufio.NewScanner(s.conn)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		env, err := protocol.Decode(line)
		if err != nil {
			log.Printf("fleet: session %s: discarding line: %v", s.ID(), err)
			continue
		}
		s.dispatch(env)
	}
	if err := scanner.Err(); err != nil {
		log.Printf("fleet: session %s: read: %v", s.ID(), err)
	}
}

func (s *Session) dispatch(env *protocol.Envelope) {
	switch env.Cmd {
	case protocol.CmdReady:
		s.handleReady(env)
	case protocol.CmdMessage:
		s.handleMessage(env)
	case protocol.CmdMeasure:
		s.handleMeasure(env)
	case protocol.CmdPicture:
		s.handlePicture(env)
	case protocol.CmdCrash:
		s.handleCrash(env)
	case protocol.CmdArise:
		s.handleArise(env)
	default:
		log.Printf("fleet: session %s: unhandled message kind %q", s.ID(), env.Cmd)
	}
}

func (s *Session) handleReady(env *protocol.Envelope) {
	p, err := protocol.ParseReady(env)
	if err != nil {
		log.Printf("fleet: %v", err)
		return
	}

	id := p.ID
	if id == "" {
		id = "sub@" + s.conn.RemoteAddr().String()
	}

	s.mu.Lock()
	s.id = id
	s.pos = p.Pos
	s.dir = p.Dir
	s.depth = p.Depth
	s.distance = p.Distance
	s.mu.Unlock()

	// Last-writer-wins: a reconnecting agent with the same id simply
	// replaces the old mapping entry.
	s.registry.register(id, s)
	log.Printf("fleet: session %s ready, pos=%v depth=%d distance=%d", id, p.Pos, p.Depth, p.Distance)
	s.emit("sub_ready", s.Info())

	owner := ""
	if s.ownerID != nil {
		owner = s.ownerID()
	}
	if err := s.recorder.SaveSubmarine(id, owner); err != nil {
		log.Printf("fleet: record submarine %s: %v", id, err)
	}
	if err := s.recorder.SavePosition(id, p.Pos, p.Dir, p.Depth, p.Distance); err != nil {
		log.Printf("fleet: record position %s: %v", id, err)
	}
}

func (s *Session) handleMessage(env *protocol.Envelope) {
	p, err := protocol.ParseInfo(env)
	if err != nil {
		log.Printf("fleet: %v", err)
		return
	}
	log.Printf("fleet: session %s message (%s): %s", s.ID(), p.Type, p.Text)
	s.emit("sub_message", map[string]any{"id": s.ID(), "type": p.Type, "text": p.Text, "pos": p.Pos})
}

func (s *Session) handleMeasure(env *protocol.Envelope) {
	p, err := protocol.ParseMeasure(env)
	if err != nil {
		log.Printf("fleet: %v", err)
		return
	}
	id := s.ID()
	log.Printf("fleet: session %s: %d measurement points", id, len(p.Vecs))
	if err := s.recorder.SaveMeasurements(id, p.Vecs); err != nil {
		log.Printf("fleet: record measurements %s: %v", id, err)
	}
	s.emit("sub_measure", map[string]any{"id": id, "count": len(p.Vecs)})
}

func (s *Session) handlePicture(env *protocol.Envelope) {
	p, err := protocol.ParsePicture(env)
	if err != nil {
		log.Printf("fleet: %v", err)
		return
	}
	if p.Picture == "" {
		return
	}
	id := s.ID()

	// The raw payload is always cached and forwarded, even when it
	// cannot be decoded or written out.
	s.mu.Lock()
	s.pictureHex = p.Picture
	s.pictureAt = time.Now()
	s.mu.Unlock()

	filePath := ""
	data, err := picture.DecodeHex(p.Picture)
	if err != nil {
		log.Printf("fleet: session %s: undecodable picture payload: %v", id, err)
	} else if s.pictures != nil {
		path, err := s.pictures.Save(id, data)
		if err != nil {
			log.Printf("fleet: session %s: save picture: %v", id, err)
		} else {
			filePath = path
		}
	}

	if err := s.recorder.SavePicture(id, p.Picture, filePath); err != nil {
		log.Printf("fleet: record picture %s: %v", id, err)
	}
	s.emit("sub_picture", map[string]any{"id": id, "file": filePath, "bytes": len(p.Picture) / 2})
}

func (s *Session) handleCrash(env *protocol.Envelope) {
	p, err := protocol.ParseCrash(env)
	if err != nil {
		log.Printf("fleet: %v", err)
		return
	}
	id := s.ID()
	log.Printf("fleet: session %s crashed: %s sector=%v", id, p.Message, p.Sector)
	if err := s.recorder.SaveCrash(id, p.Message, p.Sector, p.SunkPos); err != nil {
		log.Printf("fleet: record crash %s: %v", id, err)
	}
	// Removal is not triggered here: the agent closes its connection
	// after a crash, and the loop exit handles deregistration.
	s.emit("sub_crash", map[string]any{"id": id, "message": p.Message, "sector": p.Sector, "sunkPos": p.SunkPos})
}

func (s *Session) handleArise(env *protocol.Envelope) {
	p, err := protocol.ParseArise(env)
	if err != nil {
		log.Printf("fleet: %v", err)
		return
	}
	id := s.ID()
	log.Printf("fleet: session %s surfaced at %v", id, p.ArisePos)
	if err := s.recorder.SaveArise(id, p.ArisePos); err != nil {
		log.Printf("fleet: record arise %s: %v", id, err)
	}
	s.emit("sub_arise", map[string]any{"id": id, "arisePos": p.ArisePos})
}

func (s *Session) emit(event string, payload any) {
	if s.events != nil {
		s.events(event, payload)
	}
}
