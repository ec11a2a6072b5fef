// Package fleet accepts submarine agent connections and keeps a
// registry of live sessions keyed by the identifier each agent reports
// in its ready handshake.
package fleet

import (
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
)

// Server listens for submarine agents. Each accepted connection gets
// its own session goroutine.
type Server struct {
	registry *Registry
	recorder Recorder
	pictures PictureSink
	ownerID  func() string
	events   func(event string, payload any)

	mu sync.Mutex
	ln net.Listener
}

// Config carries the server's collaborators. Recorder is required;
// Pictures, OwnerID and Events may be nil.
type Config struct {
	Recorder Recorder
	Pictures PictureSink
	// OwnerID supplies the ship identifier new submarines are
	// associated with at handshake time.
	OwnerID func() string
	Events  func(event string, payload any)
}

// NewServer creates a server around an empty registry.
func NewServer(cfg Config) *Server {
	return &Server{
		registry: NewRegistry(),
		recorder: cfg.Recorder,
		pictures: cfg.Pictures,
		ownerID:  cfg.OwnerID,
		events:   cfg.Events,
	}
}

// Registry exposes the session registry.
func (srv *Server) Registry() *Registry {
	return srv.registry
}

// Start binds the listen port and begins accepting in the background.
func (srv *Server) Start(port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("fleet: listen on %d: %w", port, err)
	}
	srv.mu.Lock()
	srv.ln = ln
	srv.mu.Unlock()

	log.Printf("fleet: listening for submarines on %s", ln.Addr())
	go srv.acceptLoop(ln)
	return nil
}

// Addr returns the bound listen address, or nil before Start.
func (srv *Server) Addr() net.Addr {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.ln == nil {
		return nil
	}
	return srv.ln.Addr()
}

// Close stops accepting and terminates every registered session.
func (srv *Server) Close() error {
	srv.mu.Lock()
	ln := srv.ln
	srv.ln = nil
	srv.mu.Unlock()

	for _, s := range srv.registry.Drain() {
		s.Terminate()
	}
	if ln == nil {
		return nil
	}
	return ln.Close()
}

func (srv *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.Printf("fleet: accept: %v", err)
			}
			return
		}
		log.Printf("fleet: accepted connection from %s", conn.RemoteAddr())
		go newSession(conn, srv).run()
	}
}
