// Package gateway is the facade the control API drives. It composes the
// ocean link, the submarine fleet server and the agent launcher into the
// operations a client cares about.
package gateway

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/oceanlab/shipgate/internal/fleet"
	"github.com/oceanlab/shipgate/internal/launcher"
	"github.com/oceanlab/shipgate/internal/protocol"
	"github.com/oceanlab/shipgate/internal/upstream"
)

// ErrNoSuchSession is returned when a submarine id resolves to nothing,
// including the empty-id shortcut on an empty fleet.
var ErrNoSuchSession = errors.New("gateway: no such submarine session")

// Gateway bundles the ship side and the fleet side behind one API.
type Gateway struct {
	link     *upstream.Link
	fleet    *fleet.Server
	launcher *launcher.Launcher
}

// New wires a gateway from its already-started parts. launcher may be
// nil when agent starting is not configured.
func New(link *upstream.Link, fleetSrv *fleet.Server, l *launcher.Launcher) *Gateway {
	return &Gateway{link: link, fleet: fleetSrv, launcher: l}
}

// Launch registers the ship with the ocean server. The launched reply
// arrives asynchronously and updates the link state.
func (g *Gateway) Launch(name string, sector, dir protocol.Vec2D) error {
	return g.link.Send(protocol.NewLaunch(name, sector, dir))
}

// Navigate steers the ship. Rudder and course are validated before
// anything is written.
func (g *Gateway) Navigate(rudder, course string) error {
	if !protocol.ValidRudder(rudder) {
		return fmt.Errorf("gateway: invalid rudder %q", rudder)
	}
	if !protocol.ValidCourse(course) {
		return fmt.Errorf("gateway: invalid course %q", course)
	}
	return g.link.Send(protocol.NewNavigate(rudder, course))
}

// Scan measures the water depth under the ship.
func (g *Gateway) Scan() (protocol.Scanned, error) {
	return g.link.Scan(upstream.DefaultQueryTimeout)
}

// Radar sweeps the surrounding sectors.
func (g *Gateway) Radar() ([]protocol.RadarEcho, error) {
	return g.link.Radar(upstream.DefaultQueryTimeout)
}

// State returns the cached ship telemetry.
func (g *Gateway) State() upstream.State {
	return g.link.State()
}

// Sessions lists the connected submarines.
func (g *Gateway) Sessions() []fleet.SessionInfo {
	sessions := g.fleet.Registry().List()
	infos := make([]fleet.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// resolve maps a submarine id to its session. The empty id picks any
// connected submarine.
func (g *Gateway) resolve(id string) (*fleet.Session, error) {
	var s *fleet.Session
	if id == "" {
		s = g.fleet.Registry().First()
	} else {
		s = g.fleet.Registry().Lookup(id)
	}
	if s == nil {
		return nil, ErrNoSuchSession
	}
	return s, nil
}

// Pilot steers the submarine with the given id.
func (g *Gateway) Pilot(id string, route protocol.Route, action string) error {
	s, err := g.resolve(id)
	if err != nil {
		return err
	}
	return s.SendPilot(route, action)
}

// Kill closes the submarine's connection.
func (g *Gateway) Kill(id string) error {
	s, err := g.resolve(id)
	if err != nil {
		return err
	}
	s.Terminate()
	return nil
}

// LastPicture returns the submarine's most recent raw camera payload.
func (g *Gateway) LastPicture(id string) (string, time.Time, error) {
	s, err := g.resolve(id)
	if err != nil {
		return "", time.Time{}, err
	}
	hex, ts := s.LastPicture()
	return hex, ts, nil
}

// StartAgent spawns a new submarine agent process.
func (g *Gateway) StartAgent(id string) error {
	if g.launcher == nil {
		return fmt.Errorf("gateway: agent launching not configured")
	}
	return g.launcher.Start(id)
}

// SurfaceAll orders every connected submarine up. Used by the emergency
// surface coordinator; individual send failures are logged and skipped.
func (g *Gateway) SurfaceAll() {
	for _, s := range g.fleet.Registry().List() {
		if err := s.SendPilot(protocol.RouteNone, "arise"); err != nil {
			log.Printf("gateway: surface %s: %v", s.ID(), err)
		}
	}
}

// Reset terminates every submarine session and reconnects the ocean
// link with cleared state.
func (g *Gateway) Reset() error {
	for _, s := range g.fleet.Registry().Drain() {
		s.Terminate()
	}
	return g.link.Reset()
}
