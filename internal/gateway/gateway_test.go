package gateway

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/oceanlab/shipgate/internal/fleet"
	"github.com/oceanlab/shipgate/internal/protocol"
	"github.com/oceanlab/shipgate/internal/upstream"
)

type nopRecorder struct{}

func (nopRecorder) SaveSubmarine(id, shipID string) error { return nil }
func (nopRecorder) SavePosition(id string, pos, dir *protocol.Vec, depth, distance int) error {
	return nil
}
func (nopRecorder) SaveMeasurements(id string, vecs []protocol.Vec) error    { return nil }
func (nopRecorder) SavePicture(id, pictureHex, filePath string) error        { return nil }
func (nopRecorder) SaveCrash(id, m string, s *protocol.Vec2D, p *protocol.Vec) error { return nil }
func (nopRecorder) SaveArise(id string, pos *protocol.Vec) error             { return nil }

// testHarness stands in for the ocean server and boots a fleet server.
type testHarness struct {
	gw        *Gateway
	fleet     *fleet.Server
	oceanLn   net.Listener
	oceanLine chan string
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	lines := make(chan string, 32)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				scanner := bufio.NewScanner(conn)
				for scanner.Scan() {
					lines <- scanner.Text()
				}
			}()
		}
	}()

	link, err := upstream.Dial("127.0.0.1", ln.Addr().(*net.TCPAddr).Port, nil)
	if err != nil {
		t.Fatalf("dial ocean: %v", err)
	}
	t.Cleanup(func() { link.Close() })

	srv := fleet.NewServer(fleet.Config{Recorder: nopRecorder{}})
	if err := srv.Start(0); err != nil {
		t.Fatalf("start fleet: %v", err)
	}
	t.Cleanup(func() { srv.Close() })

	return &testHarness{
		gw:        New(link, srv, nil),
		fleet:     srv,
		oceanLn:   ln,
		oceanLine: lines,
	}
}

func (h *testHarness) connectSub(t *testing.T, id string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", h.fleet.Addr().String())
	if err != nil {
		t.Fatalf("dial fleet: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := conn.Write([]byte(`{"cmd":"ready","id":"` + id + `"}` + "\n")); err != nil {
		t.Fatalf("write ready: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.fleet.Registry().Lookup(id) != nil {
			return conn
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("submarine %s never registered", id)
	return nil
}

func (h *testHarness) expectOceanLine(t *testing.T, substr string) {
	t.Helper()
	for {
		select {
		case line := <-h.oceanLine:
			if strings.Contains(line, substr) {
				return
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("ocean never received line containing %q", substr)
		}
	}
}

func TestLaunchSendsCommand(t *testing.T) {
	h := newHarness(t)

	if err := h.gw.Launch("explorer", protocol.Vec2D{X: 2, Y: 3}, protocol.Vec2D{X: 1, Y: 0}); err != nil {
		t.Fatalf("launch: %v", err)
	}
	h.expectOceanLine(t, `"cmd":"launch"`)
}

func TestNavigateValidatesInput(t *testing.T) {
	h := newHarness(t)

	if err := h.gw.Navigate("Sideways", protocol.CourseForward); err == nil {
		t.Error("expected error for invalid rudder")
	}
	if err := h.gw.Navigate(protocol.RudderLeft, "Up"); err == nil {
		t.Error("expected error for invalid course")
	}

	if err := h.gw.Navigate(protocol.RudderLeft, protocol.CourseForward); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	h.expectOceanLine(t, `"rudder":"Left"`)
}

func TestPilotEmptyIDPicksAnySession(t *testing.T) {
	h := newHarness(t)
	conn := h.connectSub(t, "U-1")

	if err := h.gw.Pilot("", protocol.RouteNorth, ""); err != nil {
		t.Fatalf("pilot: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read pilot line: %v", err)
	}
	if !strings.Contains(line, `"route":"N"`) {
		t.Errorf("unexpected pilot line: %s", line)
	}
}

func TestPilotWithNoSessions(t *testing.T) {
	h := newHarness(t)

	if err := h.gw.Pilot("", protocol.RouteNorth, ""); !errors.Is(err, ErrNoSuchSession) {
		t.Fatalf("expected ErrNoSuchSession, got %v", err)
	}
	if err := h.gw.Pilot("ghost", protocol.RouteNorth, ""); !errors.Is(err, ErrNoSuchSession) {
		t.Fatalf("expected ErrNoSuchSession for unknown id, got %v", err)
	}
}

func TestKillRemovesSession(t *testing.T) {
	h := newHarness(t)
	h.connectSub(t, "U-2")

	if err := h.gw.Kill("U-2"); err != nil {
		t.Fatalf("kill: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.fleet.Registry().Lookup("U-2") == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("session survived kill")
}

func TestSessionsListsConnectedSubmarines(t *testing.T) {
	h := newHarness(t)
	h.connectSub(t, "U-3")
	h.connectSub(t, "U-4")

	infos := h.gw.Sessions()
	if len(infos) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(infos))
	}
}

func TestResetDrainsFleetAndReconnects(t *testing.T) {
	h := newHarness(t)
	h.connectSub(t, "U-5")

	if err := h.gw.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n := h.fleet.Registry().Len(); n != 0 {
		t.Errorf("expected empty registry after reset, got %d", n)
	}
	if !h.gw.State().Connected {
		t.Error("expected reconnected link after reset")
	}
	h.expectOceanLine(t, `"cmd":"exit"`)
}

func TestStartAgentUnconfigured(t *testing.T) {
	h := newHarness(t)
	if err := h.gw.StartAgent("U-6"); err == nil {
		t.Fatal("expected error with no launcher configured")
	}
}
