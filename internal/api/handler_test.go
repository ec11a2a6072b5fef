package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/oceanlab/shipgate/internal/emergency"
	"github.com/oceanlab/shipgate/internal/fleet"
	"github.com/oceanlab/shipgate/internal/gateway"
	"github.com/oceanlab/shipgate/internal/protocol"
	"github.com/oceanlab/shipgate/internal/store"
	"github.com/oceanlab/shipgate/internal/upstream"
)

// testEnv wires a fake ocean server, a fleet server, a store and the
// HTTP handler into one stack.
type testEnv struct {
	srv       *httptest.Server
	fleet     *fleet.Server
	store     *store.Store
	oceanLine chan string
	ocean     chan net.Conn
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	lines := make(chan string, 32)
	conns := make(chan net.Conn, 4)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conns <- conn
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

	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	fleetSrv := fleet.NewServer(fleet.Config{Recorder: st})
	if err := fleetSrv.Start(0); err != nil {
		t.Fatalf("start fleet: %v", err)
	}
	t.Cleanup(func() { fleetSrv.Close() })

	gw := gateway.New(link, fleetSrv, nil)
	h := &Handler{
		Gateway:   gw,
		Store:     st,
		Emergency: emergency.New(func(emergency.State) { gw.SurfaceAll() }),
	}
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, fleet: fleetSrv, store: st, oceanLine: lines, ocean: conns}
}

func (e *testEnv) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(e.srv.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) expectOceanLine(t *testing.T, substr string) {
	t.Helper()
	for {
		select {
		case line := <-e.oceanLine:
			if strings.Contains(line, substr) {
				return
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("ocean never received line containing %q", substr)
		}
	}
}

func (e *testEnv) connectSub(t *testing.T, id string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", e.fleet.Addr().String())
	if err != nil {
		t.Fatalf("dial fleet: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.Write([]byte(`{"cmd":"ready","id":"` + id + `","depth":30}` + "\n"))
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.fleet.Registry().Lookup(id) != nil {
			return conn
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("submarine %s never registered", id)
	return nil
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestGetState(t *testing.T) {
	e := newTestEnv(t)
	e.connectSub(t, "U-1")

	resp := e.get(t, "/api/state")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var state gatewayState
	decodeBody(t, resp, &state)
	if !state.Ship.Connected {
		t.Error("expected connected ship link")
	}
	if len(state.Submarines) != 1 || state.Submarines[0].ID != "U-1" {
		t.Errorf("unexpected submarines: %+v", state.Submarines)
	}
}

func TestLaunch(t *testing.T) {
	e := newTestEnv(t)

	resp := e.post(t, "/api/launch", launchRequest{Name: "explorer", Sector: [2]int{2, 3}, Dir: [2]int{1, 0}})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	e.expectOceanLine(t, `"name":"explorer"`)
}

func TestLaunchRequiresName(t *testing.T) {
	e := newTestEnv(t)

	resp := e.post(t, "/api/launch", launchRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestNavigateRejectsBadRudder(t *testing.T) {
	e := newTestEnv(t)

	resp := e.post(t, "/api/navigate", navigateRequest{Rudder: "Sideways", Course: "Forward"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	resp = e.post(t, "/api/navigate", navigateRequest{Rudder: "Left", Course: "Forward"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	e.expectOceanLine(t, `"cmd":"navigate"`)
}

func TestScanRespondsWithDepth(t *testing.T) {
	e := newTestEnv(t)

	go func() {
		for {
			select {
			case line := <-e.oceanLine:
				if strings.Contains(line, `"cmd":"scan"`) {
					conn := <-e.ocean
					conn.Write([]byte(`{"cmd":"scanned","id":"S1","depth":88,"stddev":0.5}` + "\n"))
					return
				}
			case <-time.After(2 * time.Second):
				return
			}
		}
	}()

	resp := e.post(t, "/api/scan", struct{}{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var scanned protocol.Scanned
	decodeBody(t, resp, &scanned)
	if scanned.Depth != 88 {
		t.Errorf("expected depth 88, got %d", scanned.Depth)
	}
}

func TestPilotNotFound(t *testing.T) {
	e := newTestEnv(t)

	resp := e.post(t, "/api/pilot", pilotRequest{Route: "N"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestPilotInvalidRoute(t *testing.T) {
	e := newTestEnv(t)
	e.connectSub(t, "U-2")

	resp := e.post(t, "/api/pilot", pilotRequest{ID: "U-2", Route: "NORTHISH"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestPilotSteersSubmarine(t *testing.T) {
	e := newTestEnv(t)
	conn := e.connectSub(t, "U-3")

	resp := e.post(t, "/api/pilot", pilotRequest{ID: "U-3", Route: "SE"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(line, `"route":"SE"`) {
		t.Errorf("unexpected pilot line: %s", line)
	}
}

func TestKillSubmarine(t *testing.T) {
	e := newTestEnv(t)
	e.connectSub(t, "U-4")

	resp := e.post(t, "/api/submarines/U-4/kill", struct{}{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.fleet.Registry().Lookup("U-4") == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("submarine survived kill")
}

func TestKillUnknownSubmarine(t *testing.T) {
	e := newTestEnv(t)

	resp := e.post(t, "/api/submarines/ghost/kill", struct{}{})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestPictureNotFound(t *testing.T) {
	e := newTestEnv(t)
	e.connectSub(t, "U-5")

	resp := e.get(t, "/api/submarines/U-5/picture")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestMeasurementExports(t *testing.T) {
	e := newTestEnv(t)
	e.store.SaveSubmarine("U-6", "S1")
	e.store.SaveMeasurements("U-6", []protocol.Vec{{X: 1, Y: 2, Z: -3}})

	resp := e.get(t, "/api/reports/U-6/csv")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("csv: expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/csv" {
		t.Errorf("unexpected content type %s", ct)
	}

	resp = e.get(t, "/api/reports/U-6/json")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("json: expected 200, got %d", resp.StatusCode)
	}
	var records []map[string]any
	decodeBody(t, resp, &records)
	if len(records) != 1 {
		t.Errorf("expected 1 record, got %d", len(records))
	}

	resp = e.get(t, "/api/reports/U-6/pdf")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pdf: expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("unexpected content type %s", ct)
	}
}

func TestGetMeasurements(t *testing.T) {
	e := newTestEnv(t)
	e.store.SaveSubmarine("U-8", "S1")
	e.store.SaveMeasurements("U-8", []protocol.Vec{{X: 4, Y: 5, Z: -6}, {X: 4, Y: 6, Z: -7}})

	resp := e.get(t, "/api/submarines/U-8/measurements")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		ID    string `json:"id"`
		Count int    `json:"count"`
	}
	decodeBody(t, resp, &body)
	if body.ID != "U-8" || body.Count != 2 {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestEmergencyRequiresReason(t *testing.T) {
	e := newTestEnv(t)

	resp := e.post(t, "/api/emergency", emergencyRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestEmergencySurfacesFleet(t *testing.T) {
	e := newTestEnv(t)
	conn := e.connectSub(t, "U-9")

	resp := e.post(t, "/api/emergency", emergencyRequest{Reason: "storm front", Initiator: "ops"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var state emergency.State
	decodeBody(t, resp, &state)
	if !state.Active || state.Reason != "storm front" {
		t.Errorf("unexpected emergency state: %+v", state)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(line, `"route":"None"`) || !strings.Contains(line, `"action":"arise"`) {
		t.Errorf("unexpected surface order: %s", line)
	}

	resp = e.post(t, "/api/emergency/clear", struct{}{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clear: expected 200, got %d", resp.StatusCode)
	}

	resp = e.get(t, "/api/state")
	var gs gatewayState
	decodeBody(t, resp, &gs)
	if gs.Emergency == nil || gs.Emergency.Active {
		t.Errorf("expected cleared emergency, got %+v", gs.Emergency)
	}
}

func TestReset(t *testing.T) {
	e := newTestEnv(t)
	e.connectSub(t, "U-7")

	resp := e.post(t, "/api/reset", struct{}{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if n := e.fleet.Registry().Len(); n != 0 {
		t.Errorf("expected empty registry, got %d sessions", n)
	}
	e.expectOceanLine(t, `"cmd":"exit"`)
}
