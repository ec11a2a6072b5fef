package store

import (
	"testing"

	"github.com/oceanlab/shipgate/internal/protocol"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewCreatesStore(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer s.Close()
}

func TestSaveAndGetSubmarine(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveSubmarine("U-1", "S1"); err != nil {
		t.Fatalf("SaveSubmarine failed: %v", err)
	}

	sub, err := s.GetSubmarine("U-1")
	if err != nil {
		t.Fatalf("GetSubmarine failed: %v", err)
	}
	if sub == nil {
		t.Fatal("expected non-nil submarine")
	}
	if sub.ShipID != "S1" {
		t.Errorf("expected ship S1, got %s", sub.ShipID)
	}
	if sub.Status != "active" {
		t.Errorf("expected status active, got %s", sub.Status)
	}
	if sub.FirstSeen.IsZero() || sub.LastSeen.IsZero() {
		t.Error("expected non-zero timestamps")
	}
}

func TestGetSubmarineNotFound(t *testing.T) {
	s := newTestStore(t)

	sub, err := s.GetSubmarine("nonexistent")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if sub != nil {
		t.Errorf("expected nil for unknown ID, got %+v", sub)
	}
}

func TestSaveSubmarineReconnectReactivates(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveSubmarine("U-1", "S1"); err != nil {
		t.Fatalf("SaveSubmarine failed: %v", err)
	}
	if err := s.SaveCrash("U-1", "ground contact", nil, nil); err != nil {
		t.Fatalf("SaveCrash failed: %v", err)
	}

	sub, err := s.GetSubmarine("U-1")
	if err != nil {
		t.Fatalf("GetSubmarine failed: %v", err)
	}
	if sub.Status != "crashed" {
		t.Errorf("expected status crashed, got %s", sub.Status)
	}

	if err := s.SaveSubmarine("U-1", "S2"); err != nil {
		t.Fatalf("SaveSubmarine (reconnect) failed: %v", err)
	}
	sub, err = s.GetSubmarine("U-1")
	if err != nil {
		t.Fatalf("GetSubmarine failed: %v", err)
	}
	if sub.Status != "active" {
		t.Errorf("expected status active after reconnect, got %s", sub.Status)
	}
	if sub.ShipID != "S2" {
		t.Errorf("expected ship S2 after reconnect, got %s", sub.ShipID)
	}

	subs, err := s.QuerySubmarines()
	if err != nil {
		t.Fatalf("QuerySubmarines failed: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("expected 1 submarine, got %d", len(subs))
	}
}

func TestSavePosition(t *testing.T) {
	s := newTestStore(t)
	s.SaveSubmarine("U-1", "S1")

	pos := &protocol.Vec{X: 1, Y: 2, Z: 3}
	dir := &protocol.Vec{X: 0, Y: 1, Z: 0}
	if err := s.SavePosition("U-1", pos, dir, 40, 12); err != nil {
		t.Fatalf("SavePosition failed: %v", err)
	}
	if err := s.SavePosition("U-1", nil, nil, 0, 0); err != nil {
		t.Fatalf("SavePosition with nil vectors failed: %v", err)
	}
}

func TestSaveAndQueryMeasurements(t *testing.T) {
	s := newTestStore(t)
	s.SaveSubmarine("U-1", "S1")

	vecs := []protocol.Vec{
		{X: 1, Y: 1, Z: -5},
		{X: 2, Y: 1, Z: -6},
		{X: 3, Y: 1, Z: -4},
	}
	if err := s.SaveMeasurements("U-1", vecs); err != nil {
		t.Fatalf("SaveMeasurements failed: %v", err)
	}

	got, err := s.QueryMeasurements("U-1")
	if err != nil {
		t.Fatalf("QueryMeasurements failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 measurements, got %d", len(got))
	}
	if got[0].Point != vecs[0] {
		t.Errorf("expected first point %v, got %v", vecs[0], got[0].Point)
	}

	n, err := s.MeasurementCount("U-1")
	if err != nil {
		t.Fatalf("MeasurementCount failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected count 3, got %d", n)
	}
}

func TestSaveMeasurementsEmptyIsNoop(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveMeasurements("U-1", nil); err != nil {
		t.Fatalf("SaveMeasurements(nil) failed: %v", err)
	}
	n, err := s.TotalMeasurementCount()
	if err != nil {
		t.Fatalf("TotalMeasurementCount failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 measurements, got %d", n)
	}
}

func TestTotalMeasurementCountSpansSubmarines(t *testing.T) {
	s := newTestStore(t)
	s.SaveMeasurements("U-1", []protocol.Vec{{X: 1}, {X: 2}})
	s.SaveMeasurements("U-2", []protocol.Vec{{X: 3}})

	n, err := s.TotalMeasurementCount()
	if err != nil {
		t.Fatalf("TotalMeasurementCount failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3, got %d", n)
	}
}

func TestQueryMeasurementsEmptyForUnknownSubmarine(t *testing.T) {
	s := newTestStore(t)

	got, err := s.QueryMeasurements("nonexistent")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got == nil {
		t.Fatal("expected non-nil empty slice, got nil")
	}
	if len(got) != 0 {
		t.Errorf("expected 0 measurements, got %d", len(got))
	}
}

func TestLatestPicture(t *testing.T) {
	s := newTestStore(t)
	s.SaveSubmarine("U-1", "S1")

	if p, err := s.LatestPicture("U-1"); err != nil || p != nil {
		t.Fatalf("expected nil picture before save, got %v, %v", p, err)
	}

	if err := s.SavePicture("U-1", "aabb", ""); err != nil {
		t.Fatalf("SavePicture failed: %v", err)
	}
	if err := s.SavePicture("U-1", "ccdd", "/tmp/sub_U-1_2.png"); err != nil {
		t.Fatalf("SavePicture failed: %v", err)
	}

	p, err := s.LatestPicture("U-1")
	if err != nil {
		t.Fatalf("LatestPicture failed: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil picture")
	}
	if p.PictureHex != "ccdd" {
		t.Errorf("expected most recent payload, got %s", p.PictureHex)
	}
	if p.FilePath != "/tmp/sub_U-1_2.png" {
		t.Errorf("unexpected file path %s", p.FilePath)
	}
}

func TestSaveCrashStoresVectors(t *testing.T) {
	s := newTestStore(t)
	s.SaveSubmarine("U-1", "S1")

	sector := &protocol.Vec2D{X: 4, Y: 4}
	sunk := &protocol.Vec{X: 40, Y: 40, Z: -12}
	if err := s.SaveCrash("U-1", "hit a reef", sector, sunk); err != nil {
		t.Fatalf("SaveCrash failed: %v", err)
	}

	crashes, err := s.QueryCrashes("U-1")
	if err != nil {
		t.Fatalf("QueryCrashes failed: %v", err)
	}
	if len(crashes) != 1 {
		t.Fatalf("expected 1 crash, got %d", len(crashes))
	}
	c := crashes[0]
	if c.Message != "hit a reef" {
		t.Errorf("unexpected message %s", c.Message)
	}
	if c.Sector == nil || *c.Sector != *sector {
		t.Errorf("unexpected sector %v", c.Sector)
	}
	if c.SunkPos == nil || *c.SunkPos != *sunk {
		t.Errorf("unexpected sunk pos %v", c.SunkPos)
	}
}

func TestSaveAriseMarksSurfaced(t *testing.T) {
	s := newTestStore(t)
	s.SaveSubmarine("U-1", "S1")

	if err := s.SaveArise("U-1", &protocol.Vec{X: 10, Y: 10, Z: 0}); err != nil {
		t.Fatalf("SaveArise failed: %v", err)
	}

	sub, err := s.GetSubmarine("U-1")
	if err != nil {
		t.Fatalf("GetSubmarine failed: %v", err)
	}
	if sub.Status != "surfaced" {
		t.Errorf("expected status surfaced, got %s", sub.Status)
	}
}

func TestCloseSucceeds(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}
