package store

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/oceanlab/shipgate/internal/protocol"
)

type Submarine struct {
	ID        string
	ShipID    string
	Status    string // "active", "crashed", "surfaced"
	FirstSeen time.Time
	LastSeen  time.Time
}

type Measurement struct {
	ID          int64
	SubmarineID string
	Point       protocol.Vec
	Timestamp   time.Time
}

type PictureRecord struct {
	ID          int64
	SubmarineID string
	PictureHex  string
	FilePath    string
	Timestamp   time.Time
}

type CrashRecord struct {
	ID          int64
	SubmarineID string
	Message     string
	Sector      *protocol.Vec2D
	SunkPos     *protocol.Vec
	Timestamp   time.Time
}

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	schema := `
CREATE TABLE IF NOT EXISTS submarines (
    id TEXT PRIMARY KEY,
    ship_id TEXT DEFAULT '',
    status TEXT NOT NULL DEFAULT 'active',
    first_seen TEXT NOT NULL,
    last_seen TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS submarine_positions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    submarine_id TEXT NOT NULL,
    pos_x INTEGER, pos_y INTEGER, pos_z INTEGER,
    dir_x INTEGER, dir_y INTEGER, dir_z INTEGER,
    depth INTEGER NOT NULL DEFAULT 0,
    distance INTEGER NOT NULL DEFAULT 0,
    timestamp TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS measurements (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    submarine_id TEXT NOT NULL,
    x INTEGER NOT NULL, y INTEGER NOT NULL, z INTEGER NOT NULL,
    timestamp TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS submarine_pictures (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    submarine_id TEXT NOT NULL,
    picture_hex TEXT NOT NULL,
    file_path TEXT DEFAULT '',
    timestamp TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS submarine_crashes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    submarine_id TEXT NOT NULL,
    message TEXT NOT NULL,
    sector_x INTEGER, sector_y INTEGER,
    sunk_x INTEGER, sunk_y INTEGER, sunk_z INTEGER,
    timestamp TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS submarine_arises (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    submarine_id TEXT NOT NULL,
    pos_x INTEGER, pos_y INTEGER, pos_z INTEGER,
    timestamp TEXT NOT NULL
);`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func vecCols(v *protocol.Vec) (x, y, z sql.NullInt64) {
	if v == nil {
		return
	}
	return sql.NullInt64{Int64: int64(v.X), Valid: true},
		sql.NullInt64{Int64: int64(v.Y), Valid: true},
		sql.NullInt64{Int64: int64(v.Z), Valid: true}
}

func vec2Cols(v *protocol.Vec2D) (x, y sql.NullInt64) {
	if v == nil {
		return
	}
	return sql.NullInt64{Int64: int64(v.X), Valid: true},
		sql.NullInt64{Int64: int64(v.Y), Valid: true}
}

// SaveSubmarine upserts a submarine row, refreshing last_seen and
// resetting status to active on reconnect.
func (s *Store) SaveSubmarine(id, shipID string) error {
	ts := now()
	_, err := s.db.Exec(
		`INSERT INTO submarines (id, ship_id, status, first_seen, last_seen) VALUES (?, ?, 'active', ?, ?)
		 ON CONFLICT(id) DO UPDATE SET ship_id = excluded.ship_id, status = 'active', last_seen = excluded.last_seen`,
		id, shipID, ts, ts,
	)
	return err
}

func (s *Store) SavePosition(id string, pos, dir *protocol.Vec, depth, distance int) error {
	px, py, pz := vecCols(pos)
	dx, dy, dz := vecCols(dir)
	_, err := s.db.Exec(
		`INSERT INTO submarine_positions (submarine_id, pos_x, pos_y, pos_z, dir_x, dir_y, dir_z, depth, distance, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, px, py, pz, dx, dy, dz, depth, distance, now(),
	)
	return err
}

func (s *Store) SaveMeasurements(id string, vecs []protocol.Vec) error {
	if len(vecs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	ts := now()
	for _, v := range vecs {
		if _, err := tx.Exec(
			`INSERT INTO measurements (submarine_id, x, y, z, timestamp) VALUES (?, ?, ?, ?, ?)`,
			id, v.X, v.Y, v.Z, ts,
		); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) SavePicture(id, pictureHex, filePath string) error {
	_, err := s.db.Exec(
		`INSERT INTO submarine_pictures (submarine_id, picture_hex, file_path, timestamp) VALUES (?, ?, ?, ?)`,
		id, pictureHex, filePath, now(),
	)
	return err
}

func (s *Store) SaveCrash(id, message string, sector *protocol.Vec2D, sunkPos *protocol.Vec) error {
	sx, sy := vec2Cols(sector)
	ux, uy, uz := vecCols(sunkPos)
	if _, err := s.db.Exec(
		`INSERT INTO submarine_crashes (submarine_id, message, sector_x, sector_y, sunk_x, sunk_y, sunk_z, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, message, sx, sy, ux, uy, uz, now(),
	); err != nil {
		return err
	}
	return s.setStatus(id, "crashed")
}

func (s *Store) SaveArise(id string, pos *protocol.Vec) error {
	px, py, pz := vecCols(pos)
	if _, err := s.db.Exec(
		`INSERT INTO submarine_arises (submarine_id, pos_x, pos_y, pos_z, timestamp) VALUES (?, ?, ?, ?, ?)`,
		id, px, py, pz, now(),
	); err != nil {
		return err
	}
	return s.setStatus(id, "surfaced")
}

func (s *Store) setStatus(id, status string) error {
	_, err := s.db.Exec(
		`UPDATE submarines SET status = ?, last_seen = ? WHERE id = ?`,
		status, now(), id,
	)
	return err
}

func (s *Store) QuerySubmarines() ([]Submarine, error) {
	rows, err := s.db.Query(`SELECT id, ship_id, status, first_seen, last_seen FROM submarines ORDER BY first_seen ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := []Submarine{}
	for rows.Next() {
		var sub Submarine
		var firstSeen, lastSeen string
		if err := rows.Scan(&sub.ID, &sub.ShipID, &sub.Status, &firstSeen, &lastSeen); err != nil {
			return nil, err
		}
		sub.FirstSeen, err = time.Parse(time.RFC3339Nano, firstSeen)
		if err != nil {
			return nil, err
		}
		sub.LastSeen, err = time.Parse(time.RFC3339Nano, lastSeen)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *Store) GetSubmarine(id string) (*Submarine, error) {
	var sub Submarine
	var firstSeen, lastSeen string
	err := s.db.QueryRow(
		`SELECT id, ship_id, status, first_seen, last_seen FROM submarines WHERE id = ?`, id,
	).Scan(&sub.ID, &sub.ShipID, &sub.Status, &firstSeen, &lastSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sub.FirstSeen, err = time.Parse(time.RFC3339Nano, firstSeen)
	if err != nil {
		return nil, err
	}
	sub.LastSeen, err = time.Parse(time.RFC3339Nano, lastSeen)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *Store) QueryMeasurements(id string) ([]Measurement, error) {
	rows, err := s.db.Query(
		`SELECT id, submarine_id, x, y, z, timestamp FROM measurements WHERE submarine_id = ? ORDER BY id ASC`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	measurements := []Measurement{}
	for rows.Next() {
		var m Measurement
		var ts string
		if err := rows.Scan(&m.ID, &m.SubmarineID, &m.Point.X, &m.Point.Y, &m.Point.Z, &ts); err != nil {
			return nil, err
		}
		m.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, err
		}
		measurements = append(measurements, m)
	}
	return measurements, rows.Err()
}

func (s *Store) MeasurementCount(id string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM measurements WHERE submarine_id = ?`, id).Scan(&n)
	return n, err
}

func (s *Store) TotalMeasurementCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM measurements`).Scan(&n)
	return n, err
}

// LatestPicture returns the most recent picture for id, or nil.
func (s *Store) LatestPicture(id string) (*PictureRecord, error) {
	var p PictureRecord
	var ts string
	err := s.db.QueryRow(
		`SELECT id, submarine_id, picture_hex, file_path, timestamp FROM submarine_pictures
		 WHERE submarine_id = ? ORDER BY id DESC LIMIT 1`, id,
	).Scan(&p.ID, &p.SubmarineID, &p.PictureHex, &p.FilePath, &ts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) QueryCrashes(id string) ([]CrashRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, submarine_id, message, sector_x, sector_y, sunk_x, sunk_y, sunk_z, timestamp
		 FROM submarine_crashes WHERE submarine_id = ? ORDER BY id ASC`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	crashes := []CrashRecord{}
	for rows.Next() {
		var c CrashRecord
		var sx, sy, ux, uy, uz sql.NullInt64
		var ts string
		if err := rows.Scan(&c.ID, &c.SubmarineID, &c.Message, &sx, &sy, &ux, &uy, &uz, &ts); err != nil {
			return nil, err
		}
		if sx.Valid && sy.Valid {
			c.Sector = &protocol.Vec2D{X: int(sx.Int64), Y: int(sy.Int64)}
		}
		if ux.Valid && uy.Valid && uz.Valid {
			c.SunkPos = &protocol.Vec{X: int(ux.Int64), Y: int(uy.Int64), Z: int(uz.Int64)}
		}
		c.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, err
		}
		crashes = append(crashes, c)
	}
	return crashes, rows.Err()
}
