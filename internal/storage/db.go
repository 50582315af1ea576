package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cptspacemanspiff/powerd/internal/collector"
	"github.com/cptspacemanspiff/powerd/internal/device"
)

const schema = `
CREATE TABLE IF NOT EXISTS history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	value REAL NOT NULL,
	state INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_device ON history(device_id, kind, timestamp);
CREATE INDEX IF NOT EXISTS idx_history_ts ON history(timestamp);

CREATE TABLE IF NOT EXISTS sleep_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	sleep_time INTEGER NOT NULL,
	wake_time INTEGER NOT NULL,
	type TEXT NOT NULL DEFAULT 'unknown'
);
CREATE INDEX IF NOT EXISTS idx_sleep_ts ON sleep_events(sleep_time);
`

// ErrNoHistory is returned when a history or statistics type is not
// recognised.
var ErrNoHistory = errors.New("device has no history")

// DB wraps a SQLite database holding device history and sleep events.
type DB struct {
	db *sql.DB

	mu   sync.Mutex
	last map[lastKey]HistoryPoint
}

type lastKey struct {
	deviceID string
	kind     HistoryKind
}

// Open opens or creates the SQLite database at the given path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &DB{db: db, last: make(map[lastKey]HistoryPoint)}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// InsertSleepEvent inserts a sleep event.
func (d *DB) InsertSleepEvent(s collector.SleepEvent) error {
	_, err := d.db.Exec(
		"INSERT INTO sleep_events (sleep_time, wake_time, type) VALUES (?, ?, ?)",
		s.SleepTime, s.WakeTime, s.Type,
	)
	return err
}

// SleepEventsInRange returns sleep events overlapping the given time range.
func (d *DB) SleepEventsInRange(from, to int64) ([]collector.SleepEvent, error) {
	rows, err := d.db.Query(
		"SELECT sleep_time, wake_time, type FROM sleep_events WHERE wake_time >= ? AND sleep_time <= ? ORDER BY sleep_time",
		from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []collector.SleepEvent
	for rows.Next() {
		var e collector.SleepEvent
		if err := rows.Scan(&e.SleepTime, &e.WakeTime, &e.Type); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Record stores the history-relevant readings of a device at time now.
// Each kind is written only when its value or the state differs from the
// last point recorded for it. Unknown states are never recorded, and zero
// time estimates are skipped.
func (d *DB) Record(deviceID string, p device.Properties, now int64) error {
	if deviceID == "" || p.State == device.StateUnknown {
		return nil
	}
	values := []struct {
		kind  HistoryKind
		value float64
	}{
		{HistoryCharge, p.Percentage},
		{HistoryRate, p.EnergyRate},
		{HistoryTimeFull, float64(p.TimeToFull)},
		{HistoryTimeEmpty, float64(p.TimeToEmpty)},
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var pending []HistoryPoint
	var kinds []HistoryKind
	for _, v := range values {
		if (v.kind == HistoryTimeFull || v.kind == HistoryTimeEmpty) && v.value == 0 {
			continue
		}
		key := lastKey{deviceID, v.kind}
		last, ok := d.last[key]
		if !ok {
			var err error
			last, ok, err = d.lastPoint(deviceID, v.kind)
			if err != nil {
				return fmt.Errorf("load last %s point: %w", v.kind, err)
			}
		}
		if ok && last.Value == v.value && last.State == p.State {
			continue
		}
		pending = append(pending, HistoryPoint{Time: now, Value: v.value, State: p.State})
		kinds = append(kinds, v.kind)
	}
	if len(pending) == 0 {
		return nil
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	stmt, err := tx.Prepare("INSERT INTO history (device_id, kind, timestamp, value, state) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for i, pt := range pending {
		if _, err := stmt.Exec(deviceID, string(kinds[i]), pt.Time, pt.Value, int(pt.State)); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	for i, pt := range pending {
		d.last[lastKey{deviceID, kinds[i]}] = pt
	}
	return nil
}

func (d *DB) lastPoint(deviceID string, kind HistoryKind) (HistoryPoint, bool, error) {
	row := d.db.QueryRow(
		"SELECT timestamp, value, state FROM history WHERE device_id = ? AND kind = ? ORDER BY timestamp DESC, id DESC LIMIT 1",
		deviceID, string(kind),
	)
	var pt HistoryPoint
	var state int
	err := row.Scan(&pt.Time, &pt.Value, &state)
	if err == sql.ErrNoRows {
		return HistoryPoint{}, false, nil
	}
	if err != nil {
		return HistoryPoint{}, false, err
	}
	pt.State = device.State(state)
	return pt, true, nil
}

// pointsSince returns the points of one kind at or after from, oldest
// first. from == 0 returns every point.
func (d *DB) pointsSince(deviceID string, kind HistoryKind, from int64) ([]HistoryPoint, error) {
	rows, err := d.db.Query(
		"SELECT timestamp, value, state FROM history WHERE device_id = ? AND kind = ? AND timestamp >= ? ORDER BY timestamp, id",
		deviceID, string(kind), from,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var points []HistoryPoint
	for rows.Next() {
		var pt HistoryPoint
		var state int
		if err := rows.Scan(&pt.Time, &pt.Value, &state); err != nil {
			return nil, err
		}
		pt.State = device.State(state)
		points = append(points, pt)
	}
	return points, rows.Err()
}
