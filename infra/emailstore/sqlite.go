package emailstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/enrollmail/core/model"
	"github.com/kilianp07/enrollmail/core/store"
)

// SQLiteStore persists schedules to a SQLite database. Each record is kept
// as JSON next to one row per email for type and date lookups.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `CREATE TABLE IF NOT EXISTS schedules (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        run_id TEXT NOT NULL,
        ts INTEGER NOT NULL,
        contact_id INTEGER NOT NULL,
        record TEXT NOT NULL
    );
CREATE INDEX IF NOT EXISTS schedules_contact ON schedules (contact_id, ts);
CREATE TABLE IF NOT EXISTS scheduled_emails (
        schedule_id INTEGER NOT NULL REFERENCES schedules(id),
        contact_id INTEGER NOT NULL,
        email_type TEXT NOT NULL,
        scheduled_at TEXT NOT NULL
    );
CREATE INDEX IF NOT EXISTS scheduled_emails_date ON scheduled_emails (scheduled_at);`

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// SaveSchedule writes the record and its emails in one transaction.
func (s *SQLiteStore) SaveSchedule(ctx context.Context, rec store.ScheduleRecord) (err error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO schedules (run_id, ts, contact_id, record) VALUES (?, ?, ?, ?)`,
		rec.RunID, rec.ComputedAt.Unix(), rec.ContactID, string(b))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	for _, e := range rec.Emails {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO scheduled_emails (schedule_id, contact_id, email_type, scheduled_at) VALUES (?, ?, ?, ?)`,
			id, rec.ContactID, string(e.Type), e.ScheduledAt.Format(model.DateLayout)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Query returns records matching q ordered by computation time.
func (s *SQLiteStore) Query(ctx context.Context, q store.ScheduleQuery) ([]store.ScheduleRecord, error) {
	var args []any
	query := `SELECT record FROM schedules s WHERE 1=1`
	if q.RunID != "" {
		query += ` AND s.run_id = ?`
		args = append(args, q.RunID)
	}
	if q.ContactID != 0 {
		query += ` AND s.contact_id = ?`
		args = append(args, q.ContactID)
	}
	if !q.Start.IsZero() {
		query += ` AND s.ts >= ?`
		args = append(args, q.Start.Unix())
	}
	if !q.End.IsZero() {
		query += ` AND s.ts <= ?`
		args = append(args, q.End.Unix())
	}
	if q.EmailType != "" {
		query += ` AND EXISTS (SELECT 1 FROM scheduled_emails e WHERE e.schedule_id = s.id AND e.email_type = ?)`
		args = append(args, string(q.EmailType))
	}
	query += ` ORDER BY s.ts, s.id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []store.ScheduleRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r store.ScheduleRecord
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// CountByDate returns how many emails of type t are due on each date.
func (s *SQLiteStore) CountByDate(ctx context.Context, runID string, t model.EmailType) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT e.scheduled_at, COUNT(*) FROM scheduled_emails e
        JOIN schedules s ON s.id = e.schedule_id
        WHERE s.run_id = ? AND e.email_type = ?
        GROUP BY e.scheduled_at`, runID, string(t))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make(map[string]int)
	for rows.Next() {
		var d string
		var n int
		if err := rows.Scan(&d, &n); err != nil {
			return nil, err
		}
		out[d] = n
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
