package emailstore

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kilianp07/enrollmail/core/model"
	"github.com/kilianp07/enrollmail/core/store"
)

// RotatingJSONLStore stores schedules in a JSONL file with automatic rotation.
type RotatingJSONLStore struct {
	mu     sync.Mutex
	logger *lumberjack.Logger
	path   string
}

// NewRotatingJSONLStore creates a store with rotation options in megabytes and days.
func NewRotatingJSONLStore(path string, maxSizeMB, maxBackups, maxAgeDays int) (*RotatingJSONLStore, error) {
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &RotatingJSONLStore{logger: lj, path: path}, nil
}

// SaveSchedule appends the record and triggers rotation if needed.
func (s *RotatingJSONLStore) SaveSchedule(_ context.Context, rec store.ScheduleRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.logger.Write(append(b, '\n'))
	return err
}

// Query reads the active file and rotated backups.
func (s *RotatingJSONLStore) Query(ctx context.Context, q store.ScheduleQuery) ([]store.ScheduleRecord, error) {
	ext := filepath.Ext(s.path)
	prefix := s.path[:len(s.path)-len(ext)]
	files, err := filepath.Glob(prefix + "*" + ext)
	if err != nil {
		return nil, err
	}
	var res []store.ScheduleRecord
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs, err := readJSONL(f, q)
		if err != nil {
			continue
		}
		res = append(res, recs...)
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].ComputedAt.Before(res[j].ComputedAt) })
	return res, nil
}

// CountByDate tallies the emails of type t in run runID per scheduled date.
func (s *RotatingJSONLStore) CountByDate(ctx context.Context, runID string, t model.EmailType) (map[string]int, error) {
	recs, err := s.Query(ctx, store.ScheduleQuery{RunID: runID, EmailType: t})
	if err != nil {
		return nil, err
	}
	out := make(map[string]int)
	for _, r := range recs {
		for _, e := range r.Emails {
			if e.Type == t {
				out[e.ScheduledAt.Format(model.DateLayout)]++
			}
		}
	}
	return out, nil
}

func readJSONL(path string, q store.ScheduleQuery) ([]store.ScheduleRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()
	var out []store.ScheduleRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var r store.ScheduleRecord
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			continue
		}
		if q.Match(r) {
			out = append(out, r)
		}
	}
	return out, scanner.Err()
}

// Close closes the underlying writer.
func (s *RotatingJSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logger.Close()
}
