package metrics

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"
)

// FileStore reads pre-aggregated totals from a JSON document:
//
//	{"users": {"<userId>": {"daily": {...}, "weekly": {...}}}}
//
// A real deployment points this at the log service's aggregate export; the
// pipeline only ever reads.
type FileStore struct {
	path string

	mu    sync.RWMutex
	users map[string]fileTotals
}

type fileTotals struct {
	Daily  DailyTotals  `json:"daily"`
	Weekly WeeklyTotals `json:"weekly"`
}

func OpenFile(path string) (*FileStore, error) {
	s := &FileStore{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) Reload() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var doc struct {
		Users map[string]fileTotals `json:"users"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	s.mu.Lock()
	s.users = doc.Users
	s.mu.Unlock()
	return nil
}

func (s *FileStore) DailyTotals(ctx context.Context, userID string, day time.Time) (DailyTotals, error) {
	_, _ = ctx, day
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[userID].Daily, nil
}

func (s *FileStore) WeeklyTotals(ctx context.Context, userID string, weekEnding time.Time) (WeeklyTotals, error) {
	_, _ = ctx, weekEnding
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[userID].Weekly, nil
}
