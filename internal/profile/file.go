package profile

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"sync"
)

// FileStore is a read-only profile backend over a JSON document:
//
//	{
//	  "users": {
//	    "<userId>": {
//	      "preferences": {"meal_reminders": false, ...},
//	      "quiet_hours": {"start": "22:00", "end": "07:00"}
//	    }
//	  }
//	}
//
// It exists so the daemon can run without the owning CRUD service; anything
// richer belongs to that service, not here.
type FileStore struct {
	path string

	mu    sync.RWMutex
	users map[string]fileUser
}

type fileUser struct {
	Preferences Preferences `json:"preferences,omitempty"`
	QuietHours  QuietHours  `json:"quiet_hours,omitempty"`
}

type fileDoc struct {
	Users map[string]fileUser `json:"users"`
}

func OpenFile(path string) (*FileStore, error) {
	s := &FileStore{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the backing file. Used by the config watcher so profile
// edits take effect without a restart.
func (s *FileStore) Reload() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var doc fileDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	s.mu.Lock()
	s.users = doc.Users
	s.mu.Unlock()
	return nil
}

func (s *FileStore) UserIDs(ctx context.Context) ([]string, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *FileStore) Preferences(ctx context.Context, userID string) (Preferences, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[userID].Preferences, nil
}

func (s *FileStore) QuietHours(ctx context.Context, userID string) (QuietHours, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[userID].QuietHours, nil
}
