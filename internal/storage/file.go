package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "nutripush/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.subs.snapshot.json (whole-map snapshot, atomic replace)
//   - <prefix>.delivery.jsonl     (append-only JSON Lines)
//
// Snapshot writes go through a single mutex so two concurrent saves can never
// interleave partial content; the tmp+rename replace keeps a crash from
// leaving a torn file behind.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	deliveryPath string
	deliveryFile *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	deliveryPath := prefix + ".delivery.jsonl"
	df, err := os.OpenFile(deliveryPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:          log,
		snapshotPath: prefix + ".subs.snapshot.json",
		deliveryPath: deliveryPath,
		deliveryFile: df,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliveryFile != nil {
		err := s.deliveryFile.Close()
		s.deliveryFile = nil
		return err
	}
	return nil
}

func (s *fileStore) SaveSubscriptions(ctx context.Context, snap map[string][]SubscriptionRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.snapshotPath)
}

func (s *fileStore) LoadSubscriptions(ctx context.Context) (map[string][]SubscriptionRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]SubscriptionRecord{}, nil
		}
		return nil, err
	}
	defer f.Close()

	var snap map[string][]SubscriptionRecord
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return nil, err
	}
	if snap == nil {
		snap = map[string][]SubscriptionRecord{}
	}
	return snap, nil
}

func (s *fileStore) AppendDelivery(ctx context.Context, rec DeliveryRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliveryFile == nil {
		return errors.New("delivery file closed")
	}
	return json.NewEncoder(s.deliveryFile).Encode(rec)
}

func (s *fileStore) Deliveries(ctx context.Context, userID string, limit, offset int) ([]DeliveryRecord, error) {
	_ = ctx
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.deliveryPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var all []DeliveryRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var rec DeliveryRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			// Skip torn/garbage lines rather than failing the whole query.
			s.log.Debug("skipping unreadable delivery line", logx.Err(err))
			continue
		}
		if rec.UserID == userID {
			all = append(all, rec)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	// File order is chronological; page from the end.
	out := make([]DeliveryRecord, 0, limit)
	for i := len(all) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}
