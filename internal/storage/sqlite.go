//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "nutripush/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers. A single connection
	// also serializes snapshot writes, which the registry contract requires.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) SaveSubscriptions(ctx context.Context, snap map[string][]SubscriptionRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM subscriptions`); err != nil {
		return err
	}
	for userID, subs := range snap {
		for i, sub := range subs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO subscriptions(user_id, position, endpoint, p256dh, auth) VALUES(?,?,?,?,?)`,
				userID, i, sub.Endpoint, sub.P256dh, sub.Auth,
			); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) LoadSubscriptions(ctx context.Context) (map[string][]SubscriptionRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, position, endpoint, p256dh, auth FROM subscriptions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type positioned struct {
		pos int
		rec SubscriptionRecord
	}
	byUser := map[string][]positioned{}
	for rows.Next() {
		var userID string
		var p positioned
		if err := rows.Scan(&userID, &p.pos, &p.rec.Endpoint, &p.rec.P256dh, &p.rec.Auth); err != nil {
			return nil, err
		}
		byUser[userID] = append(byUser[userID], p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	snap := make(map[string][]SubscriptionRecord, len(byUser))
	for userID, ps := range byUser {
		sort.Slice(ps, func(i, j int) bool { return ps[i].pos < ps[j].pos })
		recs := make([]SubscriptionRecord, 0, len(ps))
		for _, p := range ps {
			recs = append(recs, p.rec)
		}
		snap[userID] = recs
	}
	return snap, nil
}

func (s *sqliteStore) AppendDelivery(ctx context.Context, rec DeliveryRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if rec.SentAt.IsZero() {
		rec.SentAt = time.Now()
	}
	outcomes, err := json.Marshal(rec.Outcomes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO deliveries(id, user_id, sent_at, skipped, payload, outcomes) VALUES(?,?,?,?,?,?)`,
		rec.ID, rec.UserID, rec.SentAt.Format(time.RFC3339Nano),
		nullStr(rec.Skipped), nullStr(string(rec.Payload)), string(outcomes),
	)
	return err
}

func (s *sqliteStore) Deliveries(ctx context.Context, userID string, limit, offset int) ([]DeliveryRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, sent_at, COALESCE(skipped,''), COALESCE(payload,''), COALESCE(outcomes,'')
		 FROM deliveries WHERE user_id = ?
		 ORDER BY sent_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeliveryRecord
	for rows.Next() {
		var rec DeliveryRecord
		var sentAt, payload, outcomes string
		if err := rows.Scan(&rec.ID, &rec.UserID, &sentAt, &rec.Skipped, &payload, &outcomes); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339Nano, sentAt); err == nil {
			rec.SentAt = t
		}
		if payload != "" {
			rec.Payload = json.RawMessage(payload)
		}
		if outcomes != "" {
			if err := json.Unmarshal([]byte(outcomes), &rec.Outcomes); err != nil {
				s.log.Debug("unreadable delivery outcomes", logx.String("id", rec.ID), logx.Err(err))
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
