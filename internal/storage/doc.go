package storage

// Package storage provides the persistence layer used by the pipeline.
//
// It currently supports:
//   - The per-user push subscription snapshot (must round-trip across restarts)
//   - Append-only delivery audit records with paged reverse-chronological reads
