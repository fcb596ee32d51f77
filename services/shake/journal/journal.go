// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package journal

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/shake/services/shake/sweep"
)

var tracer = otel.Tracer("aleutian.shake.journal")

// Sentinel errors for the journal.
var (
	// ErrNotFound indicates no record exists for an ID.
	ErrNotFound = errors.New("run record not found")

	// ErrCorrupt indicates a stored record failed its checksum.
	ErrCorrupt = errors.New("run record corrupt")

	// ErrClosed indicates the journal was used after Close.
	ErrClosed = errors.New("journal closed")

	// ErrMissingID indicates a record without an ID was recorded.
	ErrMissingID = errors.New("run record has no ID")
)

const (
	runPrefix   = "run/"
	indexPrefix = "idx/"
)

// RunRecord is the persisted outcome of one shake run.
type RunRecord struct {
	ID        string    `json:"id"`
	Assembly  string    `json:"assembly"`
	Source    string    `json:"source,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Duration  int64     `json:"duration_ns"`

	Roots   int `json:"roots"`
	Reached int `json:"reached"`

	// Removed counts removals per symbol kind.
	Removed      map[string]int `json:"removed,omitempty"`
	Total        int            `json:"total"`
	StaleImports int            `json:"stale_imports"`

	Removals     []sweep.Removal `json:"removals,omitempty"`
	ConfigErrors []string        `json:"config_errors,omitempty"`

	// Error is set when the run failed.
	Error string `json:"error,omitempty"`
}

// Summary returns a copy of r without the removal list.
func (r RunRecord) Summary() RunRecord {
	r.Removals = nil
	return r
}

// Journal stores run records.
//
// Thread Safety: Safe for concurrent use.
type Journal struct {
	db     *badger.DB
	gc     *gcRunner
	logger *slog.Logger
}

// Open opens or creates a journal.
//
// Description:
//
//	Opens the BadgerDB instance described by cfg and, for on-disk
//	journals with a positive GCInterval, starts value log garbage
//	collection.
//
// Inputs:
//
//	cfg - Journal configuration. Path is required unless InMemory is set.
//
// Outputs:
//
//	*Journal - The journal. Call Close when done.
//	error - Non-nil if the database cannot be opened.
func Open(cfg Config) (*Journal, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	j := &Journal{db: db, logger: logger}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		runner, err := newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("create GC runner: %w", err)
		}
		j.gc = runner
		runner.start()
	}
	return j, nil
}

// Close stops garbage collection and closes the database.
func (j *Journal) Close() error {
	if j.gc != nil {
		j.gc.stop()
	}
	return j.db.Close()
}

// Record stores rec, replacing any record with the same ID.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing.
//	rec - The record. ID must be set.
//
// Outputs:
//
//	error - ErrMissingID, or a wrapped storage error.
func (j *Journal) Record(ctx context.Context, rec RunRecord) error {
	if rec.ID == "" {
		return ErrMissingID
	}
	ctx, span := tracer.Start(ctx, "Journal.Record",
		trace.WithAttributes(
			attribute.String("run_id", rec.ID),
			attribute.String("assembly", rec.Assembly),
		),
	)
	defer span.End()

	data, err := encodeRecord(rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode failed")
		return fmt.Errorf("encode record: %w", err)
	}

	err = j.update(ctx, func(txn *badger.Txn) error {
		if prev, err := getRecord(txn, rec.ID); err == nil {
			if err := txn.Delete(indexKey(prev)); err != nil {
				return err
			}
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := txn.Set(runKey(rec.ID), data); err != nil {
			return err
		}
		return txn.Set(indexKey(rec), nil)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return fmt.Errorf("write record %s: %w", rec.ID, err)
	}

	span.SetAttributes(attribute.Int("record_bytes", len(data)))
	j.logger.Debug("run recorded",
		slog.String("run_id", rec.ID),
		slog.Int("bytes", len(data)))
	return nil
}

// Get loads the record with the given ID.
//
// Outputs:
//
//	*RunRecord - The record.
//	error - ErrNotFound, ErrCorrupt, or a wrapped storage error.
func (j *Journal) Get(ctx context.Context, id string) (*RunRecord, error) {
	ctx, span := tracer.Start(ctx, "Journal.Get", trace.WithAttributes(attribute.String("run_id", id)))
	defer span.End()

	var rec RunRecord
	err := j.view(ctx, func(txn *badger.Txn) error {
		r, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "read failed")
		}
		return nil, err
	}
	return &rec, nil
}

// List returns up to limit record summaries, newest first. A limit of zero
// or less returns every record.
func (j *Journal) List(ctx context.Context, limit int) ([]RunRecord, error) {
	ctx, span := tracer.Start(ctx, "Journal.List", trace.WithAttributes(attribute.Int("limit", limit)))
	defer span.End()

	var out []RunRecord
	err := j.view(ctx, func(txn *badger.Txn) error {
		entries, err := newestEntries(txn, limit)
		if err != nil {
			return err
		}
		for _, e := range entries {
			rec, err := getRecord(txn, e.id)
			if errors.Is(err, ErrCorrupt) {
				j.logger.Warn("skipping corrupt run record", slog.String("run_id", e.id))
				continue
			}
			if err != nil {
				return err
			}
			out = append(out, rec.Summary())
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("count", len(out)))
	return out, nil
}

// Prune deletes every record except the newest keep. It returns the number
// of records deleted.
func (j *Journal) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	ctx, span := tracer.Start(ctx, "Journal.Prune", trace.WithAttributes(attribute.Int("keep", keep)))
	defer span.End()

	deleted := 0
	err := j.update(ctx, func(txn *badger.Txn) error {
		entries, err := newestEntries(txn, 0)
		if err != nil {
			return err
		}
		if len(entries) <= keep {
			return nil
		}
		for _, e := range entries[keep:] {
			if err := txn.Delete(e.key); err != nil {
				return err
			}
			if err := txn.Delete(runKey(e.id)); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "prune failed")
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	if deleted > 0 {
		j.logger.Info("pruned run journal", slog.Int("deleted", deleted), slog.Int("kept", keep))
	}
	return deleted, nil
}

// =============================================================================
// Internals
// =============================================================================

func (j *Journal) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if j.db.IsClosed() {
		return ErrClosed
	}
	return j.db.Update(fn)
}

func (j *Journal) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if j.db.IsClosed() {
		return ErrClosed
	}
	return j.db.View(fn)
}

func runKey(id string) []byte {
	return []byte(runPrefix + id)
}

func indexKey(rec RunRecord) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", indexPrefix, rec.StartedAt.UnixNano(), rec.ID))
}

func idFromIndex(key []byte) string {
	rest := key[len(indexPrefix):]
	if i := bytes.IndexByte(rest, '/'); i >= 0 {
		return string(rest[i+1:])
	}
	return string(rest)
}

type indexEntry struct {
	key []byte
	id  string
}

func newestEntries(txn *badger.Txn, limit int) ([]indexEntry, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Reverse = true
	it := txn.NewIterator(opts)
	defer it.Close()

	prefix := []byte(indexPrefix)
	var out []indexEntry
	for it.Seek(append(prefix, 0xFF)); it.ValidForPrefix(prefix); it.Next() {
		key := it.Item().KeyCopy(nil)
		out = append(out, indexEntry{key: key, id: idFromIndex(key)})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func getRecord(txn *badger.Txn, id string) (RunRecord, error) {
	item, err := txn.Get(runKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return RunRecord{}, err
	}
	var rec RunRecord
	err = item.Value(func(val []byte) error {
		var derr error
		rec, derr = decodeRecord(val)
		return derr
	})
	return rec, err
}

// encodeRecord frames the JSON record with a CRC32 of its bytes.
func encodeRecord(rec RunRecord) ([]byte, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out, crc32.ChecksumIEEE(body))
	copy(out[4:], body)
	return out, nil
}

func decodeRecord(data []byte) (RunRecord, error) {
	var rec RunRecord
	if len(data) < 4 {
		return rec, fmt.Errorf("%w: %d bytes", ErrCorrupt, len(data))
	}
	body := data[4:]
	if binary.BigEndian.Uint32(data) != crc32.ChecksumIEEE(body) {
		return rec, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	if err := json.Unmarshal(body, &rec); err != nil {
		return rec, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return rec, nil
}
