package sink

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/meigma/xferwatch/core"
)

const (
	transfersBucket = "transfers"
	metadataBucket  = "metadata"
	schemaVersion   = 1
)

// Bolt stores summaries in a bbolt file, one JSON entry per transfer in
// completion order.
type Bolt struct {
	db *bbolt.DB
}

var _ core.Sink = (*Bolt)(nil)

// OpenBolt opens or creates the history file at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}

	b := &Bolt{db: db}
	if err := b.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Bolt) initialize() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(transfersBucket)); err != nil {
			return fmt.Errorf("create transfers bucket: %w", err)
		}
		meta, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return fmt.Errorf("create metadata bucket: %w", err)
		}
		if err := meta.Put([]byte("schema_version"), fmt.Appendf(nil, "%d", schemaVersion)); err != nil {
			return fmt.Errorf("store schema version: %w", err)
		}
		return nil
	})
}

// Record appends s to the history.
func (b *Bolt) Record(_ context.Context, s core.Summary) error {
	data, err := json.Marshal(FromSummary(s))
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(transfersBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", transfersBucket)
		}
		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		if err := bucket.Put(itob(seq), data); err != nil {
			return fmt.Errorf("save summary %s: %w", s.Key, err)
		}
		return nil
	})
}

// List returns up to limit of the most recent entries, oldest first.
// A limit <= 0 returns every entry.
func (b *Bolt) List(limit int) ([]Entry, error) {
	var entries []Entry
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(transfersBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", transfersBucket)
		}
		c := bucket.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("unmarshal entry %d: %w", binary.BigEndian.Uint64(k), err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Close closes the history file.
func (b *Bolt) Close() error {
	return b.db.Close()
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
