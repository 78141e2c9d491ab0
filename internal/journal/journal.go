// Package journal keeps the undo history of a session between CLI runs.
//
// Entries are keyed by a fingerprint of the loaded history, so a journal
// written against a branch that has since moved is simply never found.
package journal

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
	"lukechampine.com/blake3"

	"github.com/kurobon/retcon/internal/state"
)

var bucketSessions = []byte("sessions")

// FileName is the journal database name inside the data root.
const FileName = "journal.db"

type Journal struct {
	db *bbolt.DB
}

// Entry is one persisted undo history.
type Entry struct {
	Branch  string
	Tip     plumbing.Hash
	Undo    []state.Action
	Redo    []state.Action
	SavedAt time.Time
}

type entryRecord struct {
	Branch  string          `json:"branch"`
	Tip     string          `json:"tip"`
	Undo    json.RawMessage `json:"undo"`
	Redo    json.RawMessage `json:"redo"`
	SavedAt time.Time       `json:"saved_at"`
}

// Open opens or creates the journal at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "create %s", filepath.Dir(path))
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open journal %s", path)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSessions)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create journal bucket")
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error { return j.db.Close() }

// Fingerprint identifies a loaded history by branch, tip and the loaded ids.
func Fingerprint(snap *state.Snapshot) string {
	h := blake3.New(32, nil)
	h.Write([]byte(snap.Branch()))
	h.Write([]byte{0})
	for _, id := range snap.IDs() {
		h.Write(id[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Save stores the undo history for snap, replacing any previous entry.
func (j *Journal) Save(snap *state.Snapshot, undo, redo []state.Action) error {
	u, err := state.MarshalActions(undo)
	if err != nil {
		return err
	}
	r, err := state.MarshalActions(redo)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(entryRecord{
		Branch:  snap.Branch(),
		Tip:     snap.Tip().String(),
		Undo:    u,
		Redo:    r,
		SavedAt: time.Now().UTC(),
	})
	if err != nil {
		return errors.Wrap(err, "encode journal entry")
	}
	payload, err := compress(raw)
	if err != nil {
		return err
	}

	key := []byte(Fingerprint(snap))
	return j.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSessions).Put(key, payload)
	})
}

// Load returns the entry saved for snap. found is false when there is none.
func (j *Journal) Load(snap *state.Snapshot) (entry Entry, found bool, err error) {
	var payload []byte
	err = j.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketSessions).Get([]byte(Fingerprint(snap))); v != nil {
			payload = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || payload == nil {
		return Entry{}, false, err
	}

	raw, err := decompress(payload)
	if err != nil {
		return Entry{}, false, err
	}
	var rec entryRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Entry{}, false, errors.Wrap(err, "decode journal entry")
	}
	entry = Entry{Branch: rec.Branch, Tip: plumbing.NewHash(rec.Tip), SavedAt: rec.SavedAt}
	if entry.Undo, err = state.UnmarshalActions(rec.Undo); err != nil {
		return Entry{}, false, err
	}
	if entry.Redo, err = state.UnmarshalActions(rec.Redo); err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

// Delete removes the entry for snap. A missing entry is not an error.
func (j *Journal) Delete(snap *state.Snapshot) error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSessions).Delete([]byte(Fingerprint(snap)))
	})
}

// Len returns the number of stored entries.
func (j *Journal) Len() (int, error) {
	n := 0
	err := j.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketSessions).Stats().KeyN
		return nil
	})
	return n, err
}

func compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, errors.Wrap(err, "zstd writer")
	}
	if _, err := enc.Write(raw); err != nil {
		return nil, errors.Wrap(err, "zstd write")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "zstd close")
	}
	return buf.Bytes(), nil
}

func decompress(payload []byte) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "zstd reader")
	}
	defer dec.Close()
	raw, err := io.ReadAll(dec)
	return raw, errors.Wrap(err, "read journal payload")
}
