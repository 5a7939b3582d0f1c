package schema

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rtrevinnoc/siliconcompiler/pkg/errors"
)

// OpType identifies a journaled store transaction.
type OpType string

const (
	OpSet    OpType = "set"
	OpAdd    OpType = "add"
	OpRemove OpType = "remove"
	OpUnset  OpType = "unset"
	OpGet    OpType = "get"
)

var validOps = map[OpType]bool{
	OpSet:    true,
	OpAdd:    true,
	OpRemove: true,
	OpUnset:  true,
	OpGet:    true,
}

// Entry is one journaled transaction, serialized into the manifest under
// the __journal__ key.
type Entry struct {
	Op    OpType   `json:"type"`
	Key   []string `json:"key"`
	Value any      `json:"value"`
	Field string   `json:"field"`
	Step  string   `json:"step"`
	Index string   `json:"index"`
}

// journalLog is the single owned log shared by a root journal and all of
// its child views. A nil entry slice means "not journaling", which is
// distinct from an empty, active log.
type journalLog struct {
	entries []Entry
	types   map[OpType]bool
}

// Journal records store transactions. Child views share the root's log and
// enabled-type set, prepending their keypath prefix to every record.
//
// Like the Store it observes, the journal is single-writer.
type Journal struct {
	prefix Keypath
	log    *journalLog
	root   bool
}

// NewJournal creates an inactive root journal.
func NewJournal() *Journal {
	return &Journal{
		log:  &journalLog{types: map[OpType]bool{}},
		root: true,
	}
}

// Child returns a view over the same log whose records are prefixed with
// the given keypath segments.
func (j *Journal) Child(key ...string) *Journal {
	return &Journal{
		prefix: append(j.prefix.Clone(), key...),
		log:    j.log,
	}
}

// Keypath returns the prefix this view prepends to recorded keys.
func (j *Journal) Keypath() Keypath {
	return j.prefix.Clone()
}

// Start begins journaling with a fresh, empty log and the default record
// types: set, add, remove and unset. Reads are opt-in via AddType.
func (j *Journal) Start() {
	j.log.entries = []Entry{}
	j.log.types[OpSet] = true
	j.log.types[OpAdd] = true
	j.log.types[OpRemove] = true
	j.log.types[OpUnset] = true
}

// Stop ends journaling and discards the log.
func (j *Journal) Stop() {
	j.log.entries = nil
	j.log.types = map[OpType]bool{}
}

// IsJournaling reports whether a log is being kept.
func (j *Journal) IsJournaling() bool {
	return j.log.entries != nil
}

// HasJournaling reports whether this view is the root and the log holds at
// least one entry.
func (j *Journal) HasJournaling() bool {
	return j.root && len(j.log.entries) > 0
}

// Types returns the record types currently being journaled.
func (j *Journal) Types() []OpType {
	out := make([]OpType, 0, len(j.log.types))
	for op, enabled := range j.log.types {
		if enabled {
			out = append(out, op)
		}
	}
	return out
}

// AddType enables journaling of an additional record type.
func (j *Journal) AddType(op OpType) error {
	if !validOps[op] {
		return fmt.Errorf("%s is not a valid type", op)
	}
	j.log.types[op] = true
	return nil
}

// RemoveType disables journaling of a record type. Unknown types are
// ignored.
func (j *Journal) RemoveType(op OpType) {
	delete(j.log.types, op)
}

// Record appends a transaction to the log. It is a no-op when journaling
// is inactive or the record type is not enabled.
func (j *Journal) Record(op OpType, key Keypath, value any, field, step, index string) {
	if j.log.entries == nil {
		return
	}
	if !j.log.types[op] {
		return
	}

	full := make([]string, 0, len(j.prefix)+len(key))
	full = append(full, j.prefix...)
	full = append(full, key...)

	j.log.entries = append(j.log.entries, Entry{
		Op:    op,
		Key:   full,
		Value: copyValue(value),
		Field: field,
		Step:  step,
		Index: index,
	})
}

// Entries returns a copy of the log, or nil when not journaling.
func (j *Journal) Entries() []Entry {
	if j.log.entries == nil {
		return nil
	}
	out := make([]Entry, len(j.log.entries))
	for i, entry := range j.log.entries {
		out[i] = entry
		out[i].Key = append([]string{}, entry.Key...)
		out[i].Value = copyValue(entry.Value)
	}
	return out
}

// LoadEntries replaces the log with entries decoded from a manifest.
func (j *Journal) LoadEntries(entries []Entry) {
	j.log.entries = append([]Entry{}, entries...)
}

// Replay applies the journaled transactions to a store in order. Read
// records are skipped. An unknown record type aborts the replay; no
// partial-application recovery is attempted.
func (j *Journal) Replay(store *Store) error {
	for _, entry := range j.log.entries {
		key := Keypath(entry.Key)
		var err error
		switch entry.Op {
		case OpSet:
			var opts []Option
			if entry.Field != "" {
				opts = append(opts, Field(entry.Field))
			}
			if entry.Step != "" {
				opts = append(opts, Step(entry.Step))
			}
			if entry.Index != "" {
				opts = append(opts, Index(entry.Index))
			}
			err = store.Set(key, entry.Value, opts...)
		case OpAdd:
			var opts []Option
			if entry.Step != "" {
				opts = append(opts, Step(entry.Step))
			}
			if entry.Index != "" {
				opts = append(opts, Index(entry.Index))
			}
			err = store.Add(key, entry.Value, opts...)
		case OpUnset:
			var opts []Option
			if entry.Step != "" {
				opts = append(opts, Step(entry.Step))
			}
			if entry.Index != "" {
				opts = append(opts, Index(entry.Index))
			}
			err = store.Unset(key, opts...)
		case OpRemove:
			err = store.Remove(key)
		case OpGet:
			continue
		default:
			return errors.NewReplayError(string(entry.Op), "", nil)
		}
		if err != nil {
			return errors.NewReplayError(string(entry.Op), key.String(), err)
		}
	}
	return nil
}

// ReplayFile loads a manifest file and replays the journal embedded under
// its __journal__ key. A manifest without a journal is a no-op.
func ReplayFile(store *Store, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var manifest map[string]json.RawMessage
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return errors.NewParseError(path, 0, err)
	}

	embedded, ok := manifest[journalKey]
	if !ok {
		return nil
	}

	var entries []Entry
	if err := json.Unmarshal(embedded, &entries); err != nil {
		return errors.NewParseError(path, 0, err)
	}

	journal := NewJournal()
	journal.LoadEntries(entries)
	return journal.Replay(store)
}
