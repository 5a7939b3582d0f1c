// Package schema implements the versioned parameter store at the heart of
// the build pipeline: a tree of typed, per-node-addressable parameters with
// transactional journaling, template instantiation and manifest
// serialization.
package schema

import (
	"fmt"
	"sort"

	"github.com/rtrevinnoc/siliconcompiler/pkg/errors"
)

// treeEntry is a node in the store tree: either a *Store or a *Parameter.
type treeEntry interface {
	cloneEntry() treeEntry
}

// Store is a hierarchical parameter store. Children are nested stores or
// parameter leaves; a child named "default" acts as a template that is
// instantiated for unknown segments on first write.
//
// A Store and its journal follow a single-writer model: concurrent readers
// are safe only while no writer is active.
type Store struct {
	name     string
	children map[string]treeEntry
	journal  *Journal
}

// NewStore creates an empty anonymous store with an inactive journal.
func NewStore() *Store {
	return &Store{
		children: map[string]treeEntry{},
		journal:  NewJournal(),
	}
}

// NewNamedStore creates an empty store carrying a name, intended to be
// mounted into a parent store.
func NewNamedStore(name string) *Store {
	s := NewStore()
	s.name = name
	return s
}

// Name returns the name the store was created or mounted with.
func (s *Store) Name() string {
	return s.name
}

// Journal returns the store's journal view.
func (s *Store) Journal() *Journal {
	return s.journal
}

// access collects the optional coordinates of a store operation.
type access struct {
	step  string
	index string
	field string
}

// Option adjusts a single store operation.
type Option func(*access)

// Step scopes an operation to a node step.
func Step(step string) Option {
	return func(a *access) { a.step = step }
}

// Index scopes an operation to a node index.
func Index(index string) Option {
	return func(a *access) { a.index = index }
}

// Field targets a parameter field other than the value.
func Field(field string) Option {
	return func(a *access) { a.field = field }
}

func applyOptions(opts []Option) access {
	var a access
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

// find walks the concrete tree without instantiating templates.
func (s *Store) find(key Keypath) (treeEntry, error) {
	current := s
	for i, segment := range key {
		child, ok := current.children[segment]
		if !ok {
			return nil, errors.NewKeypathError(key.String(), "cannot be found", nil)
		}
		if i == len(key)-1 {
			return child, nil
		}
		next, ok := child.(*Store)
		if !ok {
			return nil, errors.NewKeypathError(key[:i+1].String(), "is not a store", nil)
		}
		current = next
	}
	return s, nil
}

// findParam resolves a keypath to a parameter leaf.
func (s *Store) findParam(key Keypath) (*Parameter, error) {
	entry, err := s.find(key)
	if err != nil {
		return nil, err
	}
	param, ok := entry.(*Parameter)
	if !ok {
		return nil, errors.NewKeypathError(key.String(), "is not a parameter", nil)
	}
	return param, nil
}

// ensureParam resolves a keypath to a parameter leaf, instantiating
// template children for unknown segments along the way.
func (s *Store) ensureParam(key Keypath) (*Parameter, error) {
	current := s
	for i, segment := range key {
		child, ok := current.children[segment]
		if !ok {
			template, hasTemplate := current.children[Wildcard]
			if !hasTemplate || segment == Wildcard {
				return nil, errors.NewKeypathError(key.String(), "cannot be found", nil)
			}
			if err := checkSegment(segment); err != nil {
				return nil, errors.NewKeypathError(key.String(), fmt.Sprintf("contains invalid segment %q", segment), err)
			}
			child = template.cloneEntry()
			if store, ok := child.(*Store); ok {
				store.name = segment
				store.rebindJournal(current.journal.Child(segment))
			}
			current.children[segment] = child
		}
		if i == len(key)-1 {
			param, ok := child.(*Parameter)
			if !ok {
				return nil, errors.NewKeypathError(key.String(), "is not a parameter", nil)
			}
			return param, nil
		}
		next, ok := child.(*Store)
		if !ok {
			return nil, errors.NewKeypathError(key[:i+1].String(), "is not a store", nil)
		}
		current = next
	}
	return nil, errors.NewKeypathError(key.String(), "cannot be found", nil)
}

// Set writes a parameter value (or, with Field, a metadata field) at a
// keypath. Unknown segments backed by a template are instantiated first.
// Writing to a locked parameter is a silent no-op.
func (s *Store) Set(key Keypath, value any, opts ...Option) error {
	if err := key.validate(); err != nil {
		return err
	}
	a := applyOptions(opts)

	param, err := s.ensureParam(key)
	if err != nil {
		return err
	}

	var ok bool
	if a.field == "" || a.field == "value" {
		ok, err = param.Set(value, a.step, a.index)
	} else {
		ok, err = param.SetField(a.field, value, a.step, a.index)
	}
	if err != nil {
		return errors.NewKeypathError(key.String(), err.Error(), err)
	}
	if ok {
		s.journal.Record(OpSet, key, value, fieldName(a.field), a.step, a.index)
	}
	return nil
}

func fieldName(field string) string {
	if field == "" {
		return "value"
	}
	return field
}

// Add appends to a list parameter at a keypath.
func (s *Store) Add(key Keypath, value any, opts ...Option) error {
	if err := key.validate(); err != nil {
		return err
	}
	a := applyOptions(opts)
	if a.field != "" && a.field != "value" {
		return errors.NewKeypathError(key.String(), "add only operates on the value field", nil)
	}

	param, err := s.ensureParam(key)
	if err != nil {
		return err
	}
	ok, err := param.Add(value, a.step, a.index)
	if err != nil {
		return errors.NewKeypathError(key.String(), err.Error(), err)
	}
	if ok {
		s.journal.Record(OpAdd, key, value, "value", a.step, a.index)
	}
	return nil
}

// Get reads a parameter value (or metadata field) at a keypath.
func (s *Store) Get(key Keypath, opts ...Option) (any, error) {
	a := applyOptions(opts)

	param, err := s.findParam(key)
	if err != nil {
		return nil, err
	}

	var value any
	if a.field == "" || a.field == "value" {
		value, err = param.Get(a.step, a.index)
	} else {
		value, err = param.GetField(a.field, a.step, a.index)
	}
	if err != nil {
		return nil, errors.NewKeypathError(key.String(), err.Error(), err)
	}
	s.journal.Record(OpGet, key, value, fieldName(a.field), a.step, a.index)
	return value, nil
}

// Unset clears a parameter value at a keypath coordinate, reverting reads
// to the declared default.
func (s *Store) Unset(key Keypath, opts ...Option) error {
	a := applyOptions(opts)

	param, err := s.findParam(key)
	if err != nil {
		return err
	}
	ok, err := param.Unset(a.step, a.index)
	if err != nil {
		return errors.NewKeypathError(key.String(), err.Error(), err)
	}
	if ok {
		s.journal.Record(OpUnset, key, nil, "", a.step, a.index)
	}
	return nil
}

// Remove deletes a subtree or parameter that was instantiated from a
// template. Statically declared keys and subtrees holding a locked
// parameter are refused.
func (s *Store) Remove(key Keypath) error {
	if len(key) == 0 {
		return errors.NewKeypathError(key.String(), "is empty", nil)
	}

	parentKey := key[:len(key)-1]
	leaf := key[len(key)-1]

	parent := s
	if len(parentKey) > 0 {
		entry, err := s.find(parentKey)
		if err != nil {
			return err
		}
		store, ok := entry.(*Store)
		if !ok {
			return errors.NewKeypathError(parentKey.String(), "is not a store", nil)
		}
		parent = store
	}

	target, ok := parent.children[leaf]
	if !ok {
		return errors.NewKeypathError(key.String(), "cannot be found", nil)
	}
	if _, hasTemplate := parent.children[Wildcard]; !hasTemplate || leaf == Wildcard {
		return errors.NewKeypathError(key.String(), "is not a removable keypath", nil)
	}
	if containsLocked(target) {
		return errors.NewKeypathError(key.String(), "cannot be removed, it contains locked parameters", nil)
	}

	delete(parent.children, leaf)
	s.journal.Record(OpRemove, key, nil, "", "", "")
	return nil
}

func containsLocked(entry treeEntry) bool {
	switch e := entry.(type) {
	case *Parameter:
		return e.Locked()
	case *Store:
		for _, child := range e.children {
			if containsLocked(child) {
				return true
			}
		}
	}
	return false
}

// Has reports whether a concrete keypath exists.
func (s *Store) Has(key Keypath) bool {
	_, err := s.find(key)
	return err == nil
}

// IsParameter reports whether a concrete keypath names a parameter leaf.
func (s *Store) IsParameter(key Keypath) bool {
	_, err := s.findParam(key)
	return err == nil
}

// Keys lists the child names under a prefix in sorted order.
func (s *Store) Keys(prefix ...string) ([]string, error) {
	current := s
	if len(prefix) > 0 {
		entry, err := s.find(Keypath(prefix))
		if err != nil {
			return nil, err
		}
		store, ok := entry.(*Store)
		if !ok {
			return nil, errors.NewKeypathError(Keypath(prefix).String(), "is not a store", nil)
		}
		current = store
	}

	keys := make([]string, 0, len(current.children))
	for name := range current.children {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys, nil
}

// AllKeys returns every parameter keypath in the store, sorted.
func (s *Store) AllKeys() []Keypath {
	var out []Keypath
	s.walk(nil, func(key Keypath, _ *Parameter) {
		out = append(out, key.Clone())
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}

func (s *Store) walk(prefix Keypath, visit func(Keypath, *Parameter)) {
	names := make([]string, 0, len(s.children))
	for name := range s.children {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		key := append(prefix.Clone(), name)
		switch child := s.children[name].(type) {
		case *Parameter:
			visit(key, child)
		case *Store:
			child.walk(key, visit)
		}
	}
}

// Clone returns a deep copy of the store. The copy carries a fresh,
// inactive journal.
func (s *Store) Clone() *Store {
	clone := &Store{
		name:     s.name,
		children: map[string]treeEntry{},
		journal:  NewJournal(),
	}
	for name, child := range s.children {
		clone.children[name] = child.cloneEntry()
	}
	for name, child := range clone.children {
		if store, ok := child.(*Store); ok {
			store.rebindJournal(clone.journal.Child(name))
		}
	}
	return clone
}

func (s *Store) cloneEntry() treeEntry {
	return s.Clone()
}

// rebindJournal points the store and its nested children at a new journal
// view. Used when mounting a named store into a parent.
func (s *Store) rebindJournal(journal *Journal) {
	s.journal = journal
	for name, child := range s.children {
		if store, ok := child.(*Store); ok {
			store.rebindJournal(journal.Child(name))
		}
	}
}
