package schema

import (
	"fmt"

	"github.com/rtrevinnoc/siliconcompiler/pkg/errors"
)

// EditStore performs structural schema surgery on a Store: declaring
// parameters, mounting named sub-stores and removing declarations. Unlike
// the Store's value operations, edits are not journaled.
type EditStore struct {
	store *Store
}

// Edit wraps a store for structural modification.
func Edit(store *Store) *EditStore {
	return &EditStore{store: store}
}

// Insert declares a parameter or mounts a sub-store at a keypath,
// creating intermediate stores as needed. Inserting over an existing
// declaration fails.
func (e *EditStore) Insert(key Keypath, item any) error {
	return e.insert(key, item, false)
}

// Overwrite declares a parameter or mounts a sub-store at a keypath,
// replacing any existing declaration.
func (e *EditStore) Overwrite(key Keypath, item any) error {
	return e.insert(key, item, true)
}

func (e *EditStore) insert(key Keypath, item any, clobber bool) error {
	if len(key) == 0 {
		return errors.NewKeypathError(key.String(), "is empty", nil)
	}
	for _, segment := range key {
		if err := checkSegment(segment); err != nil {
			return errors.NewKeypathError(key.String(), fmt.Sprintf("contains invalid segment %q", segment), err)
		}
	}

	var param *Parameter
	var store *Store
	switch v := item.(type) {
	case *Parameter:
		param = v
	case *Store:
		store = v
	default:
		return errors.NewKeypathError(key.String(), fmt.Sprintf("cannot hold a %T, only parameters and stores", item), nil)
	}

	current := e.store
	for _, segment := range key[:len(key)-1] {
		child, ok := current.children[segment]
		if !ok {
			next := NewNamedStore(segment)
			next.journal = current.journal.Child(segment)
			current.children[segment] = next
			current = next
			continue
		}
		next, ok := child.(*Store)
		if !ok {
			return errors.NewKeypathError(key.String(), "cannot be inserted through a parameter", nil)
		}
		current = next
	}

	leaf := key[len(key)-1]
	if _, exists := current.children[leaf]; exists && !clobber {
		return errors.NewKeypathError(key.String(), "is already defined", nil)
	}

	if param != nil {
		current.children[leaf] = param
		return nil
	}
	store.name = leaf
	store.rebindJournal(current.journal.Child(leaf))
	current.children[leaf] = store
	return nil
}

// Remove deletes a declaration at a keypath.
func (e *EditStore) Remove(key Keypath) error {
	if len(key) == 0 {
		return errors.NewKeypathError(key.String(), "is empty", nil)
	}

	parent := e.store
	if len(key) > 1 {
		entry, err := e.store.find(key[:len(key)-1])
		if err != nil {
			return err
		}
		store, ok := entry.(*Store)
		if !ok {
			return errors.NewKeypathError(key[:len(key)-1].String(), "is not a store", nil)
		}
		parent = store
	}

	leaf := key[len(key)-1]
	if _, ok := parent.children[leaf]; !ok {
		return errors.NewKeypathError(key.String(), "cannot be found", nil)
	}
	delete(parent.children, leaf)
	return nil
}

// Search returns the *Parameter or *Store declared at a keypath.
func (e *EditStore) Search(key Keypath) (any, error) {
	entry, err := e.store.find(key)
	if err != nil {
		return nil, err
	}
	return entry, nil
}
