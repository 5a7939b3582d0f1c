package schema

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/rtrevinnoc/siliconcompiler/pkg/errors"
)

// SchemaVersion is recorded in the __meta__ section of written manifests.
const SchemaVersion = "0.1.0"

const (
	journalKey = "__journal__"
	metaKey    = "__meta__"
)

func (p *Parameter) toDict() map[string]any {
	node := map[string]any{}

	steps := make([]string, 0, len(p.values))
	for step := range p.values {
		steps = append(steps, step)
	}
	sort.Strings(steps)
	for _, step := range steps {
		indexes := map[string]any{}
		for index, nv := range p.values[step] {
			indexes[index] = map[string]any{"value": copyValue(nv.value)}
		}
		node[step] = indexes
	}
	node[Wildcard] = map[string]any{
		Wildcard: map[string]any{"value": copyValue(p.defvalue)},
	}

	return map[string]any{
		"type":      p.typ.String(),
		"pernode":   p.pernode.String(),
		"scope":     p.scope.String(),
		"require":   p.require,
		"lock":      p.lock,
		"unit":      p.unit,
		"shorthelp": p.shorthelp,
		"help":      p.help,
		"node":      node,
	}
}

func paramFromDict(data map[string]any) (*Parameter, error) {
	typeDecl, ok := data["type"].(string)
	if !ok {
		return nil, fmt.Errorf("missing type declaration")
	}
	param, err := NewParameter(typeDecl)
	if err != nil {
		return nil, err
	}

	if pernode, ok := data["pernode"].(string); ok {
		param.pernode, err = ParsePerNode(pernode)
		if err != nil {
			return nil, err
		}
	}
	if scope, ok := data["scope"].(string); ok {
		param.scope, err = ParseScope(scope)
		if err != nil {
			return nil, err
		}
	}
	if require, ok := data["require"].(bool); ok {
		param.require = require
	}
	if lock, ok := data["lock"].(bool); ok {
		param.lock = lock
	}
	if unit, ok := data["unit"].(string); ok {
		param.unit = unit
	}
	if shorthelp, ok := data["shorthelp"].(string); ok {
		param.shorthelp = shorthelp
	}
	if help, ok := data["help"].(string); ok {
		param.help = help
	}

	node, _ := data["node"].(map[string]any)
	for step, rawIndexes := range node {
		indexes, ok := rawIndexes.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("malformed node table at step %q", step)
		}
		for index, rawSlot := range indexes {
			slot, ok := rawSlot.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("malformed node table at %s/%s", step, index)
			}
			value, hasValue := slot["value"]
			if !hasValue || value == nil {
				continue
			}
			normalized, err := param.typ.Normalize(value)
			if err != nil {
				return nil, fmt.Errorf("value at %s/%s: %w", step, index, err)
			}
			if step == Wildcard && index == Wildcard {
				param.defvalue = normalized
				continue
			}
			param.storeSlot(step, index, normalized)
		}
	}
	return param, nil
}

func (s *Store) toDict() map[string]any {
	out := map[string]any{}
	for name, child := range s.children {
		switch c := child.(type) {
		case *Parameter:
			out[name] = c.toDict()
		case *Store:
			out[name] = c.toDict()
		}
	}
	return out
}

func (s *Store) fromDict(key Keypath, data map[string]any) error {
	for name, raw := range data {
		if name == journalKey || name == metaKey {
			continue
		}
		childKey := append(key.Clone(), name)

		childData, ok := raw.(map[string]any)
		if !ok {
			return errors.NewKeypathError(childKey.String(), "is not a parameter or store record", nil)
		}

		if isParamDict(childData) {
			param, err := paramFromDict(childData)
			if err != nil {
				return errors.NewKeypathError(childKey.String(), err.Error(), err)
			}
			if err := checkSegment(name); err != nil {
				return errors.NewKeypathError(childKey.String(), fmt.Sprintf("contains invalid segment %q", name), err)
			}
			s.children[name] = param
			continue
		}

		child, ok := s.children[name].(*Store)
		if !ok {
			child = NewNamedStore(name)
			child.journal = s.journal.Child(name)
			s.children[name] = child
		}
		if err := child.fromDict(childKey, childData); err != nil {
			return err
		}
	}
	return nil
}

// isParamDict distinguishes a parameter leaf record from a nested store
// subtree.
func isParamDict(data map[string]any) bool {
	if _, hasType := data["type"].(string); !hasType {
		return false
	}
	_, hasNode := data["node"]
	return hasNode
}

// WriteManifest serializes the store as an indented JSON manifest. An
// active, non-empty journal is embedded under __journal__.
func (s *Store) WriteManifest(w io.Writer) error {
	dict := s.toDict()
	dict[metaKey] = map[string]any{
		"class":   "store",
		"version": SchemaVersion,
	}
	if s.journal.HasJournaling() {
		dict[journalKey] = s.journal.Entries()
	}

	encoded, err := json.MarshalIndent(dict, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(encoded, '\n'))
	return err
}

// ReadManifest restores parameters, values and any embedded journal from a
// JSON manifest, instantiating structure for keys the store has not
// declared.
func (s *Store) ReadManifest(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return errors.NewParseError("manifest", 0, err)
	}

	if err := s.fromDict(nil, data); err != nil {
		return err
	}

	if rawJournal, ok := data[journalKey]; ok {
		encoded, err := json.Marshal(rawJournal)
		if err != nil {
			return err
		}
		var entries []Entry
		if err := json.Unmarshal(encoded, &entries); err != nil {
			return errors.NewParseError("manifest", 0, err)
		}
		s.journal.LoadEntries(entries)
	}
	return nil
}

// SaveManifest writes the manifest to disk atomically via a temporary
// file rename.
func (s *Store) SaveManifest(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := s.WriteManifest(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// LoadManifest reads a manifest file into the store.
func (s *Store) LoadManifest(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return s.ReadManifest(f)
}
