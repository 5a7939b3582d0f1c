package schema

import (
	"fmt"
)

// PerNode controls whether a parameter may hold values per (step, index)
// coordinate.
type PerNode int

const (
	// PerNodeNever stores a single global value; supplied coordinates are
	// canonicalized to the global sentinel.
	PerNodeNever PerNode = iota
	// PerNodeOptional stores per-node values with fallback to the global
	// value, then the default.
	PerNodeOptional
	// PerNodeRequired stores per-node values only; writes without
	// coordinates are rejected.
	PerNodeRequired
)

// ParsePerNode parses the manifest form of a PerNode policy.
func ParsePerNode(s string) (PerNode, error) {
	switch s {
	case "never":
		return PerNodeNever, nil
	case "optional":
		return PerNodeOptional, nil
	case "required":
		return PerNodeRequired, nil
	}
	return PerNodeNever, fmt.Errorf("unknown pernode policy %q", s)
}

func (p PerNode) String() string {
	switch p {
	case PerNodeOptional:
		return "optional"
	case PerNodeRequired:
		return "required"
	}
	return "never"
}

// IsNever reports whether the policy forbids per-node values.
func (p PerNode) IsNever() bool {
	return p == PerNodeNever
}

// Scope identifies the lifetime of a parameter value.
type Scope int

const (
	ScopeGlobal Scope = iota
	ScopeJob
)

// ParseScope parses the manifest form of a Scope.
func ParseScope(s string) (Scope, error) {
	switch s {
	case "global":
		return ScopeGlobal, nil
	case "job":
		return ScopeJob, nil
	}
	return ScopeGlobal, fmt.Errorf("unknown scope %q", s)
}

func (s Scope) String() string {
	if s == ScopeJob {
		return "job"
	}
	return "global"
}

type nodeValue struct {
	value any
}

// Parameter is a single typed, versioned leaf in a Store. Values are held
// per (step, index) coordinate according to the parameter's PerNode policy,
// with the reserved pair (global, global) holding the global value and
// (default, default) holding the declared default.
type Parameter struct {
	typ       Type
	pernode   PerNode
	scope     Scope
	require   bool
	lock      bool
	unit      string
	shorthelp string
	help      string
	defvalue  any
	values    map[string]map[string]*nodeValue
}

// MustParameter declares a parameter with the given type string. It panics
// on a malformed declaration; parameter declarations are static program
// text, like regexp patterns.
func MustParameter(typeDecl string) *Parameter {
	p, err := NewParameter(typeDecl)
	if err != nil {
		panic(err)
	}
	return p
}

// NewParameter declares a parameter with the given type string.
func NewParameter(typeDecl string) (*Parameter, error) {
	typ, err := ParseType(typeDecl)
	if err != nil {
		return nil, err
	}
	return &Parameter{
		typ:    typ,
		values: map[string]map[string]*nodeValue{},
	}, nil
}

// WithPerNode sets the pernode policy.
func (p *Parameter) WithPerNode(pernode PerNode) *Parameter {
	p.pernode = pernode
	return p
}

// WithScope sets the parameter scope.
func (p *Parameter) WithScope(scope Scope) *Parameter {
	p.scope = scope
	return p
}

// WithDefault sets the declared default value. It panics when the value
// does not normalize to the declared type.
func (p *Parameter) WithDefault(value any) *Parameter {
	normalized, err := p.typ.Normalize(value)
	if err != nil {
		panic(fmt.Sprintf("default value for %s: %v", p.typ, err))
	}
	p.defvalue = normalized
	return p
}

// WithRequire marks the parameter as required.
func (p *Parameter) WithRequire(require bool) *Parameter {
	p.require = require
	return p
}

// WithUnit attaches a unit annotation.
func (p *Parameter) WithUnit(unit string) *Parameter {
	p.unit = unit
	return p
}

// WithShortHelp attaches a one-line description.
func (p *Parameter) WithShortHelp(text string) *Parameter {
	p.shorthelp = text
	return p
}

// WithHelp attaches a long-form description.
func (p *Parameter) WithHelp(text string) *Parameter {
	p.help = text
	return p
}

// Type returns the declared type.
func (p *Parameter) Type() Type {
	return p.typ
}

// PerNode returns the pernode policy.
func (p *Parameter) PerNode() PerNode {
	return p.pernode
}

// Locked reports whether the parameter refuses writes.
func (p *Parameter) Locked() bool {
	return p.lock
}

// canonCoords validates and canonicalizes a (step, index) pair. Writes to
// PerNodeRequired parameters must carry coordinates; PerNodeNever folds
// everything onto the global slot.
func (p *Parameter) canonCoords(step, index string, write bool) (string, string, error) {
	if step == "" && index != "" {
		return "", "", fmt.Errorf("index cannot be provided without step")
	}
	if step == Wildcard || index == Wildcard {
		return "", "", fmt.Errorf("the step and index name %q is reserved", Wildcard)
	}

	switch p.pernode {
	case PerNodeNever:
		return GlobalKey, GlobalKey, nil
	case PerNodeRequired:
		if write && step == "" {
			return "", "", fmt.Errorf("step and index are required for this parameter")
		}
	}

	if step == "" {
		step = GlobalKey
	}
	if index == "" {
		index = GlobalKey
	}
	return step, index, nil
}

func (p *Parameter) slot(step, index string) (*nodeValue, bool) {
	indexes, ok := p.values[step]
	if !ok {
		return nil, false
	}
	nv, ok := indexes[index]
	return nv, ok
}

func (p *Parameter) storeSlot(step, index string, value any) {
	indexes, ok := p.values[step]
	if !ok {
		indexes = map[string]*nodeValue{}
		p.values[step] = indexes
	}
	indexes[index] = &nodeValue{value: value}
}

// Get returns the effective value at a coordinate, following the fallback
// chain the pernode policy allows. Missing values resolve to the declared
// default, then to the type's empty value; reads never fail on unset
// coordinates.
func (p *Parameter) Get(step, index string) (any, error) {
	step, index, err := p.canonCoords(step, index, false)
	if err != nil {
		return nil, err
	}

	if nv, ok := p.slot(step, index); ok {
		return copyValue(nv.value), nil
	}
	if p.pernode == PerNodeOptional {
		if index != GlobalKey {
			if nv, ok := p.slot(step, GlobalKey); ok {
				return copyValue(nv.value), nil
			}
		}
		if step != GlobalKey {
			if nv, ok := p.slot(GlobalKey, GlobalKey); ok {
				return copyValue(nv.value), nil
			}
		}
	}
	if p.defvalue != nil {
		return copyValue(p.defvalue), nil
	}
	return p.typ.Zero(), nil
}

// Set stores a value at a coordinate. It reports false without error when
// the parameter is locked.
func (p *Parameter) Set(value any, step, index string) (bool, error) {
	if p.lock {
		return false, nil
	}
	step, index, err := p.canonCoords(step, index, true)
	if err != nil {
		return false, err
	}
	normalized, err := p.typ.Normalize(value)
	if err != nil {
		return false, err
	}
	p.storeSlot(step, index, normalized)
	return true, nil
}

// Add appends to a list-typed parameter at a coordinate. An unset slot
// starts from a copy of the declared default.
func (p *Parameter) Add(value any, step, index string) (bool, error) {
	if !p.typ.IsList() {
		return false, fmt.Errorf("add can only be performed on list types, not %s", p.typ)
	}
	if p.lock {
		return false, nil
	}
	step, index, err := p.canonCoords(step, index, true)
	if err != nil {
		return false, err
	}
	addition, err := p.typ.Normalize(value)
	if err != nil {
		return false, err
	}

	var current any
	if nv, ok := p.slot(step, index); ok {
		current = copyValue(nv.value)
	} else if p.defvalue != nil {
		current = copyValue(p.defvalue)
	} else {
		current = p.typ.Zero()
	}

	merged, err := appendList(current, addition)
	if err != nil {
		return false, err
	}
	// Rebuild the typed slice representation after merging.
	normalized, err := p.typ.Normalize(merged)
	if err != nil {
		return false, err
	}
	p.storeSlot(step, index, normalized)
	return true, nil
}

// Unset clears the value at a coordinate, reverting reads to the fallback
// chain. Clearing an already clear coordinate is a no-op.
func (p *Parameter) Unset(step, index string) (bool, error) {
	if p.lock {
		return false, nil
	}
	step, index, err := p.canonCoords(step, index, true)
	if err != nil {
		return false, err
	}
	if indexes, ok := p.values[step]; ok {
		delete(indexes, index)
		if len(indexes) == 0 {
			delete(p.values, step)
		}
	}
	return true, nil
}

// GetField reads a named field. The empty field and "value" read the
// stored value; the remaining fields expose parameter metadata.
func (p *Parameter) GetField(field, step, index string) (any, error) {
	switch field {
	case "", "value":
		return p.Get(step, index)
	case "type":
		return p.typ.String(), nil
	case "pernode":
		return p.pernode.String(), nil
	case "scope":
		return p.scope.String(), nil
	case "require":
		return p.require, nil
	case "lock":
		return p.lock, nil
	case "unit":
		return p.unit, nil
	case "shorthelp":
		return p.shorthelp, nil
	case "help":
		return p.help, nil
	case "defvalue":
		if p.defvalue == nil {
			return p.typ.Zero(), nil
		}
		return copyValue(p.defvalue), nil
	}
	return nil, fmt.Errorf("%s is not a valid field", field)
}

// SetField writes a named field. The "lock" field is always writable so a
// locked parameter can be unlocked again; every other field honors the
// lock.
func (p *Parameter) SetField(field string, value any, step, index string) (bool, error) {
	switch field {
	case "", "value":
		return p.Set(value, step, index)
	case "lock":
		b, err := normalizeBool(value)
		if err != nil {
			return false, err
		}
		p.lock = b.(bool)
		return true, nil
	}

	if p.lock {
		return false, nil
	}

	switch field {
	case "require":
		b, err := normalizeBool(value)
		if err != nil {
			return false, err
		}
		p.require = b.(bool)
	case "unit":
		s, err := normalizeString(value)
		if err != nil {
			return false, err
		}
		p.unit = s
	case "shorthelp":
		s, err := normalizeString(value)
		if err != nil {
			return false, err
		}
		p.shorthelp = s
	case "help":
		s, err := normalizeString(value)
		if err != nil {
			return false, err
		}
		p.help = s
	case "defvalue":
		normalized, err := p.typ.Normalize(value)
		if err != nil {
			return false, err
		}
		p.defvalue = normalized
	case "type", "pernode", "scope":
		return false, fmt.Errorf("the %s field cannot be modified", field)
	default:
		return false, fmt.Errorf("%s is not a valid field", field)
	}
	return true, nil
}

// Nodes lists the (step, index) coordinates holding explicit values,
// excluding the sentinels.
func (p *Parameter) Nodes() [][2]string {
	var out [][2]string
	for step, indexes := range p.values {
		for index := range indexes {
			if step == GlobalKey && index == GlobalKey {
				continue
			}
			out = append(out, [2]string{step, index})
		}
	}
	return out
}

// Clone returns a deep copy of the parameter.
func (p *Parameter) Clone() *Parameter {
	clone := &Parameter{
		typ:       p.typ,
		pernode:   p.pernode,
		scope:     p.scope,
		require:   p.require,
		lock:      p.lock,
		unit:      p.unit,
		shorthelp: p.shorthelp,
		help:      p.help,
		defvalue:  copyValue(p.defvalue),
		values:    map[string]map[string]*nodeValue{},
	}
	for step, indexes := range p.values {
		cloned := map[string]*nodeValue{}
		for index, nv := range indexes {
			cloned[index] = &nodeValue{value: copyValue(nv.value)}
		}
		clone.values[step] = cloned
	}
	return clone
}

func (p *Parameter) cloneEntry() treeEntry {
	return p.Clone()
}

func appendList(current, addition any) ([]any, error) {
	cur, err := toAnySlice(current)
	if err != nil {
		return nil, err
	}
	add, err := toAnySlice(addition)
	if err != nil {
		return nil, err
	}
	return append(cur, add...), nil
}

func toAnySlice(value any) ([]any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []any:
		return append([]any{}, v...), nil
	case []string:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = e
		}
		return out, nil
	case []int:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = e
		}
		return out, nil
	case []float64:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = e
		}
		return out, nil
	case []bool:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = e
		}
		return out, nil
	}
	return nil, fmt.Errorf("%T is not a list value", value)
}

// copyValue deep-copies slice values so callers cannot alias stored state.
func copyValue(value any) any {
	switch v := value.(type) {
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = copyValue(e)
		}
		return out
	case []string:
		return append([]string{}, v...)
	case []int:
		return append([]int{}, v...)
	case []float64:
		return append([]float64{}, v...)
	case []bool:
		return append([]bool{}, v...)
	}
	return value
}
