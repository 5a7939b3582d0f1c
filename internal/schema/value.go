package schema

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Kind enumerates the scalar and composite kinds a parameter type can have.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindFloat
	KindString
	KindFile
	KindDir
	KindEnum
	KindTuple
	KindList
)

// Type is a declared parameter type, parsed from its manifest string form
// such as "str", "[str]", "(str,str)", "[(str,str)]" or "<asic,fpga>".
type Type struct {
	kind  Kind
	elem  *Type
	items []Type
	enums []string
}

// ParseType parses a type declaration string.
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Type{}, fmt.Errorf("empty type")
	}

	switch {
	case strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"):
		elem, err := ParseType(s[1 : len(s)-1])
		if err != nil {
			return Type{}, fmt.Errorf("invalid list type %q: %w", s, err)
		}
		if elem.kind == KindList {
			return Type{}, fmt.Errorf("nested list type %q is not supported", s)
		}
		return Type{kind: KindList, elem: &elem}, nil

	case strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"):
		parts, err := splitTopLevel(s[1 : len(s)-1])
		if err != nil || len(parts) < 2 {
			return Type{}, fmt.Errorf("invalid tuple type %q", s)
		}
		items := make([]Type, 0, len(parts))
		for _, part := range parts {
			item, err := ParseType(part)
			if err != nil {
				return Type{}, fmt.Errorf("invalid tuple type %q: %w", s, err)
			}
			items = append(items, item)
		}
		return Type{kind: KindTuple, items: items}, nil

	case strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">"):
		values := strings.Split(s[1:len(s)-1], ",")
		enums := make([]string, 0, len(values))
		for _, value := range values {
			value = strings.TrimSpace(value)
			if value == "" {
				return Type{}, fmt.Errorf("invalid enum type %q", s)
			}
			enums = append(enums, value)
		}
		if len(enums) == 0 {
			return Type{}, fmt.Errorf("invalid enum type %q", s)
		}
		return Type{kind: KindEnum, enums: enums}, nil
	}

	switch s {
	case "bool":
		return Type{kind: KindBool}, nil
	case "int":
		return Type{kind: KindInt}, nil
	case "float":
		return Type{kind: KindFloat}, nil
	case "str":
		return Type{kind: KindString}, nil
	case "file":
		return Type{kind: KindFile}, nil
	case "dir":
		return Type{kind: KindDir}, nil
	}
	return Type{}, fmt.Errorf("unknown type %q", s)
}

// splitTopLevel splits on commas that are not nested inside brackets.
func splitTopLevel(s string) ([]string, error) {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(', '[', '<':
			depth++
		case ')', ']', '>':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced brackets in %q", s)
			}
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced brackets in %q", s)
	}
	parts = append(parts, strings.TrimSpace(s[start:]))
	return parts, nil
}

// Kind returns the type's kind.
func (t Type) Kind() Kind {
	return t.kind
}

// IsList reports whether the type is a list.
func (t Type) IsList() bool {
	return t.kind == KindList
}

// String renders the canonical type declaration string.
func (t Type) String() string {
	switch t.kind {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "str"
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	case KindEnum:
		return "<" + strings.Join(t.enums, ",") + ">"
	case KindTuple:
		items := make([]string, len(t.items))
		for i, item := range t.items {
			items[i] = item.String()
		}
		return "(" + strings.Join(items, ",") + ")"
	case KindList:
		return "[" + t.elem.String() + "]"
	}
	return "invalid"
}

// Zero returns the well-defined empty value for the type: an empty slice
// for lists, nil for everything else.
func (t Type) Zero() any {
	if t.kind == KindList {
		return t.emptyList()
	}
	return nil
}

func (t Type) emptyList() any {
	switch t.elem.kind {
	case KindString, KindFile, KindDir, KindEnum:
		return []string{}
	case KindInt:
		return []int{}
	case KindFloat:
		return []float64{}
	case KindBool:
		return []bool{}
	}
	return []any{}
}

// Normalize coerces a caller-supplied value into the type's canonical Go
// representation. Scalars accept compatible primitives and parseable
// strings; lists accept any slice and promote a scalar to a one-element
// list.
func (t Type) Normalize(value any) (any, error) {
	if value == nil {
		return t.Zero(), nil
	}

	switch t.kind {
	case KindBool:
		return normalizeBool(value)
	case KindInt:
		return normalizeInt(value)
	case KindFloat:
		return normalizeFloat(value)
	case KindString, KindFile, KindDir:
		return normalizeString(value)
	case KindEnum:
		s, err := normalizeString(value)
		if err != nil {
			return nil, err
		}
		for _, allowed := range t.enums {
			if s == allowed {
				return s, nil
			}
		}
		return nil, fmt.Errorf("%q is not a member of %s", s, t.String())
	case KindTuple:
		return t.normalizeTuple(value)
	case KindList:
		return t.normalizeList(value)
	}
	return nil, fmt.Errorf("cannot normalize %T as %s", value, t)
}

func (t Type) normalizeTuple(value any) (any, error) {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("cannot normalize %T as %s", value, t)
	}
	if rv.Len() != len(t.items) {
		return nil, fmt.Errorf("expected %d members for %s, got %d", len(t.items), t, rv.Len())
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		member, err := t.items[i].Normalize(rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("member %d of %s: %w", i, t, err)
		}
		out[i] = member
	}
	return out, nil
}

func (t Type) normalizeList(value any) (any, error) {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		// Scalars promote to a one-element list.
		elem, err := t.elem.Normalize(value)
		if err != nil {
			return nil, err
		}
		return t.buildList([]any{elem}), nil
	}

	// A flat pair is accepted for a single-tuple list, e.g. ("a", "b")
	// destined for [(str,str)].
	if t.elem.kind == KindTuple && rv.Len() == len(t.elem.items) {
		if flat, err := t.elem.Normalize(value); err == nil {
			if _, firstIsSlice := flat.([]any)[0].([]any); !firstIsSlice {
				return t.buildList([]any{flat}), nil
			}
		}
	}

	elems := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		elem, err := t.elem.Normalize(rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("element %d of %s: %w", i, t, err)
		}
		elems = append(elems, elem)
	}
	return t.buildList(elems), nil
}

func (t Type) buildList(elems []any) any {
	switch t.elem.kind {
	case KindString, KindFile, KindDir, KindEnum:
		out := make([]string, len(elems))
		for i, e := range elems {
			out[i] = e.(string)
		}
		return out
	case KindInt:
		out := make([]int, len(elems))
		for i, e := range elems {
			out[i] = e.(int)
		}
		return out
	case KindFloat:
		out := make([]float64, len(elems))
		for i, e := range elems {
			out[i] = e.(float64)
		}
		return out
	case KindBool:
		out := make([]bool, len(elems))
		for i, e := range elems {
			out[i] = e.(bool)
		}
		return out
	}
	return elems
}

func normalizeBool(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.ToLower(v))
		if err != nil {
			return nil, fmt.Errorf("cannot normalize %q as bool", v)
		}
		return b, nil
	}
	return nil, fmt.Errorf("cannot normalize %T as bool", value)
}

func normalizeInt(value any) (any, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int8:
		return int(v), nil
	case int16:
		return int(v), nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint:
		return int(v), nil
	case uint8:
		return int(v), nil
	case uint16:
		return int(v), nil
	case uint32:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float32:
		return intFromFloat(float64(v))
	case float64:
		return intFromFloat(v)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("cannot normalize %q as int", v)
		}
		return i, nil
	}
	return nil, fmt.Errorf("cannot normalize %T as int", value)
}

func intFromFloat(f float64) (any, error) {
	i := int(f)
	if float64(i) != f {
		return nil, fmt.Errorf("cannot normalize %v as int", f)
	}
	return i, nil
}

func normalizeFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("cannot normalize %q as float", v)
		}
		return f, nil
	}
	return nil, fmt.Errorf("cannot normalize %T as float", value)
}

func normalizeString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	return "", fmt.Errorf("cannot normalize %T as str", value)
}
