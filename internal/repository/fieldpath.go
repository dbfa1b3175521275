package repository

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/eisbuk/EisBuk-sub003/internal/errors"
)

// FieldSeparator joins field path segments in storage.
const FieldSeparator = "."

type leaf struct {
	field string
	value []byte
}

// FieldKey validates and joins path segments.
func FieldKey(path []string) (string, error) {
	if len(path) == 0 {
		return "", apperrors.Invalid(apperrors.CodeInvalidFieldPath, "empty field path")
	}
	for _, segment := range path {
		if err := validateSegment(segment); err != nil {
			return "", err
		}
	}
	return strings.Join(path, FieldSeparator), nil
}

func validateSegment(segment string) error {
	if segment == "" || strings.Contains(segment, FieldSeparator) {
		return apperrors.Invalid(apperrors.CodeInvalidFieldPath, fmt.Sprintf("invalid field path segment %q", segment))
	}
	return nil
}

// Normalize converts any JSON-encodable value into plain maps, slices,
// strings, bools, int64 and float64.
func Normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalid, apperrors.CodeInvalidDocument, "encode value", err)
	}
	return decodeJSON(raw)
}

// NormalizeDocument is Normalize for values that must be objects.
func NormalizeDocument(v any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	n, err := Normalize(v)
	if err != nil {
		return nil, err
	}
	m, ok := n.(map[string]any)
	if !ok {
		return nil, apperrors.Invalid(apperrors.CodeInvalidDocument, fmt.Sprintf("document data must be an object, got %T", v))
	}
	return m, nil
}

func decodeJSON(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalid, apperrors.CodeInvalidDocument, "decode value", err)
	}
	return convertNumbers(out), nil
}

func convertNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = convertNumbers(child)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = convertNumbers(child)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	default:
		return v
	}
}

// flatten turns a normalized value into leaf rows under prefix. Maps are
// descended into; empty maps are kept as "{}" so they survive a round trip.
func flatten(prefix []string, v any) ([]leaf, error) {
	var out []leaf
	if err := flattenInto(prefix, v, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenInto(prefix []string, v any, out *[]leaf) error {
	if m, ok := v.(map[string]any); ok && len(m) > 0 {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := validateSegment(k); err != nil {
				return err
			}
			child := append(append([]string{}, prefix...), k)
			if err := flattenInto(child, m[k], out); err != nil {
				return err
			}
		}
		return nil
	}

	field, err := FieldKey(prefix)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return apperrors.Wrap(apperrors.KindInvalid, apperrors.CodeInvalidDocument, "encode leaf", err)
	}
	*out = append(*out, leaf{field: field, value: raw})
	return nil
}

// unflatten rebuilds a document from its leaf rows.
func unflatten(leaves []leaf) (map[string]any, error) {
	sort.Slice(leaves, func(i, j int) bool { return leaves[i].field < leaves[j].field })

	doc := map[string]any{}
	for _, l := range leaves {
		value, err := decodeJSON(l.value)
		if err != nil {
			return nil, err
		}
		segments := strings.Split(l.field, FieldSeparator)
		node := doc
		for _, s := range segments[:len(segments)-1] {
			child, ok := node[s].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[s] = child
			}
			node = child
		}
		last := segments[len(segments)-1]
		if existing, ok := node[last].(map[string]any); ok && len(existing) > 0 {
			// children already attached; an empty-map marker adds nothing
			continue
		}
		node[last] = value
	}
	return doc, nil
}

// ancestors returns the strict prefixes of a dotted field.
func ancestors(field string) []string {
	segments := strings.Split(field, FieldSeparator)
	out := make([]string, 0, len(segments)-1)
	for i := 1; i < len(segments); i++ {
		out = append(out, strings.Join(segments[:i], FieldSeparator))
	}
	return out
}

// lookup returns the value at path inside a normalized document.
func lookup(doc map[string]any, path []string) (any, bool) {
	var node any = doc
	for _, s := range path {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[s]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// Equal compares two normalized values by their canonical JSON encoding.
func Equal(a, b any) bool {
	ra, errA := json.Marshal(a)
	rb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ra, rb)
}
