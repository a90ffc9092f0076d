package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
	"gopkg.in/yaml.v3"
)

// Tree is an immutable hierarchical configuration. Nested mappings are cty
// objects; dotted paths ("optimizer.lr") address nested keys.
type Tree struct {
	val cty.Value
}

// EmptyTree returns a tree without any keys.
func EmptyTree() Tree {
	return Tree{val: cty.EmptyObjectVal}
}

// NewTree wraps an object value.
func NewTree(v cty.Value) (Tree, error) {
	if v.IsNull() {
		return EmptyTree(), nil
	}
	if !isMapping(v) {
		return Tree{}, fmt.Errorf("configuration root must be a mapping, got %s", v.Type().FriendlyName())
	}
	return Tree{val: toObject(v)}, nil
}

// Value returns the underlying cty object.
func (t Tree) Value() cty.Value {
	if t.val.IsNull() {
		return cty.EmptyObjectVal
	}
	return t.val
}

// Get returns the value at a dotted path.
func (t Tree) Get(path string) (cty.Value, bool) {
	cur := t.Value()
	for _, part := range strings.Split(path, ".") {
		if !isMapping(cur) || cur.IsNull() {
			return cty.NilVal, false
		}
		attrs := cur.AsValueMap()
		next, ok := attrs[part]
		if !ok {
			return cty.NilVal, false
		}
		cur = next
	}
	return cur, true
}

// Has reports whether a dotted path exists.
func (t Tree) Has(path string) bool {
	_, ok := t.Get(path)
	return ok
}

// With returns a copy of the tree with path set to v. Missing intermediate
// mappings are created; a non-mapping in the way is an error.
func (t Tree) With(path string, v cty.Value) (Tree, error) {
	out, err := setPath(t.Value(), strings.Split(path, "."), v)
	if err != nil {
		return Tree{}, fmt.Errorf("cannot set '%s': %w", path, err)
	}
	return Tree{val: out}, nil
}

// Without returns a copy of the tree with path removed.
func (t Tree) Without(path string) (Tree, error) {
	if !t.Has(path) {
		return Tree{}, fmt.Errorf("cannot delete '%s': key not in config", path)
	}
	out := deletePath(t.Value(), strings.Split(path, "."))
	return Tree{val: out}, nil
}

// Merge deep-merges over into t: mappings merge key by key, everything else
// in over replaces what t holds.
func (t Tree) Merge(over Tree) Tree {
	return Tree{val: merge(t.Value(), over.Value())}
}

// Keys returns the top-level keys in sorted order.
func (t Tree) Keys() []string {
	attrs := t.Value().AsValueMap()
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Flatten maps every leaf to its dotted path and string form. Empty
// mappings appear as "{}".
func (t Tree) Flatten() map[string]string {
	out := make(map[string]string)
	flatten("", t.Value(), out)
	return out
}

// Native converts the tree into plain Go maps, slices and scalars.
func (t Tree) Native() map[string]any {
	native, err := ctyToNative(t.Value())
	if err != nil {
		// Trees only ever hold known, serializable values.
		panic(fmt.Sprintf("config: %v", err))
	}
	if m, ok := native.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// YAML renders the tree as a YAML document.
func (t Tree) YAML() ([]byte, error) {
	return yaml.Marshal(t.Native())
}

// String renders the tree in its flattened form, one key per line.
func (t Tree) String() string {
	flat := t.Flatten()
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, flat[k])
	}
	return b.String()
}

func isMapping(v cty.Value) bool {
	ty := v.Type()
	return ty.IsObjectType() || ty.IsMapType()
}

func toObject(v cty.Value) cty.Value {
	if v.Type().IsObjectType() {
		return v
	}
	attrs := v.AsValueMap()
	if len(attrs) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(attrs)
}

func valueMap(v cty.Value) map[string]cty.Value {
	attrs := v.AsValueMap()
	if attrs == nil {
		attrs = make(map[string]cty.Value)
	}
	return attrs
}

func setPath(obj cty.Value, parts []string, v cty.Value) (cty.Value, error) {
	if parts[0] == "" {
		return cty.NilVal, fmt.Errorf("empty path segment")
	}
	attrs := valueMap(obj)
	if len(parts) == 1 {
		attrs[parts[0]] = v
		return cty.ObjectVal(attrs), nil
	}
	child, ok := attrs[parts[0]]
	if !ok || child.IsNull() {
		child = cty.EmptyObjectVal
	}
	if !isMapping(child) {
		return cty.NilVal, fmt.Errorf("'%s' is a %s, not a mapping", parts[0], child.Type().FriendlyName())
	}
	updated, err := setPath(toObject(child), parts[1:], v)
	if err != nil {
		return cty.NilVal, err
	}
	attrs[parts[0]] = updated
	return cty.ObjectVal(attrs), nil
}

func deletePath(obj cty.Value, parts []string) cty.Value {
	attrs := valueMap(obj)
	if len(parts) == 1 {
		delete(attrs, parts[0])
	} else {
		attrs[parts[0]] = deletePath(toObject(attrs[parts[0]]), parts[1:])
	}
	if len(attrs) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(attrs)
}

func merge(base, over cty.Value) cty.Value {
	if !isMapping(base) || !isMapping(over) || base.IsNull() || over.IsNull() {
		return over
	}
	attrs := valueMap(base)
	for k, v := range over.AsValueMap() {
		if existing, ok := attrs[k]; ok {
			attrs[k] = merge(existing, v)
		} else {
			attrs[k] = v
		}
	}
	if len(attrs) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(attrs)
}

func flatten(prefix string, v cty.Value, out map[string]string) {
	if isMapping(v) && !v.IsNull() {
		attrs := v.AsValueMap()
		if len(attrs) == 0 {
			if prefix != "" {
				out[prefix] = "{}"
			}
			return
		}
		for k, child := range attrs {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(key, child, out)
		}
		return
	}
	out[prefix] = FormatValue(v)
}

// FormatValue renders a leaf value the way it is logged as a parameter:
// strings verbatim, integers without a fraction, other numbers in shortest
// round-trip form, collections as JSON.
func FormatValue(v cty.Value) string {
	if v.IsNull() {
		return "null"
	}
	if !v.IsKnown() {
		return "unknown"
	}
	switch ty := v.Type(); {
	case ty == cty.String:
		return v.AsString()
	case ty == cty.Bool:
		return strconv.FormatBool(v.True())
	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			i, _ := bf.Int(nil)
			return i.String()
		}
		f, _ := bf.Float64()
		return strconv.FormatFloat(f, 'g', -1, 64)
	default:
		data, err := ctyjson.Marshal(v, ty)
		if err != nil {
			return v.GoString()
		}
		return string(data)
	}
}
