// Package value implements Icepeak's hierarchical JSON document: an
// immutable-semantics tree addressed by Path, with ordered objects and
// lossless decimal numbers.
package value

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

func init() {
	// Emit decimals as bare JSON numbers ("1.10"), not quoted strings
	// ("\"1.10\""), so encoded documents look like ordinary JSON.
	decimal.MarshalJSONWithoutQuotes = true
}

// Value is any JSON value: nil (null), bool, decimal.Decimal (number),
// string, []Value (array), or *Object (object). It is a plain alias, not a
// defined type, so atomic.Pointer[Value] is identical to atomic.Pointer[any]
// at the call site.
type Value = any

// Path is an ordered sequence of object-key segments. The empty path
// addresses the document root. Paths never navigate into arrays; an array
// is an opaque leaf value from the perspective of Get/Put/Delete.
type Path []string

// String renders a path as a slash-joined form for logging, e.g. "a/b/c".
func (p Path) String() string {
	var b bytes.Buffer
	for i, seg := range p {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(seg)
	}
	return b.String()
}

// Equal reports whether p and q address the same segments.
func (p Path) Equal(q Path) bool {
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is a prefix of p (every segment of
// prefix, in order, equals the corresponding segment of p). A path is its
// own prefix.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of p.
func (p Path) Clone() Path {
	out := make(Path, len(p))
	copy(out, p)
	return out
}

// Object is an insertion-order-preserving string-keyed map. Zero value is
// not usable; construct with NewObject.
type Object struct {
	keys   []string
	values map[string]Value
}

// NewObject returns an empty Object.
func NewObject() *Object {
	return &Object{values: make(map[string]Value)}
}

// Get returns the value stored at key and whether it was present.
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.values[key]
	return v, ok
}

// Set stores v at key, appending key to the insertion order if new.
func (o *Object) Set(key string, v Value) {
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

// Delete removes key, reporting whether it was present.
func (o *Object) Delete(key string) bool {
	if _, ok := o.values[key]; !ok {
		return false
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns the keys in insertion order. The caller must not mutate it.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return o.keys
}

// Len reports the number of entries.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Clone returns a shallow copy: the key order and top-level entries are
// copied, but nested Values are shared by reference with the original.
// This is the structural-sharing primitive Put/Delete rely on.
func (o *Object) Clone() *Object {
	clone := &Object{
		keys:   make([]string, len(o.keys)),
		values: make(map[string]Value, len(o.values)),
	}
	copy(clone.keys, o.keys)
	for k, v := range o.values {
		clone.values[k] = v
	}
	return clone
}

// MarshalJSON encodes the object with keys in insertion order.
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := Encode(o.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get descends v along path and returns the addressed value. The root
// (empty path) returns v itself. Missing keys, or a path that walks through
// a non-Object, report (nil, false).
func Get(v Value, path Path) (Value, bool) {
	cur := v
	for _, seg := range path {
		obj, ok := cur.(*Object)
		if !ok {
			return nil, false
		}
		next, ok := obj.Get(seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Put returns a new Value equal to v with nv placed at path, creating
// intermediate Objects as needed. If an intermediate segment of the
// existing tree is not an Object, it is overwritten with a fresh Object
// holding only the remainder of path. Only the objects on the path from
// root to the modified key are cloned; every other subtree is shared by
// reference with v.
func Put(v Value, path Path, nv Value) Value {
	if len(path) == 0 {
		return nv
	}
	obj, ok := v.(*Object)
	if !ok {
		obj = NewObject()
	} else {
		obj = obj.Clone()
	}
	head, rest := path[0], path[1:]
	if len(rest) == 0 {
		obj.Set(head, nv)
		return obj
	}
	child, _ := obj.Get(head)
	obj.Set(head, Put(child, rest, nv))
	return obj
}

// Delete returns a new Value equal to v with the entry at path removed.
// Deleting the root yields nil (JSON null). If any segment along path does
// not resolve to an Object, or the final key is absent, v is returned
// unchanged (Delete is a no-op in that case, and does not allocate).
func Delete(v Value, path Path) Value {
	if len(path) == 0 {
		return nil
	}
	obj, ok := v.(*Object)
	if !ok {
		return v
	}
	head, rest := path[0], path[1:]
	child, exists := obj.Get(head)
	if !exists {
		return v
	}
	if len(rest) == 0 {
		clone := obj.Clone()
		clone.Delete(head)
		return clone
	}
	if _, isObj := child.(*Object); !isObj {
		return v
	}
	newChild := Delete(child, rest)
	if newChild == child {
		return v
	}
	clone := obj.Clone()
	clone.Set(head, newChild)
	return clone
}

// Decode parses JSON bytes into a Value, preserving key order in objects
// and decoding numbers as decimal.Decimal so they round-trip losslessly.
func Decode(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v Value
	if err := decodeValue(dec, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeValue(dec *json.Decoder, out *Value) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	return decodeFromToken(dec, tok, out)
}

func decodeFromToken(dec *json.Decoder, tok json.Token, out *Value) error {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := NewObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return err
				}
				key, ok := keyTok.(string)
				if !ok {
					return fmt.Errorf("value: expected object key, got %v", keyTok)
				}
				var v Value
				if err := decodeValue(dec, &v); err != nil {
					return err
				}
				obj.Set(key, v)
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return err
			}
			*out = obj
		case '[':
			arr := make([]Value, 0)
			for dec.More() {
				var v Value
				if err := decodeValue(dec, &v); err != nil {
					return err
				}
				arr = append(arr, v)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return err
			}
			*out = arr
		default:
			return fmt.Errorf("value: unexpected delimiter %v", t)
		}
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return fmt.Errorf("value: invalid number %q: %w", t.String(), err)
		}
		*out = d
	case string, bool, nil:
		*out = t
	default:
		return fmt.Errorf("value: unexpected token %v (%T)", t, t)
	}
	return nil
}

// Encode serializes a Value to JSON, preserving object key order.
func Encode(v Value) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return []byte("null"), nil
	case *Object:
		return t.MarshalJSON()
	case decimal.Decimal:
		// Decimal.String trims trailing fractional zeros; keep the decoded
		// scale so "1.10" encodes as 1.10.
		if t.Exponent() < 0 {
			return []byte(t.StringFixed(-t.Exponent())), nil
		}
		return []byte(t.String()), nil
	case []Value:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			eb, err := Encode(e)
			if err != nil {
				return nil, err
			}
			buf.Write(eb)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	default:
		return json.Marshal(v)
	}
}
