package benchmark

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// FieldError reports a missing or mistyped field. Path is relative to the
// object being decoded, e.g. "benches[2].value".
type FieldError struct {
	Path string
	Err  error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// atPath prefixes the path of a nested field error.
func atPath(prefix string, err error) error {
	var fe *FieldError
	if errors.As(err, &fe) {
		path := prefix
		if len(fe.Path) > 0 && fe.Path[0] == '[' {
			path += fe.Path
		} else {
			path += "." + fe.Path
		}
		return &FieldError{Path: path, Err: fe.Err}
	}
	return &FieldError{Path: prefix, Err: err}
}

var errMissing = errors.New("required field missing")

// fieldSet is a decoded JSON object whose known keys are consumed one by one;
// whatever is left over becomes the extensions.
type fieldSet map[string]json.RawMessage

func decodeObject(data []byte) (fieldSet, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("expected object, got %s", preview(trimmed))
	}
	var fields fieldSet
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func (f fieldSet) take(key string, dst any, required bool) error {
	raw, ok := f[key]
	delete(f, key)
	if !ok || isNull(raw) {
		if required {
			return &FieldError{Path: key, Err: errMissing}
		}
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return atPath(key, err)
	}
	return nil
}

// optional decodes an optional string. A key present with "" or null is
// remembered in b so that it is written back unchanged.
func (f fieldSet) optional(key string, dst *string, b *blanks) error {
	raw, ok := f[key]
	if !ok {
		return nil
	}
	if isNull(raw) {
		delete(f, key)
		b.mark(key, raw)
		return nil
	}
	if err := f.take(key, dst, false); err != nil {
		return err
	}
	if *dst == "" {
		b.mark(key, raw)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

// blanks holds optional keys that were published with an empty or null
// value, keyed to their compacted raw text.
type blanks map[string]json.RawMessage

func (b *blanks) mark(key string, raw json.RawMessage) {
	if *b == nil {
		*b = blanks{}
	}
	(*b)[key] = Compact(raw)
}

func (b blanks) clone() blanks {
	if b == nil {
		return nil
	}
	out := make(blanks, len(b))
	for k, v := range b {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// rest returns the unconsumed keys, compacted so that re-indenting the
// enclosing document does not change them.
func (f fieldSet) rest() Extensions {
	if len(f) == 0 {
		return nil
	}
	for k, v := range f {
		f[k] = Compact(v)
	}
	return Extensions(f)
}

// Compact strips insignificant whitespace from a raw JSON value. Invalid
// input is returned unchanged.
func Compact(raw json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

func preview(b []byte) string {
	if len(b) > 16 {
		return strconv.Quote(string(b[:16]) + "...")
	}
	return strconv.Quote(string(b))
}

// objectWriter emits an object with known keys in a fixed order followed by
// the extensions sorted by key.
type objectWriter struct {
	buf     bytes.Buffer
	written map[string]bool
	err     error
}

func newObjectWriter() *objectWriter {
	w := &objectWriter{written: make(map[string]bool)}
	w.buf.WriteByte('{')
	return w
}

func (w *objectWriter) raw(key string, value []byte) {
	if w.err != nil {
		return
	}
	if len(w.written) > 0 {
		w.buf.WriteByte(',')
	}
	w.written[key] = true
	k, _ := marshal(key)
	w.buf.Write(k)
	w.buf.WriteByte(':')
	w.buf.Write(value)
}

func (w *objectWriter) field(key string, v any) {
	if w.err != nil {
		return
	}
	b, err := marshal(v)
	if err != nil {
		w.err = fmt.Errorf("%s: %w", key, err)
		return
	}
	w.raw(key, b)
}

func (w *objectWriter) optional(key, v string, b blanks) {
	if v != "" {
		w.field(key, v)
		return
	}
	if raw, ok := b[key]; ok {
		w.raw(key, raw)
	}
}

func (w *objectWriter) person(key string, p *Person, b blanks) {
	if p != nil {
		w.field(key, p)
	} else if raw, ok := b[key]; ok {
		w.raw(key, raw)
	}
}

func (w *objectWriter) extensions(ext Extensions) {
	keys := make([]string, 0, len(ext))
	for k := range ext {
		if !w.written[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		w.raw(k, ext[k])
	}
}

func (w *objectWriter) bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	w.buf.WriteByte('}')
	return w.buf.Bytes(), nil
}

// marshal is json.Marshal without HTML escaping.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// MarshalJSON implements json.Marshaler.
func (m Measurement) MarshalJSON() ([]byte, error) {
	w := newObjectWriter()
	w.field("name", m.Name)
	w.field("value", m.Value)
	w.optional("range", m.Range, m.blank)
	w.field("unit", m.Unit)
	w.optional("extra", m.Extra, m.blank)
	w.extensions(m.Extensions)
	return w.bytes()
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Measurement) UnmarshalJSON(data []byte) error {
	f, err := decodeObject(data)
	if err != nil {
		return err
	}
	var out Measurement
	for _, step := range []error{
		f.take("name", &out.Name, true),
		f.take("value", &out.Value, true),
		f.optional("range", &out.Range, &out.blank),
		f.take("unit", &out.Unit, true),
		f.optional("extra", &out.Extra, &out.blank),
	} {
		if step != nil {
			return step
		}
	}
	out.Extensions = f.rest()
	*m = out
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p Person) MarshalJSON() ([]byte, error) {
	w := newObjectWriter()
	w.optional("name", p.Name, p.blank)
	w.optional("username", p.Username, p.blank)
	w.extensions(p.Extensions)
	return w.bytes()
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Person) UnmarshalJSON(data []byte) error {
	f, err := decodeObject(data)
	if err != nil {
		return err
	}
	var out Person
	if err := f.optional("name", &out.Name, &out.blank); err != nil {
		return err
	}
	if err := f.optional("username", &out.Username, &out.blank); err != nil {
		return err
	}
	out.Extensions = f.rest()
	*p = out
	return nil
}

// MarshalJSON implements json.Marshaler.
func (c Commit) MarshalJSON() ([]byte, error) {
	w := newObjectWriter()
	w.person("author", c.Author, c.blank)
	w.person("committer", c.Committer, c.blank)
	w.field("id", c.ID)
	w.optional("message", c.Message, c.blank)
	w.optional("timestamp", c.Timestamp, c.blank)
	w.optional("url", c.URL, c.blank)
	w.extensions(c.Extensions)
	return w.bytes()
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Commit) UnmarshalJSON(data []byte) error {
	f, err := decodeObject(data)
	if err != nil {
		return err
	}
	var out Commit
	for _, key := range []string{"author", "committer"} {
		if raw, ok := f[key]; ok && isNull(raw) {
			out.blank.mark(key, raw)
		}
	}
	for _, step := range []error{
		f.take("author", &out.Author, false),
		f.take("committer", &out.Committer, false),
		f.take("id", &out.ID, true),
		f.optional("message", &out.Message, &out.blank),
		f.optional("timestamp", &out.Timestamp, &out.blank),
		f.optional("url", &out.URL, &out.blank),
	} {
		if step != nil {
			return step
		}
	}
	out.Extensions = f.rest()
	*c = out
	return nil
}

// MarshalJSON implements json.Marshaler.
func (r Record) MarshalJSON() ([]byte, error) {
	w := newObjectWriter()
	w.field("commit", r.Commit)
	w.field("date", r.Date)
	w.field("tool", r.Tool)
	benches := r.Benches
	if benches == nil {
		benches = []Measurement{}
	}
	w.field("benches", benches)
	w.extensions(r.Extensions)
	return w.bytes()
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Record) UnmarshalJSON(data []byte) error {
	f, err := decodeObject(data)
	if err != nil {
		return err
	}
	var out Record

	var commit json.RawMessage
	if err := f.take("commit", &commit, true); err != nil {
		return err
	}
	if err := json.Unmarshal(commit, &out.Commit); err != nil {
		return atPath("commit", err)
	}
	if err := f.take("date", &out.Date, true); err != nil {
		return err
	}
	if err := f.take("tool", &out.Tool, true); err != nil {
		return err
	}

	var benches []json.RawMessage
	if err := f.take("benches", &benches, true); err != nil {
		return err
	}
	out.Benches = make([]Measurement, len(benches))
	for i, raw := range benches {
		if err := json.Unmarshal(raw, &out.Benches[i]); err != nil {
			return atPath(fmt.Sprintf("benches[%d]", i), err)
		}
	}

	out.Extensions = f.rest()
	*r = out
	return nil
}
