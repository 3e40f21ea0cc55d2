// Package codec reads and writes the published benchmark document: a
// lastUpdate stamp, the repository URL and an ordered mapping from suite
// name to run entries. The same JSON may be wrapped as a JavaScript
// assignment for static dashboards.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"benchhist/internal/benchmark"
	apperrors "benchhist/internal/errors"
)

// Format selects the on-disk wrapping of the document.
type Format string

const (
	FormatJSON Format = "json"
	FormatJS   Format = "js"
)

// JSPrefix is the assignment that wraps the document in FormatJS.
const JSPrefix = jsVar + " = "

const jsVar = "window.BENCHMARK_DATA"

// ParseFormat validates a format name. The empty string selects FormatJSON.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatJS:
		return FormatJS, nil
	default:
		return "", fmt.Errorf("unsupported document format: %s", s)
	}
}

// Suite is one named timeline in append order.
type Suite struct {
	Name    string
	Records []benchmark.Record
}

// Document is the persisted collection of suites.
type Document struct {
	// LastUpdate is the epoch-millisecond instant of the latest append.
	LastUpdate int64
	RepoURL    string
	Suites     []Suite
	Extensions benchmark.Extensions
}

// Suite returns the named suite or nil.
func (d *Document) Suite(name string) *Suite {
	for i := range d.Suites {
		if d.Suites[i].Name == name {
			return &d.Suites[i]
		}
	}
	return nil
}

// RecordCount is the number of records across all suites.
func (d *Document) RecordCount() int {
	n := 0
	for _, s := range d.Suites {
		n += len(s.Records)
	}
	return n
}

func malformed(path string, err error) error {
	return apperrors.New(apperrors.ErrMalformedDocument, "decode", path, err)
}

// Decode reads a document in either format.
func Decode(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperrors.Storage("decode", "", err)
	}
	doc, _, err := DecodeBytes(data)
	return doc, err
}

// DecodeBytes decodes data and reports which format it was written in.
func DecodeBytes(data []byte) (*Document, Format, error) {
	body, format := unwrap(data)
	if len(body) == 0 {
		return nil, format, malformed("", errors.New("empty document"))
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	if err := expectDelim(dec, '{'); err != nil {
		return nil, format, malformed("", err)
	}

	doc := &Document{}
	sawEntries := false
	for dec.More() {
		key, err := objectKey(dec)
		if err != nil {
			return nil, format, malformed("", err)
		}

		switch key {
		case "lastUpdate":
			if err := dec.Decode(&doc.LastUpdate); err != nil {
				return nil, format, malformed(key, err)
			}
		case "repoUrl":
			if err := dec.Decode(&doc.RepoURL); err != nil {
				return nil, format, malformed(key, err)
			}
		case "entries":
			if err := decodeEntries(dec, doc); err != nil {
				return nil, format, err
			}
			sawEntries = true
		default:
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return nil, format, malformed(key, err)
			}
			if doc.Extensions == nil {
				doc.Extensions = benchmark.Extensions{}
			}
			doc.Extensions[key] = benchmark.Compact(raw)
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, format, malformed("", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, format, malformed("", errors.New("trailing data after document"))
	}
	if !sawEntries {
		return nil, format, malformed("entries", errors.New("required field missing"))
	}
	return doc, format, nil
}

func decodeEntries(dec *json.Decoder, doc *Document) error {
	if err := expectDelim(dec, '{'); err != nil {
		return malformed("entries", err)
	}
	seen := make(map[string]bool)
	for dec.More() {
		name, err := objectKey(dec)
		if err != nil {
			return malformed("entries", err)
		}
		path := "entries[" + strconv.Quote(name) + "]"
		if seen[name] {
			return malformed(path, errors.New("duplicate suite"))
		}
		seen[name] = true

		var raw []json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return malformed(path, err)
		}
		suite := Suite{Name: name, Records: make([]benchmark.Record, len(raw))}
		for i, entry := range raw {
			if err := json.Unmarshal(entry, &suite.Records[i]); err != nil {
				return malformed(fieldPath(fmt.Sprintf("%s[%d]", path, i), err), unwrapField(err))
			}
		}
		doc.Suites = append(doc.Suites, suite)
	}
	if err := expectDelim(dec, '}'); err != nil {
		return malformed("entries", err)
	}
	return nil
}

func fieldPath(prefix string, err error) string {
	var fe *benchmark.FieldError
	if errors.As(err, &fe) {
		return prefix + "." + fe.Path
	}
	return prefix
}

func unwrapField(err error) error {
	var fe *benchmark.FieldError
	if errors.As(err, &fe) {
		return fe.Err
	}
	return err
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func objectKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return key, nil
}

// unwrap strips the JavaScript assignment around the JSON body.
func unwrap(data []byte) ([]byte, Format) {
	body := bytes.TrimSpace(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))
	if !bytes.HasPrefix(body, []byte(jsVar)) {
		return body, FormatJSON
	}
	if i := bytes.IndexByte(body, '='); i >= 0 {
		body = body[i+1:]
	}
	body = bytes.TrimSpace(body)
	body = bytes.TrimSpace(bytes.TrimSuffix(body, []byte(";")))
	return body, FormatJS
}

// Encode writes doc in the given format, indented with two spaces. Suites,
// records and benches keep their order; unknown fields follow the known
// ones.
func Encode(w io.Writer, doc *Document, format Format) error {
	data, err := Marshal(doc, format)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return apperrors.Storage("encode", "", err)
	}
	return nil
}

// Marshal renders doc as Encode would write it.
func Marshal(doc *Document, format Format) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	writeKey(&buf, "lastUpdate", true)
	buf.WriteString(strconv.FormatInt(doc.LastUpdate, 10))
	writeKey(&buf, "repoUrl", false)
	if err := writeValue(&buf, doc.RepoURL); err != nil {
		return nil, err
	}

	writeKey(&buf, "entries", false)
	buf.WriteByte('{')
	for i, s := range doc.Suites {
		writeKey(&buf, s.Name, i == 0)
		records := s.Records
		if records == nil {
			records = []benchmark.Record{}
		}
		if err := writeValue(&buf, records); err != nil {
			return nil, fmt.Errorf("encoding suite %q: %w", s.Name, err)
		}
	}
	buf.WriteByte('}')

	keys := make([]string, 0, len(doc.Extensions))
	for k := range doc.Extensions {
		switch k {
		case "lastUpdate", "repoUrl", "entries":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeKey(&buf, k, false)
		buf.Write(doc.Extensions[k])
	}
	buf.WriteByte('}')

	var out bytes.Buffer
	if format == FormatJS {
		out.WriteString(JSPrefix)
	}
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("indenting document: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, key string, first bool) {
	if !first {
		buf.WriteByte(',')
	}
	k, _ := json.Marshal(key)
	buf.Write(k)
	buf.WriteByte(':')
}

func writeValue(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// drop the encoder's trailing newline
	buf.Truncate(buf.Len() - 1)
	return nil
}
