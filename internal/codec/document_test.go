package codec

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"benchhist/internal/benchmark"
	apperrors "benchhist/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `{
  "lastUpdate": 1670355947881,
  "repoUrl": "https://github.com/dfm/libkepler",
  "schema": 2,
  "entries": {
    "Zeta suite": [
      {
        "commit": {"id": "aaa", "message": "first", "timestamp": "2022-12-06T16:35:26Z"},
        "date": 1000,
        "tool": "catch2",
        "benches": [
          {"name": "iter1d", "value": 14.57, "range": "± 0.4", "unit": "us", "extra": "100 samples\n3 iterations"},
          {"name": "Baseline", "value": 8.1, "range": "± 1", "unit": "us", "extra": "100 samples\n4 iterations", "future": {"a": [1, 2]}}
        ]
      },
      {
        "commit": {"id": "bbb"},
        "date": 2000,
        "tool": "catch2",
        "benches": []
      }
    ],
    "Alpha suite": [
      {
        "commit": {"id": "ccc", "author": {"name": "dfm", "username": "dfm"}},
        "date": 1500,
        "tool": "customBiggerIsBetter",
        "benches": [{"name": "throughput", "value": 120, "unit": "ops/s"}]
      }
    ]
  }
}`

func TestDecode_PreservesOrderAndFields(t *testing.T) {
	doc, err := Decode(strings.NewReader(sampleDoc))
	require.NoError(t, err)

	assert.Equal(t, int64(1670355947881), doc.LastUpdate)
	assert.Equal(t, "https://github.com/dfm/libkepler", doc.RepoURL)
	assert.JSONEq(t, `2`, string(doc.Extensions["schema"]))

	require.Len(t, doc.Suites, 2)
	assert.Equal(t, "Zeta suite", doc.Suites[0].Name)
	assert.Equal(t, "Alpha suite", doc.Suites[1].Name)
	assert.Equal(t, 3, doc.RecordCount())

	zeta := doc.Suite("Zeta suite")
	require.NotNil(t, zeta)
	assert.Equal(t, "iter1d", zeta.Records[0].Benches[0].Name)
	assert.Equal(t, "Baseline", zeta.Records[0].Benches[1].Name)
	assert.JSONEq(t, `{"a": [1, 2]}`, string(zeta.Records[0].Benches[1].Extensions["future"]))
	assert.Nil(t, doc.Suite("missing"))
}

func TestRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatJS} {
		t.Run(string(format), func(t *testing.T) {
			doc, err := Decode(strings.NewReader(sampleDoc))
			require.NoError(t, err)

			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, doc, format))

			again, gotFormat, err := DecodeBytes(buf.Bytes())
			require.NoError(t, err)
			assert.Equal(t, format, gotFormat)
			assert.Equal(t, doc, again)

			if format == FormatJSON {
				assert.JSONEq(t, sampleDoc, buf.String())
			} else {
				assert.True(t, strings.HasPrefix(buf.String(), "window.BENCHMARK_DATA = {\n  \"lastUpdate\""))
			}
		})
	}
}

func TestRoundTrip_PublishedArtifact(t *testing.T) {
	data, err := os.ReadFile("testdata/data.js")
	require.NoError(t, err)

	doc, format, err := DecodeBytes(data)
	require.NoError(t, err)
	assert.Equal(t, FormatJS, format)

	suite := doc.Suite("Kepler benchmarks")
	require.NotNil(t, suite)
	require.Len(t, suite.Records, 1)
	rec := suite.Records[0]
	assert.Equal(t, "dd3416ba2cfdbb4330530e48424387991a986143", rec.Commit.ID)
	assert.Equal(t, "catch2", rec.Tool)
	assert.Len(t, rec.Benches, 102)
	assert.Equal(t, "dfm", rec.Commit.Author.Username)

	out, err := Marshal(doc, FormatJS)
	require.NoError(t, err)

	again, _, err := DecodeBytes(out)
	require.NoError(t, err)
	assert.Equal(t, doc, again)

	// byte-identical modulo the whitespace the publisher used
	body, _ := unwrap(data)
	outBody, _ := unwrap(out)
	assert.JSONEq(t, string(body), string(outBody))
}

func TestRoundTrip_EmptyAndNullFields(t *testing.T) {
	const in = `{
		"lastUpdate": 1,
		"repoUrl": "",
		"entries": {
			"S": [{
				"commit": {"id": "c", "message": null, "url": "", "committer": {"name": "", "username": "dfm"}},
				"date": 1,
				"tool": "catch2",
				"benches": [{"name": "a", "value": 1, "range": "", "unit": "us", "extra": ""}]
			}]
		}
	}`

	doc, err := Decode(strings.NewReader(in))
	require.NoError(t, err)

	out, err := Marshal(doc, FormatJSON)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))

	again, _, err := DecodeBytes(out)
	require.NoError(t, err)
	assert.Equal(t, doc, again)
}

func TestDecodeBytes_JSVariants(t *testing.T) {
	inputs := []string{
		"window.BENCHMARK_DATA = {\"lastUpdate\": 1, \"repoUrl\": \"\", \"entries\": {}};\n",
		"\xef\xbb\xbfwindow.BENCHMARK_DATA={\"entries\": {}}",
	}
	for _, in := range inputs {
		doc, format, err := DecodeBytes([]byte(in))
		require.NoError(t, err, in)
		assert.Equal(t, FormatJS, format)
		assert.Empty(t, doc.Suites)
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantSubject string
	}{
		{name: "empty", input: "   ", wantSubject: ""},
		{name: "not json", input: "{nope", wantSubject: ""},
		{name: "array root", input: `[]`, wantSubject: ""},
		{name: "missing entries", input: `{"lastUpdate": 1}`, wantSubject: "entries"},
		{name: "lastUpdate string", input: `{"lastUpdate": "x", "entries": {}}`, wantSubject: "lastUpdate"},
		{name: "entries array", input: `{"entries": []}`, wantSubject: "entries"},
		{name: "suite not array", input: `{"entries": {"S": {}}}`, wantSubject: `entries["S"]`},
		{name: "duplicate suite", input: `{"entries": {"S": [], "S": []}}`, wantSubject: `entries["S"]`},
		{name: "missing tool", input: `{"entries": {"S": [{"commit": {"id": "a"}, "date": 1, "benches": []}]}}`, wantSubject: `entries["S"][0].tool`},
		{name: "bench unit wrong type", input: `{"entries": {"S": [{"commit": {"id": "a"}, "date": 1, "tool": "go", "benches": [{"name": "x", "value": 1, "unit": 5}]}]}}`, wantSubject: `entries["S"][0].benches[0].unit`},
		{name: "trailing data", input: `{"entries": {}} {}`, wantSubject: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrMalformedDocument)

			var e *apperrors.Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, tt.wantSubject, e.Subject)
		})
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("device gone") }

func TestDecode_ReadFailureIsStorageError(t *testing.T) {
	_, err := Decode(failingReader{})
	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
}

func TestMarshal_EmptyDocument(t *testing.T) {
	out, err := Marshal(&Document{}, FormatJSON)
	require.NoError(t, err)
	assert.JSONEq(t, `{"lastUpdate": 0, "repoUrl": "", "entries": {}}`, string(out))
}

func TestMarshal_ExtensionsCannotShadowKnownKeys(t *testing.T) {
	doc := &Document{
		LastUpdate: 5,
		Suites:     []Suite{{Name: "S", Records: []benchmark.Record{{Commit: benchmark.Commit{ID: "a"}, Date: 1, Tool: "go"}}}},
		Extensions: benchmark.Extensions{"entries": []byte(`{}`), "extra": []byte(`true`)},
	}
	out, err := Marshal(doc, FormatJSON)
	require.NoError(t, err)

	again, err := Decode(bytes.NewReader(out))
	require.NoError(t, err)
	require.Len(t, again.Suites, 1)
	assert.Equal(t, benchmark.Extensions{"extra": []byte(`true`)}, again.Extensions)
	assert.Equal(t, []benchmark.Measurement{}, again.Suites[0].Records[0].Benches)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat("JS")
	require.NoError(t, err)
	assert.Equal(t, FormatJS, f)

	_, err = ParseFormat("yaml")
	assert.Error(t, err)
}
