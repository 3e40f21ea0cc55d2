package benchmark

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const entryJSON = `{
  "commit": {
    "author": {"name": "dfm", "username": "dfm", "email": "dfm@example.com"},
    "committer": {"name": "dfm", "username": "dfm"},
    "distinct": true,
    "id": "dd3416ba2cfdbb4330530e48424387991a986143",
    "message": "Adding report to benchmark workflow",
    "timestamp": "2022-12-06T16:35:26Z",
    "url": "https://github.com/dfm/libkepler/pull/4/commits/dd3416ba"
  },
  "date": 1670355947056,
  "tool": "catch2",
  "runner": "ubuntu-latest",
  "benches": [
    {"name": "Baseline", "value": 8.15893, "range": "± 113.517", "unit": "us", "extra": "100 samples\n4 iterations"},
    {"name": "e = 0.200000; n = 1000", "value": 48.0811, "range": "± 1.04175", "unit": "us", "extra": "100 samples\n1 iterations", "cpu": "x86"}
  ]
}`

func TestRecord_UnmarshalJSON(t *testing.T) {
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(entryJSON), &rec))

	assert.Equal(t, "dd3416ba2cfdbb4330530e48424387991a986143", rec.Commit.ID)
	assert.Equal(t, int64(1670355947056), rec.Date)
	assert.Equal(t, "catch2", rec.Tool)
	require.Len(t, rec.Benches, 2)
	assert.Equal(t, "e = 0.200000; n = 1000", rec.Benches[1].Name)
	assert.InDelta(t, 1.04175, rec.Benches[1].Dispersion(), 1e-9)

	assert.JSONEq(t, `"ubuntu-latest"`, string(rec.Extensions["runner"]))
	assert.JSONEq(t, `true`, string(rec.Commit.Extensions["distinct"]))
	assert.JSONEq(t, `"dfm@example.com"`, string(rec.Commit.Author.Extensions["email"]))
	assert.JSONEq(t, `"x86"`, string(rec.Benches[1].Extensions["cpu"]))
	assert.Nil(t, rec.Benches[0].Extensions)
}

func TestRecord_RoundTripPreservesUnknownFields(t *testing.T) {
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(entryJSON), &rec))

	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, entryJSON, string(out))

	var again Record
	require.NoError(t, json.Unmarshal(out, &again))
	assert.Equal(t, rec, again)
}

func TestRecord_RoundTripKeepsEmptyAndNullOptionals(t *testing.T) {
	const in = `{
		"commit": {"author": null, "id": "c", "message": null, "timestamp": "", "url": ""},
		"date": 1,
		"tool": "catch2",
		"benches": [
			{"name": "a", "value": 1, "range": "", "unit": "us", "extra": ""},
			{"name": "b", "value": 2, "range": null, "unit": "us"}
		]
	}`

	var rec Record
	require.NoError(t, json.Unmarshal([]byte(in), &rec))
	assert.Nil(t, rec.Commit.Author)
	assert.Empty(t, rec.Commit.Message)
	assert.Empty(t, rec.Benches[0].Range)
	assert.Nil(t, rec.Benches[1].Extensions)

	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))

	out, err = json.Marshal(rec.Clone())
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestPerson_RoundTripKeepsEmptyName(t *testing.T) {
	const in = `{"name": "", "username": null}`
	var p Person
	require.NoError(t, json.Unmarshal([]byte(in), &p))

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestMeasurement_SetOptionalOverridesBlank(t *testing.T) {
	var m Measurement
	require.NoError(t, json.Unmarshal([]byte(`{"name": "a", "value": 1, "range": "", "unit": "us"}`), &m))
	m.Range = "± 0.5"

	out, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name": "a", "value": 1, "range": "± 0.5", "unit": "us"}`, string(out))
}

func TestMeasurement_MarshalKeyOrder(t *testing.T) {
	m := Measurement{Name: "a", Value: 1.5, Range: "± 0.1", Unit: "ns", Extra: "3 samples",
		Extensions: Extensions{"z": []byte(`1`), "b": []byte(`2`)}}
	out, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"a","value":1.5,"range":"± 0.1","unit":"ns","extra":"3 samples","b":2,"z":1}`, string(out))
}

func TestMeasurement_OmitsEmptyOptionalFields(t *testing.T) {
	out, err := json.Marshal(Measurement{Name: "a", Value: 2, Unit: "ns"})
	require.NoError(t, err)
	assert.Equal(t, `{"name":"a","value":2,"unit":"ns"}`, string(out))
}

func TestRecord_UnmarshalErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantPath string
	}{
		{name: "missing commit", input: `{"date": 1, "tool": "go", "benches": []}`, wantPath: "commit"},
		{name: "missing commit id", input: `{"commit": {}, "date": 1, "tool": "go", "benches": []}`, wantPath: "commit.id"},
		{name: "missing date", input: `{"commit": {"id": "a"}, "tool": "go", "benches": []}`, wantPath: "date"},
		{name: "date wrong type", input: `{"commit": {"id": "a"}, "date": "x", "tool": "go", "benches": []}`, wantPath: "date"},
		{name: "null benches", input: `{"commit": {"id": "a"}, "date": 1, "tool": "go", "benches": null}`, wantPath: "benches"},
		{name: "bench value missing", input: `{"commit": {"id": "a"}, "date": 1, "tool": "go", "benches": [{"name": "x", "unit": "ns"}]}`, wantPath: "benches[0].value"},
		{name: "bench value string", input: `{"commit": {"id": "a"}, "date": 1, "tool": "go", "benches": [{"name": "x", "value": "1", "unit": "ns"}, {}]}`, wantPath: "benches[0].value"},
		{name: "author not object", input: `{"commit": {"id": "a", "author": "me"}, "date": 1, "tool": "go", "benches": []}`, wantPath: "commit.author"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec Record
			err := json.Unmarshal([]byte(tt.input), &rec)
			require.Error(t, err)

			var fe *FieldError
			require.True(t, errors.As(err, &fe), "got %T: %v", err, err)
			assert.Equal(t, tt.wantPath, fe.Path)
		})
	}
}
