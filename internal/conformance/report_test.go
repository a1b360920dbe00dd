package conformance

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportOrderingAndTally(t *testing.T) {
	r := &Report{Endpoint: "http://localhost:8080", Bucket: "test-bucket"}

	r.record("Create Bucket", true, 5*time.Millisecond, "")
	r.record("PUT test1.txt", true, 10*time.Millisecond, "38 bytes")
	r.record("GET test1.txt", false, 7*time.Millisecond, "content mismatch")

	require.Len(t, r.Cases, 3)
	assert.Equal(t, "Create Bucket", r.Cases[0].Name)
	assert.Equal(t, "GET test1.txt", r.Cases[2].Name)

	assert.False(t, r.Passed())
	assert.Equal(t, 2, r.PassCount())
	assert.Equal(t, 1, r.FailCount())
}

func TestReportPassedEmpty(t *testing.T) {
	r := &Report{}
	assert.True(t, r.Passed())
	assert.Nil(t, r.LatencySummary())
}

func TestReportLatencySummary(t *testing.T) {
	r := &Report{}
	r.record("a", true, 10*time.Millisecond, "")
	r.record("b", true, 20*time.Millisecond, "")
	r.record("c", true, 30*time.Millisecond, "")

	s := r.LatencySummary()
	require.NotNil(t, s)
	assert.InDelta(t, 10.0, s["min"], 0.1)
	assert.InDelta(t, 20.0, s["avg"], 0.1)
	assert.InDelta(t, 30.0, s["max"], 0.1)
	assert.LessOrEqual(t, s["p50"], s["p90"])
}

func TestReportPrint(t *testing.T) {
	r := &Report{Endpoint: "http://localhost:8080", Bucket: "test-bucket"}
	r.record("Create Bucket", true, time.Millisecond, "")
	r.record("GET test1.txt", false, time.Millisecond, "content mismatch")

	var buf bytes.Buffer
	r.Print(&buf)

	out := buf.String()
	assert.Contains(t, out, "PASS: Create Bucket")
	assert.Contains(t, out, "FAIL: GET test1.txt (content mismatch)")
	assert.Contains(t, out, "Total: 1/2 cases passed")
	assert.Contains(t, out, "Some cases failed")
}

func TestReportPrintAllPassed(t *testing.T) {
	r := &Report{Endpoint: "http://localhost:8080", Bucket: "test-bucket"}
	r.record("Create Bucket", true, time.Millisecond, "")

	var buf bytes.Buffer
	r.Print(&buf)
	assert.Contains(t, buf.String(), "All cases passed")
}

func TestReportWriteJSON(t *testing.T) {
	r := &Report{
		Endpoint:  "http://localhost:8080",
		Bucket:    "test-bucket",
		StartedAt: time.Now().UTC(),
	}
	r.record("Create Bucket", true, time.Millisecond, "")

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, r.WriteJSON(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got Report
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, r.Endpoint, got.Endpoint)
	require.Len(t, got.Cases, 1)
	assert.Equal(t, "Create Bucket", got.Cases[0].Name)
	assert.True(t, got.Cases[0].Passed)
}
