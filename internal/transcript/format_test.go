package transcript

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *Result {
	return New("test.mp3", "Hello world", []Segment{
		{ID: 1, Start: 0.0, End: 2.5, Text: "Hello"},
		{ID: 2, Start: 2.5, End: 5.0, Text: "world"},
	}, "en", "large")
}

func TestTimestampSRT(t *testing.T) {
	assert.Equal(t, "00:00:00,000", TimestampSRT(0))
	assert.Equal(t, "01:01:01,234", TimestampSRT(3661.234))
	assert.Equal(t, "00:00:02,500", TimestampSRT(2.5))
	assert.Equal(t, "00:01:00,000", TimestampSRT(59.9999))
}

func TestTimestampVTT(t *testing.T) {
	assert.Equal(t, "00:00:00.000", TimestampVTT(0))
	assert.Equal(t, "01:01:01.234", TimestampVTT(3661.234))
}

func TestDurationDerivedFromLastSegment(t *testing.T) {
	r := sampleResult()
	assert.Equal(t, 5.0, r.Duration)

	empty := New("silent.wav", "", nil, "en", "base")
	assert.Equal(t, 0.0, empty.Duration)
}

func TestRenderSRT(t *testing.T) {
	r := sampleResult()

	data, err := r.Render("srt")
	require.NoError(t, err)

	blocks := strings.Split(strings.TrimSpace(string(data)), "\n\n")
	require.Len(t, blocks, 2)
	assert.True(t, strings.HasPrefix(blocks[0], "1\n00:00:00,000 --> 00:00:02,500\nHello"))
	assert.True(t, strings.HasPrefix(blocks[1], "2\n00:00:02,500 --> 00:00:05,000\nworld"))
}

func TestRenderVTT(t *testing.T) {
	r := sampleResult()

	data, err := r.Render("vtt")
	require.NoError(t, err)

	out := string(data)
	assert.True(t, strings.HasPrefix(out, "WEBVTT\n"))
	assert.Contains(t, out, "00:00:00.000 --> 00:00:02.500")
	assert.Contains(t, out, "00:00:02.500 --> 00:00:05.000")
}

func TestRenderTxtUsesResultText(t *testing.T) {
	// Plain text output is the result-level text field, independent of
	// segment boundaries.
	r := sampleResult()

	data, err := r.Render("txt")
	require.NoError(t, err)
	assert.Equal(t, "Hello world", string(data))
}

func TestRenderJSON(t *testing.T) {
	r := sampleResult()

	data, err := r.Render("json")
	require.NoError(t, err)

	var decoded Result
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, r.Text, decoded.Text)
	assert.Len(t, decoded.Segments, 2)
	assert.Equal(t, 1, decoded.Segments[0].ID)
}

func TestRenderUnknownFormat(t *testing.T) {
	_, err := sampleResult().Render("docx")
	assert.Error(t, err)
}

func TestWriteOutputs(t *testing.T) {
	dir := t.TempDir()
	r := sampleResult()

	written, err := r.WriteOutputs(dir, "test", []string{"txt", "srt"})
	require.NoError(t, err)
	require.Len(t, written, 2)

	txt, err := os.ReadFile(filepath.Join(dir, "test.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Hello world", string(txt))

	assert.FileExists(t, filepath.Join(dir, "test.srt"))
}
