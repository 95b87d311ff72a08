package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/audioscribe/pkg/logger"
)

// OutputFormats lists the renderable output format identifiers.
var OutputFormats = []string{"txt", "srt", "vtt", "json"}

// IsOutputFormat reports whether the identifier names a known renderer.
func IsOutputFormat(format string) bool {
	switch format {
	case "txt", "srt", "vtt", "json":
		return true
	}
	return false
}

// Render serializes the result in the given format.
func (r *Result) Render(format string) ([]byte, error) {
	switch format {
	case "txt":
		return []byte(r.Text), nil
	case "srt":
		return []byte(r.toSRT()), nil
	case "vtt":
		return []byte(r.toVTT()), nil
	case "json":
		return json.MarshalIndent(r, "", "  ")
	}
	return nil, fmt.Errorf("unknown output format: %s", format)
}

// WriteOutputs renders one file per requested format into outputDir, named
// <stem>.<format>. Returns the paths written.
func (r *Result) WriteOutputs(outputDir, stem string, formats []string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	written := make([]string, 0, len(formats))
	for _, format := range formats {
		data, err := r.Render(format)
		if err != nil {
			return written, err
		}

		path := filepath.Join(outputDir, stem+"."+format)
		if err := os.WriteFile(path, data, 0644); err != nil {
			return written, fmt.Errorf("write %s: %w", format, err)
		}
		written = append(written, path)
		logger.Debugf("wrote output: %s", path)
	}

	return written, nil
}

func (r *Result) toSRT() string {
	var b strings.Builder
	for _, seg := range r.Segments {
		fmt.Fprintf(&b, "%d\n", seg.ID)
		fmt.Fprintf(&b, "%s --> %s\n", TimestampSRT(seg.Start), TimestampSRT(seg.End))
		b.WriteString(strings.TrimSpace(seg.Text))
		b.WriteString("\n\n")
	}
	return b.String()
}

func (r *Result) toVTT() string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, seg := range r.Segments {
		fmt.Fprintf(&b, "%s --> %s\n", TimestampVTT(seg.Start), TimestampVTT(seg.End))
		b.WriteString(strings.TrimSpace(seg.Text))
		b.WriteString("\n\n")
	}
	return b.String()
}

// TimestampSRT formats seconds as an SRT timestamp (HH:MM:SS,mmm).
func TimestampSRT(seconds float64) string {
	h, m, s, ms := splitTimestamp(seconds)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// TimestampVTT formats seconds as a WebVTT timestamp (HH:MM:SS.mmm).
func TimestampVTT(seconds float64) string {
	h, m, s, ms := splitTimestamp(seconds)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

func splitTimestamp(seconds float64) (h, m, s, ms int) {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h = total / 3600
	m = (total % 3600) / 60
	s = total % 60
	// Round to avoid 0.234 becoming 233ms through float truncation.
	ms = int((seconds-float64(total))*1000 + 0.5)
	if ms >= 1000 {
		ms -= 1000
		s++
		if s >= 60 {
			s = 0
			m++
			if m >= 60 {
				m = 0
				h++
			}
		}
	}
	return h, m, s, ms
}
