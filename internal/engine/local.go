package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/audioscribe/internal/transcript"
	"github.com/audioscribe/pkg/logger"
)

// Local runs faster-whisper through a python helper script. The helper
// writes the transcription result as JSON on stdout and emits progress
// lines on stderr in the form "PROGRESS <fraction> <message>".
type Local struct {
	script string
	model  string
}

// NewLocal creates a local engine bound to one model.
func NewLocal(script, model string) *Local {
	if model == "" {
		model = DefaultModel
	}
	return &Local{script: script, model: model}
}

// localResult mirrors the helper script's JSON output.
type localResult struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (l *Local) Transcribe(ctx context.Context, audioPath string, opts Options, onProgress ProgressFunc) (*transcript.Result, error) {
	model := opts.Model
	if model == "" {
		model = l.model
	}

	args := []string{l.script, audioPath, "--model", model, "--json"}
	if opts.Language != "" && opts.Language != "auto" {
		args = append(args, "--language", opts.Language)
	}

	logger.Infof("transcribing (faster-whisper): %s", filepath.Base(audioPath))
	logger.Debugf("command: python3 %s", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, "python3", args...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start transcription: %w", err)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(&stdoutBuf, stdoutPipe)
	}()
	go scanProgress(&wg, stderrPipe, &stderrBuf, onProgress)

	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("transcription failed: %w\nstderr: %s", err, stderrBuf.String())
	}

	stderrStr := stderrBuf.String()
	if strings.Contains(stderrStr, "Traceback") {
		return nil, fmt.Errorf("transcription reported errors:\n%s", stderrStr)
	}

	var raw localResult
	if err := json.Unmarshal(stdoutBuf.Bytes(), &raw); err != nil {
		return nil, fmt.Errorf("parse transcription output: %w", err)
	}

	segments := make([]transcript.Segment, 0, len(raw.Segments))
	for i, seg := range raw.Segments {
		segments = append(segments, transcript.Segment{
			ID:    i + 1,
			Start: seg.Start,
			End:   seg.End,
			Text:  seg.Text,
		})
	}

	language := raw.Language
	if language == "" {
		language = opts.Language
	}

	logger.Infof("transcription complete: %s (%d segments)", filepath.Base(audioPath), len(segments))
	return transcript.New(audioPath, strings.TrimSpace(raw.Text), segments, language, model), nil
}

// scanProgress reads helper output line by line, forwarding PROGRESS lines
// to the callback and buffering everything else for error reporting.
func scanProgress(wg *sync.WaitGroup, r io.Reader, buf *bytes.Buffer, onProgress ProgressFunc) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		if fraction, message, ok := parseProgressLine(line); ok {
			if onProgress != nil {
				onProgress(fraction, message)
			}
			continue
		}

		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	if err := scanner.Err(); err != nil {
		logger.Debugf("scanner error (may be normal): %v", err)
	}
}

// parseProgressLine parses "PROGRESS <fraction> <message>".
func parseProgressLine(line string) (float64, string, bool) {
	rest, ok := strings.CutPrefix(line, "PROGRESS ")
	if !ok {
		return 0, "", false
	}

	fields := strings.SplitN(rest, " ", 2)
	fraction, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || fraction < 0 || fraction > 1 {
		return 0, "", false
	}

	message := ""
	if len(fields) == 2 {
		message = strings.TrimSpace(fields[1])
	}
	return fraction, message, true
}
