package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/audioscribe/internal/transcript"
	"github.com/audioscribe/pkg/logger"
)

const openaiTranscriptionsURL = "https://api.openai.com/v1/audio/transcriptions"

// OpenAI transcribes via the hosted whisper API. Progress is coarse: the
// API offers no streaming progress, so only phase milestones are reported.
type OpenAI struct {
	apiKey string
	client *resty.Client
}

// NewOpenAI creates an API-backed engine.
func NewOpenAI(apiKey string) *OpenAI {
	client := resty.New().
		SetTimeout(10 * time.Minute).
		SetRetryCount(2).
		SetRetryWaitTime(2 * time.Second)

	return &OpenAI{apiKey: apiKey, client: client}
}

// verboseResponse is the verbose_json transcription payload.
type verboseResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (o *OpenAI) Transcribe(ctx context.Context, audioPath string, opts Options, onProgress ProgressFunc) (*transcript.Result, error) {
	logger.Infof("transcribing (openai api): %s", filepath.Base(audioPath))

	if onProgress != nil {
		onProgress(0.1, "Uploading audio...")
	}

	formData := map[string]string{
		"model":           "whisper-1",
		"response_format": "verbose_json",
	}
	if opts.Language != "" && opts.Language != "auto" {
		formData["language"] = opts.Language
	}

	var body verboseResponse
	resp, err := o.client.R().
		SetContext(ctx).
		SetAuthToken(o.apiKey).
		SetFile("file", audioPath).
		SetFormData(formData).
		SetResult(&body).
		SetError(&body).
		Post(openaiTranscriptionsURL)

	if err != nil {
		return nil, fmt.Errorf("api request: %w", err)
	}
	if resp.IsError() {
		if body.Error != nil {
			return nil, fmt.Errorf("openai api error (%d): %s", resp.StatusCode(), body.Error.Message)
		}
		return nil, fmt.Errorf("openai api error (%d): %s", resp.StatusCode(), resp.String())
	}

	if onProgress != nil {
		onProgress(0.8, "Processing results...")
	}

	segments := make([]transcript.Segment, 0, len(body.Segments))
	for i, seg := range body.Segments {
		segments = append(segments, transcript.Segment{
			ID:    i + 1,
			Start: seg.Start,
			End:   seg.End,
			Text:  seg.Text,
		})
	}

	logger.Infof("transcription complete: %s (%d segments)", filepath.Base(audioPath), len(segments))
	return transcript.New(audioPath, strings.TrimSpace(body.Text), segments, body.Language, "whisper-1"), nil
}
