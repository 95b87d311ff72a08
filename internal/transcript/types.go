package transcript

import "time"

// Segment is a single timed span of transcribed speech. IDs are sequential
// starting at 1, start/end are offsets in seconds.
type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is the immutable output of one transcription run.
type Result struct {
	AudioPath   string    `json:"audio_path"`
	Text        string    `json:"text"`
	Segments    []Segment `json:"segments"`
	Language    string    `json:"language"`
	Duration    float64   `json:"duration"`
	ModelName   string    `json:"model_name"`
	CompletedAt time.Time `json:"completed_at"`
}

// New builds a Result, deriving Duration from the last segment's end offset.
func New(audioPath, text string, segments []Segment, language, modelName string) *Result {
	duration := 0.0
	if len(segments) > 0 {
		duration = segments[len(segments)-1].End
	}
	return &Result{
		AudioPath:   audioPath,
		Text:        text,
		Segments:    segments,
		Language:    language,
		Duration:    duration,
		ModelName:   modelName,
		CompletedAt: time.Now(),
	}
}
