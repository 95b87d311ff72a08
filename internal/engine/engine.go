package engine

import (
	"context"

	"github.com/audioscribe/internal/transcript"
)

// ProgressFunc receives progress updates during a transcription run.
// fraction is in [0,1]; message is a short phase label. It may be called
// any number of times, including zero, before Transcribe returns.
type ProgressFunc func(fraction float64, message string)

// Options carries per-call transcription parameters.
type Options struct {
	Language string // language code hint, "" or "auto" for detection
	Model    string // model identifier
}

// Engine is the boundary to an external transcription capability. Calls are
// slow and blocking; callers must never invoke Transcribe while holding a
// lock shared with other job state.
type Engine interface {
	Transcribe(ctx context.Context, audioPath string, opts Options, onProgress ProgressFunc) (*transcript.Result, error)
}

// AvailableModels lists the known whisper model identifiers.
var AvailableModels = []string{"tiny", "base", "small", "medium", "large", "large-v2", "large-v3"}

// DefaultModel is used when a request doesn't name one.
const DefaultModel = "large"

// IsKnownModel reports whether name is in the model catalog.
func IsKnownModel(name string) bool {
	for _, m := range AvailableModels {
		if m == name {
			return true
		}
	}
	return false
}
