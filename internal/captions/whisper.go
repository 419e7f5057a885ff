// internal/captions/whisper.go
package captions

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"adreel/internal/common/errors"
	"adreel/internal/common/logger"
	"adreel/internal/media"
)

// Segment is one transcribed phrase with per-word timings.
type Segment struct {
	Words []Word `json:"words"`
}

// Word is a single transcribed word with its start and end in seconds.
type Word struct {
	Text  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type transcriptFile struct {
	Segments []Segment `json:"segments"`
}

// Transcriber shells out to the whisper CLI for word-level timestamps.
type Transcriber struct {
	whisperPath string
	model       string
	run         media.CommandRunner
	logger      logger.Logger
}

func NewTranscriber(whisperPath, model string, run media.CommandRunner, log logger.Logger) *Transcriber {
	return &Transcriber{
		whisperPath: whisperPath,
		model:       model,
		run:         run,
		logger:      log.With(map[string]interface{}{"component": "whisper"}),
	}
}

// Transcribe runs whisper on audioPath and parses the JSON transcript it
// writes next to the audio file.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string) ([]Segment, error) {
	outputDir := filepath.Dir(audioPath)

	t.logger.Info("transcribing audio", map[string]interface{}{
		"audio": filepath.Base(audioPath),
		"model": t.model,
	})

	out, err := t.run(ctx, t.whisperPath,
		audioPath,
		"--model", t.model,
		"--word_timestamps", "True",
		"--output_format", "json",
		"--output_dir", outputDir,
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.NewRequestTimeoutError("transcription")
		}
		return nil, errors.NewTranscriptionFailedError(fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out))))
	}

	transcriptPath := transcriptPathFor(audioPath)
	data, err := os.ReadFile(transcriptPath)
	if err != nil {
		return nil, errors.NewTranscriptionFailedError(fmt.Errorf("missing transcript %s: %w", filepath.Base(transcriptPath), err))
	}

	var transcript transcriptFile
	if err := json.Unmarshal(data, &transcript); err != nil {
		return nil, errors.NewTranscriptionFailedError(fmt.Errorf("unparseable transcript: %w", err))
	}

	return transcript.Segments, nil
}

// transcriptPathFor maps audio.wav to audio.json in the same directory,
// matching where whisper writes its JSON output.
func transcriptPathFor(audioPath string) string {
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	return filepath.Join(filepath.Dir(audioPath), base+".json")
}
