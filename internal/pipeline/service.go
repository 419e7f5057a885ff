// internal/pipeline/service.go
package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"adreel/internal/captions"
	"adreel/internal/common/errors"
	"adreel/internal/common/logger"
	"adreel/internal/common/metrics"
	"adreel/internal/common/observability"
	"adreel/internal/media"
	"adreel/internal/models"
)

// PromptClient generates scene prompts and voiceover scripts from media.
type PromptClient interface {
	ScenePrompts(ctx context.Context, images map[models.SceneKey]string) (models.ScenePrompts, error)
	VoiceoverScript(ctx context.Context, videoPath string, duration float64) (string, error)
}

// RenderClient turns a first frame plus prompt into a scene video.
type RenderClient interface {
	Generate(ctx context.Context, prompt, imagePath, outPath string) error
	RotateKey() bool
}

// SpeechClient synthesizes a voiceover audio file from a script.
type SpeechClient interface {
	Synthesize(ctx context.Context, script, outPath string) error
}

// TranscriberClient produces word-timed segments from an audio file.
type TranscriberClient interface {
	Transcribe(ctx context.Context, audioPath string) ([]captions.Segment, error)
}

// MediaRunner is the ffmpeg surface the pipeline drives.
type MediaRunner interface {
	Duration(ctx context.Context, path string) (float64, error)
	ConcatScenes(ctx context.Context, scenePaths []string, outPath string, width, height, fps int) error
	AttachAudio(ctx context.Context, videoPath, audioPath, outPath string) error
	BurnSubtitles(ctx context.Context, videoPath, srtPath, outPath string, style media.CaptionStyle) error
	ExtractAudioWAV(ctx context.Context, videoPath, wavPath string) error
}

// Config tunes the pipeline orchestration.
type Config struct {
	Width          int
	Height         int
	FPS            int
	MaxRetries     int
	RetryDelay     time.Duration
	SceneDelay     time.Duration // spacing between consecutive renders in a batch
	MaxConcurrent  int
	MaxWordsPerCue int
	CaptionStyle   media.CaptionStyle
}

// SceneResult reports the outcome of one scene render in a batch.
type SceneResult struct {
	Scene      models.SceneKey `json:"scene"`
	Status     string          `json:"status"`
	OutputFile string          `json:"output_file,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// VoiceoverResult carries a generated script, the workspace file it was
// persisted to, and the video duration it was written for. AudioFile names
// the artifact the attach-audio step will synthesize.
type VoiceoverResult struct {
	Script     string  `json:"script"`
	ScriptFile string  `json:"script_file"`
	AudioFile  string  `json:"audio_file"`
	Duration   float64 `json:"duration"`
}

// Service orchestrates the ad video pipeline inside per-user workspaces.
type Service struct {
	config      *Config
	workspaces  *Workspaces
	prompts     PromptClient
	render      RenderClient
	speech      SpeechClient
	transcriber TranscriberClient
	media       MediaRunner
	obs         *observability.Observability
	logger      logger.Logger

	renderSlots chan struct{}
}

func NewService(
	config *Config,
	workspaces *Workspaces,
	prompts PromptClient,
	render RenderClient,
	speech SpeechClient,
	transcriber TranscriberClient,
	mediaRunner MediaRunner,
	obs *observability.Observability,
	log logger.Logger,
) *Service {
	slots := config.MaxConcurrent
	if slots < 1 {
		slots = 1
	}
	return &Service{
		config:      config,
		workspaces:  workspaces,
		prompts:     prompts,
		render:      render,
		speech:      speech,
		transcriber: transcriber,
		media:       mediaRunner,
		obs:         obs,
		logger:      log.With(map[string]interface{}{"component": "pipeline"}),
		renderSlots: make(chan struct{}, slots),
	}
}

// Workspaces exposes the workspace manager for file handlers.
func (s *Service) Workspaces() *Workspaces {
	return s.workspaces
}

// GenerateScenePrompts asks the prompt model for one video prompt per scene
// image. Image paths must already live inside the user's workspace.
func (s *Service) GenerateScenePrompts(ctx context.Context, userID string, images map[models.SceneKey]string) (models.ScenePrompts, error) {
	return stage(ctx, s, "scene-prompts", func() (models.ScenePrompts, error) {
		return s.prompts.ScenePrompts(ctx, images)
	})
}

// GenerateScene renders a single scene: converts the source image to the
// vertical-safe frame, then drives the render API with retry and key
// rotation on rate limits.
func (s *Service) GenerateScene(ctx context.Context, userID string, key models.SceneKey, prompt, imagePath string) (string, error) {
	lock := s.workspaces.Lock(userID)
	lock.Lock()
	defer lock.Unlock()

	return stage(ctx, s, "render-scene", func() (string, error) {
		return s.generateSceneLocked(ctx, userID, key, prompt, imagePath)
	})
}

func (s *Service) generateSceneLocked(ctx context.Context, userID string, key models.SceneKey, prompt, imagePath string) (string, error) {
	select {
	case s.renderSlots <- struct{}{}:
	case <-ctx.Done():
		return "", errors.NewRequestTimeoutError("render slot")
	}
	metrics.PipelineJobsActive.Inc()
	defer func() {
		<-s.renderSlots
		metrics.PipelineJobsActive.Dec()
	}()

	safeImage, err := s.workspaces.Resolve(userID, SafeImageName(key))
	if err != nil {
		return "", err
	}
	if err := media.ConvertVerticalSafe(imagePath, safeImage, s.config.Width, s.config.Height); err != nil {
		return "", err
	}
	defer s.workspaces.Remove(userID, SafeImageName(key))

	outPath, err := s.workspaces.Resolve(userID, SceneVideoName(key))
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt < s.config.MaxRetries; attempt++ {
		lastErr = s.render.Generate(ctx, prompt, safeImage, outPath)
		if lastErr == nil {
			return SceneVideoName(key), nil
		}
		if errors.IsCode(lastErr, errors.ErrCodeRequestTimeout) {
			return "", lastErr
		}

		s.logger.Warn("scene render attempt failed", map[string]interface{}{
			"scene":   string(key),
			"attempt": attempt + 1,
			"error":   lastErr.Error(),
		})

		if attempt == s.config.MaxRetries-1 {
			break
		}

		if errors.IsCode(lastErr, errors.ErrCodeRenderRateLimited) {
			// Back off progressively, then move to the next key.
			if err := s.wait(ctx, s.config.RetryDelay*time.Duration(attempt+1)); err != nil {
				return "", err
			}
			s.render.RotateKey()
			continue
		}

		// Other errors: a fresh key is the cheapest retry, otherwise wait.
		if !s.render.RotateKey() {
			if err := s.wait(ctx, s.config.RetryDelay*time.Duration(attempt+1)); err != nil {
				return "", err
			}
		}
	}

	return "", lastErr
}

// GenerateAllScenes renders every scene that has both a prompt and an image,
// reporting per-scene outcomes instead of failing the whole batch.
// Consecutive renders are spaced SceneDelay apart; there is no trailing
// delay after the last render.
func (s *Service) GenerateAllScenes(ctx context.Context, userID string, prompts models.ScenePrompts, images map[models.SceneKey]string) []SceneResult {
	results := make([]SceneResult, 0, len(models.SceneKeys))

	rendered := false
	for _, key := range models.SceneKeys {
		prompt, hasPrompt := prompts[key]
		imagePath, hasImage := images[key]
		if !hasPrompt || !hasImage {
			results = append(results, SceneResult{
				Scene:  key,
				Status: "skipped",
				Error:  "missing prompt or image",
			})
			continue
		}

		if rendered && s.config.SceneDelay > 0 {
			if err := s.wait(ctx, s.config.SceneDelay); err != nil {
				results = append(results, SceneResult{
					Scene:  key,
					Status: "error",
					Error:  err.Error(),
				})
				continue
			}
		}
		rendered = true

		outName, err := s.GenerateScene(ctx, userID, key, prompt, imagePath)
		if err != nil {
			results = append(results, SceneResult{
				Scene:  key,
				Status: "error",
				Error:  err.Error(),
			})
			continue
		}
		results = append(results, SceneResult{
			Scene:      key,
			Status:     "success",
			OutputFile: outName,
		})
	}

	return results
}

// MergeScenes concatenates the rendered scene videos into the final reel.
// Missing scenes are skipped; no scenes at all is an error.
func (s *Service) MergeScenes(ctx context.Context, userID string) (string, []string, error) {
	lock := s.workspaces.Lock(userID)
	lock.Lock()
	defer lock.Unlock()

	var scenePaths []string
	var sceneNames []string
	for _, key := range models.SceneKeys {
		path, err := s.workspaces.ResolveExisting(userID, SceneVideoName(key))
		if err != nil {
			continue
		}
		scenePaths = append(scenePaths, path)
		sceneNames = append(sceneNames, SceneVideoName(key))
	}
	if len(scenePaths) == 0 {
		return "", nil, errors.NewNoScenesToMergeError()
	}

	outPath, err := s.workspaces.Resolve(userID, MergedVideoName)
	if err != nil {
		return "", nil, err
	}

	_, err = stage(ctx, s, "merge-scenes", func() (string, error) {
		return "", s.media.ConcatScenes(ctx, scenePaths, outPath, s.config.Width, s.config.Height, s.config.FPS)
	})
	if err != nil {
		return "", nil, err
	}

	s.logger.Info("scenes merged", map[string]interface{}{
		"scenes": len(scenePaths),
		"output": MergedVideoName,
	})
	return MergedVideoName, sceneNames, nil
}

// GenerateVoiceover writes an ad script timed to the given video and persists
// it in the workspace so the attach-audio step can reuse it.
func (s *Service) GenerateVoiceover(ctx context.Context, userID, videoName string) (*VoiceoverResult, error) {
	lock := s.workspaces.Lock(userID)
	lock.Lock()
	defer lock.Unlock()

	videoPath, err := s.workspaces.ResolveExisting(userID, videoName)
	if err != nil {
		return nil, err
	}

	return stage(ctx, s, "voiceover-script", func() (*VoiceoverResult, error) {
		duration, err := s.media.Duration(ctx, videoPath)
		if err != nil {
			return nil, err
		}

		script, err := s.prompts.VoiceoverScript(ctx, videoPath, duration)
		if err != nil {
			return nil, err
		}

		scriptPath, err := s.workspaces.Resolve(userID, ScriptName)
		if err != nil {
			return nil, err
		}
		if err := writeFile(scriptPath, script); err != nil {
			return nil, err
		}

		return &VoiceoverResult{
			Script:     script,
			ScriptFile: ScriptName,
			AudioFile:  VoiceoverAudioName,
			Duration:   duration,
		}, nil
	})
}

// AttachAudio synthesizes the script (when given) and muxes the voiceover
// onto the video. With an empty script it reuses the existing audio file.
func (s *Service) AttachAudio(ctx context.Context, userID, videoName, script string) (string, error) {
	lock := s.workspaces.Lock(userID)
	lock.Lock()
	defer lock.Unlock()

	videoPath, err := s.workspaces.ResolveExisting(userID, videoName)
	if err != nil {
		return "", err
	}

	return stage(ctx, s, "attach-audio", func() (string, error) {
		audioPath, err := s.workspaces.Resolve(userID, VoiceoverAudioName)
		if err != nil {
			return "", err
		}

		if script != "" {
			if err := s.speech.Synthesize(ctx, script, audioPath); err != nil {
				return "", err
			}
		} else if _, err := s.workspaces.ResolveExisting(userID, VoiceoverAudioName); err != nil {
			return "", err
		}

		outPath, err := s.workspaces.Resolve(userID, VoicedVideoName)
		if err != nil {
			return "", err
		}
		if err := s.media.AttachAudio(ctx, videoPath, audioPath, outPath); err != nil {
			return "", err
		}
		return VoicedVideoName, nil
	})
}

// GenerateCaptions transcribes the voiced video and writes short word-synced
// SRT cues to srtName. An empty srtName or non-positive maxWords falls back
// to the configured defaults.
func (s *Service) GenerateCaptions(ctx context.Context, userID, videoName, srtName string, maxWords int) (string, error) {
	if srtName == "" {
		srtName = CaptionsName
	}
	if maxWords < 1 {
		maxWords = s.config.MaxWordsPerCue
	}

	lock := s.workspaces.Lock(userID)
	lock.Lock()
	defer lock.Unlock()

	videoPath, err := s.workspaces.ResolveExisting(userID, videoName)
	if err != nil {
		return "", err
	}

	return stage(ctx, s, "captions", func() (string, error) {
		wavPath, err := s.workspaces.Resolve(userID, voiceoverWAVName)
		if err != nil {
			return "", err
		}
		if err := s.media.ExtractAudioWAV(ctx, videoPath, wavPath); err != nil {
			return "", err
		}
		defer s.workspaces.Remove(userID, voiceoverWAVName)

		segments, err := s.transcriber.Transcribe(ctx, wavPath)
		if err != nil {
			return "", err
		}

		srt := captions.BuildSRT(segments, maxWords)
		srtPath, err := s.workspaces.Resolve(userID, srtName)
		if err != nil {
			return "", err
		}
		if err := writeFile(srtPath, srt); err != nil {
			return "", err
		}
		return srtName, nil
	})
}

// BurnCaptions renders the SRT file into the video frames.
func (s *Service) BurnCaptions(ctx context.Context, userID, videoName, srtName string, style *media.CaptionStyle) (string, error) {
	lock := s.workspaces.Lock(userID)
	lock.Lock()
	defer lock.Unlock()

	videoPath, err := s.workspaces.ResolveExisting(userID, videoName)
	if err != nil {
		return "", err
	}
	srtPath, err := s.workspaces.ResolveExisting(userID, srtName)
	if err != nil {
		return "", err
	}
	if _, err := captions.ParseSRT(srtPath); err != nil {
		return "", errors.NewValidationFailedError(fmt.Sprintf("invalid SRT %s: %s", srtName, err))
	}

	burnStyle := s.config.CaptionStyle
	if style != nil {
		burnStyle = *style
	}

	return stage(ctx, s, "burn-captions", func() (string, error) {
		outPath, err := s.workspaces.Resolve(userID, CaptionedVideoName)
		if err != nil {
			return "", err
		}
		if err := s.media.BurnSubtitles(ctx, videoPath, srtPath, outPath, burnStyle); err != nil {
			return "", err
		}
		return CaptionedVideoName, nil
	})
}

func (s *Service) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return errors.NewRequestTimeoutError("render retry wait")
	}
}

// stage wraps one pipeline step with metrics and normalized errors.
func stage[T any](ctx context.Context, s *Service, name string, fn func() (T, error)) (T, error) {
	start := time.Now()
	result, err := fn()
	elapsed := time.Since(start)

	metrics.PipelineStageDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	if s.obs != nil {
		s.obs.RecordStageDuration(ctx, name, elapsed)
	}

	if err != nil {
		stdErr := errors.Normalize(ctx, name, err)
		metrics.PipelineStagesFailed.WithLabelValues(name, string(stdErr.Code)).Inc()
		if s.obs != nil {
			s.obs.RecordStageProcessed(ctx, name, "failed")
		}
		var zero T
		return zero, stdErr
	}

	metrics.PipelineStagesCompleted.WithLabelValues(name).Inc()
	if s.obs != nil {
		s.obs.RecordStageProcessed(ctx, name, "success")
	}
	return result, nil
}

func writeFile(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return errors.NewMediaToolFailedError("workspace", fmt.Errorf("write %s: %w", path, err))
	}
	return nil
}
