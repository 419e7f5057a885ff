// internal/media/ffmpeg.go
package media

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"adreel/internal/common/errors"
	"adreel/internal/common/logger"
)

// CommandRunner executes an external tool and returns its combined output.
// Injectable so tests can assert the exact argument lists.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// DefaultCommandRunner executes external tools with os/exec.
var DefaultCommandRunner CommandRunner = execRunner

// CaptionStyle controls the subtitle burn pass.
type CaptionStyle struct {
	FontName     string
	FontSize     int
	FontColor    string
	OutlineColor string
	OutlineWidth int
	MarginV      int
}

// Runner wraps ffmpeg and ffprobe invocations for the video pipeline.
type Runner struct {
	ffmpegPath  string
	ffprobePath string
	run         CommandRunner
	logger      logger.Logger
}

func NewRunner(ffmpegPath, ffprobePath string, log logger.Logger) *Runner {
	return &Runner{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		run:         execRunner,
		logger:      log.With(map[string]interface{}{"component": "ffmpeg"}),
	}
}

// NewRunnerWithExec returns a Runner backed by a custom CommandRunner.
func NewRunnerWithExec(ffmpegPath, ffprobePath string, run CommandRunner, log logger.Logger) *Runner {
	r := NewRunner(ffmpegPath, ffprobePath, log)
	r.run = run
	return r
}

// Duration returns the container duration of a media file in seconds.
func (r *Runner) Duration(ctx context.Context, path string) (float64, error) {
	out, err := r.run(ctx, r.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		path,
	)
	if err != nil {
		return 0, errors.NewMediaToolFailedError("ffprobe", fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out))))
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, errors.NewMediaToolFailedError("ffprobe", fmt.Errorf("unparseable duration %q", strings.TrimSpace(string(out))))
	}
	return duration, nil
}

// ConcatScenes joins the scene clips into one vertical video. Every clip is
// rescaled to the target frame first so mixed render sizes cannot break the
// concat filter.
func (r *Runner) ConcatScenes(ctx context.Context, scenePaths []string, outPath string, width, height, fps int) error {
	if len(scenePaths) == 0 {
		return errors.NewNoScenesToMergeError()
	}

	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	for _, path := range scenePaths {
		args = append(args, "-i", path)
	}

	var filter strings.Builder
	for i := range scenePaths {
		fmt.Fprintf(&filter, "[%d:v]scale=%d:%d,setsar=1[v%d];", i, width, height, i)
	}
	for i := range scenePaths {
		fmt.Fprintf(&filter, "[v%d]", i)
	}
	fmt.Fprintf(&filter, "concat=n=%d:v=1:a=0[v]", len(scenePaths))

	args = append(args,
		"-filter_complex", filter.String(),
		"-map", "[v]",
		"-r", strconv.Itoa(fps),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		outPath,
	)

	return r.runFFmpeg(ctx, "concat", args)
}

// AttachAudio muxes the voiceover onto the merged video. The audio track is
// padded with silence so a short voiceover never truncates the video.
func (r *Runner) AttachAudio(ctx context.Context, videoPath, audioPath, outPath string) error {
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-af", "apad",
		"-shortest",
		outPath,
	}
	return r.runFFmpeg(ctx, "attach-audio", args)
}

// BurnSubtitles renders the SRT cues into the video frames.
func (r *Runner) BurnSubtitles(ctx context.Context, videoPath, srtPath, outPath string, style CaptionStyle) error {
	forceStyle := fmt.Sprintf(
		"FontName=%s,FontSize=%d,PrimaryColour=%s,OutlineColour=%s,BorderStyle=1,Outline=%d,Alignment=2,MarginV=%d",
		style.FontName, style.FontSize,
		assColour(style.FontColor), assColour(style.OutlineColor),
		style.OutlineWidth, style.MarginV,
	)

	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", videoPath,
		"-vf", fmt.Sprintf("subtitles=%s:force_style='%s'", escapeFilterPath(srtPath), forceStyle),
		"-c:v", "libx264",
		"-c:a", "copy",
		outPath,
	}
	return r.runFFmpeg(ctx, "burn-subtitles", args)
}

// ExtractAudioWAV pulls a mono 16kHz PCM track out of the video, the input
// format the transcriber expects.
func (r *Runner) ExtractAudioWAV(ctx context.Context, videoPath, wavPath string) error {
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", videoPath,
		"-vn", "-sn", "-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		wavPath,
	}
	return r.runFFmpeg(ctx, "extract-audio", args)
}

func (r *Runner) runFFmpeg(ctx context.Context, operation string, args []string) error {
	r.logger.Debug("running ffmpeg", map[string]interface{}{
		"operation": operation,
		"args":      strings.Join(args, " "),
	})

	out, err := r.run(ctx, r.ffmpegPath, args...)
	if err != nil {
		if ctx.Err() != nil {
			return errors.NewRequestTimeoutError(operation)
		}
		return errors.NewMediaToolFailedError("ffmpeg "+operation, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out))))
	}
	return nil
}

// assColour converts a named colour to the &HAABBGGRR form libass expects.
// Unknown names fall back to white.
func assColour(name string) string {
	switch strings.ToLower(name) {
	case "black":
		return "&H00000000"
	case "white":
		return "&H00FFFFFF"
	case "red":
		return "&H000000FF"
	case "green":
		return "&H0000FF00"
	case "blue":
		return "&H00FF0000"
	case "yellow":
		return "&H0000FFFF"
	default:
		return "&H00FFFFFF"
	}
}

// escapeFilterPath escapes the characters the ffmpeg filter parser treats as
// delimiters inside a subtitles= argument.
func escapeFilterPath(path string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`:`, `\:`,
		`'`, `\'`,
	)
	return replacer.Replace(path)
}
