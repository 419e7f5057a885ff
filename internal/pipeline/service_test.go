package pipeline

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adreel/internal/captions"
	commonerrors "adreel/internal/common/errors"
	"adreel/internal/common/logger"
	"adreel/internal/media"
	"adreel/internal/models"
)

type fakePrompts struct {
	prompts models.ScenePrompts
	script  string
	err     error

	gotImages   map[models.SceneKey]string
	gotDuration float64
}

func (f *fakePrompts) ScenePrompts(ctx context.Context, images map[models.SceneKey]string) (models.ScenePrompts, error) {
	f.gotImages = images
	return f.prompts, f.err
}

func (f *fakePrompts) VoiceoverScript(ctx context.Context, videoPath string, duration float64) (string, error) {
	f.gotDuration = duration
	return f.script, f.err
}

type fakeRender struct {
	errs     []error
	attempts int
	rotated  int
	rotateOK bool
}

func (f *fakeRender) Generate(ctx context.Context, prompt, imagePath, outPath string) error {
	f.attempts++
	var err error
	if f.attempts <= len(f.errs) {
		err = f.errs[f.attempts-1]
	}
	if err == nil {
		return os.WriteFile(outPath, []byte("video"), 0o644)
	}
	return err
}

func (f *fakeRender) RotateKey() bool {
	f.rotated++
	return f.rotateOK
}

type fakeSpeech struct {
	gotScript string
	err       error
}

func (f *fakeSpeech) Synthesize(ctx context.Context, script, outPath string) error {
	f.gotScript = script
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outPath, []byte("mp3"), 0o644)
}

type fakeTranscriber struct {
	segments []captions.Segment
	err      error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string) ([]captions.Segment, error) {
	return f.segments, f.err
}

type fakeMedia struct {
	duration     float64
	durationErr  error
	concatPaths  []string
	attachVideo  string
	attachAudio  string
	burnStyle    media.CaptionStyle
	extractedWAV string
}

func (f *fakeMedia) Duration(ctx context.Context, path string) (float64, error) {
	return f.duration, f.durationErr
}

func (f *fakeMedia) ConcatScenes(ctx context.Context, scenePaths []string, outPath string, width, height, fps int) error {
	f.concatPaths = scenePaths
	return os.WriteFile(outPath, []byte("merged"), 0o644)
}

func (f *fakeMedia) AttachAudio(ctx context.Context, videoPath, audioPath, outPath string) error {
	f.attachVideo = videoPath
	f.attachAudio = audioPath
	return os.WriteFile(outPath, []byte("voiced"), 0o644)
}

func (f *fakeMedia) BurnSubtitles(ctx context.Context, videoPath, srtPath, outPath string, style media.CaptionStyle) error {
	f.burnStyle = style
	return os.WriteFile(outPath, []byte("captioned"), 0o644)
}

func (f *fakeMedia) ExtractAudioWAV(ctx context.Context, videoPath, wavPath string) error {
	f.extractedWAV = wavPath
	return os.WriteFile(wavPath, []byte("wav"), 0o644)
}

type testEnv struct {
	service     *Service
	workspaces  *Workspaces
	prompts     *fakePrompts
	render      *fakeRender
	speech      *fakeSpeech
	transcriber *fakeTranscriber
	media       *fakeMedia
}

func newTestEnv(t *testing.T) *testEnv {
	env := &testEnv{
		workspaces:  NewWorkspaces(t.TempDir()),
		prompts:     &fakePrompts{},
		render:      &fakeRender{},
		speech:      &fakeSpeech{},
		transcriber: &fakeTranscriber{},
		media:       &fakeMedia{duration: 16},
	}
	env.service = NewService(
		&Config{
			Width:          432,
			Height:         768,
			FPS:            30,
			MaxRetries:     3,
			RetryDelay:     time.Millisecond,
			MaxConcurrent:  2,
			MaxWordsPerCue: 3,
			CaptionStyle: media.CaptionStyle{
				FontName: "Arial", FontSize: 40, FontColor: "white",
				OutlineColor: "black", OutlineWidth: 2, MarginV: 60,
			},
		},
		env.workspaces,
		env.prompts,
		env.render,
		env.speech,
		env.transcriber,
		env.media,
		nil,
		logger.NewTestLogger(t),
	)
	return env
}

func writeScenePNG(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 120, G: 60, B: 200, A: 255})
		}
	}
	path := filepath.Join(dir, "upload.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func seedWorkspaceFile(t *testing.T, w *Workspaces, userID, name, content string) string {
	t.Helper()
	path, err := w.Resolve(userID, name)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestGenerateScene(t *testing.T) {
	env := newTestEnv(t)
	imagePath := writeScenePNG(t, t.TempDir())

	outName, err := env.service.GenerateScene(context.Background(), "user-1", models.Scene1, "a cinematic shot", imagePath)
	require.NoError(t, err)
	assert.Equal(t, "scene1.mp4", outName)
	assert.Equal(t, 1, env.render.attempts)

	_, err = env.workspaces.ResolveExisting("user-1", "scene1.mp4")
	assert.NoError(t, err)

	// The vertical-safe intermediate is cleaned up after the render.
	_, err = env.workspaces.ResolveExisting("user-1", "safe_scene1.png")
	assert.Error(t, err)
}

func TestGenerateSceneRetriesOnRateLimit(t *testing.T) {
	env := newTestEnv(t)
	env.render.errs = []error{
		commonerrors.NewRenderRateLimitedError("Too Many Attempts."),
		commonerrors.NewRenderRateLimitedError("Too Many Attempts."),
	}
	env.render.rotateOK = true
	imagePath := writeScenePNG(t, t.TempDir())

	outName, err := env.service.GenerateScene(context.Background(), "user-1", models.Scene2, "p", imagePath)
	require.NoError(t, err)
	assert.Equal(t, "scene2.mp4", outName)
	assert.Equal(t, 3, env.render.attempts)
	assert.Equal(t, 2, env.render.rotated)
}

func TestGenerateSceneExhaustsRetries(t *testing.T) {
	env := newTestEnv(t)
	env.render.errs = []error{
		commonerrors.NewSceneRenderFailedError("scene3", assert.AnError),
		commonerrors.NewSceneRenderFailedError("scene3", assert.AnError),
		commonerrors.NewSceneRenderFailedError("scene3", assert.AnError),
	}
	imagePath := writeScenePNG(t, t.TempDir())

	_, err := env.service.GenerateScene(context.Background(), "user-1", models.Scene3, "p", imagePath)
	require.Error(t, err)
	assert.True(t, commonerrors.IsCode(err, commonerrors.ErrCodeSceneRenderFailed))
	assert.Equal(t, 3, env.render.attempts)
}

func TestGenerateAllScenesMixedResults(t *testing.T) {
	env := newTestEnv(t)
	imagePath := writeScenePNG(t, t.TempDir())

	prompts := models.ScenePrompts{
		models.Scene1: "first",
		models.Scene2: "second",
	}
	images := map[models.SceneKey]string{
		models.Scene1: imagePath,
	}

	results := env.service.GenerateAllScenes(context.Background(), "user-1", prompts, images)
	require.Len(t, results, 4)

	assert.Equal(t, "success", results[0].Status)
	assert.Equal(t, "scene1.mp4", results[0].OutputFile)
	assert.Equal(t, "skipped", results[1].Status)
	assert.Equal(t, "skipped", results[2].Status)
	assert.Equal(t, "skipped", results[3].Status)
}

func TestGenerateAllScenesReportsErrorStatus(t *testing.T) {
	env := newTestEnv(t)
	env.render.errs = []error{
		commonerrors.NewSceneRenderFailedError("scene1", assert.AnError),
		commonerrors.NewSceneRenderFailedError("scene1", assert.AnError),
		commonerrors.NewSceneRenderFailedError("scene1", assert.AnError),
	}
	imagePath := writeScenePNG(t, t.TempDir())

	results := env.service.GenerateAllScenes(context.Background(), "user-1",
		models.ScenePrompts{models.Scene1: "first"},
		map[models.SceneKey]string{models.Scene1: imagePath})
	require.Len(t, results, 4)

	assert.Equal(t, "error", results[0].Status)
	assert.NotEmpty(t, results[0].Error)
	assert.Equal(t, "skipped", results[1].Status)
}

func TestGenerateAllScenesSpacesConsecutiveRenders(t *testing.T) {
	env := newTestEnv(t)
	env.service.config.SceneDelay = 40 * time.Millisecond
	imagePath := writeScenePNG(t, t.TempDir())

	prompts := models.ScenePrompts{
		models.Scene1: "first",
		models.Scene2: "second",
	}
	images := map[models.SceneKey]string{
		models.Scene1: imagePath,
		models.Scene2: imagePath,
	}

	start := time.Now()
	results := env.service.GenerateAllScenes(context.Background(), "user-1", prompts, images)
	elapsed := time.Since(start)

	require.Len(t, results, 4)
	assert.Equal(t, "success", results[0].Status)
	assert.Equal(t, "success", results[1].Status)
	// One gap between the two renders, none after the last.
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestMergeScenes(t *testing.T) {
	env := newTestEnv(t)
	seedWorkspaceFile(t, env.workspaces, "user-1", "scene1.mp4", "v1")
	seedWorkspaceFile(t, env.workspaces, "user-1", "scene3.mp4", "v3")

	outName, merged, err := env.service.MergeScenes(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, MergedVideoName, outName)
	assert.Equal(t, []string{"scene1.mp4", "scene3.mp4"}, merged)
	assert.Len(t, env.media.concatPaths, 2)

	_, err = env.workspaces.ResolveExisting("user-1", MergedVideoName)
	assert.NoError(t, err)
}

func TestMergeScenesNoScenes(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.service.MergeScenes(context.Background(), "user-1")
	require.Error(t, err)
	assert.True(t, commonerrors.IsCode(err, commonerrors.ErrCodeNoScenesToMerge))
}

func TestGenerateVoiceover(t *testing.T) {
	env := newTestEnv(t)
	env.media.duration = 16.2
	env.prompts.script = "Meet the future of sound."
	seedWorkspaceFile(t, env.workspaces, "user-1", MergedVideoName, "video")

	result, err := env.service.GenerateVoiceover(context.Background(), "user-1", MergedVideoName)
	require.NoError(t, err)
	assert.Equal(t, "Meet the future of sound.", result.Script)
	assert.Equal(t, ScriptName, result.ScriptFile)
	assert.Equal(t, VoiceoverAudioName, result.AudioFile)
	assert.InDelta(t, 16.2, result.Duration, 0.001)
	assert.InDelta(t, 16.2, env.prompts.gotDuration, 0.001)

	// The script is persisted as a workspace artifact.
	scriptPath, err := env.workspaces.ResolveExisting("user-1", ScriptName)
	require.NoError(t, err)
	data, err := os.ReadFile(scriptPath)
	require.NoError(t, err)
	assert.Equal(t, "Meet the future of sound.", string(data))
}

func TestGenerateVoiceoverMissingVideo(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.GenerateVoiceover(context.Background(), "user-1", MergedVideoName)
	require.Error(t, err)
	assert.True(t, commonerrors.IsCode(err, commonerrors.ErrCodeFileNotFound))
}

func TestAttachAudioWithScript(t *testing.T) {
	env := newTestEnv(t)
	seedWorkspaceFile(t, env.workspaces, "user-1", MergedVideoName, "video")

	outName, err := env.service.AttachAudio(context.Background(), "user-1", MergedVideoName, "Buy it now")
	require.NoError(t, err)
	assert.Equal(t, VoicedVideoName, outName)
	assert.Equal(t, "Buy it now", env.speech.gotScript)
	assert.Contains(t, env.media.attachAudio, VoiceoverAudioName)

	_, err = env.workspaces.ResolveExisting("user-1", VoicedVideoName)
	assert.NoError(t, err)
}

func TestAttachAudioReusesExistingAudio(t *testing.T) {
	env := newTestEnv(t)
	seedWorkspaceFile(t, env.workspaces, "user-1", MergedVideoName, "video")
	seedWorkspaceFile(t, env.workspaces, "user-1", VoiceoverAudioName, "mp3")

	outName, err := env.service.AttachAudio(context.Background(), "user-1", MergedVideoName, "")
	require.NoError(t, err)
	assert.Equal(t, VoicedVideoName, outName)
	assert.Empty(t, env.speech.gotScript)
}

func TestAttachAudioMissingAudio(t *testing.T) {
	env := newTestEnv(t)
	seedWorkspaceFile(t, env.workspaces, "user-1", MergedVideoName, "video")

	_, err := env.service.AttachAudio(context.Background(), "user-1", MergedVideoName, "")
	require.Error(t, err)
	assert.True(t, commonerrors.IsCode(err, commonerrors.ErrCodeFileNotFound))
}

func TestGenerateCaptions(t *testing.T) {
	env := newTestEnv(t)
	seedWorkspaceFile(t, env.workspaces, "user-1", VoicedVideoName, "video")
	env.transcriber.segments = []captions.Segment{
		{Words: []captions.Word{
			{Text: " Meet", Start: 0, End: 0.4},
			{Text: " the", Start: 0.4, End: 0.6},
			{Text: " future", Start: 0.6, End: 1.1},
			{Text: " now", Start: 1.1, End: 1.5},
		}},
	}

	srtName, err := env.service.GenerateCaptions(context.Background(), "user-1", VoicedVideoName, "", 0)
	require.NoError(t, err)
	assert.Equal(t, CaptionsName, srtName)

	srtPath, err := env.workspaces.ResolveExisting("user-1", CaptionsName)
	require.NoError(t, err)
	data, err := os.ReadFile(srtPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Meet the future")
	assert.Contains(t, string(data), "00:00:00,000 --> 00:00:01,100")

	// The intermediate WAV is removed after transcription.
	_, err = env.workspaces.ResolveExisting("user-1", voiceoverWAVName)
	assert.Error(t, err)
}

func TestGenerateCaptionsMaxWordsOverride(t *testing.T) {
	env := newTestEnv(t)
	seedWorkspaceFile(t, env.workspaces, "user-1", VoicedVideoName, "video")
	env.transcriber.segments = []captions.Segment{
		{Words: []captions.Word{
			{Text: " Meet", Start: 0, End: 0.4},
			{Text: " the", Start: 0.4, End: 0.6},
			{Text: " future", Start: 0.6, End: 1.1},
			{Text: " now", Start: 1.1, End: 1.5},
		}},
	}

	srtName, err := env.service.GenerateCaptions(context.Background(), "user-1", VoicedVideoName, "wide.srt", 2)
	require.NoError(t, err)
	assert.Equal(t, "wide.srt", srtName)

	srtPath, err := env.workspaces.ResolveExisting("user-1", "wide.srt")
	require.NoError(t, err)
	cues, err := captions.ParseSRT(srtPath)
	require.NoError(t, err)
	require.Len(t, cues, 2)
	assert.Equal(t, "Meet the", cues[0].Text)
	assert.Equal(t, "future now", cues[1].Text)
}

func TestBurnCaptions(t *testing.T) {
	env := newTestEnv(t)
	seedWorkspaceFile(t, env.workspaces, "user-1", VoicedVideoName, "video")
	seedWorkspaceFile(t, env.workspaces, "user-1", CaptionsName, "1\n00:00:00,000 --> 00:00:01,000\nhi\n")

	outName, err := env.service.BurnCaptions(context.Background(), "user-1", VoicedVideoName, CaptionsName, nil)
	require.NoError(t, err)
	assert.Equal(t, CaptionedVideoName, outName)
	assert.Equal(t, 40, env.media.burnStyle.FontSize)
}

func TestBurnCaptionsStyleOverride(t *testing.T) {
	env := newTestEnv(t)
	seedWorkspaceFile(t, env.workspaces, "user-1", VoicedVideoName, "video")
	seedWorkspaceFile(t, env.workspaces, "user-1", CaptionsName, "1\n00:00:00,000 --> 00:00:01,000\nhi\n")

	style := &media.CaptionStyle{FontName: "Impact", FontSize: 52, FontColor: "yellow", OutlineColor: "black", OutlineWidth: 3, MarginV: 80}
	_, err := env.service.BurnCaptions(context.Background(), "user-1", VoicedVideoName, CaptionsName, style)
	require.NoError(t, err)
	assert.Equal(t, "Impact", env.media.burnStyle.FontName)
	assert.Equal(t, 52, env.media.burnStyle.FontSize)
}

func TestBurnCaptionsRejectsMalformedSRT(t *testing.T) {
	env := newTestEnv(t)
	seedWorkspaceFile(t, env.workspaces, "user-1", VoicedVideoName, "video")
	seedWorkspaceFile(t, env.workspaces, "user-1", CaptionsName, "this is not a subtitle file")

	_, err := env.service.BurnCaptions(context.Background(), "user-1", VoicedVideoName, CaptionsName, nil)
	require.Error(t, err)
	assert.True(t, commonerrors.IsCode(err, commonerrors.ErrCodeValidationFailed))
	// ffmpeg is never invoked for a bad SRT.
	assert.Empty(t, env.media.burnStyle.FontName)
}

func TestWorkspacesResolveRejectsTraversal(t *testing.T) {
	w := NewWorkspaces(t.TempDir())

	for _, name := range []string{"", "../etc/passwd", "a/b.mp4", "..", "dir/../../x"} {
		_, err := w.Resolve("user-1", name)
		require.Error(t, err, "name %q", name)
		assert.True(t, commonerrors.IsCode(err, commonerrors.ErrCodeValidationFailed))
	}
}

func TestWorkspacesListFiles(t *testing.T) {
	w := NewWorkspaces(t.TempDir())
	seedFile := func(name string) {
		path, err := w.Resolve("user-1", name)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}
	seedFile("scene1.mp4")
	seedFile("final_video.mp4")

	files, err := w.ListFiles("user-1")
	require.NoError(t, err)
	require.Len(t, files, 2)
	names := []string{files[0].Name, files[1].Name}
	assert.ElementsMatch(t, []string{"scene1.mp4", "final_video.mp4"}, names)
	assert.Equal(t, int64(1), files[0].SizeBytes)

	// Another user sees an empty workspace.
	others, err := w.ListFiles("user-2")
	require.NoError(t, err)
	assert.Empty(t, others)
}
