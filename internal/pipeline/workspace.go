// internal/pipeline/workspace.go
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"adreel/internal/common/errors"
	"adreel/internal/models"
)

// Artifact names inside a user workspace. The pipeline stages write and read
// these fixed names so each stage can be re-run independently.
const (
	MergedVideoName    = "final_video.mp4"
	VoicedVideoName    = "final_video_with_voice.mp4"
	CaptionedVideoName = "final_video_with_voice_captions.mp4"
	VoiceoverAudioName = "voiceover.mp3"
	CaptionsName       = "captions.srt"
	ScriptName         = "generated_script.txt"

	voiceoverWAVName = "voiceover_audio.wav"
)

// SceneVideoName returns the workspace file name for a rendered scene.
func SceneVideoName(key models.SceneKey) string {
	return string(key) + ".mp4"
}

// SafeImageName returns the workspace file name for a vertical-converted
// first frame.
func SafeImageName(key models.SceneKey) string {
	return "safe_" + string(key) + ".png"
}

// Workspaces hands out per-user scratch directories under the temp root and
// serializes access to each of them. Concurrent requests for the same user
// would otherwise race on the fixed artifact names.
type Workspaces struct {
	baseDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewWorkspaces(baseDir string) *Workspaces {
	return &Workspaces{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Lock returns the mutex guarding one user's workspace.
func (w *Workspaces) Lock(userID string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()

	lock, ok := w.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		w.locks[userID] = lock
	}
	return lock
}

// Dir returns the user's workspace directory, creating it on first use.
func (w *Workspaces) Dir(userID string) (string, error) {
	dir := filepath.Join(w.baseDir, userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.NewMediaToolFailedError("workspace", err)
	}
	return dir, nil
}

// Resolve maps a bare file name to its path inside the user's workspace.
// Names with path separators or traversal elements are rejected.
func (w *Workspaces) Resolve(userID, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
		return "", errors.NewValidationFailedError(fmt.Sprintf("invalid file name %q", name))
	}

	dir, err := w.Dir(userID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// ResolveExisting is Resolve plus an existence check.
func (w *Workspaces) ResolveExisting(userID, name string) (string, error) {
	path, err := w.Resolve(userID, name)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		return "", errors.NewFileNotFoundError(name)
	}
	return path, nil
}

// ListFiles returns the files currently in the user's workspace, newest
// first.
func (w *Workspaces) ListFiles(userID string) ([]models.FileInfo, error) {
	dir, err := w.Dir(userID)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.NewMediaToolFailedError("workspace", err)
	}

	files := make([]models.FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, models.FileInfo{
			Name:       entry.Name(),
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModifiedAt.After(files[j].ModifiedAt)
	})
	return files, nil
}

// Remove deletes a workspace file if it exists.
func (w *Workspaces) Remove(userID, name string) {
	path, err := w.Resolve(userID, name)
	if err != nil {
		return
	}
	os.Remove(path)
}
