// internal/server/handlers_pipeline.go
package server

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	"adreel/internal/common/errors"
	"adreel/internal/models"
	"adreel/internal/pipeline"
)

// maxUploadBytes caps multipart parsing of scene image uploads.
const maxUploadBytes = 32 << 20

func tempSceneImageName(key models.SceneKey) string {
	return "temp_" + string(key) + ".png"
}

// saveSceneUpload stores an uploaded scene image in the user's workspace and
// returns its path.
func (s *Server) saveSceneUpload(userID string, key models.SceneKey, file multipart.File) (string, error) {
	defer file.Close()

	path, err := s.pipeline.Workspaces().Resolve(userID, tempSceneImageName(key))
	if err != nil {
		return "", err
	}

	out, err := os.Create(path)
	if err != nil {
		return "", errors.NewValidationFailedError(fmt.Sprintf("cannot store upload for %s", key))
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		return "", errors.NewValidationFailedError(fmt.Sprintf("cannot store upload for %s", key))
	}
	return path, nil
}

// sceneImagePath returns the uploaded image for a scene, falling back to a
// previously stored upload in the workspace.
func (s *Server) sceneImagePath(r *http.Request, userID string, key models.SceneKey) (string, error) {
	if file, _, err := r.FormFile(string(key)); err == nil {
		return s.saveSceneUpload(userID, key, file)
	}
	return s.pipeline.Workspaces().ResolveExisting(userID, tempSceneImageName(key))
}

func (s *Server) handleGenerateScenePrompts(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, r, s.logger, "generate-scene-prompts",
			errors.NewValidationFailedError("expected multipart form with scene1..scene4 images"))
		return
	}

	images := make(map[models.SceneKey]string, len(models.SceneKeys))
	for _, key := range models.SceneKeys {
		file, _, err := r.FormFile(string(key))
		if err != nil {
			writeError(w, r, s.logger, "generate-scene-prompts",
				errors.NewValidationFailedError(fmt.Sprintf("missing image for %s; upload scene1..scene4", key)))
			return
		}
		path, err := s.saveSceneUpload(session.UserID, key, file)
		if err != nil {
			writeError(w, r, s.logger, "generate-scene-prompts", err)
			return
		}
		images[key] = path
	}

	scenes, err := s.pipeline.GenerateScenePrompts(r.Context(), session.UserID, images)
	if err != nil {
		writeError(w, r, s.logger, "generate-scene-prompts", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"scenes":  scenes,
	})
}

func (s *Server) handleGenerateScene(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)

	var sceneKey, prompt string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, r, s.logger, "generate-scene", errors.NewValidationFailedError("invalid multipart form"))
			return
		}
		sceneKey = r.FormValue("scene_key")
		prompt = r.FormValue("prompt")
	} else {
		var body struct {
			SceneKey string `json:"scene_key"`
			Prompt   string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, r, s.logger, "generate-scene", errors.NewValidationFailedError("request body must be JSON or multipart form"))
			return
		}
		sceneKey = body.SceneKey
		prompt = body.Prompt
	}

	if sceneKey == "" || prompt == "" {
		writeError(w, r, s.logger, "generate-scene", errors.NewValidationFailedError("scene_key and prompt are required"))
		return
	}
	if !models.IsValidSceneKey(sceneKey) {
		writeError(w, r, s.logger, "generate-scene", errors.NewValidationFailedError(fmt.Sprintf("unknown scene_key %q", sceneKey)))
		return
	}
	key := models.SceneKey(sceneKey)

	imagePath, err := s.sceneImagePath(r, session.UserID, key)
	if err != nil {
		writeError(w, r, s.logger, "generate-scene", err)
		return
	}

	outName, err := s.pipeline.GenerateScene(r.Context(), session.UserID, key, prompt, imagePath)
	if err != nil {
		writeError(w, r, s.logger, "generate-scene", err)
		return
	}

	s.pipeline.Workspaces().Remove(session.UserID, tempSceneImageName(key))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"output_file": outName,
	})
}

func (s *Server) handleGenerateAllScenes(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)

	var prompts models.ScenePrompts
	isMultipart := strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")

	if isMultipart {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, r, s.logger, "generate-all-scenes", errors.NewValidationFailedError("invalid multipart form"))
			return
		}
		if raw := r.FormValue("scenes"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &prompts); err != nil {
				writeError(w, r, s.logger, "generate-all-scenes", errors.NewValidationFailedError("scenes field must be a JSON object"))
				return
			}
		}
	} else {
		var body struct {
			Scenes models.ScenePrompts `json:"scenes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			prompts = body.Scenes
		}
	}

	images := make(map[models.SceneKey]string, len(models.SceneKeys))
	for _, key := range models.SceneKeys {
		path, err := s.sceneImagePath(r, session.UserID, key)
		if err != nil {
			continue
		}
		images[key] = path
	}

	// Without prompts, generate them from the uploaded images first.
	if len(prompts) == 0 {
		if len(images) < len(models.SceneKeys) {
			writeError(w, r, s.logger, "generate-all-scenes",
				errors.NewValidationFailedError("provide a scenes JSON object or upload all 4 images"))
			return
		}
		generated, err := s.pipeline.GenerateScenePrompts(r.Context(), session.UserID, images)
		if err != nil {
			writeError(w, r, s.logger, "generate-all-scenes", err)
			return
		}
		prompts = generated
	}

	results := s.pipeline.GenerateAllScenes(r.Context(), session.UserID, prompts, images)
	for _, key := range models.SceneKeys {
		s.pipeline.Workspaces().Remove(session.UserID, tempSceneImageName(key))
	}

	successful := 0
	for _, result := range results {
		if result.Status == "success" {
			successful++
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":          successful > 0,
		"results":          results,
		"successful_count": successful,
		"total_count":      len(results),
	})
}

func (s *Server) handleMergeScenes(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)

	outName, merged, err := s.pipeline.MergeScenes(r.Context(), session.UserID)
	if err != nil {
		writeError(w, r, s.logger, "merge-scenes", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"output_file":   outName,
		"merged_scenes": merged,
		"scene_count":   len(merged),
	})
}

func (s *Server) handleGenerateVoiceover(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)

	videoName := pipeline.MergedVideoName
	var body struct {
		VideoPath string `json:"video_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.VideoPath != "" {
		videoName = body.VideoPath
	}

	result, err := s.pipeline.GenerateVoiceover(r.Context(), session.UserID, videoName)
	if err != nil {
		writeError(w, r, s.logger, "generate-voiceover", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"script":      result.Script,
		"script_file": result.ScriptFile,
		"audio_file":  result.AudioFile,
		"duration":    result.Duration,
	})
}

func (s *Server) handleAttachAudio(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)

	videoName := pipeline.MergedVideoName
	var body struct {
		VideoPath string `json:"video_path"`
		Script    string `json:"script"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.VideoPath != "" {
		videoName = body.VideoPath
	}

	outName, err := s.pipeline.AttachAudio(r.Context(), session.UserID, videoName, body.Script)
	if err != nil {
		writeError(w, r, s.logger, "attach-audio", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"output_file": outName,
	})
}

func (s *Server) handleGenerateCaptions(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)

	videoName := pipeline.VoicedVideoName
	var body struct {
		VideoPath string `json:"video_path"`
		OutputSRT string `json:"output_srt"`
		MaxWords  int    `json:"max_words"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.VideoPath != "" {
		videoName = body.VideoPath
	}

	srtName, err := s.pipeline.GenerateCaptions(r.Context(), session.UserID, videoName, body.OutputSRT, body.MaxWords)
	if err != nil {
		writeError(w, r, s.logger, "generate-captions", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"srt_file": srtName,
	})
}

func (s *Server) handleBurnCaptions(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)

	var body struct {
		VideoPath   string `json:"video_path"`
		SRTPath     string `json:"srt_path"`
		FontName    string `json:"font_name"`
		FontSize    int    `json:"font_size"`
		FontColor   string `json:"font_color"`
		StrokeColor string `json:"stroke_color"`
		StrokeWidth int    `json:"stroke_width"`
		MarginV     int    `json:"margin_v"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.VideoPath == "" || body.SRTPath == "" {
		writeError(w, r, s.logger, "burn-captions",
			errors.NewValidationFailedError("video_path and srt_path are required"))
		return
	}

	style := s.captionStyle
	if body.FontName != "" {
		style.FontName = body.FontName
	}
	if body.FontSize > 0 {
		style.FontSize = body.FontSize
	}
	if body.FontColor != "" {
		style.FontColor = body.FontColor
	}
	if body.StrokeColor != "" {
		style.OutlineColor = body.StrokeColor
	}
	if body.StrokeWidth > 0 {
		style.OutlineWidth = body.StrokeWidth
	}
	if body.MarginV > 0 {
		style.MarginV = body.MarginV
	}

	outName, err := s.pipeline.BurnCaptions(r.Context(), session.UserID, body.VideoPath, body.SRTPath, &style)
	if err != nil {
		writeError(w, r, s.logger, "burn-captions", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"output_file": outName,
	})
}
