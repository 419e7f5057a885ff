// internal/server/handlers_files.go
package server

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
)

// leaderboardLimit caps how many rows the leaderboard returns.
const leaderboardLimit = 100

// contentTypeForName covers the artifact extensions the pipeline produces.
// The builtin mime table has no .mp4 or .srt entries on a bare system.
func contentTypeForName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".srt":
		return "application/x-subrip"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	name := r.PathValue("filename")

	path, err := s.pipeline.Workspaces().ResolveExisting(session.UserID, name)
	if err != nil {
		writeError(w, r, s.logger, "download", err)
		return
	}

	w.Header().Set("Content-Type", contentTypeForName(name))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)

	files, err := s.pipeline.Workspaces().ListFiles(session.UserID)
	if err != nil {
		writeError(w, r, s.logger, "list-files", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"files": files})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := s.users.Leaderboard(r.Context(), leaderboardLimit)
	if err != nil {
		writeError(w, r, s.logger, "leaderboard", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"leaderboard": entries,
	})
}

func (s *Server) handleIncrementVideoCount(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)

	count, err := s.users.IncrementVideoCount(r.Context(), session.UserID)
	if err != nil {
		writeError(w, r, s.logger, "increment-video-count", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"video_count": count,
	})
}
