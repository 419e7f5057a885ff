// internal/server/server.go
package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"adreel/internal/auth"
	"adreel/internal/common/config"
	"adreel/internal/common/logger"
	"adreel/internal/media"
	"adreel/internal/pipeline"
	"adreel/internal/store"
)

// Server wires the HTTP API over the auth, store and pipeline services.
type Server struct {
	auth           *auth.Service
	users          *store.UserRepository
	pipeline       *pipeline.Service
	logger         logger.Logger
	requestTimeout time.Duration
	sessionTTL     time.Duration
	captionStyle   media.CaptionStyle

	mux *http.ServeMux
}

func New(cfg *config.Config, authService *auth.Service, users *store.UserRepository, pipelineService *pipeline.Service, log logger.Logger) *Server {
	s := &Server{
		auth:           authService,
		users:          users,
		pipeline:       pipelineService,
		logger:         log.With(map[string]interface{}{"component": "server"}),
		requestTimeout: config.GetDuration(cfg.Server.RequestTimeout),
		sessionTTL:     config.GetDuration(cfg.Auth.SessionTTL),
		captionStyle: media.CaptionStyle{
			FontName:     cfg.Captions.FontName,
			FontSize:     cfg.Captions.FontSize,
			FontColor:    cfg.Captions.FontColor,
			OutlineColor: cfg.Captions.OutlineColor,
			OutlineWidth: cfg.Captions.OutlineWidth,
			MarginV:      cfg.Captions.MarginV,
		},
		mux: http.NewServeMux(),
	}
	s.routes()
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.withRecovery(s.mux)
}

func (s *Server) routes() {
	s.handle("GET /api/health", "health", http.HandlerFunc(s.handleHealth))
	s.mux.Handle("GET /metrics", promhttp.Handler())

	// Auth
	s.handle("POST /api/signup", "signup", http.HandlerFunc(s.handleSignup))
	s.handle("POST /api/login", "login", http.HandlerFunc(s.handleLogin))
	s.handle("POST /api/logout", "logout", http.HandlerFunc(s.handleLogout))
	// /api/me reports the authentication state, so it cannot sit behind the
	// auth middleware: a missing session is a valid answer, not a 401.
	s.handle("GET /api/me", "me", http.HandlerFunc(s.handleMe))

	// Pipeline. These block on external renders, so they carry the request
	// timeout in addition to auth.
	s.pipelineRoute("POST /api/generate-scene-prompts", "generate-scene-prompts", s.handleGenerateScenePrompts)
	s.pipelineRoute("POST /api/generate-scene", "generate-scene", s.handleGenerateScene)
	s.pipelineRoute("POST /api/generate-all-scenes", "generate-all-scenes", s.handleGenerateAllScenes)
	s.pipelineRoute("POST /api/merge-scenes", "merge-scenes", s.handleMergeScenes)
	s.pipelineRoute("POST /api/generate-voiceover", "generate-voiceover", s.handleGenerateVoiceover)
	s.pipelineRoute("POST /api/attach-audio", "attach-audio", s.handleAttachAudio)
	s.pipelineRoute("POST /api/generate-captions", "generate-captions", s.handleGenerateCaptions)
	s.pipelineRoute("POST /api/burn-captions", "burn-captions", s.handleBurnCaptions)

	// Files and leaderboard
	s.authed("GET /api/download/{filename}", "download", http.HandlerFunc(s.handleDownload))
	s.authed("GET /api/list-files", "list-files", http.HandlerFunc(s.handleListFiles))
	s.authed("GET /api/leaderboard", "leaderboard", http.HandlerFunc(s.handleLeaderboard))
	s.authed("POST /api/increment-video-count", "increment-video-count", http.HandlerFunc(s.handleIncrementVideoCount))
}

func (s *Server) handle(pattern, route string, h http.Handler) {
	s.mux.Handle(pattern, chain(h, s.withMetrics(route)))
}

func (s *Server) authed(pattern, route string, h http.Handler) {
	s.mux.Handle(pattern, chain(h, s.withMetrics(route), s.withAuth))
}

func (s *Server) pipelineRoute(pattern, route string, h http.HandlerFunc) {
	s.mux.Handle(pattern, chain(h, s.withMetrics(route), s.withAuth, s.withTimeout))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "API is running",
	})
}
