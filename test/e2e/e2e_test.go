// test/e2e/e2e_test.go
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"adreel/internal/auth"
	"adreel/internal/captions"
	"adreel/internal/clients/deapi"
	"adreel/internal/clients/elevenlabs"
	"adreel/internal/clients/gemini"
	"adreel/internal/common/config"
	commonhttp "adreel/internal/common/http"
	"adreel/internal/common/logger"
	"adreel/internal/media"
	"adreel/internal/models"
	"adreel/internal/pipeline"
	"adreel/internal/server"
	"adreel/internal/store"
)

const scenesJSON = "```json\n" +
	`{"scene1": "opening shot", "scene2": "detail shot", "scene3": "lifestyle shot", "scene4": "closing shot"}` +
	"\n```"

// fakeGemini answers scene prompt requests first, voiceover script requests
// after.
func fakeGemini(t *testing.T) *httptest.Server {
	calls := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		text := scenesJSON
		if calls > 1 {
			text = "Meet the future of sound. Order yours today."
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{
					"parts": []map[string]string{{"text": text}},
				}},
			},
		})
	}))
}

// fakeDEAPI implements submit, status polling and result download.
func fakeDEAPI(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	ts := httptest.NewServer(mux)

	requests := 0
	mux.HandleFunc("/api/v1/client/img2video", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(32<<20))
		file, _, err := r.FormFile("first_frame_image")
		require.NoError(t, err)
		file.Close()
		requests++
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]string{"request_id": fmt.Sprintf("req-%d", requests)},
		})
	})
	mux.HandleFunc("/api/v1/client/request-status/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/api/v1/client/request-status/")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"progress":   100.0,
				"result_url": ts.URL + "/results/" + id + ".mp4",
			},
		})
	})
	mux.HandleFunc("/results/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("rendered-" + filepath.Base(r.URL.Path)))
	})
	return ts
}

func fakeElevenLabs(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/v1/text-to-speech/")
		w.Write([]byte("voiceover-mp3"))
	}))
}

// fakeTools satisfies ffmpeg, ffprobe and whisper invocations without
// spawning processes.
func fakeTools(t *testing.T) media.CommandRunner {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		switch name {
		case "ffprobe":
			return []byte("16.0\n"), nil
		case "whisper":
			transcript := `{"segments": [{"words": [
				{"word": " Meet", "start": 0.0, "end": 0.4},
				{"word": " the", "start": 0.4, "end": 0.6},
				{"word": " future", "start": 0.6, "end": 1.2},
				{"word": " of", "start": 1.2, "end": 1.4},
				{"word": " sound", "start": 1.4, "end": 2.0}
			]}]}`
			audioPath := args[0]
			jsonPath := strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".json"
			return nil, os.WriteFile(jsonPath, []byte(transcript), 0o644)
		default:
			// ffmpeg: the output file is always the last argument.
			out := args[len(args)-1]
			return nil, os.WriteFile(out, []byte("ffmpeg-output"), 0o644)
		}
	}
}

type stubUserStore struct {
	users map[string]*models.User
}

func (s *stubUserStore) Create(ctx context.Context, username, passwordHash string) (*models.User, error) {
	user := &models.User{ID: "user-" + username, Username: username, PasswordHash: passwordHash, CreatedAt: time.Now()}
	s.users[username] = user
	return user, nil
}

func (s *stubUserStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.users[username], nil
}

func (s *stubUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	for _, user := range s.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, nil
}

func scenePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 30, G: 120, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func buildAPI(t *testing.T) *httptest.Server {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logger.NewTestLogger(t)
	httpClient := commonhttp.NewClient()

	geminiServer := fakeGemini(t)
	t.Cleanup(geminiServer.Close)
	deapiServer := fakeDEAPI(t)
	t.Cleanup(deapiServer.Close)
	elevenServer := fakeElevenLabs(t)
	t.Cleanup(elevenServer.Close)

	promptClient := gemini.NewClient(&gemini.Config{
		BaseURL: geminiServer.URL, APIKey: "g-key", Model: "gemini-2.0-flash",
		Timeout: 5 * time.Second, MaxRetries: 1,
	}, httpClient, log)

	renderClient := deapi.NewClient(&deapi.Config{
		BaseURL: deapiServer.URL, Model: "Ltxv_13B_0_9_8_Distilled_FP8", Motion: "cinematic",
		Width: 432, Height: 768, FPS: 30, Frames: 120, Steps: 1, Guidance: 8,
		Timeout: 5 * time.Second, PollInterval: 5 * time.Millisecond,
	}, deapi.NewKeyRing([]string{"key-1", "key-2"}), httpClient, log)

	speechClient := elevenlabs.NewClient(&elevenlabs.Config{
		BaseURL: elevenServer.URL, APIKey: "xi-key", VoiceID: "voice-1",
		ModelID: "eleven_multilingual_v2", Stability: 0.6, SimilarityBoost: 0.7,
		Timeout: 5 * time.Second,
	}, httpClient, log)

	tools := fakeTools(t)
	mediaRunner := media.NewRunnerWithExec("ffmpeg", "ffprobe", tools, log)
	transcriber := captions.NewTranscriber("whisper", "small", tools, log)

	authService := auth.NewService(
		&auth.Config{SessionTTL: time.Hour, BcryptCost: bcrypt.MinCost},
		&stubUserStore{users: make(map[string]*models.User)},
		redisClient,
		log,
	)

	workspaces := pipeline.NewWorkspaces(t.TempDir())
	pipelineService := pipeline.NewService(&pipeline.Config{
		Width: 432, Height: 768, FPS: 30,
		MaxRetries: 3, RetryDelay: time.Millisecond,
		MaxConcurrent: 4, MaxWordsPerCue: 3,
		CaptionStyle: media.CaptionStyle{FontName: "Arial", FontSize: 40, FontColor: "white", OutlineColor: "black", OutlineWidth: 2, MarginV: 60},
	}, workspaces, promptClient, renderClient, speechClient, transcriber, mediaRunner, nil, log)

	cfg := &config.Config{}
	cfg.Server.RequestTimeout = 120000
	cfg.Auth.SessionTTL = 3600000
	cfg.Captions.FontName = "Arial"
	cfg.Captions.FontSize = 40
	cfg.Captions.FontColor = "white"
	cfg.Captions.OutlineColor = "black"
	cfg.Captions.OutlineWidth = 2
	cfg.Captions.MarginV = 60

	apiServer := server.New(cfg, authService, store.NewUserRepository(db, log), pipelineService, log)
	ts := httptest.NewServer(apiServer.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body interface{}, cookie *http.Cookie) map[string]interface{} {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Less(t, resp.StatusCode, 300, "POST %s", path)

	var parsed map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	return parsed
}

func TestFullAdVideoPipeline(t *testing.T) {
	ts := buildAPI(t)

	// Signup and capture the session cookie.
	signupBody, _ := json.Marshal(map[string]string{"username": "producer", "password": "secret123"})
	resp, err := http.Post(ts.URL+"/api/signup", "application/json", bytes.NewReader(signupBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "session_token" {
			cookie = c
		}
	}
	resp.Body.Close()
	require.NotNil(t, cookie)

	// Generate scene prompts from four product images.
	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	imgBytes := scenePNG(t)
	for _, key := range models.SceneKeys {
		part, err := writer.CreateFormFile(string(key), string(key)+".png")
		require.NoError(t, err)
		_, err = part.Write(imgBytes)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/generate-scene-prompts", &form)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.AddCookie(cookie)
	promptResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	var prompts map[string]interface{}
	require.NoError(t, json.NewDecoder(promptResp.Body).Decode(&prompts))
	promptResp.Body.Close()
	require.Equal(t, http.StatusOK, promptResp.StatusCode)
	scenes := prompts["scenes"].(map[string]interface{})
	require.Equal(t, "opening shot", scenes["scene1"])

	// Render all four scenes from the prompts plus fresh uploads.
	var allForm bytes.Buffer
	allWriter := multipart.NewWriter(&allForm)
	scenesField, _ := json.Marshal(scenes)
	require.NoError(t, allWriter.WriteField("scenes", string(scenesField)))
	for _, key := range models.SceneKeys {
		part, err := allWriter.CreateFormFile(string(key), string(key)+".png")
		require.NoError(t, err)
		_, err = part.Write(imgBytes)
		require.NoError(t, err)
	}
	require.NoError(t, allWriter.Close())

	req, err = http.NewRequest(http.MethodPost, ts.URL+"/api/generate-all-scenes", &allForm)
	require.NoError(t, err)
	req.Header.Set("Content-Type", allWriter.FormDataContentType())
	req.AddCookie(cookie)
	allResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	var allParsed map[string]interface{}
	require.NoError(t, json.NewDecoder(allResp.Body).Decode(&allParsed))
	allResp.Body.Close()
	require.Equal(t, true, allParsed["success"])
	require.Equal(t, float64(4), allParsed["successful_count"])

	// Merge, voice, caption, burn.
	merged := postJSON(t, ts, "/api/merge-scenes", map[string]string{}, cookie)
	assert.Equal(t, "final_video.mp4", merged["output_file"])
	assert.Equal(t, float64(4), merged["scene_count"])

	voiceover := postJSON(t, ts, "/api/generate-voiceover", map[string]string{}, cookie)
	assert.Equal(t, "Meet the future of sound. Order yours today.", voiceover["script"])
	assert.Equal(t, "generated_script.txt", voiceover["script_file"])
	assert.Equal(t, "voiceover.mp3", voiceover["audio_file"])
	assert.Equal(t, float64(16), voiceover["duration"])

	attached := postJSON(t, ts, "/api/attach-audio", map[string]string{
		"script": voiceover["script"].(string),
	}, cookie)
	assert.Equal(t, "final_video_with_voice.mp4", attached["output_file"])

	captionsResp := postJSON(t, ts, "/api/generate-captions", map[string]string{}, cookie)
	assert.Equal(t, "captions.srt", captionsResp["srt_file"])

	burned := postJSON(t, ts, "/api/burn-captions", map[string]string{
		"video_path": "final_video_with_voice.mp4",
		"srt_path":   "captions.srt",
	}, cookie)
	assert.Equal(t, "final_video_with_voice_captions.mp4", burned["output_file"])

	// The SRT is downloadable and chunked at three words per cue.
	req, err = http.NewRequest(http.MethodGet, ts.URL+"/api/download/captions.srt", nil)
	require.NoError(t, err)
	req.AddCookie(cookie)
	srtResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer srtResp.Body.Close()
	require.Equal(t, http.StatusOK, srtResp.StatusCode)
	var srt bytes.Buffer
	_, err = srt.ReadFrom(srtResp.Body)
	require.NoError(t, err)
	assert.Contains(t, srt.String(), "Meet the future")
	assert.Contains(t, srt.String(), "of sound")

	// All pipeline artifacts are listed.
	req, err = http.NewRequest(http.MethodGet, ts.URL+"/api/list-files", nil)
	require.NoError(t, err)
	req.AddCookie(cookie)
	listResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer listResp.Body.Close()
	var listParsed map[string]interface{}
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&listParsed))
	files := listParsed["files"].([]interface{})

	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.(map[string]interface{})["name"].(string))
	}
	for _, expected := range []string{
		"scene1.mp4", "scene2.mp4", "scene3.mp4", "scene4.mp4",
		"final_video.mp4", "final_video_with_voice.mp4",
		"final_video_with_voice_captions.mp4", "captions.srt",
		"generated_script.txt", "voiceover.mp3",
	} {
		assert.Contains(t, names, expected)
	}
}
