// internal/clients/gemini/client.go
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"adreel/internal/common/errors"
	commonhttp "adreel/internal/common/http"
	"adreel/internal/common/logger"
	"adreel/internal/models"
)

// wordsPerSecond is the assumed narration pace used to size voiceover scripts.
const wordsPerSecond = 2.5

// codeFencePattern strips ```json ... ``` fences the model likes to wrap
// JSON responses in.
var codeFencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// scenePromptsSchema validates the model's scene prompt JSON before it
// reaches the render pipeline.
const scenePromptsSchema = `{
	"type": "object",
	"properties": {
		"scene1": {"type": "string", "minLength": 1},
		"scene2": {"type": "string", "minLength": 1},
		"scene3": {"type": "string", "minLength": 1},
		"scene4": {"type": "string", "minLength": 1}
	},
	"required": ["scene1", "scene2", "scene3", "scene4"],
	"additionalProperties": false
}`

// Client talks to the Gemini generateContent API.
type Client struct {
	config *Config
	client *commonhttp.Client
	logger logger.Logger
}

func NewClient(config *Config, httpClient *commonhttp.Client, log logger.Logger) *Client {
	return &Client{
		config: config,
		client: httpClient,
		logger: log.With(map[string]interface{}{"component": "gemini"}),
	}
}

// ScenePrompts asks the model for one video prompt per product image. The
// response must be a strict JSON object keyed scene1 through scene4.
func (c *Client) ScenePrompts(ctx context.Context, images map[models.SceneKey]string) (models.ScenePrompts, error) {
	parts := []part{{Text: scenePromptInstruction()}}

	for _, key := range models.SceneKeys {
		path, ok := images[key]
		if !ok {
			return nil, errors.NewValidationFailedError(fmt.Sprintf("missing image for %s", key))
		}
		inline, err := inlineFromFile(path)
		if err != nil {
			return nil, errors.NewPromptGenerationFailedError(err)
		}
		parts = append(parts, part{InlineData: inline})
	}

	text, err := c.generate(ctx, parts)
	if err != nil {
		return nil, err
	}

	cleaned := CleanJSON(text)
	if err := validateScenePromptsJSON(cleaned); err != nil {
		return nil, errors.NewPromptGenerationFailedError(err)
	}

	var raw map[string]string
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, errors.NewPromptGenerationFailedError(err)
	}

	prompts := models.ScenePrompts{}
	for _, key := range models.SceneKeys {
		prompts[key] = raw[string(key)]
	}

	c.logger.Info("scene prompts generated", map[string]interface{}{
		"scenes": len(prompts),
	})
	return prompts, nil
}

// VoiceoverScript asks the model for a narration script matching the length
// of the merged video. The video itself is passed inline so the script can
// reference what is actually on screen.
func (c *Client) VoiceoverScript(ctx context.Context, videoPath string, duration float64) (string, error) {
	inline, err := inlineFromFile(videoPath)
	if err != nil {
		return "", errors.NewScriptGenerationFailedError(err)
	}

	targetWords := int(math.Round(duration * wordsPerSecond))
	if targetWords < 5 {
		targetWords = 5
	}

	instruction := fmt.Sprintf(
		"Watch this product advertisement video and write an energetic voiceover script for it. "+
			"The video is %.1f seconds long, so the script must be close to %d words total. "+
			"Return only the spoken words with no stage directions, labels or quotes.",
		duration, targetWords,
	)

	text, err := c.generate(ctx, []part{{Text: instruction}, {InlineData: inline}})
	if err != nil {
		return "", err
	}

	script := strings.TrimSpace(text)
	if script == "" {
		return "", errors.NewScriptGenerationFailedError(fmt.Errorf("model returned empty script"))
	}

	c.logger.Info("voiceover script generated", map[string]interface{}{
		"targetWords": targetWords,
		"actualWords": len(strings.Fields(script)),
	})
	return script, nil
}

// generate posts the parts to generateContent with retries and returns the
// first candidate's text.
func (c *Client) generate(ctx context.Context, parts []part) (string, error) {
	body, err := json.Marshal(generateRequest{Contents: []content{{Parts: parts}}})
	if err != nil {
		return "", errors.NewPromptGenerationFailedError(err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		strings.TrimSuffix(c.config.BaseURL, "/"), c.config.Model, c.config.APIKey)

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", errors.NewRequestTimeoutError("gemini")
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return "", errors.NewPromptGenerationFailedError(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, lastErr = c.client.Do(req)
		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			resp = nil
		}

		if ctx.Err() != nil {
			return "", errors.NewRequestTimeoutError("gemini")
		}
	}

	if lastErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", errors.NewRequestTimeoutError("gemini")
		}
		return "", errors.NewPromptGenerationFailedError(lastErr)
	}
	if resp == nil {
		return "", errors.NewPromptGenerationFailedError(fmt.Errorf("no successful response after retries"))
	}
	defer resp.Body.Close()

	var apiResponse generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return "", errors.NewPromptGenerationFailedError(fmt.Errorf("decode error: %w", err))
	}

	text := apiResponse.firstText()
	if text == "" {
		return "", errors.NewPromptGenerationFailedError(fmt.Errorf("empty candidate response"))
	}
	return text, nil
}

func scenePromptInstruction() string {
	var parts []string

	parts = append(parts, "You are an advertising director. You are given four photos of the same product.")
	parts = append(parts, "For each photo, write one cinematic image-to-video prompt that animates the product attractively for a short vertical ad.")
	parts = append(parts, "Rules:")
	parts = append(parts, "- Keep each prompt under 50 words")
	parts = append(parts, "- Describe camera motion and lighting, never text overlays")
	parts = append(parts, "- The first photo is scene1, the second scene2, the third scene3, the fourth scene4")
	parts = append(parts, `Respond with ONLY a JSON object of the exact form {"scene1": "...", "scene2": "...", "scene3": "...", "scene4": "..."} and nothing else.`)

	return strings.Join(parts, "\n")
}

// CleanJSON strips markdown code fences and surrounding noise from a model
// response so it can be parsed as JSON.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if match := codeFencePattern.FindStringSubmatch(text); len(match) == 2 {
		return strings.TrimSpace(match[1])
	}
	return text
}

func validateScenePromptsJSON(doc string) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(scenePromptsSchema),
		gojsonschema.NewStringLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("scene prompts are not valid JSON: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("scene prompts failed validation: %s", strings.Join(msgs, "; "))
	}
	return nil
}

func inlineFromFile(path string) (*inlineData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return &inlineData{
		MIMEType: mimeTypeForPath(path),
		Data:     base64.StdEncoding.EncodeToString(data),
	}, nil
}

// mimeTypeForPath resolves the media type for the file extensions the
// pipeline produces. mime.TypeByExtension alone is not enough: .mp4 is not in
// the stdlib builtin table and resolution would then depend on the host's
// /etc/mime.types.
func mimeTypeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		return "application/octet-stream"
	}
	if idx := strings.Index(mimeType, ";"); idx > 0 {
		mimeType = mimeType[:idx]
	}
	return mimeType
}
