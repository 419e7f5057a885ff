// internal/clients/elevenlabs/client.go
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"adreel/internal/common/errors"
	commonhttp "adreel/internal/common/http"
	"adreel/internal/common/logger"
)

type Config struct {
	BaseURL         string
	APIKey          string
	VoiceID         string
	ModelID         string
	Stability       float64
	SimilarityBoost float64
	Timeout         time.Duration
	MaxRetries      int
}

type synthesizeRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Client calls the text-to-speech API and stores the returned audio.
type Client struct {
	config *Config
	client *commonhttp.Client
	logger logger.Logger
}

func NewClient(config *Config, httpClient *commonhttp.Client, log logger.Logger) *Client {
	return &Client{
		config: config,
		client: httpClient,
		logger: log.With(map[string]interface{}{"component": "elevenlabs"}),
	}
}

// Synthesize converts script to speech and writes the MP3 bytes to outPath.
func (c *Client) Synthesize(ctx context.Context, script, outPath string) error {
	body, err := json.Marshal(synthesizeRequest{
		Text:    script,
		ModelID: c.config.ModelID,
		VoiceSettings: voiceSettings{
			Stability:       c.config.Stability,
			SimilarityBoost: c.config.SimilarityBoost,
		},
	})
	if err != nil {
		return errors.NewSpeechSynthesisFailedError(err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s",
		strings.TrimSuffix(c.config.BaseURL, "/"), c.config.VoiceID)

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var audio []byte
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return errors.NewRequestTimeoutError("text-to-speech")
			}
		}

		audio, lastErr = c.synthesizeOnce(ctx, url, body)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			return errors.NewRequestTimeoutError("text-to-speech")
		}
	}

	if lastErr != nil {
		return errors.NewSpeechSynthesisFailedError(lastErr)
	}

	if err := os.WriteFile(outPath, audio, 0o644); err != nil {
		return errors.NewSpeechSynthesisFailedError(err)
	}

	c.logger.Info("voiceover synthesized", map[string]interface{}{
		"chars": len(script),
		"bytes": len(audio),
	})
	return nil
}

func (c *Client) synthesizeOnce(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.config.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("empty audio response")
	}
	return audio, nil
}
