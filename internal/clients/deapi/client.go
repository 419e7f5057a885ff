// internal/clients/deapi/client.go
package deapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"adreel/internal/common/errors"
	commonhttp "adreel/internal/common/http"
	"adreel/internal/common/logger"
)

// Client drives the img2video render API: submit a first frame plus prompt,
// poll until progress hits 100, then download the result.
type Client struct {
	config *Config
	keys   *KeyRing
	client *commonhttp.Client
	logger logger.Logger
}

func NewClient(config *Config, keys *KeyRing, httpClient *commonhttp.Client, log logger.Logger) *Client {
	return &Client{
		config: config,
		keys:   keys,
		client: httpClient,
		logger: log.With(map[string]interface{}{"component": "deapi"}),
	}
}

// RotateKey advances the key ring after a rate limit.
func (c *Client) RotateKey() bool {
	rotated := c.keys.Rotate()
	if rotated {
		c.logger.Warn("render API key rotated", map[string]interface{}{
			"keys": c.keys.Len(),
		})
	}
	return rotated
}

// Generate renders one scene video from a first-frame image and prompt,
// writing the finished MP4 to outPath. It blocks until the render completes
// or ctx expires.
func (c *Client) Generate(ctx context.Context, prompt, imagePath, outPath string) error {
	requestID, err := c.submit(ctx, prompt, imagePath)
	if err != nil {
		return err
	}

	c.logger.Info("render submitted", map[string]interface{}{
		"requestId": requestID,
		"output":    filepath.Base(outPath),
	})

	resultURL, err := c.waitForResult(ctx, requestID)
	if err != nil {
		return err
	}

	if err := c.client.DownloadFile(ctx, resultURL, outPath); err != nil {
		return errors.NewSceneRenderFailedError(filepath.Base(outPath), err)
	}

	c.logger.Info("render downloaded", map[string]interface{}{
		"requestId": requestID,
		"output":    filepath.Base(outPath),
	})
	return nil
}

// submit posts the multipart render request and returns the request id.
func (c *Client) submit(ctx context.Context, prompt, imagePath string) (string, error) {
	image, err := os.Open(imagePath)
	if err != nil {
		return "", errors.NewSceneRenderFailedError(filepath.Base(imagePath), err)
	}
	defer image.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	filePart, err := writer.CreateFormFile("first_frame_image", filepath.Base(imagePath))
	if err != nil {
		return "", errors.NewSceneRenderFailedError(filepath.Base(imagePath), err)
	}
	if _, err := io.Copy(filePart, image); err != nil {
		return "", errors.NewSceneRenderFailedError(filepath.Base(imagePath), err)
	}

	fields := map[string]string{
		"prompt":   prompt,
		"width":    strconv.Itoa(c.config.Width),
		"height":   strconv.Itoa(c.config.Height),
		"fps":      strconv.Itoa(c.config.FPS),
		"frames":   strconv.Itoa(c.config.Frames),
		"steps":    strconv.Itoa(c.config.Steps),
		"guidance": strconv.Itoa(c.config.Guidance),
		"seed":     strconv.Itoa(rand.Intn(99999999) + 1),
		"model":    c.config.Model,
		"motion":   c.config.Motion,
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return "", errors.NewSceneRenderFailedError("form", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", errors.NewSceneRenderFailedError("form", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	url := strings.TrimSuffix(c.config.BaseURL, "/") + "/api/v1/client/img2video"
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, &body)
	if err != nil {
		return "", errors.NewSceneRenderFailedError("submit", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.keys.Current())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errors.NewSceneRenderFailedError("submit", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", errors.NewRenderRateLimitedError("img2video returned status 429")
	}

	var submitResp submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitResp); err != nil {
		return "", errors.NewSceneRenderFailedError("submit", fmt.Errorf("decode error: %w", err))
	}

	// The API reports rate limiting in the message body as well.
	if strings.Contains(submitResp.Message, "Too Many Attempts") {
		return "", errors.NewRenderRateLimitedError(submitResp.Message)
	}

	if resp.StatusCode != http.StatusOK || submitResp.Data.RequestID == "" {
		detail := submitResp.Message
		if detail == "" {
			detail = fmt.Sprintf("status %d, missing request_id", resp.StatusCode)
		}
		return "", errors.NewSceneRenderFailedError("submit", fmt.Errorf("%s", detail))
	}

	return submitResp.Data.RequestID, nil
}

// waitForResult polls request-status until progress reaches 100.
func (c *Client) waitForResult(ctx context.Context, requestID string) (string, error) {
	url := fmt.Sprintf("%s/api/v1/client/request-status/%s",
		strings.TrimSuffix(c.config.BaseURL, "/"), requestID)

	for {
		status, err := c.pollStatus(ctx, url)
		if err != nil {
			return "", err
		}

		if status.Data.Progress >= 100 {
			if status.Data.ResultURL == "" {
				return "", errors.NewSceneRenderFailedError(requestID, fmt.Errorf("render finished without result_url"))
			}
			return status.Data.ResultURL, nil
		}

		c.logger.Debug("render in progress", map[string]interface{}{
			"requestId": requestID,
			"progress":  status.Data.Progress,
		})

		select {
		case <-time.After(c.config.PollInterval):
		case <-ctx.Done():
			return "", errors.NewRequestTimeoutError("render poll")
		}
	}
}

func (c *Client) pollStatus(ctx context.Context, url string) (*statusResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.NewSceneRenderFailedError("poll", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.keys.Current())

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.NewRequestTimeoutError("render poll")
		}
		return nil, errors.NewSceneRenderFailedError("poll", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errors.NewRenderRateLimitedError("request-status returned status 429")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewSceneRenderFailedError("poll", fmt.Errorf("status %d", resp.StatusCode))
	}

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, errors.NewSceneRenderFailedError("poll", fmt.Errorf("decode error: %w", err))
	}
	return &status, nil
}
