// internal/clients/gemini/config.go
package gemini

import "time"

type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}
