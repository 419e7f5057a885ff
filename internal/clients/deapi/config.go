// internal/clients/deapi/config.go
package deapi

import "time"

type Config struct {
	BaseURL      string
	Model        string
	Motion       string
	Width        int
	Height       int
	FPS          int
	Frames       int
	Steps        int
	Guidance     int
	Timeout      time.Duration // per HTTP call
	PollInterval time.Duration
}
