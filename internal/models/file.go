package models

import "time"

// FileInfo describes a generated artifact in a user workspace.
type FileInfo struct {
	Name       string    `json:"name"`
	SizeBytes  int64     `json:"sizeBytes"`
	ModifiedAt time.Time `json:"modifiedAt"`
}
