// internal/auth/config.go
package auth

import "time"

type Config struct {
	SessionTTL time.Duration
	BcryptCost int
}
