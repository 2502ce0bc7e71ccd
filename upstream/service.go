package upstream

import (
	"os"
	"strconv"
	"time"
)

//encore:service
type Service struct {
	client *Client
}

var svc *Service

func initService() (*Service, error) {
	return &Service{client: New(configFromEnv())}, nil
}

// configFromEnv overlays MFAPI_BASE_URL/MFAPI_TIMEOUT (spec.md §6) onto
// DefaultConfig, the same os.Getenv-with-fallback shape
// ratelimiter/service.go's redisAddr uses.
func configFromEnv() Config {
	cfg := DefaultConfig()
	if v := os.Getenv("MFAPI_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("MFAPI_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.Timeout = time.Duration(secs) * time.Second
		}
	}
	return cfg
}

func init() {
	var err error
	svc, err = initService()
	if err != nil {
		panic(err)
	}
}

// Get returns the package-level client for in-process Go calls from the
// orchestrator services (backfill, incremental, discovery).
func Get() *Client {
	return svc.client
}
