package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-redis/redis/v8"
)

//encore:service
type Service struct {
	limiter *Limiter
}

var svc *Service

func initService() (*Service, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr(),
		Password: os.Getenv("REDIS_PASSWORD"),
	})

	return &Service{limiter: New(client, DefaultConfig())}, nil
}

// redisAddr builds the REDIS_{HOST,PORT} address pair named in spec.md §6.
func redisAddr() string {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}
	return host + ":" + port
}

func init() {
	var err error
	svc, err = initService()
	if err != nil {
		panic(fmt.Sprintf("ratelimiter: failed to initialize: %v", err))
	}
}

// WaitForToken is called directly by upstream.Client (in-process Go call,
// the Encore convention for cross-service use) before every outbound HTTP
// request.
func WaitForToken(ctx context.Context) error {
	if svc == nil {
		return errors.New("ratelimiter: service not initialized")
	}
	return svc.limiter.WaitForToken(ctx)
}

// StatusResponse is the limiter's observability surface, consumed by the
// /sync/status control-plane endpoint.
type StatusResponse struct {
	Buckets []BucketStatus `json:"buckets"`
}

// GetStatus returns per-bucket token/refill state without consuming.
//
//encore:api private method=GET path=/ratelimiter/status
func GetStatus(ctx context.Context) (*StatusResponse, error) {
	if svc == nil {
		return nil, errors.New("ratelimiter: service not initialized")
	}
	buckets, err := svc.limiter.Status(ctx)
	if err != nil {
		return nil, err
	}
	return &StatusResponse{Buckets: buckets}, nil
}
