package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	MongoURI   string // MONGODB_URI, e.g. mongodb://localhost:27017/viand
	JWTSecret  string
	Port       string
	RateLimit  int // requests per minute per IP
	TokenTTL   time.Duration
	NatsURL    string // empty disables NATS, events stay in process
	NatsToken  string
	RedisAddr  string // empty disables the list cache
	RedisPass  string
	RedisDB    int
	CacheTTL   time.Duration
	ScopedRead bool
}

func Load() (Config, error) {
	c := Config{
		MongoURI:  os.Getenv("MONGODB_URI"),
		JWTSecret: os.Getenv("JWT_SECRET_KEY"),
		Port:      getenv("CARD_SERVICE_PORT", "5000"),
		NatsURL:   os.Getenv("NATS_URL"),
		NatsToken: os.Getenv("NATS_TOKEN"),
		RedisAddr: os.Getenv("REDIS_ADDR"),
		RedisPass: os.Getenv("REDIS_PASS"),
	}

	if c.MongoURI == "" {
		return c, errors.New("MONGODB_URI is required")
	}
	if c.JWTSecret == "" {
		return c, errors.New("JWT_SECRET_KEY is required")
	}

	var err error
	if c.RateLimit, err = atoi("RATE_LIMIT", 100); err != nil {
		return c, err
	}
	if c.RateLimit <= 0 {
		return c, fmt.Errorf("invalid RATE_LIMIT value: %d", c.RateLimit)
	}
	if c.RedisDB, err = atoi("REDIS_DB", 0); err != nil {
		return c, err
	}
	if c.TokenTTL, err = duration("TOKEN_TTL", 100*time.Hour); err != nil {
		return c, err
	}
	if c.CacheTTL, err = duration("CACHE_TTL", 60*time.Second); err != nil {
		return c, err
	}
	if v := os.Getenv("CARD_SCOPED_READ"); v != "" {
		if c.ScopedRead, err = strconv.ParseBool(v); err != nil {
			return c, fmt.Errorf("invalid CARD_SCOPED_READ value: %w", err)
		}
	}

	return c, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func atoi(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %w", key, err)
	}
	return n, nil
}

func duration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s value: %s", key, v)
	}
	return d, nil
}
