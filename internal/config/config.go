package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	DefaultPort = "3000"
	// DefaultMaxUploadBytes caps a single inbound frame, which carries a
	// whole base64 file upload.
	DefaultMaxUploadBytes = 10_000_000
	DefaultRateLimit      = 20
	DefaultRateBurst      = 40
)

type Config struct {
	ServerAddr     string
	AllowedOrigins []string
	MaxUploadBytes int64
	// RateLimit is the sustained number of inbound events per second allowed
	// on one connection, RateBurst the bucket size.
	RateLimit float64
	RateBurst int
}

func NewConfig(serverAddr string, allowedOrigins []string, maxUploadBytes int64, rateLimit float64, rateBurst int) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if maxUploadBytes <= 0 {
		return nil, fmt.Errorf("max upload bytes must be positive, got %d", maxUploadBytes)
	}
	if rateLimit <= 0 {
		return nil, fmt.Errorf("rate limit must be positive, got %v", rateLimit)
	}
	if rateBurst <= 0 {
		return nil, fmt.Errorf("rate burst must be positive, got %d", rateBurst)
	}

	return &Config{
		ServerAddr:     serverAddr,
		AllowedOrigins: allowedOrigins,
		MaxUploadBytes: maxUploadBytes,
		RateLimit:      rateLimit,
		RateBurst:      rateBurst,
	}, nil
}

// AddrFromEnv returns the listen address derived from the PORT variable.
func AddrFromEnv() string {
	port := strings.TrimPrefix(EnvString("PORT", DefaultPort), ":")
	return ":" + port
}

func EnvString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func EnvInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return def
}

func EnvInt64(key string, def int64) int64 {
	if v, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil && v > 0 {
		return v
	}
	return def
}

func EnvFloat(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil && v > 0 {
		return v
	}
	return def
}

// ParseOrigins splits a comma separated origin list, dropping blanks.
func ParseOrigins(origins string) []string {
	var out []string
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
