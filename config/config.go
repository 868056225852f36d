// Package config loads process settings from the environment
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting of polverify
type Config struct {
	HTTPAddr          string
	LogLevel          string
	RedisURL          string
	SQLitePath        string
	SigningKeyPath    string
	HTTPRatePerSecond float64
	SessionTTL        time.Duration

	ChallengeTimer      time.Duration
	FrameInterval       time.Duration
	MaxChallengeAge     time.Duration
	MinVerificationTime time.Duration
	RateLimitMax        int
	RateLimitWindow     time.Duration
	TokenValidity       time.Duration

	MatchFallback      string
	FallbackMatchScore float64
}

// Load reads a .env file when present and then the process environment.
// Unset variables take their defaults; malformed ones are errors
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	r := reader{lookup: lookup}
	cfg := Config{
		HTTPAddr:          r.str("POL_HTTP_ADDR", ":9000"),
		LogLevel:          r.str("POL_LOG_LEVEL", "info"),
		RedisURL:          r.str("REDIS_URL", ""),
		SQLitePath:        r.str("POL_SQLITE_PATH", ""),
		SigningKeyPath:    r.str("POL_SIGNING_KEY", ""),
		HTTPRatePerSecond: r.float("POL_HTTP_RATE_PER_SECOND", 25),
		SessionTTL:        r.duration("POL_SESSION_TTL", 10*time.Minute),

		ChallengeTimer:      r.duration("POL_CHALLENGE_TIMER", 10*time.Second),
		FrameInterval:       r.duration("POL_FRAME_INTERVAL", 33*time.Millisecond),
		MaxChallengeAge:     r.duration("POL_MAX_CHALLENGE_AGE", 20*time.Second),
		MinVerificationTime: r.duration("POL_MIN_VERIFICATION_TIME", 2*time.Second),
		RateLimitMax:        r.int("POL_RATE_LIMIT_MAX", 10),
		RateLimitWindow:     r.duration("POL_RATE_LIMIT_WINDOW", time.Hour),
		TokenValidity:       r.duration("POL_TOKEN_VALIDITY", 5*time.Minute),

		MatchFallback:      r.str("POL_MATCH_FALLBACK", "reject"),
		FallbackMatchScore: r.float("POL_FALLBACK_MATCH_SCORE", 0.85),
	}
	if err := errors.Join(r.errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if c.ChallengeTimer < time.Second {
		errs = append(errs, fmt.Errorf("POL_CHALLENGE_TIMER must be at least 1s, got %s", c.ChallengeTimer))
	}
	if c.ChallengeTimer%time.Second != 0 {
		errs = append(errs, fmt.Errorf("POL_CHALLENGE_TIMER must be a whole number of seconds, got %s", c.ChallengeTimer))
	}
	if c.MaxChallengeAge > 0 && c.ChallengeTimer > c.MaxChallengeAge {
		errs = append(errs, fmt.Errorf("POL_CHALLENGE_TIMER (%s) must not exceed POL_MAX_CHALLENGE_AGE (%s)", c.ChallengeTimer, c.MaxChallengeAge))
	}
	if c.FrameInterval <= 0 {
		errs = append(errs, fmt.Errorf("POL_FRAME_INTERVAL must be positive, got %s", c.FrameInterval))
	}
	if c.MaxChallengeAge <= 0 {
		errs = append(errs, fmt.Errorf("POL_MAX_CHALLENGE_AGE must be positive, got %s", c.MaxChallengeAge))
	}
	if c.MinVerificationTime <= 0 {
		errs = append(errs, fmt.Errorf("POL_MIN_VERIFICATION_TIME must be positive, got %s", c.MinVerificationTime))
	}
	if c.RateLimitMax <= 0 {
		errs = append(errs, fmt.Errorf("POL_RATE_LIMIT_MAX must be positive, got %d", c.RateLimitMax))
	}
	if c.RateLimitWindow <= 0 {
		errs = append(errs, fmt.Errorf("POL_RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimitWindow))
	}
	if c.TokenValidity <= 0 {
		errs = append(errs, fmt.Errorf("POL_TOKEN_VALIDITY must be positive, got %s", c.TokenValidity))
	}
	if c.MatchFallback != "reject" && c.MatchFallback != "neutral" {
		errs = append(errs, fmt.Errorf("POL_MATCH_FALLBACK must be reject or neutral, got %q", c.MatchFallback))
	}
	if c.FallbackMatchScore < 0 || c.FallbackMatchScore > 1 {
		errs = append(errs, fmt.Errorf("POL_FALLBACK_MATCH_SCORE must be within [0,1], got %v", c.FallbackMatchScore))
	}
	if c.HTTPRatePerSecond <= 0 {
		errs = append(errs, fmt.Errorf("POL_HTTP_RATE_PER_SECOND must be positive, got %v", c.HTTPRatePerSecond))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("POL_SESSION_TTL must be positive, got %s", c.SessionTTL))
	}
	return errors.Join(errs...)
}

type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) str(key, def string) string {
	if v, ok := r.lookup(key); ok && v != "" {
		return v
	}
	return def
}

func (r *reader) int(key string, def int) int {
	v, ok := r.lookup(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (r *reader) float(key string, def float64) float64 {
	v, ok := r.lookup(key)
	if !ok || v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid number %q", key, v))
		return def
	}
	return f
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v, ok := r.lookup(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}
