package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// BrowserMode selects where Chrome runs
type BrowserMode string

const (
	BrowserLocal  BrowserMode = "local"
	BrowserDocker BrowserMode = "docker"
)

// Config holds all runtime settings, read from the environment
type Config struct {
	HTTPAddr string

	BrowserMode    BrowserMode
	ChromePath     string
	ChromeHeadless bool
	ChromeImage    string

	ProfileDir        string // live Chrome user-data dir
	ProfileArchiveDir string // where snapshots are kept; empty disables them
	ProfileName       string

	WhatsAppURL  string
	LoginTimeout time.Duration
	SendTimeout  time.Duration
	PollInterval time.Duration

	SendDelay    time.Duration
	MinSendDelay time.Duration
	MaxSendDelay time.Duration

	RunStartsPerHour int
	RunStartBurst    int
	MaxUploadBytes   int64

	LogLevel  string
	LogFormat string

	// EnvFileLoaded is false when no .env file was found
	EnvFileLoaded bool
}

// Load reads .env (if present) and the process environment
func Load() (*Config, error) {
	envLoaded := godotenv.Load() == nil

	cfg := &Config{
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		BrowserMode:       BrowserMode(strings.ToLower(getEnv("BROWSER_MODE", string(BrowserLocal)))),
		ChromePath:        getEnv("CHROME_PATH", ""),
		ChromeImage:       getEnv("CHROME_IMAGE", "browserless/chrome:latest"),
		ProfileDir:        getEnv("PROFILE_DIR", "./storage/profile"),
		ProfileArchiveDir: getEnv("PROFILE_ARCHIVE_DIR", "./storage/profiles"),
		ProfileName:       getEnv("PROFILE_NAME", "default"),
		WhatsAppURL:       strings.TrimRight(getEnv("WHATSAPP_URL", "https://web.whatsapp.com"), "/"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		EnvFileLoaded:     envLoaded,
	}

	var err error
	if cfg.ChromeHeadless, err = getBool("CHROME_HEADLESS", false); err != nil {
		return nil, err
	}
	if cfg.LoginTimeout, err = getDuration("LOGIN_TIMEOUT", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SendTimeout, err = getDuration("SEND_TIMEOUT", 45*time.Second); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = getDuration("POLL_INTERVAL", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.SendDelay, err = getDuration("SEND_DELAY", 8*time.Second); err != nil {
		return nil, err
	}
	if cfg.MinSendDelay, err = getDuration("MIN_SEND_DELAY", 3*time.Second); err != nil {
		return nil, err
	}
	if cfg.MaxSendDelay, err = getDuration("MAX_SEND_DELAY", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.RunStartsPerHour, err = getInt("RUN_STARTS_PER_HOUR", 20); err != nil {
		return nil, err
	}
	if cfg.RunStartBurst, err = getInt("RUN_START_BURST", 3); err != nil {
		return nil, err
	}
	uploadMB, err := getInt("MAX_UPLOAD_MB", 10)
	if err != nil {
		return nil, err
	}
	cfg.MaxUploadBytes = int64(uploadMB) << 20

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that cannot work together
func (c *Config) Validate() error {
	if c.BrowserMode != BrowserLocal && c.BrowserMode != BrowserDocker {
		return fmt.Errorf("BROWSER_MODE must be %q or %q, got %q", BrowserLocal, BrowserDocker, c.BrowserMode)
	}
	if c.LoginTimeout <= 0 || c.SendTimeout <= 0 || c.PollInterval <= 0 {
		return fmt.Errorf("LOGIN_TIMEOUT, SEND_TIMEOUT and POLL_INTERVAL must be positive")
	}
	if c.PollInterval >= c.SendTimeout {
		return fmt.Errorf("POLL_INTERVAL (%s) must be shorter than SEND_TIMEOUT (%s)", c.PollInterval, c.SendTimeout)
	}
	if c.MinSendDelay < 0 || c.MaxSendDelay < c.MinSendDelay {
		return fmt.Errorf("send delay bounds are invalid: min %s, max %s", c.MinSendDelay, c.MaxSendDelay)
	}
	if c.SendDelay < c.MinSendDelay || c.SendDelay > c.MaxSendDelay {
		return fmt.Errorf("SEND_DELAY %s is outside [%s, %s]", c.SendDelay, c.MinSendDelay, c.MaxSendDelay)
	}
	if c.RunStartsPerHour <= 0 || c.RunStartBurst <= 0 {
		return fmt.Errorf("RUN_STARTS_PER_HOUR and RUN_START_BURST must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}
	if c.ProfileDir == "" {
		return fmt.Errorf("PROFILE_DIR is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
