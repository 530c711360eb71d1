package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var policyYAML []byte

type Config struct {
	Detector   DetectorConfig
	Matching   MatchingConfig
	Attendance AttendanceConfig
	Database   DatabaseConfig
}

type DetectorConfig struct {
	URL string // defaults to http://localhost:8000
	Dim int    // expected embedding dimension, defaults to 128
}

type MatchingConfig struct {
	Tolerance float64 // maximum distance for a template to count as a match (default 0.6)
}

// AttendanceConfig holds the lateness policy defaults used when a group
// has no parseable schedule.
type AttendanceConfig struct {
	DefaultCutoff string `yaml:"default_cutoff"` // "HH:MM", applied when the group schedule cannot be parsed
	GraceMinutes  int    `yaml:"grace_minutes"`  // minutes past schedule start before a mark counts as late
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a float in (0, 1].
// Returns the default value if the env var is unset, empty, or out of range.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && f <= 1 {
		return f
	}
	return defaultVal
}

func Load() *Config {
	var attendance AttendanceConfig
	if err := yaml.Unmarshal(policyYAML, &attendance); err != nil {
		// Embedded file, so this should never happen in practice
		panic("failed to unmarshal embedded policy.yaml: " + err.Error())
	}
	if cutoff := os.Getenv("ATTENDANCE_DEFAULT_CUTOFF"); cutoff != "" {
		attendance.DefaultCutoff = cutoff
	}
	attendance.GraceMinutes = envInt("ATTENDANCE_GRACE_MINUTES", attendance.GraceMinutes)

	detectorURL := os.Getenv("DETECTOR_URL")
	if detectorURL == "" {
		detectorURL = "http://localhost:8000"
	}

	return &Config{
		Detector: DetectorConfig{
			URL: detectorURL,
			Dim: envInt("DETECTOR_DIM", 128),
		},
		Matching: MatchingConfig{
			Tolerance: envFloat("MATCH_TOLERANCE", 0.6),
		},
		Attendance: attendance,
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
	}
}
