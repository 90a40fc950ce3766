// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Game     GameConfig     `toml:"game"`
	Analysis AnalysisConfig `toml:"analysis"`
}

// GameConfig locates the client's files on disk.
type GameConfig struct {
	// DBPath is the osu!.db chart index.
	DBPath *string `toml:"db"`
	// SongsDir holds the chart folders the index refers to.
	SongsDir *string `toml:"songs"`
	// ReplaysDir is watched for new .osr files.
	ReplaysDir *string `toml:"replays"`
}

// AnalysisConfig tunes the matching run.
type AnalysisConfig struct {
	CalibrationMs *float64 `toml:"calibration-ms"`
	EpsilonMs     *float64 `toml:"epsilon-ms"`
	CacheSize     *int     `toml:"cache-size"`
	HistoryDB     *string  `toml:"history-db"`
}

// Settings is the merged, defaulted view the commands consume.
type Settings struct {
	DBPath        string
	SongsDir      string
	ReplaysDir    string
	CalibrationMs float64
	EpsilonMs     float64
	CacheSize     int
	HistoryDB     string
}

// DefaultCalibrationMs compensates for the client's own audio offset
// between the recorded press and the audible beat.
const DefaultCalibrationMs = 8.0

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Resolve merges a file config with defaults into usable settings.
func Resolve(cfg FileConfig) Settings {
	s := Settings{
		CalibrationMs: DefaultCalibrationMs,
		EpsilonMs:     0,
		CacheSize:     0,
		HistoryDB:     DefaultHistoryDBPath(),
	}
	if cfg.Game.DBPath != nil {
		s.DBPath = *cfg.Game.DBPath
	}
	if cfg.Game.SongsDir != nil {
		s.SongsDir = *cfg.Game.SongsDir
	}
	if cfg.Game.ReplaysDir != nil {
		s.ReplaysDir = *cfg.Game.ReplaysDir
	}
	if cfg.Analysis.CalibrationMs != nil {
		s.CalibrationMs = *cfg.Analysis.CalibrationMs
	}
	if cfg.Analysis.EpsilonMs != nil {
		s.EpsilonMs = *cfg.Analysis.EpsilonMs
	}
	if cfg.Analysis.CacheSize != nil {
		s.CacheSize = *cfg.Analysis.CacheSize
	}
	if cfg.Analysis.HistoryDB != nil {
		s.HistoryDB = *cfg.Analysis.HistoryDB
	}
	return s
}
