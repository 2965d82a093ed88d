package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	DBPath       string `toml:"db_path"`
	GeminiAPIKey string `toml:"gemini_api_key"`
	GeminiModel  string `toml:"gemini_model"`
}

// Load reads ~/.config/timetalk/config.toml, then a local .env, then
// the environment. Later sources win. The Gemini API key is the only
// required setting.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DBPath: filepath.Join(home, ".config", "timetalk", "timetalk.db"),
	}

	cfgPath := filepath.Join(home, ".config", "timetalk", "config.toml")
	if _, err := os.Stat(cfgPath); err == nil {
		if _, err := toml.DecodeFile(cfgPath, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", cfgPath, err)
		}
	}

	// a local .env is optional; already-set env vars are not overridden
	_ = godotenv.Load()

	if v := os.Getenv("TIMETALK_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.GeminiAPIKey = v
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		cfg.GeminiModel = v
	}

	cfg.DBPath = expandHome(cfg.DBPath, home)

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("gemini API key not set: add gemini_api_key to %s or set GEMINI_API_KEY", cfgPath)
	}

	return cfg, nil
}

func expandHome(path, home string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		return filepath.Join(home, path[2:])
	}
	return path
}
