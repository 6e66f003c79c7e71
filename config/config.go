package config

import (
	"encoding/json"
	"os"

	"go-blockdb/pkg/block"
	"go-blockdb/pkg/bptree"

	"github.com/pkg/errors"
)

type AppConfig struct {
	DBPath   string          `json:"db_path"`
	LogLevel string          `json:"log_level"`
	Storage  block.Options   `json:"storage"`
	Tree     bptree.Settings `json:"tree"`
	Shell    *ShellConfig    `json:"shell"`
}

func New() *AppConfig {
	return &AppConfig{
		DBPath:   "accounts.data",
		LogLevel: "info",
		Storage:  block.DefaultOptions,
		Tree:     bptree.DefaultSettings,
		Shell:    NewShellConfig(),
	}
}

// Load reads a JSON config file on top of the defaults. Fields missing in
// the file keep their default values.
func Load(fileName string) (*AppConfig, error) {
	cfg := New()

	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file '%s'", fileName)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file '%s'", fileName)
	}
	return cfg, nil
}
