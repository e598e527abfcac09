package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ProfilesDir string   `toml:"profiles_dir"`
	OutputDir   string   `toml:"output_dir"`
	JournalPath string   `toml:"journal_path"`
	Workers     int      `toml:"workers"`
	Scan        Scan     `toml:"scan"`
	Generate    Generate `toml:"generate"`
	Merge       Merge    `toml:"merge"`
}

type Scan struct {
	ExcludeDirs  []string `toml:"exclude_dirs"`
	ExcludeFiles []string `toml:"exclude_files"`
}

type Generate struct {
	Protocols []string `toml:"protocols"`
}

type Merge struct {
	Prefix string `toml:"prefix"`
}

func Default() *Config {
	return &Config{
		ProfilesDir: "profiles",
		OutputDir:   "generated",
		JournalPath: "profiles/journal.db",
		Scan: Scan{
			ExcludeDirs: []string{".git", "node_modules", "__pycache__", ".venv", "venv", "vendor", "dist", "build"},
		},
		Generate: Generate{Protocols: []string{"stdio"}},
		Merge:    Merge{Prefix: "auto"},
	}
}

// Load reads a TOML config file. A missing file is not an error; defaults
// apply, so the tool works in an unconfigured directory.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}

	if cfg.ProfilesDir == "" {
		cfg.ProfilesDir = "profiles"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "generated"
	}
	if cfg.JournalPath == "" {
		cfg.JournalPath = "profiles/journal.db"
	}
	if len(cfg.Generate.Protocols) == 0 {
		cfg.Generate.Protocols = []string{"stdio"}
	}
	if cfg.Merge.Prefix == "" {
		cfg.Merge.Prefix = "auto"
	}

	return cfg, nil
}
