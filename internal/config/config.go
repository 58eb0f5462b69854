// Package config is used to load the configuration file
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Engine selects how targets are instrumented.
type Engine struct {
	Kind    string `json:"kind"`    // pin, ptrace, unicorn or frida
	PinHome string `json:"pinhome"` // falls back to PIN_HOME
	Bridge  string `json:"bridge"`  // pintool path
	Arch    string `json:"arch"`    // unicorn only
	Start   uint64 `json:"start"`
	End     uint64 `json:"end"`
}

type solve struct {
	Parallel int           `json:"parallel"`
	Timeout  time.Duration `json:"timeout"`
	Retries  int           `json:"retries"`
	Backoff  time.Duration `json:"backoff"`
	Rate     float64       `json:"rate"`  // rides per second, 0 for no limit
	Cache    int           `json:"cache"` // remembered rides, 0 to disable
}

// Database selects the search journal backend.
type Database struct {
	Driver    string `json:"driver"` // sqlite, postgres or memory
	Path      string `json:"path"`
	BatchSize int    `json:"batchsize"`

	Name     string `json:"database"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	SSLMode  string `json:"sslmode"`
}

// Config is the configuration struct
type Config struct {
	Engine   Engine   `json:"engine"`
	Solve    solve    `json:"solve"`
	Database Database `json:"database"`
}

// Dir is where unicycle keeps its config file and default journal.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: failed to get user home directory: %v", err)
	}
	return filepath.Join(home, ".config", "unicycle"), nil
}

func (c *Config) verify() error {
	switch c.Engine.Kind {
	case "":
		c.Engine.Kind = "pin"
	case "pin", "ptrace", "unicorn", "frida":
	default:
		return fmt.Errorf("config: unknown engine %q (expected pin, ptrace, unicorn or frida)", c.Engine.Kind)
	}
	if c.Engine.End != 0 && c.Engine.Start > c.Engine.End {
		return fmt.Errorf("config: engine start %#x is above end %#x", c.Engine.Start, c.Engine.End)
	}

	if c.Solve.Parallel <= 0 {
		c.Solve.Parallel = 1
	}
	if c.Solve.Retries < 0 {
		return fmt.Errorf("config: retries cannot be negative")
	}
	if c.Solve.Rate < 0 || c.Solve.Cache < 0 {
		return fmt.Errorf("config: rate and cache cannot be negative")
	}
	if c.Solve.Backoff == 0 {
		c.Solve.Backoff = 100 * time.Millisecond
	}

	switch c.Database.Driver {
	case "":
		c.Database.Driver = "sqlite"
		fallthrough
	case "sqlite", "memory":
		if c.Database.Path == "" {
			dir, err := Dir()
			if err != nil {
				return err
			}
			name := "unicycle.db"
			if c.Database.Driver == "memory" {
				name = "unicycle.gob"
			}
			c.Database.Path = filepath.Join(dir, name)
		}
	case "postgres":
		if c.Database.Host == "" {
			c.Database.Host = "localhost"
		}
		if c.Database.Port == "" {
			c.Database.Port = "5432"
		}
		if c.Database.User == "" || c.Database.Name == "" {
			return fmt.Errorf("config: postgres needs a user and a database")
		}
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	return nil
}

// LoadConfig loads the configuration file
func LoadConfig() (*Config, error) {
	var c *Config

	if err := viper.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %v", err)
	}
	if c == nil {
		c = &Config{}
	}

	if err := c.verify(); err != nil {
		return nil, fmt.Errorf("config: failed to verify: %v", err)
	}

	return c, nil
}
