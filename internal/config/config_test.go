package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Reset()
	viper.Set("engine.kind", "unicorn")
	viper.Set("engine.start", "0x400000")
	viper.Set("solve.parallel", 4)
	viper.Set("solve.timeout", "2s")
	viper.Set("database.driver", "memory")
	viper.Set("database.path", "/tmp/journal.gob")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "unicorn", c.Engine.Kind)
	assert.Equal(t, uint64(0x400000), c.Engine.Start)
	assert.Equal(t, 4, c.Solve.Parallel)
	assert.Equal(t, 2*time.Second, c.Solve.Timeout)
	assert.Equal(t, "/tmp/journal.gob", c.Database.Path)
}

func TestVerify(t *testing.T) {
	t.Setenv("HOME", "/home/rider")

	tests := []struct {
		name    string
		conf    Config
		check   func(t *testing.T, c *Config)
		wantErr bool
	}{
		{
			name: "defaults",
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "pin", c.Engine.Kind)
				assert.Equal(t, 1, c.Solve.Parallel)
				assert.Equal(t, "sqlite", c.Database.Driver)
				assert.Equal(t, filepath.Join("/home/rider", ".config", "unicycle", "unicycle.db"), c.Database.Path)
			},
		},
		{
			name: "postgres defaults",
			conf: Config{Database: Database{Driver: "postgres", User: "rider", Name: "unicycle"}},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "localhost", c.Database.Host)
				assert.Equal(t, "5432", c.Database.Port)
			},
		},
		{name: "postgres without user", conf: Config{Database: Database{Driver: "postgres"}}, wantErr: true},
		{name: "unknown engine", conf: Config{Engine: Engine{Kind: "dynamorio"}}, wantErr: true},
		{name: "unknown driver", conf: Config{Database: Database{Driver: "mysql"}}, wantErr: true},
		{name: "inverted range", conf: Config{Engine: Engine{Start: 0x2000, End: 0x1000}}, wantErr: true},
		{name: "negative retries", conf: Config{Solve: solve{Retries: -1}}, wantErr: true},
		{name: "negative rate", conf: Config{Solve: solve{Rate: -1}}, wantErr: true},
		{name: "negative cache", conf: Config{Solve: solve{Cache: -5}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.conf
			err := c.verify()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, &c)
		})
	}
}
