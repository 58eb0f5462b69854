package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/blacktop/unicycle/internal/config"
)

// Open connects to the journal database described by conf.
func Open(conf *config.Database) (Database, error) {
	var (
		d   Database
		err error
	)
	if conf.Driver == "sqlite" || conf.Driver == "memory" {
		if err := os.MkdirAll(filepath.Dir(conf.Path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}
	switch conf.Driver {
	case "sqlite":
		d, err = NewSqlite(conf.Path, conf.BatchSize)
	case "postgres":
		d, err = NewPostgres(conf.Host, conf.Port, conf.User, conf.Password, conf.Name, conf.SSLMode)
	case "memory":
		d, err = NewInMemory(conf.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", conf.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := d.Connect(); err != nil {
		return nil, err
	}
	return d, nil
}

func isInterrupt(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
