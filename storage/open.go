package storage

import (
	"fmt"
	"strings"

	"laptop-price-tracker/utils"
)

// Options selects and addresses a history backend.
type Options struct {
	Driver string // postgres, mysql, sqlite or memory
	DSN    string // connection string, or file path for sqlite
}

// Open returns the HistoryStore named by opts.Driver.
func Open(opts Options, logger *utils.Logger) (HistoryStore, error) {
	switch strings.ToLower(opts.Driver) {
	case "postgres", "postgresql":
		return NewPostgresStore(opts.DSN, logger)
	case "mysql":
		return OpenMySQL(opts.DSN, logger)
	case "sqlite", "":
		return OpenSQLite(opts.DSN, logger)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", opts.Driver)
	}
}
