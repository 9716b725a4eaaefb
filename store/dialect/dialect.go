// Package dialect captures the SQL differences between the supported drivers.
package dialect

import (
	"fmt"
	"strings"
)

// Dialect describes placeholder style and driver registration name.
type Dialect struct {
	Name     string
	Driver   string
	numbered bool
}

var (
	// SQLite uses mattn/go-sqlite3 and ? placeholders.
	SQLite = Dialect{Name: "sqlite", Driver: "sqlite3"}
	// Postgres uses the pgx stdlib driver and $n placeholders.
	Postgres = Dialect{Name: "postgres", Driver: "pgx", numbered: true}
)

// Placeholder returns the bind marker for the n-th (1-based) argument.
func (d Dialect) Placeholder(n int) string {
	if d.numbered {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// ForDriver maps a driver or dialect name to a Dialect.
func ForDriver(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "pgx", "postgres", "postgresql":
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver %q", name)
	}
}
