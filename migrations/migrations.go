// Package migrations carries the schema and applies it on startup.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.sql
var files embed.FS

// Apply runs every *.up.sql file in name order. The files are written to be
// re-runnable.
func Apply(ctx context.Context, db *sql.DB) error {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return fmt.Errorf("migrations.Apply: read dir: %w", err)
	}

	var upFiles []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			upFiles = append(upFiles, e.Name())
		}
	}
	sort.Strings(upFiles)

	for _, f := range upFiles {
		content, err := fs.ReadFile(files, f)
		if err != nil {
			return fmt.Errorf("migrations.Apply: read %s: %w", f, err)
		}
		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("migrations.Apply: execute %s: %w", f, err)
		}
	}
	return nil
}
