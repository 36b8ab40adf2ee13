package repository

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed schema.sql
var schemaSQL string

// Migrate applies the embedded schema in one transaction. Every statement is idempotent.
func Migrate(ctx context.Context, db DB) error {
	return RunInTx(ctx, db, func(ctx context.Context) error {
		for _, stmt := range schemaStatements() {
			if _, err := executor(ctx, db).Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to apply schema statement %q: %w", firstLine(stmt), err)
			}
		}
		return nil
	})
}

func schemaStatements() []string {
	var stmts []string
	for _, s := range strings.Split(schemaSQL, ";") {
		if s = strings.TrimSpace(s); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
