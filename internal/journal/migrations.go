package journal

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// step is one numbered schema change. Files are named NNNN_description.sql.
type step struct {
	version int
	name    string
	body    string
}

func readSteps() ([]step, error) {
	names, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	steps := make([]step, 0, len(names))
	for _, name := range names {
		base := path.Base(name)
		prefix, _, _ := strings.Cut(base, "_")
		version, err := strconv.Atoi(prefix)
		if err != nil || version <= 0 {
			return nil, fmt.Errorf("migration %s: bad version prefix", base)
		}
		body, err := migrationFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", base, err)
		}
		steps = append(steps, step{version: version, name: base, body: string(body)})
	}
	slices.SortFunc(steps, func(a, b step) int { return a.version - b.version })
	return steps, nil
}

// migrate brings the schema up to the newest embedded step. The applied
// version is tracked in SQLite's user_version pragma.
func (s *Store) migrate(ctx context.Context) error {
	steps, err := readSteps()
	if err != nil {
		return err
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, st := range steps {
		if st.version <= current {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", st.name, err)
		}
		if _, err := tx.ExecContext(ctx, st.body); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", st.name, err)
		}
		// PRAGMA does not accept bound parameters.
		if _, err := tx.ExecContext(ctx, "PRAGMA user_version = "+strconv.Itoa(st.version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", st.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", st.name, err)
		}
		current = st.version
	}
	return nil
}
