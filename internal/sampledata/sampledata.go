package sampledata

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/duckmesh/dbchat/internal/gateway"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

const versionTable = gateway.BookkeepingTable

var scriptNamePattern = regexp.MustCompile(`^([0-9]+)_.+\.(up|down)\.sql$`)

// Loader applies the bundled music dataset (Artist, Album, Track) to a target
// database. Applied versions are tracked in a bookkeeping table so Up is
// idempotent.
type Loader struct {
	fsys    fs.FS
	dialect gateway.Dialect
}

func NewLoader(dialect gateway.Dialect) *Loader {
	return &Loader{fsys: embeddedFS, dialect: dialect}
}

type script struct {
	Version int64
	UpSQL   string
	DownSQL string
}

func (l *Loader) Up(ctx context.Context, db *sql.DB, steps int) (int, error) {
	scripts, err := loadScripts(l.fsys)
	if err != nil {
		return 0, err
	}
	if err := l.ensureVersionTable(ctx, db); err != nil {
		return 0, err
	}
	applied, err := listVersions(ctx, db, "ASC")
	if err != nil {
		return 0, err
	}
	done := make(map[int64]bool, len(applied))
	for _, version := range applied {
		done[version] = true
	}

	count := 0
	for _, item := range scripts {
		if done[item.Version] {
			continue
		}
		if steps > 0 && count >= steps {
			break
		}
		mark := `INSERT INTO ` + versionTable + ` (version) VALUES (` + strconv.FormatInt(item.Version, 10) + `)`
		if err := runInTx(ctx, db, item.UpSQL, mark); err != nil {
			return count, fmt.Errorf("apply sample %d: %w", item.Version, err)
		}
		count++
	}
	return count, nil
}

func (l *Loader) Down(ctx context.Context, db *sql.DB, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}
	scripts, err := loadScripts(l.fsys)
	if err != nil {
		return 0, err
	}
	if err := l.ensureVersionTable(ctx, db); err != nil {
		return 0, err
	}
	applied, err := listVersions(ctx, db, "DESC")
	if err != nil {
		return 0, err
	}
	byVersion := make(map[int64]script, len(scripts))
	for _, item := range scripts {
		byVersion[item.Version] = item
	}

	count := 0
	for _, version := range applied {
		if count >= steps {
			break
		}
		item, ok := byVersion[version]
		if !ok {
			return count, fmt.Errorf("applied sample %d is missing from source", version)
		}
		unmark := `DELETE FROM ` + versionTable + ` WHERE version = ` + strconv.FormatInt(version, 10)
		if err := runInTx(ctx, db, item.DownSQL, unmark); err != nil {
			return count, fmt.Errorf("roll back sample %d: %w", version, err)
		}
		count++
	}
	return count, nil
}

func (l *Loader) ensureVersionTable(ctx context.Context, db *sql.DB) error {
	create := `CREATE TABLE IF NOT EXISTS ` + versionTable + ` (version BIGINT NOT NULL PRIMARY KEY)`
	if l.dialect == gateway.DialectMSSQL || l.dialect == "" {
		create = `IF OBJECT_ID(N'` + versionTable + `', N'U') IS NULL CREATE TABLE ` + versionTable + ` (version BIGINT NOT NULL PRIMARY KEY)`
	}
	if _, err := db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("ensure sample version table: %w", err)
	}
	return nil
}

// runInTx executes each statement of body, then bookkeeping, atomically.
func runInTx(ctx context.Context, db *sql.DB, body, bookkeeping string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range append(splitStatements(body), bookkeeping) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// splitStatements breaks a script on semicolons. Bundled scripts never put a
// semicolon inside a literal.
func splitStatements(body string) []string {
	var out []string
	for _, part := range strings.Split(body, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func listVersions(ctx context.Context, db *sql.DB, order string) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM `+versionTable+` ORDER BY version `+order)
	if err != nil {
		return nil, fmt.Errorf("query applied samples: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var versions []int64
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return versions, nil
}

func loadScripts(fsys fs.FS) ([]script, error) {
	entries, err := fs.ReadDir(fsys, "sql")
	if err != nil {
		return nil, fmt.Errorf("read sample dir: %w", err)
	}

	items := map[int64]script{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matches := scriptNamePattern.FindStringSubmatch(entry.Name())
		if len(matches) != 3 {
			continue
		}
		version, err := strconv.ParseInt(matches[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse sample version for %q: %w", entry.Name(), err)
		}
		body, err := fs.ReadFile(fsys, path.Join("sql", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read sample %q: %w", entry.Name(), err)
		}

		item := items[version]
		item.Version = version
		if matches[2] == "up" {
			item.UpSQL = string(body)
		} else {
			item.DownSQL = string(body)
		}
		items[version] = item
	}

	out := make([]script, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.UpSQL) == "" {
			return nil, fmt.Errorf("sample %d missing up SQL", item.Version)
		}
		if strings.TrimSpace(item.DownSQL) == "" {
			return nil, fmt.Errorf("sample %d missing down SQL", item.Version)
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}
