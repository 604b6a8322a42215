// Package migrations holds the embedded conference schema migrations and the
// runner that applies them. The schema is installed on the first successful
// `open` request and can also be managed directly via `confplan migrate`.
package migrations

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

//go:embed *.sql
var embeddedMigrations embed.FS

// ErrNoMigrations is returned when the embedded filesystem contains no migration files.
var ErrNoMigrations = errors.New("no embedded migration files found")

// Migration filename regex: 001_migration_name.up.sql or 001_migration_name.down.sql.
var migrationFilenameRegex = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// Info contains parsed information about a migration file.
type Info struct {
	Sequence  int
	Name      string
	Direction string // "up" or "down"
	Filename  string
}

// FS returns the embedded file system containing all migration files.
// All migrations are embedded at build time using go:embed, enabling
// zero-config deployment without external file dependencies.
func FS() fs.FS {
	return embeddedMigrations
}

// List returns all embedded migration files that conform to the strict naming
// standard, sorted lexicographically. Only files matching the format
// 001_name.(up|down).sql are included.
func List() ([]string, error) {
	entries, err := fs.ReadDir(embeddedMigrations, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations directory: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		filename := entry.Name()
		if filepath.Ext(filename) == ".sql" && migrationFilenameRegex.MatchString(filename) {
			files = append(files, filename)
		}
	}

	sort.Strings(files)

	return files, nil
}

// Validate performs startup validation of the embedded migration files:
// filename format, up/down pairing, and a gapless sequence starting at 001.
func Validate() error {
	files, err := List()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return ErrNoMigrations
	}

	pairs := make(map[string]map[string]bool) // 001_name -> direction -> seen
	sequences := make(map[int]bool)

	for _, file := range files {
		info, err := parseFilename(file)
		if err != nil {
			return err
		}

		key := fmt.Sprintf("%03d_%s", info.Sequence, info.Name)
		if pairs[key] == nil {
			pairs[key] = make(map[string]bool)
		}

		pairs[key][info.Direction] = true
		sequences[info.Sequence] = true
	}

	for key, directions := range pairs {
		if !directions["up"] {
			return fmt.Errorf("orphaned down migration: missing up migration for %s", key)
		}

		if !directions["down"] {
			return fmt.Errorf("orphaned up migration: missing down migration for %s", key)
		}
	}

	var ordered []int
	for seq := range sequences {
		ordered = append(ordered, seq)
	}

	sort.Ints(ordered)

	if ordered[0] != 1 {
		return fmt.Errorf("migration sequence should start with 001, but found %03d", ordered[0])
	}

	for i := 1; i < len(ordered); i++ {
		if ordered[i] != ordered[i-1]+1 {
			return fmt.Errorf("gap in migration sequence: expected %03d, found %03d", ordered[i-1]+1, ordered[i])
		}
	}

	return nil
}

// MaxSchemaVersion returns the highest migration sequence number embedded in
// this binary, or 0 when the set cannot be read.
func MaxSchemaVersion() int {
	files, err := List()
	if err != nil {
		return 0
	}

	maxSequence := 0

	for _, filename := range files {
		if info, err := parseFilename(filename); err == nil && info.Sequence > maxSequence {
			maxSequence = info.Sequence
		}
	}

	return maxSequence
}

// parseFilename parses a migration filename and extracts its components.
func parseFilename(filename string) (*Info, error) {
	matches := migrationFilenameRegex.FindStringSubmatch(filename)
	if len(matches) != 4 {
		return nil, fmt.Errorf(
			"invalid migration filename format: %s (expected: 001_name.up.sql or 001_name.down.sql)",
			filename,
		)
	}

	sequence, err := strconv.Atoi(matches[1])
	if err != nil {
		return nil, fmt.Errorf("invalid sequence number in filename %s: %w", filename, err)
	}

	return &Info{
		Sequence:  sequence,
		Name:      matches[2],
		Direction: matches[3],
		Filename:  filename,
	}, nil
}
