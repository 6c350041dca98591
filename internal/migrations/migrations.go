// Package migrations embeds the relational store's plain-SQL schema
// files. No migration library appears in any example repo's go.mod,
// so applying .sql files directly via pgx at startup is the chosen
// approach (see DESIGN.md).
package migrations

import (
	"embed"
	"sort"
)

//go:embed sql/*.sql
var files embed.FS

// Names returns the embedded migration filenames in apply order.
func Names() ([]string, error) {
	entries, err := files.ReadDir("sql")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Read returns the contents of the named migration file.
func Read(name string) ([]byte, error) {
	return files.ReadFile("sql/" + name)
}
