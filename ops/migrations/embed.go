// Package migrations embeds the schema migrations and seed files.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed sql/*.sql
var sqlFiles embed.FS

//go:embed seeds/*.sql
var seedFiles embed.FS

// SQL returns the schema migrations rooted at the directory holding them.
func SQL() fs.FS { return mustSub(sqlFiles, "sql") }

// Seeds returns the seed files rooted at the directory holding them.
func Seeds() fs.FS { return mustSub(seedFiles, "seeds") }

func mustSub(f fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(f, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
