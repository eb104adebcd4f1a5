// Package checkpoint records how far each source has been harvested.
//
// The document is a map from source to offset: the count of that source's
// records already appended to the corpus. It is loaded once per run and
// rewritten whole after every page, only after the page's records are on
// disk, so a crash can repeat a page but never skip one.
//
// Two backends are available:
//   - file (default): a JSON object replaced through a temporary file and a
//     rename
//   - sqlite: one row per source, all rows upserted in a single transaction
//
// The SQLite backend uses modernc.org/sqlite unless built with the
// cgo_sqlite tag, which switches to github.com/mattn/go-sqlite3.
package checkpoint
