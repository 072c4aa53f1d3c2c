// Package stores holds the local release journal: deploy sessions, the
// actions dispatched in them and the phases observed along the way. It is
// SQLite via modernc.org/sqlite with schema migrations embedded through
// golang-migrate's iofs source. hu history reads from it.
package stores
