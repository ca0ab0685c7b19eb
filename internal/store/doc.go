// Package store declares the crawl run ledger: one row per run recording when
// it started, how it ended and how many records each dataset held. The
// Postgres implementation lives in store/postgres; this package must not import
// database drivers.
package store
