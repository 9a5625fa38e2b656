// Package postgres implements store.UserStore and store.ResetTokenStore on
// database/sql with the pgx driver.
//
// Open registers nothing beyond the "pgx" driver and returns a plain
// *sql.DB; Migrate applies the embedded goose migrations. Both stores accept
// a DBTX, so they can run against a *sql.DB or inside a *sql.Tx.
package postgres
