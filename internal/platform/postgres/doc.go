// Package postgres implements the store interfaces on PostgreSQL.
//
// Every status transition is a single conditional UPDATE keyed on the
// current status, so concurrent ticks coordinate entirely through the
// database: a failed precondition shows up as zero affected rows and is
// mapped to store.ErrInvalidState, never applied blindly.
package postgres
