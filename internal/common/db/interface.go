package db

import (
	"context"
	"database/sql"
	"time"
)

// Database is the unified interface over a SQL backend. Repositories depend
// on this interface so tests can substitute a fake without a live server.
type Database interface {
	Querier

	// Transaction executes fn within a transaction.
	// The transaction is rolled back if fn returns an error.
	Transaction(ctx context.Context, fn func(tx Transaction) error) error

	// BeginTx starts a new transaction with the given options
	BeginTx(ctx context.Context, opts *TxOptions) (Transaction, error)

	// Ping verifies a connection to the database is still alive
	Ping(ctx context.Context) error

	// Close closes the database connection
	Close() error

	// Stats returns connection pool statistics
	Stats() Stats
}

// Transaction represents an in-progress database transaction
type Transaction interface {
	Querier

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error
}

// Rows is the result of a query that returns multiple rows
type Rows interface {
	// Next prepares the next result row
	Next() bool

	// Scan copies the columns from the current row into the values
	Scan(dest ...interface{}) error

	// Close closes the Rows
	Close() error

	// Err returns the error encountered during iteration
	Err() error
}

// Row is the result of a query that returns at most one row
type Row interface {
	Scan(dest ...interface{}) error
}

// Result summarizes an executed statement
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

// TxOptions holds transaction options
type TxOptions struct {
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

// ConvertTxOptions maps TxOptions to database/sql transaction options.
// A nil TxOptions selects the driver defaults.
func ConvertTxOptions(opts *TxOptions) *sql.TxOptions {
	if opts == nil {
		return nil
	}
	return &sql.TxOptions{
		Isolation: opts.Isolation,
		ReadOnly:  opts.ReadOnly,
	}
}

// Stats holds connection pool statistics
type Stats struct {
	MaxOpenConnections int
	OpenConnections    int
	InUse              int
	Idle               int
	WaitCount          int64
	WaitDuration       time.Duration
}

// ConvertSQLStats maps database/sql pool statistics to Stats.
func ConvertSQLStats(s sql.DBStats) Stats {
	return Stats{
		MaxOpenConnections: s.MaxOpenConnections,
		OpenConnections:    s.OpenConnections,
		InUse:              s.InUse,
		Idle:               s.Idle,
		WaitCount:          s.WaitCount,
		WaitDuration:       s.WaitDuration,
	}
}
