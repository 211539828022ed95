// Package repository persists structural results, run summaries and rule
// outcomes to PostgreSQL through pgx.
//
// All writes for one orchestrator run go through a single [UnitOfWork]; the
// [Store] commits it when the callback returns nil and rolls it back
// otherwise.
package repository

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed schema.sql
var schemaSQL string

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	SendBatch(context.Context, *pgx.Batch) pgx.BatchResults
}

// Queries holds the statements, bound to a connection or transaction.
type Queries struct {
	db DBTX
}

// New binds queries to db.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Schema returns the embedded DDL.
func Schema() string { return schemaSQL }

// Migrate applies the embedded schema.
func Migrate(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
