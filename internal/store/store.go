// Package store defines persistence for the policy engine's observable
// history. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing).
package store

import (
	"context"

	"github.com/pegdao/policy-engine/internal/model"
)

// Store persists the immutable operation ledger and epoch history.
type Store interface {
	// InsertOperation appends an immutable operation record.
	InsertOperation(ctx context.Context, op *model.Operation) error

	// ListOperationsByAccount returns an account's operations, oldest first.
	ListOperationsByAccount(ctx context.Context, account string) ([]model.Operation, error)

	// ListOperationsByKind returns all operations of one kind, oldest first.
	ListOperationsByKind(ctx context.Context, kind string) ([]model.Operation, error)

	// InsertEpochRecord appends one epoch allocation record.
	InsertEpochRecord(ctx context.Context, rec *model.EpochRecord) error

	// ListEpochRecords returns the allocation history, oldest first.
	ListEpochRecords(ctx context.Context) ([]model.EpochRecord, error)

	// LatestEpochRecord returns the most recent allocation record.
	LatestEpochRecord(ctx context.Context) (*model.EpochRecord, error)
}
