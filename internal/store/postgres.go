package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pegdao/policy-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) InsertOperation(ctx context.Context, op *model.Operation) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO operations (id, account, kind, amount, price, epoch, timestamp)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6, $7)`,
		op.ID, op.Account, op.Kind,
		op.Amount.String(), op.Price.String(),
		op.Epoch, op.Timestamp,
	)
	return err
}

func (s *PostgresStore) ListOperationsByAccount(ctx context.Context, account string) ([]model.Operation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account, kind, amount::TEXT, price::TEXT, epoch, timestamp
		 FROM operations WHERE account = $1 ORDER BY timestamp`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOperations(rows)
}

func (s *PostgresStore) ListOperationsByKind(ctx context.Context, kind string) ([]model.Operation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account, kind, amount::TEXT, price::TEXT, epoch, timestamp
		 FROM operations WHERE kind = $1 ORDER BY timestamp`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOperations(rows)
}

func (s *PostgresStore) InsertEpochRecord(ctx context.Context, rec *model.EpochRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO epochs (epoch, price, expanded, to_fund, to_liquidity, to_reserve, to_boardroom, timestamp)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8)`,
		rec.Epoch, rec.Price.String(), rec.Expanded.String(),
		rec.ToFund.String(), rec.ToLiquidity.String(),
		rec.ToReserve.String(), rec.ToBoardroom.String(),
		rec.Timestamp,
	)
	return err
}

func (s *PostgresStore) ListEpochRecords(ctx context.Context) ([]model.EpochRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT epoch, price::TEXT, expanded::TEXT, to_fund::TEXT, to_liquidity::TEXT,
		        to_reserve::TEXT, to_boardroom::TEXT, timestamp
		 FROM epochs ORDER BY epoch`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.EpochRecord
	for rows.Next() {
		rec, err := scanEpochRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) LatestEpochRecord(ctx context.Context) (*model.EpochRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT epoch, price::TEXT, expanded::TEXT, to_fund::TEXT, to_liquidity::TEXT,
		        to_reserve::TEXT, to_boardroom::TEXT, timestamp
		 FROM epochs ORDER BY epoch DESC LIMIT 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, fmt.Errorf("no epoch records")
	}
	return scanEpochRecord(rows)
}

// pgxRows is the subset of pgx.Rows the scanners need.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanOperations(rows pgxRows) ([]model.Operation, error) {
	var ops []model.Operation
	for rows.Next() {
		var op model.Operation
		var amountS, priceS string
		if err := rows.Scan(&op.ID, &op.Account, &op.Kind, &amountS, &priceS,
			&op.Epoch, &op.Timestamp); err != nil {
			return nil, err
		}
		op.Amount, _ = decimal.NewFromString(amountS)
		op.Price, _ = decimal.NewFromString(priceS)
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

func scanEpochRecord(rows pgxRows) (*model.EpochRecord, error) {
	var rec model.EpochRecord
	var priceS, expandedS, fundS, liqS, reserveS, brdS string
	if err := rows.Scan(&rec.Epoch, &priceS, &expandedS, &fundS, &liqS,
		&reserveS, &brdS, &rec.Timestamp); err != nil {
		return nil, err
	}
	rec.Price, _ = decimal.NewFromString(priceS)
	rec.Expanded, _ = decimal.NewFromString(expandedS)
	rec.ToFund, _ = decimal.NewFromString(fundS)
	rec.ToLiquidity, _ = decimal.NewFromString(liqS)
	rec.ToReserve, _ = decimal.NewFromString(reserveS)
	rec.ToBoardroom, _ = decimal.NewFromString(brdS)
	return &rec, nil
}
