package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openpredict/predictiondao/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `id, question, creator, creator_bond, end_time, snapshot_block,
	pool_yes, pool_no, betting_closed, resolved, outcome, resolved_at,
	resolver, resolver_bond, resolver_paid, bond_returned, related_proposal,
	created_at`

// Upsert writes the current snapshot of a market. Amounts are stored as
// NUMERIC so they survive the full big.Int range.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, question, creator, creator_bond, end_time, snapshot_block,
			pool_yes, pool_no, betting_closed, resolved, outcome, resolved_at,
			resolver, resolver_bond, resolver_paid, bond_returned, related_proposal,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17,
			$18, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			snapshot_block   = EXCLUDED.snapshot_block,
			pool_yes         = EXCLUDED.pool_yes,
			pool_no          = EXCLUDED.pool_no,
			betting_closed   = EXCLUDED.betting_closed,
			resolved         = EXCLUDED.resolved,
			outcome          = EXCLUDED.outcome,
			resolved_at      = EXCLUDED.resolved_at,
			resolver         = EXCLUDED.resolver,
			resolver_bond    = EXCLUDED.resolver_bond,
			resolver_paid    = EXCLUDED.resolver_paid,
			bond_returned    = EXCLUDED.bond_returned,
			related_proposal = EXCLUDED.related_proposal,
			updated_at       = NOW()`

	_, err := s.pool.Exec(ctx, query,
		m.ID, m.Question, m.Creator.Hex(), numStr(m.CreatorBond),
		m.EndTime, m.SnapshotBlock,
		numStr(m.PoolYes), numStr(m.PoolNo),
		m.BettingClosed, m.Resolved, m.Outcome, nullTime(m.ResolvedAt),
		m.Resolver.Hex(), numStr(m.ResolverBond), m.ResolverPaid, m.BondReturned,
		m.RelatedProposal, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %d: %w", m.ID, err)
	}
	return nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id uint64) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %d: %w", id, err)
	}
	return m, nil
}

// List returns markets ordered by id with pagination.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets ORDER BY id`
	args := []any{}
	argIdx := 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets in the database.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m                         domain.Market
		creator, resolver         string
		creatorBond, resolverBond string
		poolYes, poolNo           string
		resolvedAt                *time.Time
	)
	err := row.Scan(
		&m.ID, &m.Question, &creator, &creatorBond, &m.EndTime, &m.SnapshotBlock,
		&poolYes, &poolNo, &m.BettingClosed, &m.Resolved, &m.Outcome, &resolvedAt,
		&resolver, &resolverBond, &m.ResolverPaid, &m.BondReturned, &m.RelatedProposal,
		&m.CreatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Creator = common.HexToAddress(creator)
	m.Resolver = common.HexToAddress(resolver)
	m.CreatorBond = parseNum(creatorBond)
	m.ResolverBond = parseNum(resolverBond)
	m.PoolYes = parseNum(poolYes)
	m.PoolNo = parseNum(poolNo)
	if resolvedAt != nil {
		m.ResolvedAt = *resolvedAt
	}
	return m, nil
}

// nullTime maps the zero time to NULL.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// numStr renders a big.Int for a NUMERIC column; nil stores as zero.
func numStr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// parseNum reads a NUMERIC column back into a big.Int.
func parseNum(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}
