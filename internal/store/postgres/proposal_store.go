package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openpredict/predictiondao/internal/domain"
)

// ProposalStore implements domain.ProposalStore using PostgreSQL.
type ProposalStore struct {
	pool *pgxpool.Pool
}

// NewProposalStore creates a new ProposalStore backed by the given connection pool.
func NewProposalStore(pool *pgxpool.Pool) *ProposalStore {
	return &ProposalStore{pool: pool}
}

const proposalCols = `id, market_id, description, execute_yes, snapshot_block,
	deadline, votes_for, votes_against, executed, created_at`

// Upsert writes the current snapshot of a dispute proposal.
func (s *ProposalStore) Upsert(ctx context.Context, p domain.Proposal) error {
	const query = `
		INSERT INTO proposals (
			id, market_id, description, execute_yes, snapshot_block,
			deadline, votes_for, votes_against, executed, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			votes_for     = EXCLUDED.votes_for,
			votes_against = EXCLUDED.votes_against,
			executed      = EXCLUDED.executed,
			updated_at    = NOW()`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.MarketID, p.Description, p.ExecuteYes, p.SnapshotBlock,
		p.Deadline, numStr(p.VotesFor), numStr(p.VotesAgainst), p.Executed, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert proposal %d: %w", p.ID, err)
	}
	return nil
}

// GetByID retrieves a proposal by its primary key.
func (s *ProposalStore) GetByID(ctx context.Context, id uint64) (domain.Proposal, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+proposalCols+` FROM proposals WHERE id = $1`, id)
	p, err := scanProposal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Proposal{}, domain.ErrNotFound
		}
		return domain.Proposal{}, fmt.Errorf("postgres: get proposal %d: %w", id, err)
	}
	return p, nil
}

// ListByMarket returns the proposals filed against a market, oldest first.
func (s *ProposalStore) ListByMarket(ctx context.Context, marketID uint64) ([]domain.Proposal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+proposalCols+` FROM proposals WHERE market_id = $1 ORDER BY id`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list proposals for market %d: %w", marketID, err)
	}
	defer rows.Close()

	var proposals []domain.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan proposal: %w", err)
		}
		proposals = append(proposals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list proposals rows: %w", err)
	}
	return proposals, nil
}

// scanProposal scans a single proposal row into a domain.Proposal.
func scanProposal(row pgx.Row) (domain.Proposal, error) {
	var (
		p                      domain.Proposal
		votesFor, votesAgainst string
	)
	err := row.Scan(
		&p.ID, &p.MarketID, &p.Description, &p.ExecuteYes, &p.SnapshotBlock,
		&p.Deadline, &votesFor, &votesAgainst, &p.Executed, &p.CreatedAt,
	)
	if err != nil {
		return domain.Proposal{}, err
	}
	p.VotesFor = parseNum(votesFor)
	p.VotesAgainst = parseNum(votesAgainst)
	return p, nil
}
