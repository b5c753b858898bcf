package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vbonduro/rifas/internal/domain"
	"go.uber.org/zap"
)

// AuctionStore persists auctions in SQLite. Bids live in their own table and
// the grid is rebuilt from them on load.
type AuctionStore struct {
	db *sql.DB
}

func NewAuctionStore(db *sql.DB) *AuctionStore {
	return &AuctionStore{db: db}
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const auctionColumns = `id, name, date, min_offer, current_max_offer, image_ref, is_finished, winner_number, created_at, updated_at`

func (s *AuctionStore) Create(ctx context.Context, a *domain.Auction) (*domain.Auction, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO auctions (name, date, min_offer, current_max_offer, image_ref, is_finished, winner_number, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.Name, a.Date, a.MinOffer.String(), a.CurrentMaxOffer.String(), a.ImageRef,
		a.IsFinished, winnerValue(a.WinnerNumber), a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to create auction: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID returns nil, nil when the auction does not exist.
func (s *AuctionStore) GetByID(ctx context.Context, id int64) (*domain.Auction, error) {
	return load(ctx, s.db, id)
}

// List returns summaries of matching auctions in ascending id order. The
// filter runs in Go so that case folding matches the memory store beyond
// ASCII.
func (s *AuctionStore) List(ctx context.Context, search string) ([]*domain.AuctionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.name, a.date, a.current_max_offer, a.image_ref, a.is_finished, a.winner_number,
		       (SELECT COUNT(*) FROM bids b WHERE b.auction_id = a.id)
		FROM auctions a
		ORDER BY a.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list auctions: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Error("failed to close rows", zap.Error(err))
		}
	}()

	summaries := []*domain.AuctionSummary{}
	for rows.Next() {
		var (
			sum     domain.AuctionSummary
			maxOff  string
			winner  sql.NullInt64
			counted int
		)
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.Date, &maxOff, &sum.ImageRef, &sum.IsFinished, &winner, &counted); err != nil {
			return nil, fmt.Errorf("failed to scan auction: %w", err)
		}
		if !domain.MatchesSearch(sum.Name, sum.Date, search) {
			continue
		}
		if sum.CurrentMaxOffer, err = decimal.NewFromString(maxOff); err != nil {
			return nil, fmt.Errorf("corrupt current_max_offer for auction %d: %w", sum.ID, err)
		}
		sum.BidCount = counted
		sum.WinnerNumber = winnerPtr(winner)
		summaries = append(summaries, &sum)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auctions: %w", err)
	}

	return summaries, nil
}

// Mutate loads the auction inside a transaction, applies fn and writes back
// the auction row plus any bids fn appended. If fn fails the transaction is
// rolled back.
func (s *AuctionStore) Mutate(ctx context.Context, id int64, fn func(*domain.Auction) error) (_ *domain.Auction, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			rollback(tx, id)
		}
	}()

	a, err := load(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, domain.ErrNotFound
	}

	persisted := len(a.Bids)
	if err := fn(a); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE auctions
		SET name = ?, date = ?, current_max_offer = ?, is_finished = ?, winner_number = ?, updated_at = ?
		WHERE id = ?
	`, a.Name, a.Date, a.CurrentMaxOffer.String(), a.IsFinished, winnerValue(a.WinnerNumber), a.UpdatedAt.UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update auction: %w", err)
	}

	for _, b := range a.Bids[persisted:] {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO bids (auction_id, number, amount, created_at) VALUES (?, ?, ?, ?)
		`, id, b.Number, b.Amount.String(), b.Timestamp.UTC())
		if err != nil {
			return nil, fmt.Errorf("failed to insert bid: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return a, nil
}

// Delete removes the auction and its bids and returns its last state.
func (s *AuctionStore) Delete(ctx context.Context, id int64) (_ *domain.Auction, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			rollback(tx, id)
		}
	}()

	a, err := load(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, domain.ErrNotFound
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM bids WHERE auction_id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to delete bids: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM auctions WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to delete auction: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return a, nil
}

// rollback aborts tx and logs a failure other than the tx already being done.
func rollback(tx *sql.Tx, id int64) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		zap.L().Error("failed to roll back transaction", zap.Int64("auction_id", id), zap.Error(err))
	}
}

func load(ctx context.Context, q queryer, id int64) (*domain.Auction, error) {
	var (
		a        domain.Auction
		minOff   string
		maxOff   string
		winner   sql.NullInt64
		scanErr  error
		parseErr error
	)
	scanErr = q.QueryRowContext(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &a.Date, &minOff, &maxOff, &a.ImageRef, &a.IsFinished, &winner, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(scanErr, sql.ErrNoRows) {
		return nil, nil
	}
	if scanErr != nil {
		return nil, fmt.Errorf("failed to get auction: %w", scanErr)
	}
	if a.MinOffer, parseErr = decimal.NewFromString(minOff); parseErr != nil {
		return nil, fmt.Errorf("corrupt min_offer for auction %d: %w", id, parseErr)
	}
	if a.CurrentMaxOffer, parseErr = decimal.NewFromString(maxOff); parseErr != nil {
		return nil, fmt.Errorf("corrupt current_max_offer for auction %d: %w", id, parseErr)
	}
	a.WinnerNumber = winnerPtr(winner)

	bids, err := loadBids(ctx, q, id)
	if err != nil {
		return nil, err
	}
	a.Bids = bids
	return &a, nil
}

func loadBids(ctx context.Context, q queryer, auctionID int64) ([]domain.Bid, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT number, amount, created_at FROM bids WHERE auction_id = ? ORDER BY id ASC
	`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Error("failed to close rows", zap.Error(err))
		}
	}()

	bids := []domain.Bid{}
	for rows.Next() {
		var (
			b      domain.Bid
			amount string
		)
		if err := rows.Scan(&b.Number, &amount, &b.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		if b.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("corrupt bid amount for auction %d: %w", auctionID, err)
		}
		bids = append(bids, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bids: %w", err)
	}

	return bids, nil
}

func winnerValue(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

func winnerPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
