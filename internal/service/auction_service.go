package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vbonduro/rifas/internal/domain"
	"github.com/vbonduro/rifas/internal/events"
	"github.com/vbonduro/rifas/internal/imagestore"
	"go.uber.org/zap"
)

// auctionRepository is the subset of the store backends that AuctionService
// requires. Mutate must apply fn atomically per id.
type auctionRepository interface {
	Create(ctx context.Context, a *domain.Auction) (*domain.Auction, error)
	GetByID(ctx context.Context, id int64) (*domain.Auction, error)
	List(ctx context.Context, search string) ([]*domain.AuctionSummary, error)
	Mutate(ctx context.Context, id int64, fn func(*domain.Auction) error) (*domain.Auction, error)
	Delete(ctx context.Context, id int64) (*domain.Auction, error)
}

type AuctionService struct {
	auctions  auctionRepository
	images    imagestore.ImageStore
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures an AuctionService.
type Option func(*AuctionService)

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *AuctionService) { s.now = now }
}

func NewAuctionService(
	auctions auctionRepository,
	images imagestore.ImageStore,
	publisher events.Publisher,
	logger *zap.Logger,
	opts ...Option,
) *AuctionService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	s := &AuctionService{
		auctions:  auctions,
		images:    images,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateAuctionInput struct {
	Name     string
	Date     string
	MinOffer string
	ImageRef string
}

func (s *AuctionService) CreateAuction(ctx context.Context, in CreateAuctionInput) (*domain.Auction, error) {
	a, err := domain.NewAuction(in.Name, in.Date, in.MinOffer, in.ImageRef, s.now().UTC())
	if err != nil {
		return nil, err
	}

	created, err := s.auctions.Create(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("failed to create auction: %w", err)
	}
	s.logger.Info("auction created", zap.Int64("auction_id", created.ID), zap.String("name", created.Name))

	s.publish(ctx, events.Event{Type: events.AuctionCreated, AuctionID: created.ID, At: created.CreatedAt})
	return created, nil
}

// ListAuctions returns a snapshot of matching summaries, oldest first.
func (s *AuctionService) ListAuctions(ctx context.Context, search string) ([]*domain.AuctionSummary, error) {
	summaries, err := s.auctions.List(ctx, search)
	if err != nil {
		return nil, fmt.Errorf("failed to list auctions: %w", err)
	}
	return summaries, nil
}

func (s *AuctionService) GetAuction(ctx context.Context, id int64) (*domain.Auction, error) {
	a, err := s.auctions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}
	if a == nil {
		return nil, domain.ErrNotFound
	}
	return a, nil
}

// PlaceBid reserves number for amount and returns the new current maximum
// offer. number and amount are parsed by the auction rules so that every
// rejection reason is reported in order.
func (s *AuctionService) PlaceBid(ctx context.Context, id int64, number, amount string) (decimal.Decimal, error) {
	var bid domain.Bid
	updated, err := s.auctions.Mutate(ctx, id, func(a *domain.Auction) error {
		var err error
		bid, err = a.PlaceBid(number, amount, s.now().UTC())
		return err
	})
	if err != nil {
		s.logRejection("bid rejected", id, err)
		return decimal.Decimal{}, err
	}
	s.logger.Info("bid accepted",
		zap.Int64("auction_id", id),
		zap.Int("number", bid.Number),
		zap.String("amount", bid.Amount.String()),
	)

	maxOffer := updated.CurrentMaxOffer
	s.publish(ctx, events.Event{
		Type:            events.BidAccepted,
		AuctionID:       id,
		Number:          &bid.Number,
		Amount:          &bid.Amount,
		CurrentMaxOffer: &maxOffer,
		At:              bid.Timestamp,
	})
	return maxOffer, nil
}

// FinalizeAuction closes the auction with the given winning number.
func (s *AuctionService) FinalizeAuction(ctx context.Context, id int64, winner string) (int, error) {
	var number int
	updated, err := s.auctions.Mutate(ctx, id, func(a *domain.Auction) error {
		var err error
		number, err = a.Finalize(winner, s.now().UTC())
		return err
	})
	if err != nil {
		s.logRejection("finalize rejected", id, err)
		return 0, err
	}
	s.logger.Info("auction finalized", zap.Int64("auction_id", id), zap.Int("winner_number", number))

	s.publish(ctx, events.Event{
		Type:         events.AuctionFinalized,
		AuctionID:    id,
		WinnerNumber: &number,
		At:           updated.UpdatedAt,
	})
	return number, nil
}

// UpdateAuction edits name and date of an active auction.
func (s *AuctionService) UpdateAuction(ctx context.Context, id int64, name, date string) (*domain.Auction, error) {
	updated, err := s.auctions.Mutate(ctx, id, func(a *domain.Auction) error {
		return a.Rename(name, date, s.now().UTC())
	})
	if err != nil {
		s.logRejection("update rejected", id, err)
		return nil, err
	}
	s.logger.Info("auction updated", zap.Int64("auction_id", id))

	s.publish(ctx, events.Event{Type: events.AuctionUpdated, AuctionID: id, At: updated.UpdatedAt})
	return updated, nil
}

// DeleteAuction removes the auction regardless of its state. An image kept in
// the image store is removed too; failing to do so is logged only.
func (s *AuctionService) DeleteAuction(ctx context.Context, id int64) error {
	deleted, err := s.auctions.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete auction: %w", err)
	}
	s.logger.Info("auction deleted", zap.Int64("auction_id", id))

	if key := deleted.ImageRef; key != "" && s.images != nil && IsImageKey(key) {
		if err := s.images.Delete(ctx, key); err != nil && !errors.Is(err, imagestore.ErrNotFound) {
			s.logger.Error("failed to delete auction image", zap.Int64("auction_id", id), zap.String("storage_key", key), zap.Error(err))
		}
	}

	s.publish(ctx, events.Event{Type: events.AuctionDeleted, AuctionID: id, At: s.now().UTC()})
	return nil
}

// ImageRefs returns the image reference of every auction.
func (s *AuctionService) ImageRefs(ctx context.Context) (map[string]struct{}, error) {
	summaries, err := s.auctions.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list auctions: %w", err)
	}
	refs := make(map[string]struct{}, len(summaries))
	for _, sum := range summaries {
		if sum.ImageRef != "" {
			refs[sum.ImageRef] = struct{}{}
		}
	}
	return refs, nil
}

func (s *AuctionService) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("failed to publish event",
			zap.String("type", string(e.Type)),
			zap.Int64("auction_id", e.AuctionID),
			zap.Error(err),
		)
	}
}

func (s *AuctionService) logRejection(msg string, id int64, err error) {
	kind := domain.KindOf(err)
	if kind == domain.KindInternal {
		s.logger.Error(msg, zap.Int64("auction_id", id), zap.Error(err))
		return
	}
	s.logger.Debug(msg, zap.Int64("auction_id", id), zap.Stringer("kind", kind), zap.Error(err))
}
