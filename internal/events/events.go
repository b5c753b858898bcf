// Package events fans out notifications about committed auction changes to
// live websocket clients and to other processes.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type Type string

const (
	AuctionCreated   Type = "auction_created"
	AuctionUpdated   Type = "auction_updated"
	BidAccepted      Type = "bid_accepted"
	AuctionFinalized Type = "auction_finalized"
	AuctionDeleted   Type = "auction_deleted"
)

// Event describes one committed change. Optional fields are set only for the
// event types they belong to.
type Event struct {
	Type            Type             `json:"type"`
	AuctionID       int64            `json:"auctionId"`
	Number          *int             `json:"number,omitempty"`
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	CurrentMaxOffer *decimal.Decimal `json:"currentMaxOffer,omitempty"`
	WinnerNumber    *int             `json:"winnerNumber,omitempty"`
	At              time.Time        `json:"at"`
}

func (e Event) encode() ([]byte, error) {
	return json.Marshal(e)
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi publishes to every member and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps every published event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of the recorded events in publish order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
