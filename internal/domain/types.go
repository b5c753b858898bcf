package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// GridSize is the side of the square number grid.
	GridSize = 10
	// MaxNumber is the highest number a bid can reserve.
	MaxNumber = GridSize*GridSize - 1
)

type CellState int

const (
	CellFree CellState = iota
	CellReserved
)

// Grid is indexed as grid[n/GridSize][n%GridSize].
type Grid [GridSize][GridSize]CellState

// Cell returns the state of number n. n must be in [0, MaxNumber].
func (g *Grid) Cell(n int) CellState {
	return g[n/GridSize][n%GridSize]
}

func (g *Grid) reserve(n int) {
	g[n/GridSize][n%GridSize] = CellReserved
}

type Bid struct {
	Number    int
	Amount    decimal.Decimal
	Timestamp time.Time
}

type Auction struct {
	ID              int64
	Name            string
	Date            string
	MinOffer        decimal.Decimal
	Bids            []Bid
	CurrentMaxOffer decimal.Decimal
	// ImageRef is either an image store key or an absolute URL. Empty means
	// the auction has no image.
	ImageRef     string
	IsFinished   bool
	WinnerNumber *int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AuctionSummary is the list projection of an Auction. It never carries the
// grid or the bid history.
type AuctionSummary struct {
	ID              int64
	Name            string
	Date            string
	CurrentMaxOffer decimal.Decimal
	BidCount        int
	ImageRef        string
	IsFinished      bool
	WinnerNumber    *int
}

// Grid derives cell occupancy from the bid list, so a cell is reserved iff
// some bid holds its number.
func (a *Auction) Grid() Grid {
	var g Grid
	for _, b := range a.Bids {
		g.reserve(b.Number)
	}
	return g
}

func (a *Auction) IsReserved(n int) bool {
	for _, b := range a.Bids {
		if b.Number == n {
			return true
		}
	}
	return false
}

func (a *Auction) Summary() *AuctionSummary {
	return &AuctionSummary{
		ID:              a.ID,
		Name:            a.Name,
		Date:            a.Date,
		CurrentMaxOffer: a.CurrentMaxOffer,
		BidCount:        len(a.Bids),
		ImageRef:        a.ImageRef,
		IsFinished:      a.IsFinished,
		WinnerNumber:    copyInt(a.WinnerNumber),
	}
}

// Matches reports whether the auction passes a list filter.
func (a *Auction) Matches(term string) bool {
	return MatchesSearch(a.Name, a.Date, term)
}

// MatchesSearch matches term against name case-insensitively or against date
// literally. An empty term matches everything.
func MatchesSearch(name, date, term string) bool {
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(term)) ||
		strings.Contains(date, term)
}

// Clone returns a deep copy that shares no mutable state with a.
func (a *Auction) Clone() *Auction {
	c := *a
	c.Bids = make([]Bid, len(a.Bids))
	copy(c.Bids, a.Bids)
	c.WinnerNumber = copyInt(a.WinnerNumber)
	return &c
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
