package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NewAuction validates the creation input and returns an active auction with
// an empty grid. The ID is left zero for the store to assign.
func NewAuction(name, date, minOffer, imageRef string, at time.Time) (*Auction, error) {
	name = strings.TrimSpace(name)
	date = strings.TrimSpace(date)

	var bad []string
	if name == "" {
		bad = append(bad, "name")
	}
	if date == "" {
		bad = append(bad, "date")
	}
	floor, err := parseDecimal(minOffer)
	if err != nil || floor.IsNegative() {
		bad = append(bad, "minOffer")
	}
	if len(bad) > 0 {
		return nil, InvalidFields(bad...)
	}

	return &Auction{
		Name:            name,
		Date:            date,
		MinOffer:        floor,
		Bids:            []Bid{},
		CurrentMaxOffer: decimal.Zero,
		ImageRef:        strings.TrimSpace(imageRef),
		CreatedAt:       at,
		UpdatedAt:       at,
	}, nil
}

// PlaceBid reserves number for amount. Checks run in a fixed order and the
// first failure is returned with the auction untouched.
func (a *Auction) PlaceBid(number, amount string, at time.Time) (Bid, error) {
	if a.IsFinished {
		return Bid{}, ErrAuctionFinished
	}
	n, ok := parseNumber(number)
	if !ok {
		return Bid{}, ErrNumberOutOfRange
	}
	amt, err := parseDecimal(amount)
	if err != nil {
		return Bid{}, ErrAmountInvalid
	}
	if a.IsReserved(n) {
		return Bid{}, ErrNumberUnavailable
	}
	if amt.LessThan(a.MinOffer) {
		return Bid{}, ErrBelowMinimum
	}
	if amt.LessThanOrEqual(a.CurrentMaxOffer) {
		return Bid{}, ErrNotNewMaximum
	}

	bid := Bid{Number: n, Amount: amt, Timestamp: at}
	a.Bids = append(a.Bids, bid)
	a.CurrentMaxOffer = amt
	a.UpdatedAt = at
	return bid, nil
}

// Finalize closes the auction with winner, which must be a reserved number.
// It can succeed at most once.
func (a *Auction) Finalize(winner string, at time.Time) (int, error) {
	if a.IsFinished {
		return 0, ErrAlreadyFinished
	}
	n, ok := parseNumber(winner)
	if !ok {
		return 0, ErrWinnerOutOfRange
	}
	if !a.IsReserved(n) {
		return 0, ErrWinnerNotReserved
	}

	a.IsFinished = true
	a.WinnerNumber = &n
	a.UpdatedAt = at
	return n, nil
}

// Rename edits the metadata of an active auction. Grid, bids and offers are
// never touched.
func (a *Auction) Rename(name, date string, at time.Time) error {
	if a.IsFinished {
		return ErrFinished
	}
	name = strings.TrimSpace(name)
	date = strings.TrimSpace(date)

	var bad []string
	if name == "" {
		bad = append(bad, "name")
	}
	if date == "" {
		bad = append(bad, "date")
	}
	if len(bad) > 0 {
		return InvalidFields(bad...)
	}

	a.Name = name
	a.Date = date
	a.UpdatedAt = at
	return nil
}

const (
	maxDecimalLen = 40
	// Exponents outside this window make comparisons rescale huge big.Ints.
	minDecimalExp = -18
	maxDecimalExp = 18
)

var errDecimalBounds = errors.New("decimal outside supported bounds")

// parseDecimal parses s as an exact decimal. Over-long input and exponents
// outside [minDecimalExp, maxDecimalExp] are rejected before any arithmetic.
func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if len(s) > maxDecimalLen {
		return decimal.Decimal{}, errDecimalBounds
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if exp := d.Exponent(); exp < minDecimalExp || exp > maxDecimalExp {
		return decimal.Decimal{}, errDecimalBounds
	}
	return d, nil
}

// parseNumber accepts any integral value in [0, MaxNumber], including forms
// such as "7.0" that JSON clients produce.
func parseNumber(s string) (int, bool) {
	d, err := parseDecimal(s)
	if err != nil || !d.IsInteger() {
		return 0, false
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(MaxNumber)) {
		return 0, false
	}
	return int(d.IntPart()), true
}
