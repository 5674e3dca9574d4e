// Package orderflow decomposes a day's matched prints into buyer-initiated (HAKA) and
// seller-initiated (HAKI) flow per price level, broker, investor origin and board.
package orderflow

import (
	"fmt"

	"idx-flow/dates"
	"idx-flow/reference"
)

// Board is the market segment a trade executed on.
type Board string

const (
	BoardRG Board = "RG"
	BoardTN Board = "TN"
	BoardNG Board = "NG"
)

// InvestorFilter restricts each side of a print to one counterparty origin.
type InvestorFilter string

const (
	AllInvestors InvestorFilter = "All"
	DomesticOnly InvestorFilter = "Domestic"
	ForeignOnly  InvestorFilter = "Foreign"
)

// Matches reports whether a side with origin o passes the filter.
func (f InvestorFilter) Matches(o reference.Origin) bool {
	switch f {
	case DomesticOnly:
		return o == reference.Domestic
	case ForeignOnly:
		return o == reference.Foreign
	default:
		return true
	}
}

// BoardFilter restricts prints to one board.
type BoardFilter string

const (
	AllBoards BoardFilter = "All"
	OnlyRG    BoardFilter = "RG"
	OnlyTN    BoardFilter = "TN"
	OnlyNG    BoardFilter = "NG"
)

// Matches reports whether a print on b passes the filter.
func (f BoardFilter) Matches(b Board) bool {
	return f == AllBoards || string(f) == string(b)
}

// Combination is one cell of the investor × board cross-product.
type Combination struct {
	Investor InvestorFilter
	Board    BoardFilter
}

var (
	investorFilters = [...]InvestorFilter{AllInvestors, DomesticOnly, ForeignOnly}
	boardFilters    = [...]BoardFilter{AllBoards, OnlyRG, OnlyTN, OnlyNG}
)

// Combinations enumerates all 12 filter combinations, investor-major.
func Combinations() []Combination {
	out := make([]Combination, 0, len(investorFilters)*len(boardFilters))
	for _, inv := range investorFilters {
		for _, b := range boardFilters {
			out = append(out, Combination{Investor: inv, Board: b})
		}
	}
	return out
}

// AllBrokers is the synthetic broker aggregating every member.
const AllBrokers = "ALL"

// OutputKey identifies one artifact.
type OutputKey struct {
	Date       dates.Day
	Instrument string
	Broker     string
	Investor   InvestorFilter
	Board      BoardFilter
}

// ObjectKey is orderflow/<date>/<CODE>/<BROKER|ALL>/<INVESTOR>_<BOARD>.csv.
func (k OutputKey) ObjectKey() string {
	return fmt.Sprintf("orderflow/%s/%s/%s/%s_%s.csv", k.Date, k.Instrument, k.Broker, k.Investor, k.Board)
}

// TradePrint is one matched record of the transaction tape. Empty origins and board
// mean unspecified.
type TradePrint struct {
	Code         string
	BuyerBroker  string
	SellerBroker string
	Price        int64
	Volume       int64
	BuyOrderSeq  int64
	SellOrderSeq int64
	BuyerOrigin  reference.Origin
	SellerOrigin reference.Origin
	Board        Board
}

// Level is one output row.
type Level struct {
	Price int64

	HAKI  int64
	BFreq int64
	Bor   int64
	HAKA  int64
	SFreq int64
	Sor   int64

	HAKIPerOrder string
	HAKIPerFreq  string
	HAKAPerFreq  string
	HAKAPerOrder string

	TFreq int64
	TLot  int64
	TOr   int64
}

// Artifact is the price ladder for one OutputKey, sorted by price descending.
type Artifact struct {
	Key    OutputKey
	Levels []Level
}
