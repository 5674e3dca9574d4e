package orderflow

import (
	"math"
	"strings"

	"idx-flow/marketdata"
	"idx-flow/reference"
)

// Initiator says which side crossed the spread.
type Initiator int

const (
	Neither Initiator = iota
	HAKA
	HAKI
)

func (i Initiator) String() string {
	switch i {
	case HAKA:
		return "HAKA"
	case HAKI:
		return "HAKI"
	}
	return "neither"
}

// Classify marks a print as buyer-initiated when the buy order arrived later
// (higher sequence) and seller-initiated when the sell order did. Equal sequences
// are neither.
func Classify(p TradePrint) Initiator {
	switch {
	case p.BuyOrderSeq > p.SellOrderSeq:
		return HAKA
	case p.SellOrderSeq > p.BuyOrderSeq:
		return HAKI
	}
	return Neither
}

// Enhance fills unspecified origins from the broker table, then Domestic, and an
// unspecified board with RG.
func Enhance(p TradePrint, ref *reference.Lookup) TradePrint {
	p.BuyerOrigin = resolveOrigin(p.BuyerOrigin, p.BuyerBroker, ref)
	p.SellerOrigin = resolveOrigin(p.SellerOrigin, p.SellerBroker, ref)
	if p.Board == "" {
		p.Board = BoardRG
	}
	return p
}

func resolveOrigin(o reference.Origin, broker string, ref *reference.Lookup) reference.Origin {
	if o != "" {
		return o
	}
	if ref != nil {
		if known, ok := ref.BrokerOrigin(broker); ok {
			return known
		}
	}
	return reference.Domestic
}

// FromRecords converts validated tape records fetched for code. Every print is
// attributed to code; a record naming another instrument is dropped.
func FromRecords(code string, recs []marketdata.TradeRecord) []TradePrint {
	code = strings.ToUpper(strings.TrimSpace(code))
	out := make([]TradePrint, 0, len(recs))
	for _, r := range recs {
		if rc := strings.ToUpper(strings.TrimSpace(r.Code)); rc != "" && rc != code {
			continue
		}
		p := TradePrint{
			Code:         code,
			BuyerBroker:  strings.ToUpper(strings.TrimSpace(r.BuyerBroker)),
			SellerBroker: strings.ToUpper(strings.TrimSpace(r.SellerBroker)),
			Price:        int64(math.Round(r.Price.Float64)),
			Volume:       int64(math.Round(r.Volume.Float64)),
			BuyOrderSeq:  r.BuyOrderSeq.Int64,
			SellOrderSeq: r.SellOrderSeq.Int64,
			Board:        Board(strings.ToUpper(strings.TrimSpace(r.Board))),
		}
		if o, ok := reference.ParseOrigin(r.BuyerOrigin); ok {
			p.BuyerOrigin = o
		}
		if o, ok := reference.ParseOrigin(r.SellerOrigin); ok {
			p.SellerOrigin = o
		}
		out = append(out, p)
	}
	return out
}
