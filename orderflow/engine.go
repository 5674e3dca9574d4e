package orderflow

import (
	"sort"

	"github.com/shopspring/decimal"

	"idx-flow/dates"
	"idx-flow/reference"
)

type sideTotals struct {
	volume int64
	freq   int64
	orders map[int64]struct{}
}

func (s *sideTotals) add(volume, seq int64) {
	if s.orders == nil {
		s.orders = make(map[int64]struct{})
	}
	s.volume += volume
	s.freq++
	s.orders[seq] = struct{}{}
}

// priceBucket holds raw state for one price level. Ratios are derived on output.
type priceBucket struct {
	buyHAKA  sideTotals
	buyHAKI  sideTotals
	sellHAKA sideTotals
	sellHAKI sideTotals
}

func (b *priceBucket) rawVolume() int64 {
	return b.buyHAKA.volume + b.buyHAKI.volume + b.sellHAKA.volume + b.sellHAKI.volume
}

// Decompose builds every artifact for one trading day.
//
// For each instrument and each filter combination the prints are first restricted to
// the board. Brokers are then taken from either side of that restricted set, and the
// investor filter is applied to the buy and sell side independently.
func Decompose(date dates.Day, prints []TradePrint, ref *reference.Lookup) []Artifact {
	byCode := make(map[string][]TradePrint)
	for _, p := range prints {
		p = Enhance(p, ref)
		byCode[p.Code] = append(byCode[p.Code], p)
	}
	codes := make([]string, 0, len(byCode))
	for code := range byCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var out []Artifact
	for _, code := range codes {
		out = append(out, decomposeInstrument(date, code, byCode[code])...)
	}
	return out
}

func decomposeInstrument(date dates.Day, code string, prints []TradePrint) []Artifact {
	var out []Artifact
	for _, combo := range Combinations() {
		restricted := restrictBoard(prints, combo.Board)
		if len(restricted) == 0 {
			continue
		}
		for _, broker := range brokersOf(restricted) {
			levels := derive(aggregate(restricted, broker, combo.Investor))
			if len(levels) == 0 {
				continue
			}
			out = append(out, Artifact{
				Key: OutputKey{
					Date:       date,
					Instrument: code,
					Broker:     broker,
					Investor:   combo.Investor,
					Board:      combo.Board,
				},
				Levels: levels,
			})
		}
	}
	return out
}

func restrictBoard(prints []TradePrint, f BoardFilter) []TradePrint {
	if f == AllBoards {
		return prints
	}
	var out []TradePrint
	for _, p := range prints {
		if f.Matches(p.Board) {
			out = append(out, p)
		}
	}
	return out
}

// brokersOf returns the distinct brokers on either side, sorted, then AllBrokers.
func brokersOf(prints []TradePrint) []string {
	seen := make(map[string]struct{})
	for _, p := range prints {
		if p.BuyerBroker != "" {
			seen[p.BuyerBroker] = struct{}{}
		}
		if p.SellerBroker != "" {
			seen[p.SellerBroker] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen)+1)
	for b := range seen {
		out = append(out, b)
	}
	sort.Strings(out)
	return append(out, AllBrokers)
}

func aggregate(prints []TradePrint, broker string, investor InvestorFilter) map[int64]*priceBucket {
	buckets := make(map[int64]*priceBucket)
	bucket := func(price int64) *priceBucket {
		b, ok := buckets[price]
		if !ok {
			b = &priceBucket{}
			buckets[price] = b
		}
		return b
	}

	all := broker == AllBrokers
	for _, p := range prints {
		kind := Classify(p)
		if kind == Neither {
			continue
		}
		if (all || p.BuyerBroker == broker) && investor.Matches(p.BuyerOrigin) {
			b := bucket(p.Price)
			if kind == HAKA {
				b.buyHAKA.add(p.Volume, p.BuyOrderSeq)
			} else {
				b.buyHAKI.add(p.Volume, p.BuyOrderSeq)
			}
		}
		if (all || p.SellerBroker == broker) && investor.Matches(p.SellerOrigin) {
			b := bucket(p.Price)
			if kind == HAKA {
				b.sellHAKA.add(p.Volume, p.SellOrderSeq)
			} else {
				b.sellHAKI.add(p.Volume, p.SellOrderSeq)
			}
		}
	}
	return buckets
}

// ratio is num/den to 2dp, 0 when den is 0.
func ratio(num, den int64) string {
	if den == 0 {
		return decimal.Zero.StringFixed(2)
	}
	return decimal.NewFromInt(num).DivRound(decimal.NewFromInt(den), 2).StringFixed(2)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func derive(buckets map[int64]*priceBucket) []Level {
	levels := make([]Level, 0, len(buckets))
	for price, b := range buckets {
		if b.rawVolume() <= 0 {
			continue
		}
		l := Level{
			Price: price,
			HAKI:  b.buyHAKI.volume - b.sellHAKI.volume,
			BFreq: b.buyHAKI.freq - b.sellHAKI.freq,
			Bor:   int64(len(b.buyHAKI.orders) - len(b.sellHAKI.orders)),
			HAKA:  b.buyHAKA.volume - b.sellHAKA.volume,
			SFreq: b.buyHAKA.freq - b.sellHAKA.freq,
			Sor:   int64(len(b.buyHAKA.orders) - len(b.sellHAKA.orders)),
		}
		l.HAKIPerOrder = ratio(l.HAKI, l.Bor)
		l.HAKIPerFreq = ratio(l.HAKI, l.BFreq)
		l.HAKAPerFreq = ratio(l.HAKA, l.SFreq)
		l.HAKAPerOrder = ratio(l.HAKA, l.Sor)
		l.TFreq = abs(l.BFreq) + abs(l.SFreq)
		l.TLot = abs(l.HAKI) + abs(l.HAKA)
		l.TOr = abs(l.Bor) + abs(l.Sor)
		levels = append(levels, l)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price > levels[j].Price })
	return levels
}
