package orderflow

import (
	"context"
	"strings"
	"testing"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idx-flow/dates"
	"idx-flow/marketdata"
	"idx-flow/reference"
	"idx-flow/storage"
)

var day = dates.MustParse("2024-03-08")

func testLookup(t *testing.T) *reference.Lookup {
	t.Helper()
	l, err := reference.Parse([]byte(`
brokers:
  - {code: YP, origin: D}
  - {code: CC, origin: D}
  - {code: AK, origin: F}
  - {code: BK, origin: F}
`))
	require.NoError(t, err)
	return l
}

func find(t *testing.T, artifacts []Artifact, key OutputKey) Artifact {
	t.Helper()
	for _, a := range artifacts {
		if a.Key == key {
			return a
		}
	}
	t.Fatalf("artifact %s not produced", key.ObjectKey())
	return Artifact{}
}

func has(artifacts []Artifact, key OutputKey) bool {
	for _, a := range artifacts {
		if a.Key == key {
			return true
		}
	}
	return false
}

func key(broker string, inv InvestorFilter, board BoardFilter) OutputKey {
	return OutputKey{Date: day, Instrument: "BBCA", Broker: broker, Investor: inv, Board: board}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		buy, sell int64
		want      Initiator
	}{
		{buy: 10, sell: 3, want: HAKA},
		{buy: 3, sell: 10, want: HAKI},
		{buy: 7, sell: 7, want: Neither},
	}
	for _, tt := range tests {
		got := Classify(TradePrint{BuyOrderSeq: tt.buy, SellOrderSeq: tt.sell})
		assert.Equal(t, tt.want, got, "buy=%d sell=%d", tt.buy, tt.sell)
	}
}

func TestEnhance(t *testing.T) {
	ref := testLookup(t)

	p := Enhance(TradePrint{BuyerBroker: "AK", SellerBroker: "ZZ"}, ref)
	assert.Equal(t, reference.Foreign, p.BuyerOrigin)
	assert.Equal(t, reference.Domestic, p.SellerOrigin, "unknown broker defaults to domestic")
	assert.Equal(t, BoardRG, p.Board)

	p = Enhance(TradePrint{BuyerBroker: "AK", BuyerOrigin: reference.Domestic, Board: BoardNG}, ref)
	assert.Equal(t, reference.Domestic, p.BuyerOrigin, "origin on the print wins")
	assert.Equal(t, BoardNG, p.Board)

	p = Enhance(TradePrint{BuyerBroker: "AK"}, nil)
	assert.Equal(t, reference.Domestic, p.BuyerOrigin)
}

func TestCombinationsAreExhaustive(t *testing.T) {
	combos := Combinations()
	require.Len(t, combos, 12)

	seen := map[Combination]bool{}
	for _, c := range combos {
		seen[c] = true
	}
	assert.Len(t, seen, 12)
	assert.True(t, seen[Combination{Investor: ForeignOnly, Board: OnlyNG}])
}

func TestDistinctOrdersUseSetSemantics(t *testing.T) {
	prints := []TradePrint{
		{Code: "BBCA", BuyerBroker: "YP", SellerBroker: "CC", Price: 100, Volume: 10, BuyOrderSeq: 50, SellOrderSeq: 1},
		{Code: "BBCA", BuyerBroker: "YP", SellerBroker: "CC", Price: 100, Volume: 20, BuyOrderSeq: 50, SellOrderSeq: 2},
		{Code: "BBCA", BuyerBroker: "YP", SellerBroker: "BK", Price: 100, Volume: 30, BuyOrderSeq: 50, SellOrderSeq: 3},
	}
	out := Decompose(day, prints, testLookup(t))

	yp := find(t, out, key("YP", AllInvestors, AllBoards))
	require.Len(t, yp.Levels, 1)
	assert.Equal(t, Level{
		Price: 100,
		HAKA:  60, SFreq: 3, Sor: 1,
		HAKIPerOrder: "0.00", HAKIPerFreq: "0.00",
		HAKAPerFreq: "20.00", HAKAPerOrder: "60.00",
		TFreq: 3, TLot: 60, TOr: 1,
	}, yp.Levels[0])

	cc := find(t, out, key("CC", AllInvestors, AllBoards))
	assert.Equal(t, int64(-30), cc.Levels[0].HAKA)
	assert.Equal(t, int64(-2), cc.Levels[0].Sor)
	assert.Equal(t, "15.00", cc.Levels[0].HAKAPerOrder)
}

func TestZeroVolumeLevelsAreSuppressed(t *testing.T) {
	prints := []TradePrint{
		{Code: "BBCA", BuyerBroker: "YP", SellerBroker: "CC", Price: 100, Volume: 0, BuyOrderSeq: 9, SellOrderSeq: 1},
		{Code: "BBCA", BuyerBroker: "YP", SellerBroker: "CC", Price: 95, Volume: 40, BuyOrderSeq: 4, SellOrderSeq: 4},
		{Code: "BBCA", BuyerBroker: "YP", SellerBroker: "CC", Price: 105, Volume: 5, BuyOrderSeq: 9, SellOrderSeq: 2},
	}
	out := Decompose(day, prints, testLookup(t))

	yp := find(t, out, key("YP", AllInvestors, AllBoards))
	require.Len(t, yp.Levels, 1)
	assert.Equal(t, int64(105), yp.Levels[0].Price)
}

func TestNoArtifactWhenEveryPrintIsUnclassified(t *testing.T) {
	prints := []TradePrint{
		{Code: "BBCA", BuyerBroker: "YP", SellerBroker: "CC", Price: 95, Volume: 40, BuyOrderSeq: 4, SellOrderSeq: 4},
	}
	assert.Empty(t, Decompose(day, prints, testLookup(t)))
}

func TestZeroDivisorsYieldZeroRatios(t *testing.T) {
	// YP is on both sides of HAKA flow at the same price: every net is zero while
	// raw volume is positive.
	prints := []TradePrint{
		{Code: "BBCA", BuyerBroker: "YP", SellerBroker: "CC", Price: 100, Volume: 10, BuyOrderSeq: 8, SellOrderSeq: 1},
		{Code: "BBCA", BuyerBroker: "CC", SellerBroker: "YP", Price: 100, Volume: 10, BuyOrderSeq: 9, SellOrderSeq: 2},
	}
	out := Decompose(day, prints, testLookup(t))

	yp := find(t, out, key("YP", AllInvestors, AllBoards))
	require.Len(t, yp.Levels, 1)
	l := yp.Levels[0]
	assert.Equal(t, int64(0), l.HAKA)
	assert.Equal(t, int64(0), l.Sor)
	assert.Equal(t, int64(0), l.SFreq)
	for _, r := range []string{l.HAKIPerOrder, l.HAKIPerFreq, l.HAKAPerFreq, l.HAKAPerOrder} {
		assert.Equal(t, "0.00", r)
	}

	data, err := Encode(yp)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "NaN")
	assert.NotContains(t, string(data), "Inf")
}

func TestBoardFilterAppliesBeforeBrokerEnumeration(t *testing.T) {
	prints := []TradePrint{
		{Code: "BBCA", BuyerBroker: "YP", SellerBroker: "CC", Price: 100, Volume: 10, BuyOrderSeq: 5, SellOrderSeq: 1, Board: BoardRG},
		{Code: "BBCA", BuyerBroker: "AK", SellerBroker: "BK", Price: 200, Volume: 7, BuyOrderSeq: 5, SellOrderSeq: 1, Board: BoardTN},
	}
	out := Decompose(day, prints, testLookup(t))

	assert.True(t, has(out, key("AK", AllInvestors, AllBoards)))
	assert.True(t, has(out, key("AK", AllInvestors, OnlyTN)))
	assert.False(t, has(out, key("AK", AllInvestors, OnlyRG)), "AK never traded on RG")
	assert.False(t, has(out, key("YP", AllInvestors, OnlyTN)))
	assert.False(t, has(out, key(AllBrokers, AllInvestors, OnlyNG)), "no NG prints")

	rg := find(t, out, key(AllBrokers, AllInvestors, OnlyRG))
	require.Len(t, rg.Levels, 1)
	assert.Equal(t, int64(100), rg.Levels[0].Price)

	all := find(t, out, key(AllBrokers, AllInvestors, AllBoards))
	require.Len(t, all.Levels, 2)
	assert.Equal(t, int64(200), all.Levels[0].Price, "sorted by price descending")
}

func TestInvestorFilterAppliesPerSide(t *testing.T) {
	// Foreign AK lifts domestic YP's offer.
	prints := []TradePrint{
		{Code: "BBCA", BuyerBroker: "AK", SellerBroker: "YP", Price: 100, Volume: 25, BuyOrderSeq: 30, SellOrderSeq: 10},
	}
	out := Decompose(day, prints, testLookup(t))

	foreign := find(t, out, key(AllBrokers, ForeignOnly, AllBoards))
	assert.Equal(t, int64(25), foreign.Levels[0].HAKA)
	assert.Equal(t, int64(1), foreign.Levels[0].Sor)

	domestic := find(t, out, key(AllBrokers, DomesticOnly, AllBoards))
	assert.Equal(t, int64(-25), domestic.Levels[0].HAKA)
	assert.Equal(t, int64(-1), domestic.Levels[0].Sor)

	both := find(t, out, key(AllBrokers, AllInvestors, AllBoards))
	assert.Equal(t, int64(0), both.Levels[0].HAKA)

	// YP as a broker under the foreign filter has no qualifying side.
	assert.False(t, has(out, key("YP", ForeignOnly, AllBoards)))
	assert.True(t, has(out, key("AK", ForeignOnly, AllBoards)))
}

func TestDecomposeGroupsByInstrument(t *testing.T) {
	prints := []TradePrint{
		{Code: "TLKM", BuyerBroker: "YP", SellerBroker: "CC", Price: 3000, Volume: 1, BuyOrderSeq: 2, SellOrderSeq: 1},
		{Code: "BBCA", BuyerBroker: "YP", SellerBroker: "CC", Price: 9000, Volume: 1, BuyOrderSeq: 2, SellOrderSeq: 1},
	}
	out := Decompose(day, prints, testLookup(t))
	require.NotEmpty(t, out)
	assert.Equal(t, "BBCA", out[0].Key.Instrument)
	assert.Equal(t, "TLKM", out[len(out)-1].Key.Instrument)
}

func TestOutputKeyAndEncoding(t *testing.T) {
	k := OutputKey{Date: day, Instrument: "BBCA", Broker: AllBrokers, Investor: ForeignOnly, Board: OnlyRG}
	assert.Equal(t, "orderflow/2024-03-08/BBCA/ALL/Foreign_RG.csv", k.ObjectKey())

	data, err := Encode(Artifact{Key: k, Levels: []Level{{
		Price: 100, HAKIPerOrder: "1.50", Bor: 2, HAKIPerFreq: "1.00", BFreq: 3, HAKI: 3, HAKA: -4,
		SFreq: -1, HAKAPerFreq: "4.00", Sor: -1, HAKAPerOrder: "4.00", TFreq: 4, TLot: 7, TOr: 3,
	}}})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Price,HAKI/O,Bor,HAKI/F,Bfreq,HAKI,HAKA,Sfreq,HAKA/F,Sor,HAKA/O,Tfreq,TLot,TOr", lines[0])
	assert.Equal(t, "100,1.50,2,1.00,3,3,-4,-1,4.00,-1,4.00,4,7,3", lines[1])
}

func TestWrite(t *testing.T) {
	prints := []TradePrint{
		{Code: "BBCA", BuyerBroker: "YP", SellerBroker: "CC", Price: 100, Volume: 10, BuyOrderSeq: 5, SellOrderSeq: 1},
	}
	out := Decompose(day, prints, testLookup(t))

	store := storage.NewMemoryStore()
	n, err := Write(context.Background(), store, out)
	require.NoError(t, err)
	assert.Equal(t, len(out), n)

	keys, err := store.List(context.Background(), "orderflow/2024-03-08/BBCA/ALL/")
	require.NoError(t, err)
	assert.Contains(t, keys, "orderflow/2024-03-08/BBCA/ALL/All_RG.csv")
}

func TestFromRecords(t *testing.T) {
	recs := []marketdata.TradeRecord{{
		BuyerBroker: " yp", SellerBroker: "ak", Price: null.FloatFrom(101), Volume: null.FloatFrom(3),
		BuyOrderSeq: null.IntFrom(9), SellOrderSeq: null.IntFrom(4), SellerOrigin: "F", Board: "tn",
	}}
	prints := FromRecords("BBCA", recs)
	require.Len(t, prints, 1)
	p := prints[0]
	assert.Equal(t, "BBCA", p.Code)
	assert.Equal(t, "YP", p.BuyerBroker)
	assert.Equal(t, reference.Origin(""), p.BuyerOrigin)
	assert.Equal(t, reference.Foreign, p.SellerOrigin)
	assert.Equal(t, BoardTN, p.Board)
	assert.Equal(t, HAKA, Classify(p))
}

func TestFromRecordsAttributesToFetchedInstrument(t *testing.T) {
	rec := func(code string) marketdata.TradeRecord {
		return marketdata.TradeRecord{
			Code: code, BuyerBroker: "YP", SellerBroker: "CC", Price: null.FloatFrom(100), Volume: null.FloatFrom(1),
			BuyOrderSeq: null.IntFrom(2), SellOrderSeq: null.IntFrom(1), Board: "RG",
		}
	}
	prints := FromRecords("BBCA", []marketdata.TradeRecord{rec("TLKM"), rec("bbca"), rec("")})
	require.Len(t, prints, 2)
	for _, p := range prints {
		assert.Equal(t, "BBCA", p.Code)
	}

	out := Decompose(day, prints, testLookup(t))
	require.NotEmpty(t, out)
	for _, a := range out {
		assert.Equal(t, "BBCA", a.Key.Instrument)
	}
}
