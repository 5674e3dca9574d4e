package inventory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idx-flow/dates"
	"idx-flow/storage"
	"idx-flow/timeseries"
)

func sum(day, broker string, buy, sell int64) timeseries.Summary {
	return timeseries.Summary{
		Day:        dates.MustParse(day),
		Broker:     broker,
		BuyVolume:  decimal.NewFromInt(buy),
		SellVolume: decimal.NewFromInt(sell),
	}
}

func TestCalculateBaselineAndCumulative(t *testing.T) {
	summaries := []timeseries.Summary{
		sum("2024-03-01", "YP", 100, 0), // before the window
		sum("2024-03-04", "YP", 50, 20),
		sum("2024-03-04", "YP", 10, 0),
		sum("2024-03-06", "YP", 0, 70),
		sum("2024-03-05", "N/A", 0, 0),
	}
	got := Calculate("BBCA", summaries, dates.MustParse("2024-03-04"), dates.MustParse("2024-03-08"))
	require.Len(t, got, 1)

	yp := got["YP"]
	require.Len(t, yp, 3)

	assert.Equal(t, dates.MustParse("2024-03-06"), yp[0].Date)
	assert.Equal(t, "-70", yp[0].NetBuy.String())
	assert.Equal(t, "-30", yp[0].Cumulative.String())

	assert.Equal(t, "40", yp[1].NetBuy.String())
	assert.Equal(t, "40", yp[1].Cumulative.String())

	base := yp[2]
	assert.True(t, base.Baseline)
	assert.Equal(t, dates.MustParse("2024-03-03"), base.Date)
	assert.True(t, base.Cumulative.IsZero())
}

func TestWriteInventoryFiles(t *testing.T) {
	byBroker := Calculate("BBCA", []timeseries.Summary{
		sum("2024-03-04", "YP", 5, 1),
		sum("2024-03-04", "AK", 1, 5),
	}, dates.MustParse("2024-03-04"), dates.MustParse("2024-03-04"))

	store := storage.NewMemoryStore()
	n, err := Write(context.Background(), store, "BBCA", byBroker)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := store.Get(context.Background(), "inventory/AK/BBCA.csv")
	require.NoError(t, err)
	assert.Equal(t,
		"date,broker,code,net_buy_volume,cumulative_net_buy_volume\n"+
			"2024-03-04,AK,BBCA,-4,-4\n"+
			"2024-03-03,AK,BBCA,0,0\n",
		string(data))
}
