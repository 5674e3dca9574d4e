package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idx-flow/auth"
	"idx-flow/dates"
)

func TestClientFetchRequestShape(t *testing.T) {
	var gotPath, gotAuth, gotStart, gotEnd string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotStart = r.URL.Query().Get("start")
		gotEnd = r.URL.Query().Get("end")
		_, _ = w.Write([]byte(`[{"date":"2024-03-01"},{"date":"2024-03-04"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", auth.StaticToken("secret"), time.Second)
	recs, err := c.Fetch(context.Background(), "BBCA", dates.MustParse("2024-02-23"), dates.MustParse("2024-03-01"), Daily)
	require.NoError(t, err)

	assert.Len(t, recs, 2)
	assert.Equal(t, "/daily/BBCA", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "2024-02-23", gotStart)
	assert.Equal(t, "2024-03-01", gotEnd)
}

func TestClientFetchResponses(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantLen   int
		wantErrAs interface{}
		wantErr   bool
	}{
		{name: "null body", status: 200, body: "null"},
		{name: "empty array", status: 200, body: "[]"},
		{name: "null data", status: 200, body: `{"data":null}`},
		{name: "empty body", status: 200, body: ""},
		{name: "wrapped data", status: 200, body: `{"data":[{"a":1}]}`, wantLen: 1},
		{name: "error message", status: 200, body: `{"error":"bad request window"}`, wantErrAs: new(*DataError), wantErr: true},
		{name: "error flag", status: 200, body: `{"error":true,"message":"boom"}`, wantErrAs: new(*DataError), wantErr: true},
		{name: "error false", status: 200, body: `{"error":false,"data":[{}]}`, wantLen: 1},
		{name: "not found", status: 404, body: `{"message":"unknown"}`, wantErrAs: new(*NotAvailableError), wantErr: true},
		{name: "server error", status: 502, body: "bad gateway", wantErr: true},
		{name: "garbage", status: 200, body: "<html>", wantErrAs: new(*DataError), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, auth.StaticToken("t"), time.Second)
			recs, err := c.Fetch(context.Background(), "XYZZ", dates.MustParse("2024-03-01"), dates.MustParse("2024-03-01"), Daily)

			if tt.wantErr {
				require.Error(t, err)
				switch target := tt.wantErrAs.(type) {
				case **DataError:
					assert.True(t, errors.As(err, target))
				case **NotAvailableError:
					require.True(t, errors.As(err, target))
					assert.Equal(t, 404, (*target).StatusCode)
				}
				return
			}
			require.NoError(t, err)
			assert.Len(t, recs, tt.wantLen)
		})
	}
}

func TestClientFetchTimeoutIsTransportError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL, auth.StaticToken("t"), 50*time.Millisecond)
	_, err := c.Fetch(context.Background(), "BBCA", dates.MustParse("2024-03-01"), dates.MustParse("2024-03-01"), Daily)
	require.Error(t, err)

	var na *NotAvailableError
	var de *DataError
	assert.False(t, errors.As(err, &na))
	assert.False(t, errors.As(err, &de))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClientFetchWithoutToken(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", auth.StaticToken(""), time.Second)
	_, err := c.Fetch(context.Background(), "BBCA", dates.MustParse("2024-03-01"), dates.MustParse("2024-03-01"), Daily)
	assert.True(t, errors.Is(err, auth.ErrNoToken))
}

func TestDecodeDropsMalformedRecords(t *testing.T) {
	raw := []json.RawMessage{
		json.RawMessage(`{"date":"2024-03-01","open":1,"high":2,"low":1,"close":2,"volume":0,"value":0}`),
		json.RawMessage(`{"date":"2024-03-02","open":null,"high":2,"low":1,"close":2,"volume":10,"value":20}`),
		json.RawMessage(`{"open":1,"high":2,"low":1,"close":2,"volume":10,"value":20}`),
		json.RawMessage(`{"date":"2024-03-04","open":1,"high":2,"low":1,"close":-2,"volume":10,"value":20}`),
		json.RawMessage(`not json`),
	}

	bars, dropped := Decode[DailyBar]("BBCA", raw)
	require.Len(t, bars, 1)
	assert.Equal(t, 4, dropped)
	assert.Equal(t, "2024-03-01", bars[0].Date)
	assert.True(t, bars[0].Volume.Valid)
	assert.Equal(t, 0.0, bars[0].Volume.Float64)
}

func TestDecodeTradeRecords(t *testing.T) {
	raw := []json.RawMessage{
		json.RawMessage(`{"buyer_broker":"YP","seller_broker":"CC","price":100,"volume":5,"buy_order_seq":10,"sell_order_seq":3,"board":"RG"}`),
		json.RawMessage(`{"buyer_broker":"YP","seller_broker":"CC","price":100,"volume":5,"buy_order_seq":10,"sell_order_seq":3,"board":"XX"}`),
		json.RawMessage(`{"buyer_broker":"YP","seller_broker":"CC","price":100,"volume":5,"buy_order_seq":null,"sell_order_seq":3}`),
	}

	trades, dropped := Decode[TradeRecord]("BBCA", raw)
	require.Len(t, trades, 1)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, int64(10), trades[0].BuyOrderSeq.Int64)
}

func TestDecodeTradeRecordsFoldsCase(t *testing.T) {
	raw := []json.RawMessage{
		json.RawMessage(`{"code":"bbca","buyer_broker":"yp","seller_broker":" cc","price":100,"volume":5,"buy_order_seq":10,"sell_order_seq":3,"board":"rg","buyer_origin":"foreign","seller_origin":"d"}`),
		json.RawMessage(`{"buyer_broker":"YP","seller_broker":"CC","price":100,"volume":5,"buy_order_seq":10,"sell_order_seq":3,"board":" tn "}`),
		json.RawMessage(`{"buyer_broker":"YP","seller_broker":"CC","price":100,"volume":5,"buy_order_seq":10,"sell_order_seq":3,"buyer_origin":"offshore"}`),
	}

	trades, dropped := Decode[TradeRecord]("BBCA", raw)
	require.Len(t, trades, 2)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, "RG", trades[0].Board)
	assert.Equal(t, "BBCA", trades[0].Code)
	assert.Equal(t, "CC", trades[0].SellerBroker)
	assert.Equal(t, "FOREIGN", trades[0].BuyerOrigin)
	assert.Equal(t, "TN", trades[1].Board)
}
