package marketdata

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/guregu/null/v6"
	"github.com/rs/zerolog/log"
)

// DailyBar is one record of the daily granularity.
type DailyBar struct {
	Date      string     `json:"date" validate:"required"`
	Open      null.Float `json:"open" validate:"gte=0"`
	High      null.Float `json:"high" validate:"gte=0"`
	Low       null.Float `json:"low" validate:"gte=0"`
	Close     null.Float `json:"close" validate:"gte=0"`
	Volume    null.Float `json:"volume" validate:"gte=0"`
	Value     null.Float `json:"value" validate:"gte=0"`
	Frequency null.Float `json:"frequency" validate:"omitempty,gte=0"`
}

// OrderBookLevel is the bid/ask volume resting at one price on one day.
type OrderBookLevel struct {
	Date         string     `json:"date" validate:"required"`
	Price        null.Float `json:"price" validate:"gt=0"`
	BidVolume    null.Float `json:"bid_volume" validate:"gte=0"`
	AskVolume    null.Float `json:"ask_volume" validate:"gte=0"`
	BidFrequency null.Float `json:"bid_frequency" validate:"omitempty,gte=0"`
	AskFrequency null.Float `json:"ask_frequency" validate:"omitempty,gte=0"`
}

// BrokerSummary is one broker's done summary for an instrument on one day.
type BrokerSummary struct {
	Date       string     `json:"date" validate:"required"`
	Broker     string     `json:"broker" validate:"required,alphanum,max=4"`
	BuyVolume  null.Float `json:"buy_volume" validate:"gte=0"`
	BuyValue   null.Float `json:"buy_value" validate:"gte=0"`
	SellVolume null.Float `json:"sell_volume" validate:"gte=0"`
	SellValue  null.Float `json:"sell_value" validate:"gte=0"`
}

// TradeRecord is one matched print of the transaction tape.
type TradeRecord struct {
	Code         string     `json:"code"`
	BuyerBroker  string     `json:"buyer_broker" validate:"required"`
	SellerBroker string     `json:"seller_broker" validate:"required"`
	Price        null.Float `json:"price" validate:"gt=0"`
	Volume       null.Float `json:"volume" validate:"gt=0"`
	BuyOrderSeq  null.Int   `json:"buy_order_seq" validate:"gte=0"`
	SellOrderSeq null.Int   `json:"sell_order_seq" validate:"gte=0"`
	BuyerOrigin  string     `json:"buyer_origin" validate:"omitempty,oneof=D F DOMESTIC FOREIGN A ASING"`
	SellerOrigin string     `json:"seller_origin" validate:"omitempty,oneof=D F DOMESTIC FOREIGN A ASING"`
	Board        string     `json:"board" validate:"omitempty,oneof=RG TN NG"`
}

func (t *TradeRecord) normalize() {
	for _, f := range []*string{&t.Code, &t.BuyerBroker, &t.SellerBroker, &t.BuyerOrigin, &t.SellerOrigin, &t.Board} {
		*f = strings.ToUpper(strings.TrimSpace(*f))
	}
}

// normalizer is implemented by records whose enum fields are case-folded before
// validation.
type normalizer interface {
	normalize()
}

var validate = newValidator()

// null values surface as nil so that any tag on a null field fails, while valid
// zeros still pass gte=0.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		switch n := field.Interface().(type) {
		case null.Float:
			if n.Valid {
				return n.Float64
			}
		case null.Int:
			if n.Valid {
				return n.Int64
			}
		}
		return nil
	}, null.Float{}, null.Int{})
	return v
}

// Decode unmarshals and validates raw records. Malformed records are dropped and
// counted, never fatal.
func Decode[T any](code string, raw []json.RawMessage) ([]T, int) {
	out := make([]T, 0, len(raw))
	dropped := 0
	for _, r := range raw {
		var rec T
		if err := json.Unmarshal(r, &rec); err != nil {
			dropped++
			continue
		}
		if n, ok := any(&rec).(normalizer); ok {
			n.normalize()
		}
		if err := validate.Struct(rec); err != nil {
			dropped++
			continue
		}
		out = append(out, rec)
	}
	if dropped > 0 {
		log.Debug().Msgf("%s: dropped %d malformed records of %d", code, dropped, len(raw))
	}
	return out, dropped
}
