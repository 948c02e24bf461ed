package model

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidCartLine = errors.New("invalid cart line")

var hundred = decimal.NewFromInt(100)

// カート1行分（追加時点の単価）
type CartLine struct {
	ProductID string
	Quantity  int64
	UnitPrice decimal.Decimal
}

func NewCartLine(productID string, quantity int64, unitPrice decimal.Decimal) (CartLine, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" || quantity <= 0 || !unitPrice.IsPositive() {
		return CartLine{}, ErrInvalidCartLine
	}
	return CartLine{ProductID: productID, Quantity: quantity, UnitPrice: unitPrice}, nil
}

type Totals struct {
	Subtotal   decimal.Decimal
	Tax        decimal.Decimal
	GrandTotal decimal.Decimal
}

// ComputeTotals は小計・税・合計を出す。
// 合計は小数2桁で四捨五入し、税は合計-小計とする。
func ComputeTotals(lines []CartLine, taxRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity)))
	}
	subtotal = subtotal.Round(2)
	grand := subtotal.Add(subtotal.Mul(taxRate)).Round(2)

	return Totals{
		Subtotal:   subtotal,
		Tax:        grand.Sub(subtotal),
		GrandTotal: grand,
	}
}

// 主通貨 → 最小単位（NGNならkobo）
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(2).Mul(hundred).IntPart()
}

func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
