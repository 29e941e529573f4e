package domain

import dErrors "canopy/pkg/domain-errors"

// OrderSide distinguishes the buy and sell books.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// ParseOrderSide constructs an OrderSide from external input.
func ParseOrderSide(s string) (OrderSide, error) {
	switch OrderSide(s) {
	case SideBuy, SideSell:
		return OrderSide(s), nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "order side must be buy or sell")
}
