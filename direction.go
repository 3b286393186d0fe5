package dashboard

import "github.com/shopspring/decimal"

type Direction int

const (
	DirectionFlat Direction = iota
	DirectionUp
	DirectionDown
)

// DirectionOf returns the direction denoted by the sign of the given value.
func DirectionOf(value decimal.Decimal) Direction {
	switch value.Sign() {
	case 1:
		return DirectionUp
	case -1:
		return DirectionDown
	default:
		return DirectionFlat
	}
}

// PriceDirection compares the newest price with the one immediately
// preceding it.
func PriceDirection(current, previous decimal.Decimal) Direction {
	return DirectionOf(current.Sub(previous))
}

func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "up"
	case DirectionDown:
		return "down"
	default:
		return "flat"
	}
}

func (d Direction) Arrow() string {
	switch d {
	case DirectionUp:
		return "↑"
	case DirectionDown:
		return "↓"
	default:
		return ""
	}
}
