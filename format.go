package dashboard

import (
	"github.com/shopspring/decimal"
	"strings"
)

var one = decimal.NewFromInt(1)

// FormatPrice renders a price of the given pair. BTC quoted pairs are shown
// in BTC, anything else in USD with 4 decimal places below one unit and 2
// otherwise.
func FormatPrice(price decimal.Decimal, symbol string) string {
	symbol = strings.ToUpper(symbol)

	if strings.Contains(symbol, "BTC") && !strings.HasPrefix(symbol, "BTC") {
		return price.StringFixed(8) + " BTC"
	}

	return FormatUSD(price)
}

func FormatUSD(price decimal.Decimal) string {
	places := int32(2)
	if price.Abs().LessThan(one) {
		places = 4
	}

	sign := ""
	if price.Sign() < 0 {
		sign = "-"
	}

	text := price.Abs().StringFixed(places)

	integer, fraction := text, ""
	if dot := strings.IndexByte(text, '.'); dot >= 0 {
		integer, fraction = text[:dot], text[dot:]
	}

	return sign + "$" + groupThousands(integer) + fraction
}

// FormatChange renders a percentage change with an explicit sign.
func FormatChange(change decimal.Decimal) string {
	text := change.StringFixed(2) + "%"
	if change.Sign() > 0 {
		return "+" + text
	}

	return text
}

// PairLabel strips the stable coin quote of the pair or marks the BTC quote.
func PairLabel(symbol string) string {
	symbol = strings.ToUpper(symbol)

	if strings.Contains(symbol, "BTC") && !strings.HasPrefix(symbol, "BTC") {
		return strings.Replace(symbol, "BTC", "/BTC", 1)
	}

	return strings.Replace(strings.Replace(symbol, "USDT", "", 1), "USDC", "", 1)
}

func groupThousands(integer string) string {
	if len(integer) <= 3 {
		return integer
	}

	var builder strings.Builder

	head := len(integer) % 3
	if head > 0 {
		builder.WriteString(integer[:head])
	}

	for index := head; index < len(integer); index += 3 {
		if builder.Len() > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(integer[index : index+3])
	}

	return builder.String()
}
