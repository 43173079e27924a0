package cart

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// GuestOwner scopes the cart of a signed-out profile.
const GuestOwner = "guest"

// Line is one product in the cart. StockCeiling is the stock observed when the
// product was last added; Quantity stays within [1, StockCeiling].
type Line struct {
	ProductID    int64           `json:"product_id"`
	Name         string          `json:"name"`
	UnitPrice    decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
	StockCeiling int             `json:"stock"`
}

// Subtotal is UnitPrice x Quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Snapshot is the cart as presented to callers. Total is computed on read.
type Snapshot struct {
	Owner     string          `json:"owner"`
	Lines     []Line          `json:"items"`
	ItemCount int             `json:"item_count"`
	Total     decimal.Decimal `json:"total"`
}

func clamp(qty, ceiling int) int {
	if qty < 1 {
		return 1
	}
	if qty > ceiling {
		return ceiling
	}
	return qty
}

// parseQuantity reads user input the way a numeric form field does: decimals
// are floored and anything non-numeric counts as 1.
func parseQuantity(raw string, ceiling int) int {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(value) {
		return 1
	}
	value = math.Floor(value)
	if value < 1 {
		return 1
	}
	if value > float64(ceiling) {
		return ceiling
	}
	return int(value)
}

func ownerFor(username string) string {
	trimmed := strings.TrimSpace(username)
	if trimmed == "" {
		return GuestOwner
	}
	return trimmed
}

func stateKey(owner string) string {
	return "cart:" + owner
}

// normalize enforces the line invariants on data read from storage.
func normalize(lines []Line) []Line {
	out := make([]Line, 0, len(lines))
	index := map[int64]int{}
	for _, line := range lines {
		if line.ProductID <= 0 || line.StockCeiling <= 0 || line.UnitPrice.IsNegative() {
			continue
		}
		if i, ok := index[line.ProductID]; ok {
			merged := out[i]
			merged.StockCeiling = line.StockCeiling
			merged.Quantity = clamp(merged.Quantity+line.Quantity, merged.StockCeiling)
			out[i] = merged
			continue
		}
		line.Quantity = clamp(line.Quantity, line.StockCeiling)
		index[line.ProductID] = len(out)
		out = append(out, line)
	}
	return out
}

func total(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, line := range lines {
		sum = sum.Add(line.Subtotal())
	}
	return sum
}
