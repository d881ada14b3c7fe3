package cli

import (
	"math"
	"strings"

	"btc-hedger/internal/models"
)

// PayoffChart renders a payoff curve as width x height ASCII rows, top row
// first. The zero line is drawn with '-' and the curve with '*'.
func PayoffChart(curve []models.PayoffPoint, width, height int) []string {
	if len(curve) < 2 || width < 2 || height < 2 {
		return nil
	}

	lo, hi := curve[0].Price, curve[len(curve)-1].Price
	if hi <= lo {
		return nil
	}

	values := make([]float64, width)
	minV, maxV := math.Inf(1), math.Inf(-1)
	j := 0
	for col := 0; col < width; col++ {
		price := lo + (hi-lo)*float64(col)/float64(width-1)
		for j < len(curve)-2 && curve[j+1].Price < price {
			j++
		}
		a, b := curve[j], curve[j+1]
		v := a.Payoff
		if b.Price > a.Price {
			w := (price - a.Price) / (b.Price - a.Price)
			v = a.Payoff + math.Max(0, math.Min(1, w))*(b.Payoff-a.Payoff)
		}
		values[col] = v
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}
	minV = math.Min(minV, 0)
	maxV = math.Max(maxV, 0)
	if maxV == minV {
		maxV = minV + 1
	}

	row := func(v float64) int {
		return int(math.Round((maxV - v) / (maxV - minV) * float64(height-1)))
	}

	grid := make([][]byte, height)
	for r := range grid {
		grid[r] = []byte(strings.Repeat(" ", width))
	}
	zero := row(0)
	for col := 0; col < width; col++ {
		grid[zero][col] = '-'
	}
	for col, v := range values {
		grid[row(v)][col] = '*'
	}

	lines := make([]string, height)
	for r := range grid {
		lines[r] = strings.TrimRight(string(grid[r]), " ")
	}
	return lines
}
