package scheduler

import "gonum.org/v1/gonum/stat"

// Spread returns the population standard deviation of the week loads.
func Spread(dist [AEPWeekCount]int) float64 {
	xs := make([]float64, len(dist))
	for i, n := range dist {
		xs[i] = float64(n)
	}
	return stat.PopStdDev(xs, nil)
}
