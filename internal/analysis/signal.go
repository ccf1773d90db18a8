package analysis

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Unwrap removes 2*pi discontinuities from a phase series: any jump between
// consecutive values larger than pi is corrected by a multiple of 2*pi.
func Unwrap(p []float64) []float64 {
	out := make([]float64, len(p))
	if len(p) == 0 {
		return out
	}
	out[0] = p[0]
	var correction float64
	for i := 1; i < len(p); i++ {
		dd := p[i] - p[i-1]
		ddmod := floorMod(dd+math.Pi, 2*math.Pi) - math.Pi
		if ddmod == -math.Pi && dd > 0 {
			ddmod = math.Pi
		}
		if math.Abs(dd) >= math.Pi {
			correction += ddmod - dd
		}
		out[i] = p[i] + correction
	}
	return out
}

// floorMod is the modulo whose result takes the divisor's sign.
func floorMod(a, b float64) float64 {
	return a - b*math.Floor(a/b)
}

// savgolFit returns the least-squares projection matrix for a polynomial of
// the given order over a centered window: row k maps a window of samples to
// the coefficient of t^k.
func savgolFit(window, order int) (*mat.Dense, error) {
	half := window / 2
	a := mat.NewDense(window, order+1, nil)
	for i := 0; i < window; i++ {
		t := float64(i - half)
		v := 1.0
		for k := 0; k <= order; k++ {
			a.Set(i, k, v)
			v *= t
		}
	}
	ones := make([]float64, window)
	for i := range ones {
		ones[i] = 1
	}
	var pinv mat.Dense
	if err := pinv.Solve(a, mat.NewDiagDense(window, ones)); err != nil {
		return nil, fmt.Errorf("savgol fit: %w", err)
	}
	return &pinv, nil
}

// SavGol smooths x with a Savitzky-Golay filter. Interior samples take the
// value of the local polynomial at the window center; the first and last
// half-windows are evaluated from the polynomial fitted to the first and last
// full window. window must be odd, greater than order and no longer than x.
func SavGol(x []float64, window, order int) ([]float64, error) {
	if window%2 == 0 || window < 1 {
		return nil, fmt.Errorf("savgol window must be odd and positive, got %d", window)
	}
	if order < 0 || order >= window {
		return nil, fmt.Errorf("savgol order must be in [0, %d), got %d", window, order)
	}
	n := len(x)
	if n < window {
		return nil, fmt.Errorf("savgol: %d samples for window %d: %w", n, window, ErrInsufficientData)
	}
	pinv, err := savgolFit(window, order)
	if err != nil {
		return nil, err
	}
	half := window / 2
	out := make([]float64, n)

	for i := half; i < n-half; i++ {
		var v float64
		for j := 0; j < window; j++ {
			v += pinv.At(0, j) * x[i-half+j]
		}
		out[i] = v
	}

	coeffs := func(start int) []float64 {
		c := make([]float64, order+1)
		for k := 0; k <= order; k++ {
			for j := 0; j < window; j++ {
				c[k] += pinv.At(k, j) * x[start+j]
			}
		}
		return c
	}
	eval := func(c []float64, t float64) float64 {
		var v float64
		for k := len(c) - 1; k >= 0; k-- {
			v = v*t + c[k]
		}
		return v
	}

	head := coeffs(0)
	for i := 0; i < half; i++ {
		out[i] = eval(head, float64(i-half))
	}
	tail := coeffs(n - window)
	for i := n - half; i < n; i++ {
		out[i] = eval(tail, float64(i-(n-window)-half))
	}
	return out, nil
}

// FindPeaks returns the indices of local maxima in x. A peak is strictly
// greater than its neighbours; a flat top resolves to its middle sample
// (rounded down). The first and last samples are never peaks. Peaks below
// height are dropped, then peaks closer than distance samples to a higher
// peak are suppressed, equal heights favouring the earlier index.
func FindPeaks(x []float64, height float64, distance int) []int {
	var peaks []int
	n := len(x)
	iMax := n - 1
	for i := 1; i < iMax; i++ {
		if x[i-1] >= x[i] {
			continue
		}
		ahead := i + 1
		for ahead < iMax && x[ahead] == x[i] {
			ahead++
		}
		if x[ahead] < x[i] {
			peaks = append(peaks, (i+ahead-1)/2)
			i = ahead
		}
	}

	kept := peaks[:0]
	for _, p := range peaks {
		if x[p] >= height {
			kept = append(kept, p)
		}
	}
	peaks = kept
	if distance <= 1 || len(peaks) < 2 {
		return peaks
	}

	order := make([]int, len(peaks))
	for i := range order {
		order[i] = i
	}
	// Highest first; equal heights in index order.
	sort.SliceStable(order, func(a, b int) bool {
		return x[peaks[order[a]]] > x[peaks[order[b]]]
	})
	keep := make([]bool, len(peaks))
	for i := range keep {
		keep[i] = true
	}
	for _, j := range order {
		if !keep[j] {
			continue
		}
		for k := j - 1; k >= 0 && peaks[j]-peaks[k] < distance; k-- {
			keep[k] = false
		}
		for k := j + 1; k < len(peaks) && peaks[k]-peaks[j] < distance; k++ {
			keep[k] = false
		}
	}
	out := make([]int, 0, len(peaks))
	for i, p := range peaks {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}
