package gpgpu

import (
	"fmt"
	"math"
)

// PlanExtent places n scalar slots into the most square 2-D extent whose
// area is exactly n. Width starts at floor(sqrt(n)) and decreases until it
// divides n, so a prime n yields a 1xn rectangle.
//
// PlanExtent fails with ErrSizeExceeded when either dimension exceeds
// maxExtent. A non-positive maxExtent disables the limit.
func PlanExtent(n, maxExtent int) (Extent, error) {
	if n < 1 {
		return Extent{}, fmt.Errorf("%w: element count %d", ErrConfiguration, n)
	}

	w := int(math.Sqrt(float64(n)))
	// Guard against float rounding near perfect squares.
	for w*w > n {
		w--
	}
	for (w+1)*(w+1) <= n {
		w++
	}
	for w > 1 && n%w != 0 {
		w--
	}
	e := Extent{Width: w, Height: n / w}

	if maxExtent > 0 && (e.Width > maxExtent || e.Height > maxExtent) {
		return Extent{}, fmt.Errorf("%w: %d slots need %s, limit %d", ErrSizeExceeded, n, e, maxExtent)
	}
	return e, nil
}
