package booking

import (
	"math"
	"time"
)

// Cancellation refund policy, driven by time remaining before departure.
const (
	fullRefundBefore = 48 * time.Hour
	halfRefundBefore = 12 * time.Hour
)

// CancellationRefund returns the refund for cancelling a paid booking:
// the full amount at 48 hours or more before departure, half (rounded to
// the nearest whole unit) at 12 hours or more, and nothing after that.
func CancellationRefund(totalCents uint32, departure, now time.Time) uint32 {
	remaining := departure.Sub(now)
	switch {
	case remaining >= fullRefundBefore:
		return totalCents
	case remaining >= halfRefundBefore:
		return uint32(math.Round(float64(totalCents) / 2))
	default:
		return 0
	}
}
