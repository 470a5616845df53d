package shiftsim

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/offerwise/pkg/logger"
)

// verifyResults checks the session totals against what the driver did and
// that the top list is ordered.
func verifyResults(ctx context.Context, stats *Stats, top []Entry) error {
	logger.Get().Info(ctx, "verifying results")

	if stats.Session == nil {
		return fmt.Errorf("no session to verify")
	}
	if stats.Session.TotalOrders != stats.Taken {
		return fmt.Errorf("session counts %d orders, driver took %d", stats.Session.TotalOrders, stats.Taken)
	}
	if math.Abs(stats.Session.TotalEarnings-stats.Expected) > earningsTolerance {
		return fmt.Errorf("session earnings %.2f, expected %.2f", stats.Session.TotalEarnings, stats.Expected)
	}
	if err := verifyTopOrdering(top); err != nil {
		return err
	}

	logger.Get().Info(ctx, "result verification completed", logger.Int("topEntries", len(top)))
	return nil
}

// verifyTopOrdering checks scores never rise and ranks never fall.
func verifyTopOrdering(top []Entry) error {
	for i := 1; i < len(top); i++ {
		if top[i].Score > top[i-1].Score {
			return fmt.Errorf("top orders not sorted: entry %d scores above entry %d", i, i-1)
		}
		if top[i].Rank < top[i-1].Rank {
			return fmt.Errorf("top orders not ranked: entry %d ranks above entry %d", i, i-1)
		}
	}
	return nil
}
