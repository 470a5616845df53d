package shiftsim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/offerwise/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

// Run plays one full shift against the service.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("shiftsim")

	log.Info(ctx, "starting simulated shift",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("offers", cfg.Offers),
		logger.Any("seed", cfg.Seed),
		logger.Duration("timeout", cfg.Timeout),
	)

	client := newHTTPClient(cfg.BaseURL, cfg.Timeout, cfg.Retries)

	// Step 1: Check service health
	if _, err := client.Do(ctx, http.MethodGet, "/healthz", nil, nil, StatusOK); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Open a fresh session
	if err := startSession(ctx, client); err != nil {
		return stats, fmt.Errorf("session start failed: %w", err)
	}

	// Step 3: Play every offer
	offers := generateOffers(ctx, cfg, stats)
	for i := range offers {
		if err := playOffer(ctx, client, &offers[i], stats, cfg.Verbose); err != nil {
			stats.Failed++
			log.Warn(ctx, "offer failed", logger.Int("index", i), logger.Error(err))
			if errors.Is(err, context.Canceled) {
				return stats, err
			}
			// leave the workflow clean for the next offer
			_, _ = client.Do(ctx, http.MethodPost, "/v1/workflow/decline", nil, nil, StatusOK)
		}
	}

	// Step 4: Recalculate, train and close the session
	var sess Session
	if _, err := client.Do(ctx, http.MethodPost, "/v1/sessions/current/recalculate", nil, &sess, StatusOK); err != nil {
		return stats, fmt.Errorf("recalculate failed: %w", err)
	}
	stats.Session = &sess

	var trained struct {
		WeightSet *struct {
			Version int `json:"version"`
		} `json:"weight_set"`
	}
	if _, err := client.Do(ctx, http.MethodPost, "/v1/weights/train", nil, &trained, StatusOK); err != nil {
		log.Warn(ctx, "training skipped", logger.Error(err))
	} else if trained.WeightSet != nil {
		stats.WeightVersion = trained.WeightSet.Version
	}

	var top struct {
		Entries []Entry `json:"entries"`
	}
	if _, err := client.Do(ctx, http.MethodGet, fmt.Sprintf("/v1/orders/top?n=%d", topEntries), nil, &top, StatusOK); err != nil {
		return stats, fmt.Errorf("top orders failed: %w", err)
	}

	if _, err := client.Do(ctx, http.MethodPost, "/v1/sessions/current/end", nil, nil, StatusOK); err != nil {
		return stats, fmt.Errorf("session end failed: %w", err)
	}

	// Step 5: Verify results
	if err := verifyResults(ctx, stats, top.Entries); err != nil {
		return stats, fmt.Errorf("result verification failed: %w", err)
	}

	if cfg.OutputFile != "" {
		if err := saveOffers(ctx, cfg.OutputFile, offers); err != nil {
			log.Warn(ctx, "failed to save offers", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)
	return stats, nil
}

// startSession opens a session, ending a stale one first.
func startSession(ctx context.Context, client *HTTPClient) error {
	code, err := client.Do(ctx, http.MethodPost, "/v1/sessions", nil, nil, StatusCreated, StatusConflict)
	if err != nil {
		return err
	}
	if code == StatusConflict {
		if _, err := client.Do(ctx, http.MethodPost, "/v1/sessions/current/end", nil, nil, StatusOK); err != nil {
			return err
		}
		_, err = client.Do(ctx, http.MethodPost, "/v1/sessions", nil, nil, StatusCreated)
		return err
	}
	return nil
}

// playOffer runs one offer through the workflow: take or decline on the
// service's recommendation, then answer the surveys.
func playOffer(ctx context.Context, client *HTTPClient, o *Offer, stats *Stats, verbose bool) error {
	var quick Score
	if _, err := client.Do(ctx, http.MethodPost, "/v1/score/quick", o, &quick, StatusOK); err != nil {
		return err
	}

	var res Result
	if _, err := client.Do(ctx, http.MethodPost, "/v1/offers", o, &res, StatusCreated); err != nil {
		return err
	}
	if res.Order == nil {
		return errors.New("offer returned no order")
	}
	order := res.Order
	if verbose {
		logger.Get().Info(ctx, "offer",
			logger.String("order_id", order.ID),
			logger.Float64("payout", o.ShownPayout),
			logger.Float64("score", order.Score.Value),
			logger.Int("quick", quick.QuickScore),
			logger.String("recommendation", order.Score.Recommendation),
		)
	}

	if order.Score.Recommendation != "take" {
		stats.Declined++
		_, err := client.Do(ctx, http.MethodPost, "/v1/workflow/decline", nil, nil, StatusOK)
		return err
	}

	steps := []string{"accept"}
	for i := 0; i < o.NumberOfStops; i++ {
		steps = append(steps, "pickup")
	}
	steps = append(steps, "dropoff")
	for _, step := range steps {
		if _, err := client.Do(ctx, http.MethodPost, "/v1/workflow/"+step, nil, nil, StatusOK); err != nil {
			return err
		}
	}
	stats.Taken++

	if _, err := client.Do(ctx, http.MethodPost, "/v1/surveys/immediate/"+order.ID, immediateSurvey(o), nil, StatusOK); err != nil {
		return err
	}

	if o.SkipDelayed {
		stats.DelayedSkipped++
		stats.Expected += o.ShownPayout
		_, err := client.Do(ctx, http.MethodDelete, "/v1/surveys/delayed/"+order.ID, nil, nil, StatusOK)
		return err
	}
	delayed := map[string]any{
		"actual_pay":           o.ActualPay,
		"actual_total_minutes": o.ActualTotalMinutes,
		"dropoff_zone":         o.DropoffZone,
	}
	if _, err := client.Do(ctx, http.MethodPost, "/v1/surveys/delayed/"+order.ID, delayed, nil, StatusOK); err != nil {
		return err
	}
	stats.DelayedAnswered++
	stats.Expected += o.ActualPay
	return nil
}

func immediateSurvey(o *Offer) map[string]any {
	ratings := map[string]int{
		"parking_difficulty": 2,
		"dropoff_difficulty": 2,
		"end_zone_quality":   3,
	}
	if o.NumberOfStops > 1 {
		ratings["route_cohesion"] = 4
		ratings["dropoff_compression"] = 3
		ratings["next_order_momentum"] = 4
	}
	return map[string]any{"ratings": ratings}
}

// saveOffers writes the generated offers to a JSON file.
func saveOffers(ctx context.Context, filename string, offers []Offer) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(offers, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal offers: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write offers: %w", err)
	}
	logger.Get().Info(ctx, "offers saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var takeRate float64
	if stats.OffersGenerated > 0 {
		takeRate = float64(stats.Taken) / float64(stats.OffersGenerated) * PercentageMultiplier
	}
	fields := []logger.Field{
		logger.Int("offersGenerated", stats.OffersGenerated),
		logger.Int("taken", stats.Taken),
		logger.Int("declined", stats.Declined),
		logger.Int("delayedAnswered", stats.DelayedAnswered),
		logger.Int("delayedSkipped", stats.DelayedSkipped),
		logger.Int("failed", stats.Failed),
		logger.Float64("takeRate", takeRate),
		logger.Int("weightVersion", stats.WeightVersion),
		logger.String("duration", stats.Duration.String()),
	}
	if stats.Session != nil {
		fields = append(fields,
			logger.Float64("earnings", stats.Session.TotalEarnings),
			logger.Float64("hours", stats.Session.TotalHours),
			logger.Float64("averageScore", stats.Session.AverageScore),
		)
	}
	logger.Get().Info(ctx, "shift statistics", fields...)
}
