package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/EdinaDepner/CadenceCoach/pkg/logger"
)

// Run streams cfg.Profile to a live service in real time. Each step is
// posted when its offset from the start of the run comes due; a slow
// request never delays the ones after it.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	cfg = cfg.withDefaults()
	client := newHTTPClient(cfg.Timeout)
	steps := cfg.Profile.Steps(cfg.Seed)
	stats := &Stats{StepsPlanned: len(steps)}

	logger.Get().Info(ctx, "starting cadence simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("profile", cfg.Profile.String()),
		logger.Int("steps", len(steps)),
		logger.Int("workers", cfg.Workers),
		logger.String("timeout", cfg.Timeout.String()),
		logger.Bool("eventIds", cfg.EventIDs))

	if err := checkServiceHealth(ctx, client, cfg.BaseURL); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	if cfg.ManageSession {
		id, err := startSession(ctx, client, cfg)
		if err != nil {
			return stats, fmt.Errorf("start session: %w", err)
		}
		stats.SessionID = id
		defer func() {
			// The run context may already be cancelled.
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Timeout)
			defer cancel()
			if err := stopSession(stopCtx, client, cfg.BaseURL); err != nil {
				logger.Get().Warn(ctx, "failed to stop session", logger.Error(err))
			}
		}()
	}

	stats.StartTime = time.Now()
	err := streamSteps(ctx, client, cfg, steps, stats)
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	displayFinalStats(ctx, stats)
	if err != nil {
		return stats, err
	}
	logger.Get().Info(ctx, "simulation completed successfully")
	return stats, nil
}

type outcome int

const (
	outcomeAccepted outcome = iota
	outcomeDuplicate
	outcomeThrottled
	outcomeFailed
)

func streamSteps(ctx context.Context, client *HTTPClient, cfg *Config, steps []int64, stats *Stats) error {
	var mu sync.Mutex
	record := func(o outcome) {
		mu.Lock()
		defer mu.Unlock()
		stats.StepsSent++
		switch o {
		case outcomeAccepted:
			stats.StepsAccepted++
		case outcomeDuplicate:
			stats.StepsDuplicate++
		case outcomeThrottled:
			stats.StepsThrottled++
		default:
			stats.StepsFailed++
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	start := time.Now()
	url := cfg.BaseURL + "/steps"
	for i, offset := range steps {
		select {
		case <-gctx.Done():
			_ = g.Wait()
			return gctx.Err()
		case <-time.After(time.Until(start.Add(time.Duration(offset) * time.Millisecond))):
		}

		// Stamp the planned instant so worker reordering does not skew cadence.
		body := stepRequest{TimestampMS: start.Add(time.Duration(offset) * time.Millisecond).UnixMilli()}
		if cfg.EventIDs {
			body.EventID = uuid.NewString()
		}
		g.Go(func() error {
			o, err := postStep(gctx, client, url, body)
			if err != nil {
				logger.Get().Debug(gctx, "step submission failed", logger.Int("step", i), logger.Error(err))
			}
			record(o)
			return nil
		})
	}
	return g.Wait()
}

func postStep(ctx context.Context, client *HTTPClient, url string, body stepRequest) (outcome, error) {
	resp, err := client.Post(ctx, url, body)
	if err != nil {
		return outcomeFailed, err
	}
	defer drainAndClose(resp)

	switch resp.StatusCode {
	case http.StatusAccepted:
		return outcomeAccepted, nil
	case http.StatusOK:
		return outcomeDuplicate, nil
	case http.StatusTooManyRequests:
		return outcomeThrottled, nil
	default:
		return outcomeFailed, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient, baseURL string) error {
	logger.Get().Info(ctx, "checking service health")

	resp, err := client.Get(ctx, baseURL+"/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer drainAndClose(resp)

	// The service answers with Prometheus metrics; any 200 is healthy.
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	logger.Get().Info(ctx, "service is healthy")
	return nil
}

func startSession(ctx context.Context, client *HTTPClient, cfg *Config) (string, error) {
	resp, err := client.Post(ctx, cfg.BaseURL+"/session/start", startRequest{ParticipantID: cfg.ParticipantID})
	if err != nil {
		return "", err
	}
	defer drainAndClose(resp)

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	var out startResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode start response: %w", err)
	}
	logger.Get().Info(ctx, "session started",
		logger.String("sessionId", out.SessionID),
		logger.Int("participantId", out.ParticipantID))
	return out.SessionID, nil
}

func stopSession(ctx context.Context, client *HTTPClient, baseURL string) error {
	resp, err := client.Post(ctx, baseURL+"/session/stop", nil)
	if err != nil {
		return err
	}
	defer drainAndClose(resp)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return nil
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	if err := resp.Body.Close(); err != nil {
		logger.Get().Error(context.Background(), "failed to close response body", logger.Error(err))
	}
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var acceptRate, stepsPerMinute float64
	if stats.StepsSent > 0 {
		acceptRate = float64(stats.StepsAccepted) / float64(stats.StepsSent) * 100
	}
	if stats.Duration > 0 {
		stepsPerMinute = float64(stats.StepsSent) / stats.Duration.Minutes()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.String("sessionId", stats.SessionID),
		logger.Int("stepsPlanned", stats.StepsPlanned),
		logger.Int("stepsSent", stats.StepsSent),
		logger.Int("stepsAccepted", stats.StepsAccepted),
		logger.Int("stepsDuplicate", stats.StepsDuplicate),
		logger.Int("stepsThrottled", stats.StepsThrottled),
		logger.Int("stepsFailed", stats.StepsFailed),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("stepsPerMinute", stepsPerMinute))
}
