package subservice

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/subtrack/internal/detection"
	"github.com/starford/subtrack/internal/metrics"
	"github.com/starford/subtrack/internal/models"
	"github.com/starford/subtrack/internal/sse"
)

// RunReport summarizes one detection run.
type RunReport struct {
	Created       int                `json:"created"`
	Updated       int                `json:"updated"`
	Vendors       int                `json:"vendors"`
	Subscriptions int                `json:"subscriptions"`
	Skipped       int                `json:"skipped"`
	Credits       int                `json:"credits"`
	Upserts       []detection.Upsert `json:"upserts"`
	DurationMS    int64              `json:"duration_ms"`
}

// Detect classifies the full transaction history and persists the resulting
// upserts atomically. Runs are serialized with each other and with
// overrides.
func (s *Service) Detect(ctx context.Context) (*RunReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detectLocked(ctx)
}

func (s *Service) detectLocked(ctx context.Context) (*RunReport, error) {
	start := time.Now()
	rep, err := s.runDetection(ctx)
	elapsed := time.Since(start)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordDetectionRun(metrics.OutcomeError, elapsed, 0, 0)
		}
		s.logger.Error("detection: run failed", slog.String("error", err.Error()))
		return nil, err
	}
	rep.DurationMS = elapsed.Milliseconds()

	if s.metrics != nil {
		s.metrics.RecordDetectionRun(metrics.OutcomeSuccess, elapsed, rep.Skipped, rep.Credits)
		s.metrics.RecordUpserts(string(detection.OpCreate), rep.Created)
		s.metrics.RecordUpserts(string(detection.OpUpdate), rep.Updated)
		if subs, err := s.repo.ListSubscriptions(); err == nil {
			s.metrics.SetSubscriptions(countByInterval(subs))
		}
	}
	if s.notifier != nil {
		for _, u := range rep.Upserts {
			kind := sse.KindUpdated
			if u.Op == detection.OpCreate {
				kind = sse.KindCreated
			}
			s.notifier.PublishSubscriptionEvent(kind, u.Subscription.VendorKey)
		}
		s.notifier.PublishDetection(rep)
	}
	s.logger.Info("detection: run complete",
		slog.Int("created", rep.Created),
		slog.Int("updated", rep.Updated),
		slog.Int("skipped", rep.Skipped),
		slog.Int64("duration_ms", rep.DurationMS))
	return rep, nil
}

func (s *Service) runDetection(ctx context.Context) (*RunReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	txns, err := s.repo.AllTransactions()
	if err != nil {
		return nil, err
	}
	res, err := s.engine.Classify(txns)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.ListSubscriptions()
	if err != nil {
		return nil, err
	}
	ups := s.engine.Reconcile(res.Classifications, existing)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	saved, err := s.repo.ApplyUpserts(ups)
	if err != nil {
		return nil, err
	}
	// Report the stored rows so created subscriptions carry their ids.
	for i := range ups {
		if i < len(saved) {
			ups[i].Subscription = saved[i]
		}
	}

	rep := &RunReport{
		Vendors:       len(res.Classifications),
		Subscriptions: len(res.Subscriptions()),
		Skipped:       res.Skipped,
		Credits:       res.Credits,
		Upserts:       nonNilSlice(ups),
	}
	for _, u := range ups {
		if u.Op == detection.OpCreate {
			rep.Created++
		} else {
			rep.Updated++
		}
	}
	return rep, nil
}

func countByInterval(subs []models.Subscription) map[string]int {
	out := make(map[string]int, 4)
	for _, s := range subs {
		out[string(s.Interval)]++
	}
	return out
}
