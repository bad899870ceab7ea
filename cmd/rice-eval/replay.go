package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/ricesearch/rice-eval/internal/bus"
	"github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/report"
)

const replayDrainTimeout = 10 * time.Second

func replayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay journaled events into the history store",
		Long: `Replay reads the event journal written by 'run' when bus.event_log is set.
Every evaluation.completed event is saved to the history store and printed.
With --publish the events are also re-sent on the configured bus.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			if a.cfg.Bus.EventLog == "" {
				return errors.ValidationError("no journal configured (set --journal or bus.event_log)")
			}

			sinceFlag, _ := cmd.Flags().GetString("since")
			since, err := parseSince(sinceFlag, time.Now())
			if err != nil {
				return err
			}

			entries, err := bus.ReadJournal(a.cfg.Bus.EventLog, since)
			if err != nil {
				return err
			}
			a.log.Info("Journal read", "path", a.cfg.Bus.EventLog, "entries", len(entries))

			history, err := a.openHistory()
			if err != nil {
				return err
			}
			defer history.Close()

			ctx := cmd.Context()
			reports, err := replayReports(ctx, a, entries, history)
			if err != nil {
				return err
			}

			if publish, _ := cmd.Flags().GetBool("publish"); publish {
				if err := republish(ctx, a, entries); err != nil {
					return err
				}
			}

			return report.Write(cmd.OutOrStdout(), a.cfg.Report.Format, reports)
		},
	}

	cmd.Flags().String("journal", "", "event journal path (overrides bus.event_log)")
	cmd.Flags().String("since", "", "only events after this RFC 3339 time or this long ago (e.g. 24h)")
	cmd.Flags().Bool("publish", false, "also publish the events on the configured bus")
	cmd.Flags().String("history", "", "history store (memory, redis, none)")

	return cmd
}

// parseSince accepts an RFC 3339 timestamp or a duration back from now.
// Empty means the beginning of the journal.
func parseSince(value string, now time.Time) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return time.Time{}, errors.ValidationError(fmt.Sprintf("invalid --since %q: want RFC 3339 time or positive duration", value))
	}
	return now.Add(-d), nil
}

// replayReports delivers entries on an in-process bus whose
// evaluation.completed subscriber saves each report to history.
func replayReports(ctx context.Context, a *app, entries []bus.JournalEntry, history report.History) ([]*report.ModelReport, error) {
	mb := bus.NewMemoryBus(a.log)
	defer mb.Close()

	var (
		mu      sync.Mutex
		reports []*report.ModelReport
	)
	err := mb.Subscribe(ctx, bus.TopicEvaluationCompleted, func(ctx context.Context, event bus.Event) error {
		r, err := decodeReport(event.Payload)
		if err != nil {
			return fmt.Errorf("event %s: %w", event.ID, err)
		}
		if err := history.Save(ctx, r); err != nil {
			return err
		}
		mu.Lock()
		reports = append(reports, r)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := bus.Replay(ctx, mb, entries); err != nil {
		return nil, err
	}
	if !mb.Drain(replayDrainTimeout) {
		return nil, errors.ServiceUnavailableError("history store")
	}

	mu.Lock()
	defer mu.Unlock()
	sort.SliceStable(reports, func(i, j int) bool {
		if !reports[i].CreatedAt.Equal(reports[j].CreatedAt) {
			return reports[i].CreatedAt.Before(reports[j].CreatedAt)
		}
		return reports[i].Model < reports[j].Model
	})
	a.log.Info("Reports replayed", "reports", len(reports))
	return reports, nil
}

// republish sends entries on the configured bus without journaling them
// again.
func republish(ctx context.Context, a *app, entries []bus.JournalEntry) error {
	cfg := a.cfg.Bus
	cfg.EventLog = ""

	b, err := bus.NewBus(cfg, a.log)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := bus.Replay(ctx, b, entries); err != nil {
		return err
	}
	a.log.Info("Events republished", "bus", cfg.Type, "events", len(entries))
	return nil
}

// decodeReport converts a journaled payload back into a report.
func decodeReport(payload any) (*report.ModelReport, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var r report.ModelReport
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}
	if r.Model == "" {
		return nil, fmt.Errorf("decoding report: missing model")
	}
	return &r, nil
}
