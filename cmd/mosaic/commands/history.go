package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/mosaic/internal/filter"
	"github.com/dyluth/mosaic/internal/history"
	"github.com/dyluth/mosaic/internal/ledger"
	"github.com/dyluth/mosaic/internal/printer"
	"github.com/dyluth/mosaic/internal/resolver"
	"github.com/dyluth/mosaic/internal/timespec"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var (
	historyOutputFormat string
	historyLimit        int
	historySince        string
	historyUntil        string
	historyWorker       string
	historyOutcome      string
	historyFollow       bool
)

var historyCmd = &cobra.Command{
	Use:   "history [PLACEMENT_ID]",
	Short: "Show recent placement attempts",
	Long: `Show placement attempts recorded in the Redis journal.

Requires redis_url in the configuration.

List Mode (no PLACEMENT_ID):
  Prints recent attempts, oldest first, optionally filtered and followed.

Get Mode (with PLACEMENT_ID):
  Prints one attempt as indented JSON. The ID may be shortened to any unique
  prefix of at least 6 characters, as shown in the table.

Output Formats:
  default - Human-readable table
  jsonl   - One JSON object per line

Examples:
  # Last 50 attempts
  mosaic history

  # Rate-limited attempts by one worker in the last hour
  mosaic history --since 1h --worker alice --outcome rate_limited

  # Stream new attempts as they happen
  mosaic history --follow --output jsonl

  # Full details of one attempt
  mosaic history 550e8400`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVarP(&historyOutputFormat, "output", "o", "default", "Output format: default or jsonl")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 50, "Maximum entries to show (0 = all kept)")
	historyCmd.Flags().StringVar(&historySince, "since", "", "Only attempts after this time (duration ago like 1h, RFC3339, or attempted_at_ms)")
	historyCmd.Flags().StringVar(&historyUntil, "until", "", "Only attempts before this time (duration ago like 1h, RFC3339, or attempted_at_ms)")
	historyCmd.Flags().StringVarP(&historyWorker, "worker", "w", "", "Only attempts by workers matching this glob")
	historyCmd.Flags().StringVar(&historyOutcome, "outcome", "", "Only attempts with this outcome: placed, rate_limited, failed, transport_error")
	historyCmd.Flags().BoolVarP(&historyFollow, "follow", "f", false, "Stream new attempts after listing")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	format, err := history.ParseFormat(historyOutputFormat)
	if err != nil {
		return printer.Error(
			"invalid output format",
			err.Error(),
			[]string{"Valid formats: default, jsonl"},
		)
	}
	if historyLimit < 0 {
		return printer.Error("invalid limit", fmt.Sprintf("--limit must be 0 or greater, got %d", historyLimit), nil)
	}

	filters, err := buildHistoryFilters(time.Now())
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.RedisURL == "" {
		return printer.Error(
			"no placement journal",
			"The journal is only kept when redis_url is configured.",
			[]string{fmt.Sprintf("Add redis_url to %s and restart 'mosaic run'", configPath)},
		)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("invalid redis_url: %w", err)
	}
	client, err := ledger.NewClient(redisOpts, cfg.Instance)
	if err != nil {
		return fmt.Errorf("failed to create ledger client: %w", err)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Ping(ctx); err != nil {
		return printer.ErrorWithContext(
			"Redis unreachable",
			"Could not connect to the placement journal.",
			map[string]string{"redis_url": cfg.RedisURL, "error": err.Error()},
			[]string{"Check that Redis is running and redis_url is correct"},
		)
	}

	if len(args) > 0 {
		return showPlacement(ctx, client, args[0])
	}

	// Subscribe before listing so nothing recorded in between is lost.
	var sub *ledger.Subscription
	if historyFollow {
		if sub, err = client.SubscribePlacements(ctx); err != nil {
			return fmt.Errorf("failed to subscribe: %w", err)
		}
		defer sub.Close()
	}

	limit := historyLimit
	if limit == 0 {
		limit = ledger.DefaultHistory
	}
	if err := history.ListPlacements(ctx, client, cfg.Instance, format, filters, limit, printer.Out); err != nil {
		return err
	}

	if sub == nil {
		return nil
	}
	return history.Follow(ctx, sub, format, filters, printer.Out)
}

// showPlacement prints the journal entry identified by shortID.
func showPlacement(ctx context.Context, r resolver.Reader, shortID string) error {
	p, err := resolver.ResolvePlacement(ctx, r, shortID)
	if err != nil {
		var ambiguous *resolver.AmbiguousError
		switch {
		case errors.As(err, &ambiguous):
			return printer.Error("ambiguous placement ID", resolver.FormatAmbiguousError(ambiguous), nil)
		case resolver.IsNotFoundError(err):
			return printer.Error(
				"placement not found",
				err.Error(),
				[]string{"Only the most recent attempts are kept; list them with:\n  mosaic history"},
			)
		}
		return err
	}
	return history.FormatDetail(printer.Out, p)
}

// buildHistoryFilters turns the filter flags into criteria relative to now.
func buildHistoryFilters(now time.Time) (*filter.Criteria, error) {
	since, until, err := timespec.ParseRange(historySince, historyUntil, now)
	if err != nil {
		return nil, printer.Error("invalid time range", err.Error(), []string{"Use a duration like 30m, an RFC3339 timestamp, or an attempted_at_ms value"})
	}

	outcome := ledger.Outcome(historyOutcome)
	if outcome != "" {
		if err := outcome.Validate(); err != nil {
			return nil, printer.Error("invalid outcome", err.Error(), []string{"Valid outcomes: placed, rate_limited, failed, transport_error"})
		}
	}

	return &filter.Criteria{
		SinceTimestampMs: since,
		UntilTimestampMs: until,
		WorkerGlob:       historyWorker,
		Outcome:          outcome,
	}, nil
}
