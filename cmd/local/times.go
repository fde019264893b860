package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"

	"github.com/jusunglee/subway-board/internal/display"
	"github.com/jusunglee/subway-board/internal/engine"
	"github.com/jusunglee/subway-board/internal/feed"
)

var (
	timesJSON    bool
	timesMaxWait time.Duration
)

var timesCmd = &cobra.Command{
	Use:   "times",
	Short: "Fetch once and print the current board",
	Args:  cobra.NoArgs,
	RunE:  runTimes,
}

func init() {
	timesCmd.Flags().BoolVar(&timesJSON, "json", false, "Print the board as JSON")
	timesCmd.Flags().DurationVar(&timesMaxWait, "max-wait", 30*time.Second, "Give up retrying after this long")
}

func runTimes(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	_, client, logger, err := newClient()
	if err != nil {
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = timesMaxWait

	res, err := backoff.RetryNotifyWithData(func() (engine.Result, error) {
		res := client.RunOnce(ctx)
		if res.Freshness == engine.Fresh {
			return res, nil
		}
		var authErr *feed.AuthError
		if errors.As(res.Err, &authErr) {
			return res, backoff.Permanent(res.Err)
		}
		return res, res.Err
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		logger.Warn("poll failed, retrying", "in", next, "error", err)
	})

	if timesJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(res.Board); encErr != nil {
			return encErr
		}
	} else {
		for _, line := range display.FormatResult(res, time.Now()) {
			fmt.Println(line)
		}
	}

	if err != nil {
		return fmt.Errorf("no fresh board: %w", err)
	}
	return nil
}
