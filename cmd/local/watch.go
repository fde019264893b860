package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jusunglee/subway-board/internal/display"
	"github.com/jusunglee/subway-board/internal/engine"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll continuously and page through lines like the wall display",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, client, logger, err := newClient()
	if err != nil {
		return err
	}

	pager := display.NewPager()
	client.OnResult(func(res engine.Result) {
		pager.Update(res.Board)
	})
	client.Start()
	defer client.Close()

	sleep := display.SleepWindow{
		Enabled:   cfg.Sleep.Enabled,
		StartHour: cfg.Sleep.StartHour,
		WakeHour:  cfg.Sleep.WakeHour,
	}

	ticker := time.NewTicker(cfg.PageTime)
	defer ticker.Stop()

	asleep := false
	for {
		now := time.Now()
		if sleep.Asleep(now) {
			if !asleep {
				logger.Info("display sleeping", "wake_in", sleep.UntilWake(now).Round(time.Minute))
				fmt.Println("(sleeping)")
			}
			asleep = true
		} else {
			asleep = false
			fmt.Println(renderPage(client.GetResult(), pager))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func renderPage(res engine.Result, pager *display.Pager) string {
	if res.AuthFailing {
		return display.AuthText
	}
	if res.Freshness == engine.NoData {
		return display.LoadingText
	}

	page, i, n, ok := pager.Next()
	if !ok {
		return display.NoTrainsText
	}

	s := fmt.Sprintf("Page %d/%d: %s", i+1, n, page)
	if res.Freshness == engine.Stale {
		s += " !"
	}
	return s
}
