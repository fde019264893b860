package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jusunglee/subway-board/internal/feed"
	"github.com/jusunglee/subway-board/internal/models"
)

var fixtureRecord bool

var fixtureCmd = &cobra.Command{
	Use:   "fixture <dir>",
	Short: "Write <group>.pb feed files for offline replay (set feed_base_url to the dir)",
	Args:  cobra.ExactArgs(1),
	RunE:  runFixture,
}

func init() {
	fixtureCmd.Flags().BoolVar(&fixtureRecord, "record", false, "Download the live feeds instead of generating mock trips")
}

func runFixture(cmd *cobra.Command, args []string) error {
	dir := args[0]

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	groups, err := feed.GroupsForLines(cfg.LineIDs())
	if err != nil {
		return err
	}

	now := time.Now()
	mock := feed.CreateMockTrips(now)
	fetcher := feed.NewHTTPFetcher(cfg.APIKey, cfg.FeedBaseURL, cfg.FetchTimeout)

	for _, group := range groups {
		var data []byte
		if fixtureRecord {
			data, err = fetcher.Fetch(cmd.Context(), group)
		} else {
			data, err = feed.EncodeTripUpdates(now, tripsForGroup(mock, group))
		}
		if err != nil {
			return fmt.Errorf("feed %s: %w", group.Name, err)
		}

		path := filepath.Join(dir, group.Name+".pb")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		logger.Info("wrote feed", "group", group.Name, "path", path, "bytes", len(data))
	}
	return nil
}

func tripsForGroup(trips []models.TripUpdate, group feed.Group) []models.TripUpdate {
	carried := make(map[models.LineID]bool, len(group.Lines))
	for _, l := range group.Lines {
		carried[l] = true
	}

	var out []models.TripUpdate
	for _, t := range trips {
		if carried[t.Line] {
			out = append(out, t)
		}
	}
	return out
}
