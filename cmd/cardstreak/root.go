package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/conorfennell/cardstreak/internal/config"
	"github.com/conorfennell/cardstreak/internal/storage"
	"github.com/conorfennell/cardstreak/internal/streak"
	"github.com/conorfennell/cardstreak/internal/study"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfgPath string
	cfg     *config.Config
	log     *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "cardstreak",
		Short:        "Spaced-repetition flashcards from markdown decks",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgPath, cmd.Flags())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.cfg = cfg
			a.log = cfg.Log.NewLogger(cmd.ErrOrStderr())
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.cfgPath, "config", "c", "", "path to a YAML config file")
	pf.String("db", "cardstreak.db", "path to the SQLite database")
	pf.String("log-level", "info", "log level: debug, info, warn or error")
	pf.String("log-format", "text", "log format: text or json")
	pf.String("timezone", "UTC", "IANA timezone that defines the study day")
	pf.String("repos-dir", "repos", "where git decks are checked out")

	root.AddCommand(
		newServeCmd(a),
		newDeckCmd(a),
		newSyncCmd(a),
		newReviewCmd(a),
		newBatchCmd(a),
		newStreakCmd(a),
	)
	return root
}

func (a *app) openDB() (*storage.DB, error) {
	db, err := storage.Open(a.cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", a.cfg.DB.Path, err)
	}
	return db, nil
}

// newService builds the study service from the loaded config.
func (a *app) newService(db *storage.DB) (*study.Service, error) {
	anchor, err := streak.ParseAnchor(a.cfg.Study.StreakAnchor)
	if err != nil {
		return nil, err
	}
	loc, err := a.cfg.Study.Location()
	if err != nil {
		return nil, err
	}
	return study.New(db, a.log, study.Options{
		DailyGoal:  a.cfg.Study.DailyGoal,
		BatchLimit: a.cfg.Study.BatchLimit,
		Anchor:     anchor,
		Location:   loc,
		Seed:       a.cfg.Study.ShuffleSeed,
	}), nil
}
