package main

import (
	"fmt"

	"github.com/spf13/cobra"

	decksync "github.com/conorfennell/cardstreak/internal/sync"
)

func newSyncCmd(a *app) *cobra.Command {
	var owner int64
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull deck sources and reconcile their cards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			syncer := decksync.New(db, a.log, a.cfg.Sources.ReposDir).WithProgress(cmd.ErrOrStderr())
			reports, err := syncer.SyncAll(cmd.Context(), owner)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, r := range reports {
				fmt.Fprintf(out, "deck %d %s: %d parsed, %d added, %d removed\n", r.DeckID, r.Path, r.Parsed, r.Added, r.Removed)
				for _, e := range r.Errors {
					fmt.Fprintf(out, "  - %s\n", e)
				}
				if len(r.Errors) > 0 {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d decks reported errors", failed, len(reports))
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&owner, "owner", 0, "only decks of this user, 0 for all")
	return cmd
}
