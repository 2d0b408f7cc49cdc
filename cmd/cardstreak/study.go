package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conorfennell/cardstreak/internal/domain"
	"github.com/conorfennell/cardstreak/internal/study"
)

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, s)
	}
	return id, nil
}

func newReviewCmd(a *app) *cobra.Command {
	var cram bool
	cmd := &cobra.Command{
		Use:   "review <user-id> <card-id> <rating>",
		Short: "Rate one card: 1/failed, 2/hard, 3/good or 4/easy",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID(args[0], "user")
			if err != nil {
				return err
			}
			cardID, err := parseID(args[1], "card")
			if err != nil {
				return err
			}
			rating, err := domain.ParseRating(args[2])
			if err != nil {
				return err
			}

			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			svc, err := a.newService(db)
			if err != nil {
				return err
			}

			st, err := svc.SubmitRating(cmd.Context(), study.SubmitRequest{
				UserID: userID,
				CardID: cardID,
				Rating: rating,
				Cram:   cram,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			card, err := db.GetCard(cmd.Context(), cardID)
			if err != nil {
				return err
			}
			if card != nil {
				fmt.Fprintf(out, "Q: %s\nA: %s\n", card.Question, card.Answer)
			}
			fmt.Fprintf(out, "card %d: %s, next review %s (interval %dd, ease %.2f)\n",
				cardID, st.Status(), st.NextReview, st.Interval, st.EaseFactor)
			return nil
		},
	}
	cmd.Flags().BoolVar(&cram, "cram", false, "cram review: keep ease and schedule within three days")
	return cmd
}

func newBatchCmd(a *app) *cobra.Command {
	var (
		deck     int64
		mode     string
		cardType string
	)
	cmd := &cobra.Command{
		Use:   "batch <user-id>",
		Short: "Show the next cards to study",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID(args[0], "user")
			if err != nil {
				return err
			}

			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			svc, err := a.newService(db)
			if err != nil {
				return err
			}

			items, err := svc.StudyBatch(cmd.Context(), study.BatchRequest{
				UserID:   userID,
				DeckID:   deck,
				Mode:     domain.SessionMode(mode),
				CardType: domain.CardType(cardType),
			})
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to study")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CARD\tDECK\tSTATUS\tQUESTION")
			for _, it := range items {
				fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", it.Card.ID, it.Card.DeckID, it.Status, it.Card.Question)
			}
			return tw.Flush()
		},
	}
	f := cmd.Flags()
	f.Int64Var(&deck, "deck", 0, "deck id, 0 for all of the user's decks")
	f.StringVar(&mode, "mode", "due", "session mode: due, all or cram")
	f.StringVar(&cardType, "type", "all", "card type: all, new, learning, mastered or failed")
	f.Int("limit", 20, "batch size")
	return cmd
}

func newStreakCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "streak <user-id>",
		Short: "Show the study streak and today's goal progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID(args[0], "user")
			if err != nil {
				return err
			}

			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			svc, err := a.newService(db)
			if err != nil {
				return err
			}

			sum, err := svc.Streak(cmd.Context(), userID)
			if err != nil {
				return err
			}
			p, err := svc.TodayProgress(cmd.Context(), userID, 0)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "current streak: %d days\n", sum.Current)
			fmt.Fprintf(out, "longest streak: %d days\n", sum.Longest)
			fmt.Fprintf(out, "today: %d/%d cards (%d%%)\n", p.Studied, p.Goal, p.Percent)
			return nil
		},
	}
	cmd.Flags().Int("goal", 20, "daily goal")
	return cmd
}
