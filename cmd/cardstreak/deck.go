package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conorfennell/cardstreak/internal/domain"
)

func newDeckCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deck",
		Short: "Manage decks",
	}
	cmd.AddCommand(newDeckAddCmd(a), newDeckListCmd(a), newDeckRmCmd(a))
	return cmd
}

func newDeckAddCmd(a *app) *cobra.Command {
	var (
		owner int64
		name  string
		stype string
	)
	cmd := &cobra.Command{
		Use:   "add <path/or/url.git>",
		Short: "Register a local directory or git repository as a deck",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, kind, err := resolveSource(args[0], stype)
			if err != nil {
				return err
			}
			if name == "" {
				name = filepath.Base(source)
			}

			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			id, err := db.InsertDeck(cmd.Context(), domain.Deck{
				OwnerID:    owner,
				Name:       name,
				SourcePath: source,
				SourceType: kind,
			})
			if err != nil {
				return err
			}
			a.log.Info("deck added", "deck_id", id, "owner_id", owner, "source", source, "type", kind)
			fmt.Fprintf(cmd.OutOrStdout(), "added deck %d (%s, %s)\n", id, name, kind)
			return nil
		},
	}
	cmd.Flags().Int64Var(&owner, "owner", 1, "owning user id")
	cmd.Flags().StringVar(&name, "name", "", "display name, defaults to the last path element")
	cmd.Flags().StringVar(&stype, "type", "", "source type: local or git, detected when empty")
	return cmd
}

// resolveSource decides where a deck comes from. An existing local directory
// wins over the remote-looking name patterns.
func resolveSource(source, explicit string) (string, domain.SourceType, error) {
	var kind domain.SourceType
	switch explicit {
	case "":
		if fi, err := os.Stat(source); err == nil && fi.IsDir() {
			kind = domain.SourceLocal
		} else {
			kind = domain.DetectSourceType(source)
		}
	case string(domain.SourceLocal), string(domain.SourceGit):
		kind = domain.SourceType(explicit)
	default:
		return "", "", fmt.Errorf("unknown source type %q, want local or git", explicit)
	}

	if kind == domain.SourceLocal {
		abs, err := filepath.Abs(source)
		if err != nil {
			return "", "", err
		}
		source = abs
	}
	return source, kind, nil
}

func newDeckListCmd(a *app) *cobra.Command {
	var owner int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List decks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			decks, err := db.ListDecks(cmd.Context(), owner)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tOWNER\tNAME\tTYPE\tSOURCE\tLAST SCANNED")
			for _, d := range decks {
				scanned := "never"
				if d.LastScanned != nil {
					scanned = d.LastScanned.Local().Format("2006-01-02 15:04")
				}
				fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n", d.ID, d.OwnerID, d.Name, d.SourceType, d.SourcePath, scanned)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Int64Var(&owner, "owner", 0, "only decks of this user, 0 for all")
	return cmd
}

func newDeckRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <deck-id>",
		Short: "Remove a deck with its cards and review states",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid deck id %q", args[0])
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			deck, err := db.GetDeck(cmd.Context(), id)
			if err != nil {
				return err
			}
			if deck == nil {
				return fmt.Errorf("deck %d not found", id)
			}
			if err := db.DeleteDeck(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed deck %d (%s)\n", id, deck.Name)
			return nil
		},
	}
}
