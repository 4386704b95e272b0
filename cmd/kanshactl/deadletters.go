package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func deadLettersCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deadletters",
		Aliases: []string{"dl"},
		Short:   "Inspect and replay webhook events that could not be applied",
	}
	cmd.AddCommand(listDeadLettersCmd(open))
	cmd.AddCommand(replayDeadLetterCmd(open))
	cmd.AddCommand(deleteDeadLetterCmd(open))
	cmd.AddCommand(purgeDeadLettersCmd(open))
	return cmd
}

func listDeadLettersCmd(open opener) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			letters, err := svc.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(letters)
			}
			if len(letters) == 0 {
				fmt.Fprintln(out, "No dead letters.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tEVENT\tTYPE\tATTEMPTS\tLAST ATTEMPT\tLAST ERROR")
			for _, l := range letters {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					l.ID, l.EventID, l.EventType, l.Attempts, l.LastAttemptAt.Format(time.RFC3339), l.LastError)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum results")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	return cmd
}

func replayDeadLetterCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "replay [id]",
		Short: "Apply a dead-lettered event again and remove it on success",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if err := svc.Replay(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Replayed %s\n", args[0])
			return nil
		},
	}
}

func deleteDeadLetterCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Discard a dead-lettered event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if err := svc.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func purgeDeadLettersCmd(open opener) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Discard every dead-lettered event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to purge without --yes")
			}
			svc, cleanup, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			n, err := svc.Purge(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d dead letter(s)\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the purge")
	return cmd
}
