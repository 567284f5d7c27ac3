package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/onnwee/channel-tender/archive"
)

func listCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored overrides in insertion order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, closeFn, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			out := cmd.OutOrStdout()
			entries := store.Entries()
			if len(entries) == 0 {
				fmt.Fprintln(out, "no overrides")
				return nil
			}
			dim := color.New(color.FgHiBlack)
			for i, e := range entries {
				age := time.Since(e.Timestamp).Truncate(time.Hour)
				fmt.Fprintf(out, "%3d  %-20d  %s  %s\n", i, e.ChannelID,
					e.Timestamp.Format(time.RFC3339), dim.Sprintf("(%s ago)", age))
			}
			fmt.Fprintf(out, "%d override(s)\n", len(entries))
			return nil
		},
	}
}

func removeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "remove CHANNEL_ID...",
		Short: "Clear the override for one or more channels",
		Long: `Clear the override for one or more channels in the configured backend.

Stop the bot first. A running bot keeps its own copy of the table and its next change rewrites
the backend, undoing this edit. Use DELETE /overrides/{id} on a running bot instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			store, closeFn, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			drop := make(map[uint64]bool, len(ids))
			for _, id := range ids {
				drop[id] = true
			}
			current := store.Entries()
			kept := make([]archive.Entry, 0, len(current))
			for _, e := range current {
				if !drop[e.ChannelID] {
					kept = append(kept, e)
				}
			}
			if len(kept) != len(current) {
				if err := store.Set(cmd.Context(), kept); err != nil {
					return fmt.Errorf("write overrides: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			for _, id := range ids {
				if _, ok := findEntry(current, id); ok {
					fmt.Fprintf(out, "%s %d\n", color.New(color.FgGreen).Sprint("removed"), id)
				} else {
					fmt.Fprintf(out, "%s %d (no override)\n", color.New(color.FgYellow).Sprint("skipped"), id)
				}
			}
			return nil
		},
	}
}

func importCmd(opts *options) *cobra.Command {
	var replace bool
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Merge a binary override file into the configured backend",
		Long: `Read a binary override file (20-byte records) and store its entries in the configured
backend. Entries for channels that already have an override replace it. With --replace the
backend is cleared first. The backend is written once, so a failed write changes nothing.

Stop the bot first. A running bot keeps its own copy of the table and its next change rewrites
the backend, undoing the import.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			incoming, err := archive.Decode(raw)
			if err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}

			store, closeFn, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			merged := incoming
			if !replace {
				merged = append(store.Entries(), incoming...)
			}
			if err := store.Set(cmd.Context(), merged); err != nil {
				return fmt.Errorf("write overrides: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d entries (%d total)\n",
				color.New(color.FgGreen).Sprint("imported"), len(incoming), store.Len())
			return nil
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "clear existing overrides before importing")
	return cmd
}

func exportCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "export FILE",
		Short: "Write the configured backend's overrides to a binary override file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			entries := store.Entries()
			if err := (&archive.FilePersister{Path: args[0]}).Save(cmd.Context(), entries); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d entries to %s\n",
				color.New(color.FgGreen).Sprint("exported"), len(entries), args[0])
			return nil
		},
	}
}

func findEntry(entries []archive.Entry, id uint64) (archive.Entry, bool) {
	for _, e := range entries {
		if e.ChannelID == id {
			return e, true
		}
	}
	return archive.Entry{}, false
}

func parseIDs(args []string) ([]uint64, error) {
	ids := make([]uint64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseUint(a, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid channel id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
