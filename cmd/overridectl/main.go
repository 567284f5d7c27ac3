// Command overridectl inspects and edits the archive override table offline: list entries, clear
// an override, and import or export the binary file format.
//
// It reads the same environment as the bot (OVERRIDE_BACKEND, OVERRIDE_FILE, DB_DSN); flags
// override it. Stop the bot before editing, since the running process keeps its own copy in memory
// and rewrites the table on its next change.
package main

import (
	"context"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/onnwee/channel-tender/archive"
	"github.com/onnwee/channel-tender/config"
	"github.com/onnwee/channel-tender/db"
)

type options struct {
	backend string
	file    string
	dsn     string
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd().Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "overridectl",
		Short:         "Inspect and edit channel archive overrides",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.backend, "backend", "", "override backend: file or postgres (default $OVERRIDE_BACKEND or file)")
	cmd.PersistentFlags().StringVar(&opts.file, "file", "", "override file path (default $OVERRIDE_FILE or ./archived.bincode)")
	cmd.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "postgres DSN (default $DB_DSN)")

	cmd.AddCommand(listCmd(opts), removeCmd(opts), importCmd(opts), exportCmd(opts))
	return cmd
}

// openStore loads the selected backend into a store. The returned close func releases the
// database connection, if any.
func (o *options) openStore(ctx context.Context) (*archive.Store, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if o.backend != "" {
		cfg.OverrideBackend = o.backend
	}
	if o.file != "" {
		cfg.OverrideFile = o.file
	}
	if o.dsn != "" {
		cfg.DBDsn = o.dsn
	}

	persister, dbc, err := db.OpenPersister(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {}
	if dbc != nil {
		closeFn = func() { _ = dbc.Close() }
	}

	// Read directly so a corrupt table is reported instead of silently emptied.
	entries, err := persister.Load(ctx)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	store := archive.NewStore(&preloaded{Persister: persister, entries: entries})
	store.Load(ctx)
	return store, closeFn, nil
}

// preloaded serves one already-read snapshot to Store.Load and forwards saves.
type preloaded struct {
	archive.Persister
	entries []archive.Entry
}

func (p *preloaded) Load(context.Context) ([]archive.Entry, error) { return p.entries, nil }
