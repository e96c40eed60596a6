package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/marshallshelly/pebble-bridge/cmd/pebble-bridge/output"
	"github.com/marshallshelly/pebble-bridge/cmd/pebble-bridge/tui"
	"github.com/marshallshelly/pebble-bridge/pkg/bridge"
	"github.com/marshallshelly/pebble-bridge/pkg/config"
)

var (
	// Inspect flags
	watch       bool
	interactive bool
)

// inspectCmd shows the tables and relationships derived from a model package
var inspectCmd = &cobra.Command{
	Use:   "inspect <path>",
	Short: "Show the tables and relationships derived from models",
	Long: `Load struct-tag models from Go source, synthesize their tables and bind
their classes without connecting to a database, then print the result.

Examples:
  pebble-bridge inspect ./internal/models
  pebble-bridge inspect ./internal/models --json
  pebble-bridge inspect ./internal/models --watch
  pebble-bridge inspect ./internal/models --interactive`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().BoolVarP(&watch, "watch", "w", false, "Re-run whenever a file under path changes")
	inspectCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Browse tables in an interactive UI")
}

func runInspect(ctx context.Context, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, log, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	if interactive {
		b, _, err := prepareBridge(ctx, path, cfg, log)
		if err != nil {
			return err
		}
		return tui.RunBrowser(b.Describe())
	}

	if err := inspectOnce(ctx, path, cfg, log); err != nil {
		if !watch {
			return err
		}
		output.Error("%v", err)
	}
	if !watch {
		return nil
	}
	return watchModels(ctx, path, cfg, log)
}

func inspectOnce(ctx context.Context, path string, cfg *config.Config, log *slog.Logger) error {
	b, n, err := prepareBridge(ctx, path, cfg, log)
	if err != nil {
		return err
	}
	d := b.Describe()

	switch {
	case jsonOutput:
		enc := json.NewEncoder(output.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	case verbose:
		cs := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, SortKeys: true}
		cs.Fdump(output.Out, d)
		return nil
	}

	output.Section(fmt.Sprintf("Models (%d declared, %d tables)", n, len(d.Tables)))
	for _, t := range d.Tables {
		printTable(t)
	}
	for _, c := range d.Classes {
		printClass(c)
	}
	return nil
}

func printTable(t bridge.TableInfo) {
	output.Primary("Table: %s", t.Name)
	w := tabwriter.NewWriter(output.Out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "  NAME\tTYPE\tNULLABLE\tREFERENCES")
	for _, c := range t.Columns {
		name := c.Name
		if c.PrimaryKey {
			name = output.Key(name + " (pk)")
		}
		nullable := "NO"
		if c.Nullable {
			nullable = "YES"
		}
		_, _ = fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", name, c.Type, nullable, c.References)
	}
	_ = w.Flush()
	fmt.Fprintln(output.Out)
}

func printClass(c bridge.ClassInfo) {
	output.Primary("Class: %s", c.Name)
	output.Muted("  table %s, reads from %s", c.Table, c.Alias)
	if len(c.Relationships) == 0 {
		fmt.Fprintln(output.Out)
		return
	}
	for _, r := range c.Relationships {
		line := fmt.Sprintf("  %s -> %s (%s) on %s", r.Key, r.Target, r.Direction, r.Join)
		if r.Secondary != "" {
			line += fmt.Sprintf(" via %s on %s", r.Secondary, r.SecondaryJoin)
		}
		var notes []string
		if r.Backref != "" {
			notes = append(notes, "backref "+r.Backref)
		}
		if r.BackPopulates != "" {
			notes = append(notes, "reverse of "+r.BackPopulates)
		}
		if len(notes) > 0 {
			line += " " + output.Dim("["+strings.Join(notes, ", ")+"]")
		}
		fmt.Fprintln(output.Out, line)
	}
	fmt.Fprintln(output.Out)
}

// watchModels re-runs inspect whenever a Go file under path changes.
func watchModels(ctx context.Context, path string, cfg *config.Config, log *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("file watcher failed: %w", err)
	}
	defer watcher.Close()

	root := path
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		root = filepath.Dir(path)
	}
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return watcher.Add(p)
		}
		return nil
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	output.Info("Watching %s (ctrl+c to stop)", root)

	// Editors emit bursts of events for one save.
	const settle = 200 * time.Millisecond
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, ".go") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				pending = time.After(settle)
			}
		case <-pending:
			pending = nil
			if err := inspectOnce(ctx, path, cfg, log); err != nil {
				output.Error("%v", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", slog.Any("error", err))
		}
	}
}
