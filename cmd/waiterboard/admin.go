package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"waiterboard/domain/waiter"
	"waiterboard/service"
	"waiterboard/snapshot"
)

// withService opens the configured store for the length of fn.
func (a *app) withService(fn func(*service.WaiterService) error) error {
	st, err := openStore(a.cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(service.NewWaiterService(st, service.WithLogger(a.log)))
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the store schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			// opening a store applies pending migrations
			st, err := openStore(a.cfg.Store)
			if err != nil {
				return err
			}
			defer st.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "%s store is up to date\n", a.cfg.Store.Driver)
			return nil
		},
	}
}

func newSeedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the sample patient registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(svc *service.WaiterService) error {
				n, err := svc.SeedPatients(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d patients\n", n)
				return nil
			})
		},
	}
}

func newSettingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect or change board settings",
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Print the current settings as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(svc *service.WaiterService) error {
				s, err := svc.Settings(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), s)
			})
		},
	}

	var format string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write the settings document to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := snapshot.ParseFormat(format)
			if err != nil {
				return err
			}
			return a.withService(func(svc *service.WaiterService) error {
				return svc.ExportSettings(cmd.Context(), cmd.OutOrStdout(), f)
			})
		},
	}
	export.Flags().StringVarP(&format, "format", "f", "json", "json | yaml")

	imp := &cobra.Command{
		Use:   "import <file>",
		Short: "Apply a settings document; keys it omits are left alone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := formatFor(format, args[0])
			if err != nil {
				return err
			}
			in, err := os.Open(args[0])
			if err != nil {
				return errors.Wrap(err, "open settings file")
			}
			defer in.Close()
			return a.withService(func(svc *service.WaiterService) error {
				s, err := svc.ImportSettings(cmd.Context(), in, f)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), s)
			})
		},
	}
	imp.Flags().StringVarP(&format, "format", "f", "", "json | yaml (default: from file extension)")

	cmd.AddCommand(get, export, imp)
	return cmd
}

func formatFor(flag, path string) (snapshot.Format, error) {
	if flag != "" {
		return snapshot.ParseFormat(flag)
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return snapshot.FormatYAML, nil
	default:
		return snapshot.FormatJSON, nil
	}
}

func newAuditCmd(a *app) *cobra.Command {
	var (
		limit  int
		record int64
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent audit entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(svc *service.WaiterService) error {
				var (
					entries []waiter.AuditEntry
					err     error
				)
				if record > 0 {
					entries, err = svc.OrderHistory(cmd.Context(), record)
				} else {
					entries, err = svc.AuditLog(cmd.Context(), limit)
				}
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tRECORD\tACTION\tINITIALS\tAT")
				for _, e := range entries {
					fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", e.ID, e.RecordID, e.Action, e.Initials, e.Timestamp.Format("2006-01-02 15:04:05"))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", service.DefaultAuditLimit, "number of entries")
	cmd.Flags().Int64Var(&record, "record", 0, "only entries for this order")
	return cmd
}

func newBoardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "board <production|patient|mail>",
		Short:     "Print a board as the displays see it",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"production", "patient", "mail"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(svc *service.WaiterService) error {
				var (
					orders []waiter.Order
					err    error
				)
				switch args[0] {
				case "production":
					orders, err = svc.ProductionBoard(cmd.Context())
				case "patient":
					orders, err = svc.PatientBoard(cmd.Context())
				case "mail":
					orders, err = svc.MailQueue(cmd.Context())
				}
				if err != nil {
					return err
				}
				return printBoard(cmd.OutOrStdout(), args[0], orders, svc)
			})
		},
	}
}

func printBoard(w io.Writer, board string, orders []waiter.Order, svc *service.WaiterService) error {
	now := svc.Now()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if board == "patient" {
		fmt.Fprintln(tw, "ID\tNAME\tRX\tREADY")
		for _, o := range orders {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", o.ID, waiter.MaskName(o.FirstName, o.LastName), o.NumPrescriptions, o.ReadyAt.Format("15:04"))
		}
		return tw.Flush()
	}
	fmt.Fprintln(tw, "ID\tTYPE\tPATIENT\tRX\tDUE\tSTATUS")
	for _, o := range orders {
		fmt.Fprintf(tw, "%d\t%s\t%s, %s\t%d\t%s\t%s\n",
			o.ID, o.Type.Label(), o.LastName, o.FirstName, o.NumPrescriptions,
			o.DueTime.Format("15:04"), waiter.FormatTimeRemaining(o.DueTime, now))
	}
	return tw.Flush()
}

func newSnapshotCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Work with board snapshots",
	}

	var dir string
	show := &cobra.Command{
		Use:   "show",
		Short: "Summarise the latest snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = a.cfg.Snapshot.Dir
			}
			snap, err := snapshot.Load(filepath.Join(dir, snapshot.FileName))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "taken:  %s\n", snap.Created.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "seq:    %d\n", snap.Seq)
			fmt.Fprintf(out, "orders: %d\n", len(snap.Orders))
			groups := waiter.GroupByType(snap.Orders)
			for _, typ := range []waiter.OrderType{waiter.TypeWaiter, waiter.TypeAcute, waiter.TypeUrgentMail} {
				fmt.Fprintf(out, "  %-12s %d\n", typ.Label(), len(groups[typ]))
			}
			return nil
		},
	}
	show.Flags().StringVar(&dir, "dir", "", "snapshot directory (default from config)")

	take := &cobra.Command{
		Use:   "take",
		Short: "Write a snapshot now",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = a.cfg.Snapshot.Dir
			}
			return a.withService(func(svc *service.WaiterService) error {
				path, err := svc.SnapshotOnce(cmd.Context(), &snapshot.Writer{Dir: dir})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	}
	take.Flags().StringVar(&dir, "dir", "", "snapshot directory (default from config)")

	cmd.AddCommand(show, take)
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
