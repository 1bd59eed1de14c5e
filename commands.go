package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"moledger/internal/audit"
	"moledger/internal/config"
	"moledger/internal/mo"
	"moledger/internal/models"
	"moledger/internal/scancode"
	"moledger/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

func newRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "moledger",
		Short:         "MO ledger and document compiler",
		Long:          "Issues period-scoped manufacturing order numbers and compiles their work-order documents.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default "+config.DefaultPath+")")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newCreateCommand(opts))
	cmd.AddCommand(newBatchCommand(opts))
	cmd.AddCommand(newReprintCommand(opts))
	cmd.AddCommand(newProductCommand(opts))
	cmd.AddCommand(newImportCommand(opts))
	return cmd
}

// withApp loads config, wires the app, runs fn and closes the app.
func withApp(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, a *App) error) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	ctx := audit.WithUsername(cmd.Context(), cliUser())
	a, err := newApp(ctx, cfg, newLogger(opts.Verbose))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func cliUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}

func newServeCommand(opts *RootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *App) error {
				if addr == "" {
					addr = a.Config.HTTP.Addr
				}
				return serve(ctx, a, addr)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func serve(ctx context.Context, a *App, addr string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(a),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Printf("moledger listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.Logger.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newCreateCommand(opts *RootOptions) *cobra.Command {
	var req mo.CreateRequest
	var out string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue one MO and write its document",
		Long: `Issue one MO and write its document.

The issuing lock only covers this process. When another moledger process
(for example "serve") uses the same database, an id taken by that process is
rejected by the ledger and the next free id is used instead.`,
		Example: `  moledger create --part P-100 --order ORD-7 --qty 10
  moledger create --part P-100 --order ORD-7 --qty 10 --recipient planner@example.com --out ./docs`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *App) error {
				res, err := a.Service.CreateOne(ctx, req)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), res.Message)
				return writeFile(cmd, out, res.File)
			})
		},
	}
	cmd.Flags().StringVar(&req.PartNo, "part", "", "part number (required)")
	cmd.Flags().StringVar(&req.OrderNo, "order", "", "order number")
	cmd.Flags().IntVar(&req.Quantity, "qty", 0, "quantity (required)")
	cmd.Flags().StringVar(&req.Recipient, "recipient", "", "email the document to this address")
	cmd.Flags().StringVar(&out, "out", ".", "output directory")
	_ = cmd.MarkFlagRequired("part")
	_ = cmd.MarkFlagRequired("qty")
	return cmd
}

// batchFile is the on-disk batch request. JSON files parse as YAML too.
type batchFile struct {
	Recipient string      `yaml:"recipient"`
	Items     []batchLine `yaml:"items"`
}

type batchLine struct {
	PartNo   string `yaml:"part_no"`
	OrderNo  string `yaml:"order_no"`
	Quantity int    `yaml:"quantity"`
}

func readBatchFile(path string) (mo.BatchRequest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return mo.BatchRequest{}, fmt.Errorf("read batch file: %w", err)
	}
	var bf batchFile
	if err := yaml.Unmarshal(raw, &bf); err != nil {
		return mo.BatchRequest{}, fmt.Errorf("parse batch file %s: %w", path, err)
	}
	req := mo.BatchRequest{Recipient: bf.Recipient, Items: make([]models.BatchItem, len(bf.Items))}
	for i, l := range bf.Items {
		req.Items[i] = models.BatchItem{PartNo: l.PartNo, OrderNo: l.OrderNo, Quantity: l.Quantity}
	}
	return req, nil
}

func newBatchCommand(opts *RootOptions) *cobra.Command {
	var recipient, out, scan string
	cmd := &cobra.Command{
		Use:   "batch [items.yaml]",
		Short: "Issue several MOs and write one combined document",
		Long: `Issue one MO per item and compile the created records into one combined
document. Items that fail are listed; they do not stop the rest.

Items come from a file holding an items list:

  items:
    - {part_no: P-100, order_no: ORD-7, quantity: 10}
    - {part_no: P-200, order_no: ORD-7, quantity: 4}

or from scanned text with --scan "ORD-7|P-100|10|ORD-7|P-200|4".

The issuing lock only covers this process. When another moledger process
(for example "serve") uses the same database, an id taken by that process is
rejected by the ledger and the next free id is used instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req mo.BatchRequest
			switch {
			case scan != "" && len(args) == 0:
				items, err := scancode.ParseItems(scan)
				if err != nil {
					return err
				}
				req.Items = items
			case scan == "" && len(args) == 1:
				var err error
				if req, err = readBatchFile(args[0]); err != nil {
					return err
				}
			default:
				return errors.New("give either an items file or --scan")
			}
			if recipient != "" {
				req.Recipient = recipient
			}
			return withApp(cmd, opts, func(ctx context.Context, a *App) error {
				res, err := a.Service.CreateBatch(ctx, req)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), res.Message)
				if len(res.Created) == 0 {
					return errors.New("no MO records were created")
				}
				return writeFile(cmd, out, res.File)
			})
		},
	}
	cmd.Flags().StringVar(&recipient, "recipient", "", "email the combined document to this address")
	cmd.Flags().StringVar(&out, "out", ".", "output directory")
	cmd.Flags().StringVar(&scan, "scan", "", "scanned order|part|qty text")
	return cmd
}

func newReprintCommand(opts *RootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "reprint <order-no>",
		Short: "Rebuild the combined document for an order number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *App) error {
				res, err := a.Service.ReprintByOrder(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), res.Message)
				return writeFile(cmd, out, res.File)
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", ".", "output directory")
	return cmd
}

func newProductCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "product <part-no>",
		Short: "Show a catalog entry and its defined stations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *App) error {
				info, err := a.Service.LookupProduct(ctx, args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			})
		},
	}
}

func newImportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import-catalog <file.xlsx>",
		Short: "Upsert catalog entries from a station workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return withApp(cmd, opts, func(ctx context.Context, a *App) error {
				res, err := store.ImportCatalog(ctx, a.Store, f)
				if err != nil {
					return err
				}
				a.Service.RecordImport(ctx, filepath.Base(args[0]), res.Imported, len(res.Skipped))
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d product(s)\n", res.Imported)
				for _, s := range res.Skipped {
					fmt.Fprintf(cmd.OutOrStdout(), "skipped %s\n", s)
				}
				return nil
			})
		},
	}
}

func writeFile(cmd *cobra.Command, dir string, f *mo.File) error {
	if f == nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, filepath.Base(f.Name))
	if err := os.WriteFile(path, f.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}
