package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pagedex/pagedex/pkg/logger"
)

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file.pdf>",
		Short: "Upload and ingest a PDF document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				file, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer file.Close()
				doc, err := app.Service.Upload(ctx, filepath.Base(args[0]), file)
				if err != nil {
					if doc != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "document %s stored with status %s\n", doc.ID, doc.Status)
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s: %d pages, %d chunks (id %s)\n",
					doc.Filename, doc.Pages, doc.Chunks, doc.ID)
				return nil
			})
		},
	}
}

func newAskCmd() *cobra.Command {
	var docIDs []string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question over the uploaded documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				question := strings.Join(args, " ")
				response, err := app.Service.Ask(ctx, question, docIDs)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, response.Text)
				if len(response.Sources) > 0 {
					fmt.Fprintln(out)
					fmt.Fprintln(out, "Sources:")
					for _, src := range response.Sources {
						name := src.Filename
						if name == "" {
							name = src.DocumentID
						}
						fmt.Fprintf(out, "  %s (pages %s, relevance %.1f)\n",
							name, joinPages(src.Pages), src.Relevance)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&docIDs, "doc", nil, "restrict the question to these document ids")
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List uploaded documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				docs, err := app.Service.List(ctx)
				if err != nil {
					return err
				}
				writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(writer, "ID\tFILENAME\tSTATUS\tPAGES\tCHUNKS\tUPLOADED")
				for _, doc := range docs {
					fmt.Fprintf(writer, "%s\t%s\t%s\t%d\t%d\t%s\n",
						doc.ID, doc.Filename, doc.Status, doc.Pages, doc.Chunks,
						doc.UploadedAt.Format("2006-01-02 15:04"))
				}
				return writer.Flush()
			})
		},
	}
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <document-id>",
		Short: "Show a document's metadata and last access time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				meta, err := app.Service.GetMetadata(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, meta)
			})
		},
	}
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <document-id>",
		Short: "Remove a document and its index entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				if err := app.Service.Remove(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
				return nil
			})
		},
	}
}

func newReingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reingest <document-id>",
		Short: "Rerun ingestion for a document from its stored bytes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				doc, err := app.Service.Reingest(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reingested %s: %d pages, %d chunks\n",
					doc.ID, doc.Pages, doc.Chunks)
				return nil
			})
		},
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Evict documents beyond the retention window once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				evicted, err := app.Sweeper.Sweep(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "evicted %d document(s)\n", evicted)
				return nil
			})
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the retention sweeper until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				if err := app.Sweeper.Start(ctx); err != nil {
					return err
				}
				defer app.Sweeper.Stop()
				logger.FromContext(ctx).Info("sweeper running, press ctrl-c to stop")
				stop := make(chan os.Signal, 1)
				signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
				select {
				case <-stop:
				case <-ctx.Done():
				}
				return nil
			})
		},
	}
}

func printJSON(cmd *cobra.Command, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func joinPages(pages []int) string {
	if len(pages) == 0 {
		return "-"
	}
	parts := make([]string, len(pages))
	for i, page := range pages {
		parts[i] = fmt.Sprint(page)
	}
	return strings.Join(parts, ", ")
}
