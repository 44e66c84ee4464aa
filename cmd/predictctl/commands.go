package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/timmy/predictboard/internal/client"
	"github.com/timmy/predictboard/internal/version"
)

type options struct {
	server  string
	output  string
	timeout time.Duration
}

func (o *options) client() *client.Client {
	return client.New(strings.TrimRight(o.server, "/"), o.timeout)
}

func execute(args []string) int {
	root := newRootCmd(os.Stdout)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.QueryExecutionID != "" {
			fmt.Fprintf(os.Stderr, "Error: %s\nQuery execution: %s\n", apiErr.Message, apiErr.QueryExecutionID)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "predictctl",
		Short:         "Inspect tickers, forecasts and query history of a predictboard server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("server") {
				if v := os.Getenv("PREDICTBOARD_SERVER"); v != "" {
					opts.server = v
				}
			}
			if opts.output != "table" && opts.output != "json" {
				return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", opts.output)
			}
			return nil
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.server, "server", "http://localhost:8080", "predictboard base URL (env PREDICTBOARD_SERVER)")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "output format: table|json")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "request timeout")

	root.AddCommand(
		newTickersCmd(opts),
		newSeriesCmd(opts),
		newChartCmd(opts),
		newQueryCmd(opts),
		newHistoryCmd(opts),
		newVersionCmd(opts),
	)
	return root
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func newTickersCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tickers",
		Short: "List discovered tickers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := opts.client().Tickers(cmd.Context())
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), res)
			}
			if res.Notice != "" {
				fmt.Fprintln(cmd.OutOrStdout(), res.Notice)
				return nil
			}
			for _, t := range res.Tickers {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
}

func newSeriesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "series <ticker>",
		Short: "Print the real and predicted prices of a ticker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.client().Series(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), res)
			}
			if res.Notice != "" {
				fmt.Fprintln(cmd.OutOrStdout(), res.Notice)
				return nil
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "DATE\tPRICE\tTAG")
			for _, p := range res.Series.Points {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Date.Format("2006-01-02"), p.Price.String(), p.Tag)
			}
			return tw.Flush()
		},
	}
}

func newChartCmd(opts *options) *cobra.Command {
	var (
		params client.ChartParams
		file   string
	)
	cmd := &cobra.Command{
		Use:   "chart <ticker>",
		Short: "Download the forecast chart of a ticker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := opts.client().Chart(cmd.Context(), args[0], params)
			if err != nil {
				return err
			}
			if file == "" {
				ext := params.Format
				if ext == "" {
					ext = "png"
				}
				file = args[0] + "." + ext
			}
			if err := os.WriteFile(file, img, 0o644); err != nil {
				return fmt.Errorf("write chart: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", file, len(img))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "output file (default <ticker>.<format>)")
	cmd.Flags().StringVar(&params.From, "from", "", "first date, YYYY-MM-DD")
	cmd.Flags().StringVar(&params.To, "to", "", "last date, YYYY-MM-DD")
	cmd.Flags().StringVar(&params.Format, "format", "png", "image format: png|svg")
	cmd.Flags().BoolVar(&params.Thumb, "thumb", false, "download the thumbnail")
	return cmd
}

func newQueryCmd(opts *options) *cobra.Command {
	var (
		table string
		limit int
		csv   string
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Preview rows of a configured table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := opts.client()
			res, err := c.Query(cmd.Context(), table, limit)
			if err != nil {
				return err
			}
			if csv != "" {
				return downloadCSV(cmd.Context(), c, res.RecordID, csv, cmd.OutOrStdout())
			}
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), res)
			}
			if res.Notice != "" {
				fmt.Fprintln(cmd.OutOrStdout(), res.Notice)
				return nil
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, strings.ToUpper(strings.Join(res.Columns, "\t")))
			for _, row := range res.Rows {
				cells := make([]string, len(row))
				for i, v := range row {
					cells[i] = v.ValueOrZero()
					if !v.Valid {
						cells[i] = "null"
					}
				}
				fmt.Fprintln(tw, strings.Join(cells, "\t"))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Returned %d rows\n", res.RowCount)
			return nil
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "table to preview, database.table")
	cmd.Flags().IntVar(&limit, "limit", 0, "number of rows (server default when 0)")
	cmd.Flags().StringVar(&csv, "csv", "", "write the full CSV result to this file instead")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

func downloadCSV(ctx context.Context, c *client.Client, recordID, path string, out io.Writer) error {
	if recordID == "" {
		return errors.New("result was served from cache and has no record; retry later or use the history command")
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	n, err := c.DownloadCSV(ctx, recordID, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %s (%d bytes)\n", path, n)
	return nil
}

func newHistoryCmd(opts *options) *cobra.Command {
	var (
		purpose string
		limit   int
		csvID   string
		csvFile string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently executed queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := opts.client()
			if csvID != "" {
				if csvFile == "" {
					csvFile = csvID + ".csv"
				}
				return downloadCSV(cmd.Context(), c, csvID, csvFile, cmd.OutOrStdout())
			}
			records, err := c.History(cmd.Context(), purpose, limit)
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), records)
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tPURPOSE\tSTATUS\tROWS\tDURATION\tSTARTED")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%dms\t%s\n",
					r.ID, r.Purpose, r.Status, r.RowCount, r.DurationMs, r.StartedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&purpose, "purpose", "", "filter by purpose: discovery|series|browse")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of records")
	cmd.Flags().StringVar(&csvID, "download", "", "download the CSV result of this record id")
	cmd.Flags().StringVar(&csvFile, "file", "", "output file for --download (default <id>.csv)")
	return cmd
}

func newVersionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Get()
			if opts.output == "json" {
				return printJSON(cmd.OutOrStdout(), info)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "predictctl %s (%s)\n", info.Version, info.Commit)
			return nil
		},
	}
}
