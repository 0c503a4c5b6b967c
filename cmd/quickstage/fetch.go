package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iconidentify/quickstage/internal/domain"
	"github.com/iconidentify/quickstage/internal/downloader"
	"github.com/iconidentify/quickstage/internal/materializer"
)

type fetchOptions struct {
	cacheDir    string
	concurrency int
	titles      []string
	mediaTypes  []string
	json        bool
}

// fetchOutput is the --json document.
type fetchOutput struct {
	Items    []domain.MaterializedItem `json:"items"`
	Failures map[string]string         `json:"failures,omitempty"`
}

func newFetchCmd(root *rootOptions) *cobra.Command {
	opts := &fetchOptions{}

	cmd := &cobra.Command{
		Use:   "fetch <locator>...",
		Short: "Materialize locators into the cache and print where they landed",
		Long: "fetch resolves every locator to a local file. Local paths are used in place;\n" +
			"remote URLs are downloaded into the cache unless already present.\n" +
			"The n-th --title and --media-type apply to the n-th locator.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, root, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.cacheDir, "cache-dir", "", "Cache directory (overrides config)")
	f.IntVar(&opts.concurrency, "concurrency", 0, "Max parallel downloads, 0 for unbounded (overrides config)")
	f.StringArrayVar(&opts.titles, "title", nil, "Display title for the locator at the same position")
	f.StringArrayVar(&opts.mediaTypes, "media-type", nil, "Media type or extension for the locator at the same position")
	f.BoolVar(&opts.json, "json", false, "Print the result as JSON")
	return cmd
}

func runFetch(cmd *cobra.Command, root *rootOptions, opts *fetchOptions, args []string) error {
	cfg, logger, err := root.load(cmd)
	if err != nil {
		return err
	}
	if opts.cacheDir != "" {
		cfg.Cache.Dir = opts.cacheDir
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Fetch.Concurrency = opts.concurrency
	}

	fetcher := downloader.NewHTTPFetcher(cfg.Fetch, cfg.Cache.TempPath)
	fetcher.SetLogger(logger)

	mat := materializer.New(materializer.Options{
		Fetcher:     fetcher,
		CacheDir:    cfg.Cache.Dir,
		Concurrency: cfg.Fetch.Concurrency,
		Logger:      logger,
	})

	res, runErr := mat.Materialize(cmd.Context(), buildItems(args, opts.titles, opts.mediaTypes))

	var derr *domain.DownloadError
	if runErr != nil && !errors.As(runErr, &derr) {
		return runErr
	}

	out := fetchOutput{Items: []domain.MaterializedItem{}, Failures: derr.Messages()}
	if res != nil {
		out.Items = res.Items
		out.Failures = res.Failures.Messages()
	}

	if err := printFetch(cmd, opts.json, out); err != nil {
		return err
	}
	// Total failure exits non-zero after the failures are printed.
	return runErr
}

func buildItems(locators, titles, mediaTypes []string) []domain.Item {
	items := make([]domain.Item, len(locators))
	for i, loc := range locators {
		items[i].Source = loc
		if i < len(titles) {
			items[i].Title = titles[i]
		}
		if i < len(mediaTypes) {
			items[i].MediaType = mediaTypes[i]
		}
	}
	return items
}

func printFetch(cmd *cobra.Command, asJSON bool, out fetchOutput) error {
	w := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, item := range out.Items {
		fmt.Fprintf(tw, "%s\t%s\n", item.DisplayTitle, item.LocalPath)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, src := range slices.Sorted(maps.Keys(out.Failures)) {
		fmt.Fprintf(cmd.ErrOrStderr(), "failed: %s: %s\n", src, out.Failures[src])
	}
	return nil
}
