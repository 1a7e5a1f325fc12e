package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"docdex/internal/chat"
	"docdex/internal/chunker"
	"docdex/internal/config"
	"docdex/internal/embedding"
	"docdex/internal/ingest"
	"docdex/internal/rerank"
	"docdex/internal/search"
	"docdex/internal/storage"
	"docdex/internal/watch"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		configPath string
		verbose    bool
	)

	rootCmd := &cobra.Command{
		Use:           "docdex",
		Short:         "Incremental document indexing with hybrid retrieval",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default .docdex.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	rootCmd.AddCommand(
		initCmd(&configPath),
		ingestCmd(&configPath),
		syncCmd(&configPath),
		pruneCmd(&configPath),
		sourcesCmd(&configPath),
		searchCmd(&configPath),
		extractCmd(&configPath),
		reconstructCmd(&configPath),
		chatCmd(&configPath),
		watchCmd(&configPath),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

// app bundles the wired components every command needs.
type app struct {
	cfg      *config.Config
	store    storage.Catalog
	embedder embedding.Provider
	pipeline *ingest.Pipeline
	engine   *search.Engine
}

func newApp(configPath string) (*app, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sqldb, err := storage.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	store := storage.NewPostgres(sqldb, cfg.Embed.Dim, cfg.Debug)

	embedder, err := embedding.New(cfg.Embed)
	if err != nil {
		return nil, err
	}
	ch, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		store:    store,
		embedder: embedder,
		pipeline: ingest.New(store, embedder, ch, cfg.Workers),
		engine:   search.NewEngine(store, embedder),
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("close store")
	}
}

func initCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the database schema and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.store.Init(cmd.Context()); err != nil {
				return err
			}
			log.Info().Msg("schema ready")
			return nil
		},
	}
}

func ingestCmd(configPath *string) *cobra.Command {
	var (
		csvRowMode bool
		csvDelim   string
		csvHeaders string
		csvWhere   []string
		csvLimit   int
		dryRun     bool
		asJSON     bool
		outPath    string
	)
	cmd := &cobra.Command{
		Use:   "ingest <folder>",
		Short: "Index every supported file under a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			opts := ingest.FolderOptions{
				CSVRowMode:   csvRowMode,
				CSVDelimiter: csvDelim,
				CSVHeaders:   csvHeaders,
				CSVWhere:     parseWhere(csvWhere),
				CSVLimit:     csvLimit,
			}
			if dryRun {
				count, err := a.pipeline.PreviewFolder(args[0], opts)
				if err != nil {
					return err
				}
				return emitPreview(args[0], count, asJSON, outPath)
			}
			stats, err := a.pipeline.IngestFolder(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			printStats(stats)
			return nil
		},
	}
	cmd.Flags().BoolVar(&csvRowMode, "csv-rows", false, "Index each CSV row as its own document")
	cmd.Flags().StringVar(&csvDelim, "csv-delimiter", ",", "CSV field delimiter")
	cmd.Flags().StringVar(&csvHeaders, "csv-headers", "auto", "CSV header handling: auto, true, false")
	cmd.Flags().StringArrayVar(&csvWhere, "csv-where", nil, "Row filter key=value (repeatable, all must match)")
	cmd.Flags().IntVar(&csvLimit, "csv-limit", 0, "Max CSV rows per file (0 = no limit)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Count what would be ingested without writing")
	cmd.Flags().BoolVar(&asJSON, "json", false, "With --dry-run, emit the preview as JSON")
	cmd.Flags().StringVar(&outPath, "out", "", "With --dry-run, write the preview to a file")
	return cmd
}

// emitPreview renders a dry-run summary as text or JSON, to stdout or a file.
func emitPreview(folder string, count int, asJSON bool, outPath string) error {
	var rendered string
	if asJSON {
		data, err := json.MarshalIndent(struct {
			Mode   string `json:"mode"`
			Folder string `json:"folder"`
			Files  int    `json:"files"`
		}{Mode: "folder", Folder: folder, Files: count}, "", "  ")
		if err != nil {
			return err
		}
		rendered = string(data) + "\n"
	} else {
		rendered = fmt.Sprintf("would ingest %d document(s)\n", count)
	}
	if outPath != "" {
		return os.WriteFile(outPath, []byte(rendered), 0o644)
	}
	fmt.Print(rendered)
	return nil
}

func syncCmd(configPath *string) *cobra.Command {
	var prune bool
	cmd := &cobra.Command{
		Use:   "sync <folder>",
		Short: "Re-index a folder; only new or changed files cause writes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			stats, err := a.pipeline.Sync(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printStats(stats)
			if prune {
				n, err := a.pipeline.Prune(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Printf("pruned:    %d\n", n)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&prune, "prune", false, "Also remove documents whose files are gone")
	return cmd
}

func pruneCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "prune <folder>",
		Short: "Remove indexed documents whose files no longer exist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			n, err := a.pipeline.Prune(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("pruned %d document(s)\n", n)
			return nil
		},
	}
}

func sourcesCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "Run every ingestion source from the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			if len(a.cfg.Sources) == 0 {
				return fmt.Errorf("no sources configured")
			}
			var total ingest.BatchStats
			for _, sc := range a.cfg.Sources {
				stats, err := a.pipeline.IngestSource(cmd.Context(), sc)
				if err != nil {
					log.Error().Err(err).Str("source", sc.Name).Msg("source failed")
					continue
				}
				log.Info().Str("source", sc.Name).Int("processed", stats.Processed).
					Int("changed", stats.Changed()).Int("failed", stats.Failed).Msg("source done")
				total.Merge(stats)
			}
			printStats(total)
			return nil
		},
	}
}

func searchCmd(configPath *string) *cobra.Command {
	var (
		topK       int
		mode       string
		alpha      float64
		rankFn     string
		pathPrefix string
		doRerank   bool
		asJSON     bool
		outPath    string
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Query the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			query := strings.Join(args, " ")
			if topK == 0 {
				topK = a.cfg.TopK
			}
			results, err := a.engine.Query(cmd.Context(), query, search.Options{
				TopK:       topK,
				Mode:       mode,
				Alpha:      alpha,
				RankFn:     rankFn,
				PathPrefix: pathPrefix,
			})
			if err != nil {
				return err
			}
			if doRerank || a.cfg.Rerank.Enabled {
				results = rerank.Apply(cmd.Context(), newScorer(a.cfg), query, results)
			}

			if outPath != "" {
				if err := search.WriteResults(outPath, results); err != nil {
					return err
				}
				log.Info().Str("out", outPath).Int("results", len(results)).Msg("exported")
				return nil
			}
			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(results)
			}
			for i, r := range results {
				fmt.Printf("%2d. %-50s pos=%-3d score=%.4f\n", i+1, r.DocumentPath, r.Position, r.Score)
				fmt.Printf("    %s\n", snippet(r.Text, 160))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Result count (default from config)")
	cmd.Flags().StringVarP(&mode, "mode", "m", "vector", "Search mode: vector, keyword, hybrid")
	cmd.Flags().Float64Var(&alpha, "alpha", 0.5, "Hybrid blend weight toward the vector score")
	cmd.Flags().StringVar(&rankFn, "rank-fn", "rank", "Lexical rank function: rank, rank_cd")
	cmd.Flags().StringVar(&pathPrefix, "path-prefix", "", "Keep only results whose path starts with this prefix")
	cmd.Flags().BoolVar(&doRerank, "rerank", false, "Rescore results with the configured reranker")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit results as JSON")
	cmd.Flags().StringVar(&outPath, "out", "", "Export results to a .txt, .csv or .json file")
	return cmd
}

func extractCmd(configPath *string) *cobra.Command {
	var (
		topK    int
		mode    string
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "extract <query>",
		Short: "Write the top chunks for a query to a JSON file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			query := strings.Join(args, " ")
			if topK == 0 {
				topK = a.cfg.TopK
			}
			results, err := a.engine.Query(cmd.Context(), query, search.Options{TopK: topK, Mode: mode})
			if err != nil {
				return err
			}
			if err := search.WriteExtraction(outPath, query, results); err != nil {
				return err
			}
			log.Info().Str("out", outPath).Int("chunks", len(results)).Msg("saved extraction")
			return nil
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Chunk count (default from config)")
	cmd.Flags().StringVarP(&mode, "mode", "m", "vector", "Search mode: vector, keyword, hybrid")
	cmd.Flags().StringVar(&outPath, "out", "results.json", "Output JSON file")
	return cmd
}

func reconstructCmd(configPath *string) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "reconstruct <path>",
		Short: "Rebuild a document's indexed text from its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			text, err := a.engine.Reconstruct(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if outPath != "" {
				return os.WriteFile(outPath, []byte(text), 0o644)
			}
			fmt.Println(text)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "Write the text to a file instead of stdout")
	return cmd
}

func chatCmd(configPath *string) *cobra.Command {
	var (
		mode  string
		alpha float64
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive question answering over the index",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			var scorer rerank.Scorer
			if a.cfg.Rerank.Enabled {
				scorer = newScorer(a.cfg)
			}
			session := chat.NewSession(a.engine, a.store, a.cfg.LLM, scorer, search.Options{
				TopK:  a.cfg.TopK,
				Mode:  mode,
				Alpha: alpha,
			})

			scanner := bufio.NewScanner(os.Stdin)
			fmt.Println("docdex chat. Empty line exits.")
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					break
				}
				question := strings.TrimSpace(scanner.Text())
				if question == "" {
					break
				}
				_, err := session.Ask(cmd.Context(), question, func(token string) {
					fmt.Print(token)
				})
				if err != nil {
					log.Error().Err(err).Msg("chat turn failed")
					continue
				}
				fmt.Println()
			}
			return scanner.Err()
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", "hybrid", "Retrieval mode for chat context")
	cmd.Flags().Float64Var(&alpha, "alpha", 0.5, "Hybrid blend weight")
	return cmd
}

func watchCmd(configPath *string) *cobra.Command {
	var (
		debounce time.Duration
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch <folder>",
		Short: "Keep a folder index fresh until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			w := watch.New(args[0], func(ctx context.Context, root string) error {
				stats, err := a.pipeline.Sync(ctx, root)
				if err != nil {
					return err
				}
				if stats.Changed() > 0 || stats.Failed > 0 {
					log.Info().Int("changed", stats.Changed()).Int("failed", stats.Failed).Msg("synced")
				}
				_, err = a.pipeline.Prune(ctx, root)
				return err
			}, debounce, interval)
			log.Info().Str("root", args[0]).Msg("watching")
			return w.Run(cmd.Context())
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "Quiet period after a change before syncing")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Minute, "Full sync interval")
	return cmd
}

func newScorer(cfg *config.Config) rerank.Scorer {
	switch cfg.Rerank.Provider {
	case "http":
		return rerank.NewHTTPScorer(cfg.Rerank.Endpoint, cfg.Rerank.Model)
	case "llm":
		return rerank.NewLLMScorer(cfg.LLM)
	default:
		return rerank.Heuristic{}
	}
}

func parseWhere(pairs []string) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	where := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		where[k] = v
	}
	return where
}

func printStats(s ingest.BatchStats) {
	fmt.Printf("processed: %d\ninserted:  %d\nupdated:   %d\nskipped:   %d\nfailed:    %d\n",
		s.Processed, s.Inserted, s.Updated, s.Skipped, s.Failed)
}

func snippet(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "…"
}
