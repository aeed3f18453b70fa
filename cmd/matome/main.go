// Package main is the matome CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/matome/internal/cli"
	"github.com/hyperjump/matome/internal/cluster"
	"github.com/hyperjump/matome/internal/config"
	"github.com/hyperjump/matome/internal/embedding"
	"github.com/hyperjump/matome/internal/feed"
	"github.com/hyperjump/matome/internal/ingest"
	"github.com/hyperjump/matome/internal/models"
	"github.com/hyperjump/matome/internal/server"
	"github.com/hyperjump/matome/internal/storage"
	"github.com/hyperjump/matome/internal/watcher"
	"github.com/hyperjump/matome/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/matome/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// A missing default config yields the built-in defaults so the CLI works without setup.
// Returns the config and the path that was actually loaded ("" for built-in defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "cluster":
		runCluster()
	case "fetch":
		runFetch()
	case "title":
		runTitle()
	case "status":
		runStatus()
	case "init":
		runInit()
	case "version", "--version", "-v":
		fmt.Printf("matome version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (feed fetches, cluster runs, list reloads)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Feeds.ListPath != "" {
		ingester := components.Ingester
		watchSvc := watcher.NewWatcher(
			cfg.Feeds.ListPath,
			func(urls []string) {
				merged := feed.MergeURLs(cfg.Feeds.URLs, urls)
				ingester.SetURLs(merged)
				logger.Info("feed list reloaded", zap.Int("feeds", len(merged)))
			},
			watcher.WithLogger(utils.DebugOnly(logger, debugMode)),
		)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Warn("feed list watcher not started", zap.String("path", cfg.Feeds.ListPath), zap.Error(err))
		} else {
			defer watchSvc.Stop()
			logger.Info("watching feed list", zap.String("path", watchSvc.Path()))
		}
	}

	srv := server.NewServer(
		components.Engine,
		components.Ingester,
		components.Storage,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func printClusterUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: matome cluster [flags]\n\n")
	fmt.Fprintf(fs.Output(), "Clusters the items in -input (a JSON array of items, or {\"items\": [...]}),\n")
	fmt.Fprintf(fs.Output(), "or fetches the configured feeds and clusters them when -input is not given.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Threshold:
  Similarity a new item needs to join an existing cluster (default 0.78).
  Above 1 every item stands alone; -1 or below puts everything in one cluster.

Examples:
  matome cluster
  matome cluster -threshold 0.7 -output compact
  matome cluster -input items.json -output json
  matome cluster -server http://localhost:8080
`)
}

// parseThresholdFlag returns nil for an empty value so the config default applies.
func parseThresholdFlag(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(t) || math.IsInf(t, 0) {
		return nil, fmt.Errorf("invalid threshold %q", raw)
	}
	return &t, nil
}

func runCluster() {
	fs := flag.NewFlagSet("cluster", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	input := fs.String("input", "", "JSON file with items to cluster (- for stdin); empty fetches the configured feeds")
	thresholdFlag := fs.String("threshold", "", "similarity threshold (default from config, or 0.78)")
	serverURL := fs.String("server", "", "server URL; empty clusters locally")
	outputFormat := fs.String("output", "text", "output format: text (human-readable), compact (one cluster per line), or json (parseable)")
	fs.Usage = func() { printClusterUsage(fs) }
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	threshold, err := parseThresholdFlag(*thresholdFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var items []*models.Item
	if *input != "" {
		items, err = readItemsFile(*input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read items: %v\n", err)
			os.Exit(1)
		}
	}

	if *serverURL != "" {
		response, err := clusterViaHTTP(*serverURL, items, *input != "", threshold)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cluster failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteClusters(os.Stdout, response, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	var feedErrors []string
	if *input == "" {
		if len(components.Ingester.URLs()) == 0 {
			fmt.Fprintln(os.Stderr, "No feeds configured; set feeds.urls or feeds.list_path, or pass -input")
			os.Exit(1)
		}
		res, err := components.Ingester.Run(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Fetch failed: %v\n", err)
			os.Exit(1)
		}
		items = res.Items
		feedErrors = res.Errors
	}

	t := cfg.Cluster.ThresholdOrDefault(models.DefaultThreshold)
	if threshold != nil {
		t = *threshold
	}
	response, err := components.Engine.Run(ctx, items, t)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cluster failed: %v\n", err)
		os.Exit(1)
	}
	response.Errors = feedErrors
	if err := cli.WriteClusters(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func readItemsFile(path string) ([]*models.Item, error) {
	if path == "-" {
		return cli.ReadItems(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return cli.ReadItems(f)
}

// clusterViaHTTP posts items when withItems is set, otherwise asks the server to cluster
// its configured feeds.
func clusterViaHTTP(serverURL string, items []*models.Item, withItems bool, threshold *float64) (*models.ClusterResponse, error) {
	var resp *http.Response
	var err error
	if withItems {
		body, mErr := json.Marshal(&models.ClusterQuery{Items: items, Threshold: threshold})
		if mErr != nil {
			return nil, mErr
		}
		resp, err = http.Post(serverURL+"/api/v1/cluster", "application/json", bytes.NewReader(body))
	} else {
		u := serverURL + "/api/v1/clusters"
		if threshold != nil {
			u += "?threshold=" + url.QueryEscape(strconv.FormatFloat(*threshold, 'g', -1, 64))
		}
		resp, err = http.Get(u)
	}
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.ClusterResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runFetch() {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	res, err := components.Ingester.Run(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fetch failed: %v\n", err)
		os.Exit(1)
	}
	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("fetched %s from %s\n", utils.Plural(len(res.Items), "item"), utils.Plural(len(components.Ingester.URLs()), "feed"))
		for _, it := range res.Items {
			fmt.Printf("  %s  %s\n", it.PublishedAt, utils.Truncate(it.Title, 100))
		}
		for _, e := range res.Errors {
			fmt.Printf("error: %s\n", e)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

// argsReorder moves any flags (and their values) that appear after the positional
// arguments to the front so that flag.Parse() sees them.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runTitle() {
	fs := flag.NewFlagSet("title", flag.ExitOnError)
	maxWords := fs.Int("max-words", cluster.DefaultMaxTitleWords, "maximum number of keywords in the title")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: matome title [-max-words n] <title> [title...]")
		os.Exit(1)
	}
	fmt.Println(cluster.TitleFor(fs.Args(), *maxWords))
}

// statusResponse is the shape of GET /api/v1/status response.
type statusResponse struct {
	Items          *int64                 `json:"items,omitempty"`
	Feeds          *int                   `json:"feeds,omitempty"`
	DiskUsageBytes *int64                 `json:"disk_usage_bytes,omitempty"`
	Config         map[string]interface{} `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	status, err := statusViaHTTP(*serverURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := writeStatus(os.Stdout, status, *outputFormat); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func writeStatus(w io.Writer, status *statusResponse, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	case "text":
		if status.Items != nil {
			fmt.Fprintf(w, "items:              %d   # stored feed items\n", *status.Items)
		}
		if status.Feeds != nil {
			fmt.Fprintf(w, "feeds:              %d   # configured feed URLs\n", *status.Feeds)
		}
		if status.DiskUsageBytes != nil {
			fmt.Fprintf(w, "disk_usage_bytes:   %d   # item database on disk\n", *status.DiskUsageBytes)
		}
		if len(status.Config) > 0 {
			fmt.Fprintln(w)
			fmt.Fprintln(w, "# configuration")
			keys := make([]string, 0, len(status.Config))
			for k := range status.Config {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(w, "%-20s%v\n", k+":", status.Config[k])
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q; use text or json", format)
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

func runInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("config", "config.yaml", "where to write the config file")
	force := fs.Bool("force", false, "overwrite an existing file")
	_ = fs.Parse(os.Args[2:])

	if err := writeDefaultConfig(*path, *force); err != nil {
		fmt.Fprintf(os.Stderr, "Init failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config written to %s\n", *path)
}

// writeDefaultConfig saves a config holding every default so it can be edited in place.
func writeDefaultConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", path)
	}
	cfg := &config.Config{}
	cfg.Storage.DatabasePath = "./matome.db"
	config.ApplyDefaults(cfg)
	t := models.DefaultThreshold
	cfg.Cluster.Threshold = &t
	return config.Save(path, cfg)
}

// Components holds initialized services.
type Components struct {
	Storage  storage.Storage // nil when storage.database_path is empty
	Embedder embedding.Embedder
	Engine   *cluster.Engine
	Fetcher  *feed.Fetcher
	Ingester *ingest.Ingester
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

// feedURLs returns the configured URLs followed by those in the feed list file.
func feedURLs(cfg *config.Config, logger *zap.Logger) []string {
	var listed []string
	if cfg.Feeds.ListPath != "" {
		urls, err := feed.ReadList(cfg.Feeds.ListPath)
		if err != nil {
			logger.Warn("feed list not read", zap.String("path", cfg.Feeds.ListPath), zap.Error(err))
		}
		listed = urls
	}
	return feed.MergeURLs(cfg.Feeds.URLs, listed)
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	c := &Components{}
	debugLogger := utils.DebugOnly(logger, debug)

	if cfg.Storage.DatabasePath != "" {
		store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		c.Storage = store
	}

	embedder, err := embedding.NewEmbedder(&cfg.Embedding)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Embedder = embedder
	logger.Info("embedder initialized",
		zap.String("provider", cfg.Embedding.Provider),
		zap.Int("dimensions", embedder.Dimensions()),
		zap.Int("concurrency", cfg.Embedding.Concurrency))

	centroid, err := cluster.ParseCentroidStrategy(cfg.Cluster.Centroid)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Engine = cluster.NewEngine(embedder,
		cluster.WithMaxChars(cfg.Embedding.MaxChars),
		cluster.WithConcurrency(cfg.Embedding.Concurrency),
		cluster.WithMaxTitleWords(cfg.Cluster.MaxTitleWords),
		cluster.WithCentroidStrategy(centroid),
		cluster.WithLogger(debugLogger),
	)

	c.Fetcher = feed.NewFetcher(
		feed.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Feeds.TimeoutSeconds) * time.Second}),
		feed.WithUserAgent(cfg.Feeds.UserAgent),
		feed.WithTTL(time.Duration(cfg.Feeds.TTLSeconds)*time.Second),
		feed.WithLogger(logger),
	)

	ingestOpts := []ingest.IngesterOption{ingest.WithLogger(debugLogger)}
	if c.Storage != nil {
		ingestOpts = append(ingestOpts, ingest.WithStorage(c.Storage))
	}
	if cfg.Feeds.RetentionHours > 0 {
		ingestOpts = append(ingestOpts, ingest.WithRetention(time.Duration(cfg.Feeds.RetentionHours)*time.Hour))
	}
	c.Ingester = ingest.NewIngester(c.Fetcher, feedURLs(cfg, logger), ingestOpts...)
	return c, nil
}

func printUsage() {
	fmt.Println(`matome - Semantic clustering for news feeds

Usage:
  matome server [flags]             Start the HTTP server
  matome cluster [flags]            Fetch the configured feeds (or read -input) and cluster them
  matome fetch [flags]              Fetch the configured feeds and store their items
  matome title [flags] <titles...>  Derive a cluster title from item titles
  matome status [flags]             Show server status
  matome init [flags]               Write a config file with the defaults
  matome version                    Show version
  matome help                       Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/matome/config.yaml)
  --debug            Enable debug logging (feed fetches, cluster runs, list reloads)

Cluster Flags:
  --config string     Config file path
  --input string      JSON file with items (- for stdin); empty fetches the configured feeds
  --threshold float   Similarity threshold (default from config, or 0.78)
  --server string     Server URL; empty clusters locally
  --output string     Output format: text, compact or json (default: text)

Fetch Flags:
  --config string    Config file path
  --output string    Output format: text or json (default: text)

Title Flags:
  --max-words int    Maximum number of keywords (default: 5)

Status Flags:
  --server string    Server URL (default: http://localhost:8080)
  --output string    Output format: text or json (default: text)

Init Flags:
  --config string    Path to write (default: config.yaml)
  --force            Overwrite an existing file

Examples:
  matome server
  matome cluster -threshold 0.7
  matome cluster -input items.json -output json
  matome fetch
  matome title "Fed raises interest rates" "Rates climb as Fed acts"
  matome status --output json`)
}
