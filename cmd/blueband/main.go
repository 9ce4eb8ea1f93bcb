// Package main is the blueband CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/acgodson/blueband-algo/internal/config"
	"github.com/acgodson/blueband-algo/internal/document"
	"github.com/acgodson/blueband-algo/internal/embedding"
	"github.com/acgodson/blueband-algo/internal/extract"
	"github.com/acgodson/blueband-algo/internal/server"
	"github.com/acgodson/blueband-algo/internal/splitter"
	"github.com/acgodson/blueband-algo/internal/transport"
	"github.com/acgodson/blueband-algo/internal/vector"
	"github.com/acgodson/blueband-algo/internal/watcher"
	"github.com/acgodson/blueband-algo/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "config.yaml"

func main() {
	// Secrets may live in a .env next to the binary; missing is fine.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "create":
		runCreate()
	case "add":
		runAdd()
	case "query":
		runQuery()
	case "list":
		runList()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "serve":
		runServe()
	case "version", "--version", "-v":
		fmt.Printf("blueband version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// setup loads config and builds the logger and index all commands share.
type setup struct {
	cfg        *config.Config
	cfgPath    string
	logger     *zap.Logger
	index      *document.Index
	closeStore func()
}

func initialize(configPath string, debug bool, needEmbedder bool) *setup {
	cfg, err := config.Load(configPath)
	if err != nil {
		// Run on defaults when the default config file simply does not exist.
		if configPath != defaultConfigPath || !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = &config.Config{}
		config.ApplyDefaults(cfg)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	tr, closeStore, err := buildTransport(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize transport: %v\n", err)
		os.Exit(1)
	}
	embedder, err := buildEmbedder(cfg, logger)
	if err != nil {
		if needEmbedder {
			fmt.Fprintf(os.Stderr, "Failed to initialize embedder: %v\n", err)
			os.Exit(1)
		}
		embedder = nil
	}

	idx := document.NewIndex(document.Options{
		Name:      cfg.Index.Name,
		Transport: tr,
		Embedder:  embedder,
		Chunking: &splitter.Config{
			ChunkSize:      cfg.Index.ChunkSize,
			ChunkOverlap:   cfg.Index.ChunkOverlap,
			KeepSeparators: true,
		},
		Logger: logger,
	})
	return &setup{cfg: cfg, cfgPath: configPath, logger: logger, index: idx, closeStore: closeStore}
}

func (s *setup) close() {
	if s.closeStore != nil {
		s.closeStore()
	}
	_ = s.logger.Sync()
}

func buildTransport(cfg *config.Config) (transport.Transport, func(), error) {
	switch cfg.Transport.Kind {
	case "memory":
		return transport.NewMemory(), nil, nil
	case "disk":
		tr, err := transport.NewDisk(cfg.Transport.Path)
		return tr, nil, err
	case "sqlite":
		tr, err := transport.NewSQLite(cfg.Transport.Path)
		if err != nil {
			return nil, nil, err
		}
		return tr, func() { _ = tr.Close() }, nil
	case "gateway":
		key := cfg.Transport.APIKey
		if key == "" {
			key = os.Getenv("BLUEBAND_GATEWAY_KEY")
		}
		return transport.NewGateway(transport.GatewayConfig{
			BaseURL: cfg.Transport.BaseURL,
			APIKey:  key,
		}), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport kind %q", cfg.Transport.Kind)
	}
}

func buildEmbedder(cfg *config.Config, logger *zap.Logger) (embedding.Embedder, error) {
	var inner embedding.Embedder
	switch cfg.Embedding.Provider {
	case "mock":
		inner = embedding.NewMock(0)
	case "openai":
		key := cfg.Embedding.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("no OpenAI API key configured (set OPENAI_API_KEY)")
		}
		inner = embedding.NewOpenAI(embedding.OpenAIConfig{
			APIKey:   key,
			Model:    cfg.Embedding.Model,
			Endpoint: cfg.Embedding.Endpoint,
			Logger:   logger,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
	return embedding.NewCached(inner, cfg.Embedding.CacheSize), nil
}

func runCreate() {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	force := fs.Bool("force", false, "delete an existing index under the configured name first")
	_ = fs.Parse(os.Args[2:])

	s := initialize(*configPath, false, false)
	defer s.close()

	handle, err := s.index.Create(context.Background(), vector.CreateConfig{DeleteIfExists: *force})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Create failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Index created: %s\n", handle.ID)

	// Persist the generated name so later commands resolve the same index.
	if s.cfg.Index.Name == "" {
		s.cfg.Index.Name = handle.ID
		if err := config.Save(s.cfgPath, s.cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not save index name to config: %v\n", err)
		}
	}
}

func runAdd() {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	uri := fs.String("uri", "", "document uri (defaults to the file path)")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: blueband add [flags] <file>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	s := initialize(*configPath, false, true)
	defer s.close()

	text, err := extract.NewExtractor().Extract(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Extraction failed: %v\n", err)
		os.Exit(1)
	}
	docURI := *uri
	if docURI == "" {
		docURI, _ = filepath.Abs(path)
	}
	doc, err := s.index.UpsertDocument(context.Background(), docURI, text, document.UpsertOptions{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Add failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document indexed: %s (%s)\n", docURI, doc.ID())
}

func runQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	maxDocuments := fs.Int("documents", 10, "maximum documents to return")
	maxChunks := fs.Int("chunks", 50, "maximum chunks to scan")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: blueband query [flags] <query>")
		os.Exit(1)
	}
	queryStr := strings.TrimSpace(strings.Join(fs.Args(), " "))

	s := initialize(*configPath, false, true)
	defer s.close()

	results, err := s.index.QueryDocuments(context.Background(), queryStr, document.QueryOptions{
		MaxDocuments: *maxDocuments,
		MaxChunks:    *maxChunks,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}
	printResults(results, *outputFormat)
}

func runList() {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	s := initialize(*configPath, false, false)
	defer s.close()

	results, err := s.index.ListDocuments(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
		os.Exit(1)
	}
	printResults(results, *outputFormat)
}

func printResults(results []*document.Result, format string) {
	switch format {
	case "json":
		type doc struct {
			ID     string  `json:"id"`
			URI    string  `json:"uri"`
			Score  float64 `json:"score"`
			Chunks int     `json:"chunks"`
		}
		out := make([]doc, len(results))
		for i, r := range results {
			out[i] = doc{ID: r.ID(), URI: r.URI(), Score: r.Score(), Chunks: len(r.Chunks)}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		for _, r := range results {
			fmt.Printf("%.4f  %s  (%d chunk(s), id %s)\n",
				r.Score(), r.URI(), len(r.Chunks), utils.Truncate(r.ID(), 12))
		}
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: blueband delete [flags] <uri>")
		os.Exit(1)
	}
	uri := fs.Arg(0)

	s := initialize(*configPath, false, false)
	defer s.close()

	if err := s.index.DeleteDocument(context.Background(), uri); err != nil {
		fmt.Fprintf(os.Stderr, "Delete failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document deleted: %s\n", uri)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	s := initialize(*configPath, false, false)
	defer s.close()

	stats, err := s.index.Stats(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(stats)
	default:
		fmt.Printf("index:      %s\n", s.index.Name())
		fmt.Printf("version:    %d\n", stats.Version)
		fmt.Printf("documents:  %d\n", stats.Documents)
		fmt.Printf("chunks:     %d\n", stats.Chunks)
	}
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	s := initialize(*configPath, *debug, true)
	defer s.close()
	logger := s.logger

	srv := server.NewServer(s.index, &s.cfg.Server, logger)

	// Optional directory ingestion alongside the API. Callbacks run on the
	// watcher's timer goroutines, so they go through the server methods that
	// share the handlers' lock.
	var watchSvc *watcher.Watcher
	if len(s.cfg.Watch.Directories) > 0 {
		extractor := extract.NewExtractor()
		watchSvc = watcher.New(
			s.cfg.Watch.Directories,
			s.cfg.Watch.Extensions,
			func(path string) {
				text, err := extractor.Extract(path)
				if err != nil {
					logger.Warn("watch extract failed", zap.String("path", path), zap.Error(err))
					return
				}
				if err := srv.UpsertFile(context.Background(), path, text); err != nil {
					logger.Warn("watch upsert failed", zap.String("path", path), zap.Error(err))
				}
			},
			func(path string) {
				if err := srv.RemoveFile(context.Background(), path); err != nil {
					logger.Warn("watch delete failed", zap.String("path", path), zap.Error(err))
				}
			},
			watcher.WithLogger(logger),
		)
	}
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if watchSvc != nil {
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		watchSvc.SyncExisting()
	}

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	watchCancel()
	if watchSvc != nil {
		watchSvc.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func printUsage() {
	fmt.Println(`blueband - vector document index over pluggable transports

Usage:
  blueband create [flags]          Create a new index
  blueband add [flags] <file>      Index a document file
  blueband query [flags] <query>   Query documents by similarity
  blueband list [flags]            List indexed documents
  blueband delete [flags] <uri>    Delete a document by uri
  blueband status [flags]          Show index stats
  blueband serve [flags]           Start the HTTP server
  blueband version                 Show version
  blueband help                    Show this help

Common Flags:
  --config string    Config file path (default: config.yaml)
  --output string    Output format for query/list/status: text or json

Examples:
  blueband create
  blueband add notes.md
  blueband query "vector databases"
  blueband query --documents 5 --output json "vector databases"
  blueband delete /home/me/notes.md
  blueband serve --debug`)
}
