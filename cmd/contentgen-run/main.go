// contentgen-run generates a batch of posts and pages into a local SQLite
// database without the HTTP server. Send SIGUSR1 to pause or resume after the
// current item.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	log "log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vnmchuo/contentgen/config"
	"github.com/vnmchuo/contentgen/internal/app"
	"github.com/vnmchuo/contentgen/internal/generator"
	"github.com/vnmchuo/contentgen/internal/seeder"
	"github.com/vnmchuo/contentgen/internal/sequencer"
	"github.com/vnmchuo/contentgen/internal/store"
	"github.com/vnmchuo/contentgen/internal/telemetry"
)

func main() {
	posts := flag.Int("posts", 3, "Number of posts to generate")
	pages := flag.Int("pages", 0, "Number of pages to generate")
	instructions := flag.String("instructions", "", "Extra instructions for the title request")
	model := flag.String("model", "", "Text model (defaults to DEFAULT_TEXT_MODEL)")
	imageModel := flag.String("image-model", "", "Image model (defaults to DEFAULT_IMAGE_MODEL)")
	images := flag.Bool("images", true, "Generate featured images for posts")
	categories := flag.Bool("categories", true, "Ask for categories")
	tags := flag.Bool("tags", true, "Ask for tags")
	dbPath := flag.String("db", "", "SQLite database path (defaults to SQLITE_PATH)")
	jsonOut := flag.Bool("json", false, "Print the final run snapshot as JSON")
	flag.Parse()

	cfg, err := config.LoadLocal()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR loading config: %v\n", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.SQLitePath = *dbPath
	}
	if *model == "" {
		*model = cfg.DefaultTextModel
	}
	logger := cfg.Logger()
	log.SetDefault(logger)

	shutdownTracer, err := telemetry.InitTracer("contentgen-run", cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR init tracer: %v\n", err)
		os.Exit(1)
	}
	defer shutdownTracer()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	content, err := store.OpenSQLite(ctx, cfg.SQLitePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR opening database: %v\n", err)
		os.Exit(1)
	}
	defer content.Close()

	if err := seeder.SeedDefaultCategory(ctx, content); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR seeding default category: %v\n", err)
		os.Exit(1)
	}

	gen := generator.New(generator.Options{
		Settings:  app.Settings(cfg),
		Factories: app.Factories(cfg),
		Store:     content,
		Media:     app.Media(cfg),
		Logger:    logger,
	})
	seq := sequencer.New(gen, logger)

	opts := sequencer.Options{
		Posts:          *posts,
		Pages:          *pages,
		Instructions:   *instructions,
		TextModel:      *model,
		ImageModel:     *imageModel,
		GenerateImages: *images,
		Categories:     *categories,
		Tags:           *tags,
	}
	if err := opts.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", sequencer.Message(err))
		os.Exit(2)
	}

	toggle := make(chan os.Signal, 1)
	signal.Notify(toggle, syscall.SIGUSR1)
	defer signal.Stop(toggle)

	done, err := seq.Start(ctx, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", sequencer.Message(err))
		os.Exit(1)
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	printed := 0
	flush := func() {
		snap := seq.Snapshot()
		for _, entry := range snap.Logs[printed:] {
			stream := os.Stdout
			if entry.IsError {
				stream = os.Stderr
			}
			fmt.Fprintf(stream, "[%3d%%] %s\n", snap.Progress.Value, entry.Text)
		}
		printed = len(snap.Logs)
	}

	var runErr error
loop:
	for {
		select {
		case <-toggle:
			if !seq.Pause() {
				seq.Resume()
			}
		case <-ticker.C:
			flush()
		case runErr = <-done:
			flush()
			break loop
		}
	}

	snap := seq.Snapshot()
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(snap)
	} else {
		fmt.Printf("=== %s ===\n", snap.Progress.Label)
		for _, task := range snap.Tasks {
			fmt.Printf("%-6s %-11s #%-5d %s", task.Kind, task.Status, task.PostID, task.Title)
			if task.Note != "" {
				fmt.Printf(" (%s)", task.Note)
			}
			fmt.Println()
		}
	}

	if runErr != nil {
		os.Exit(1)
	}
}
