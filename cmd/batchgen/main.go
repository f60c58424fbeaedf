package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"mealgen/internal/bootstrap"
	"mealgen/internal/domain"
	"mealgen/internal/infra"
)

// batchgen runs one batch in-process and streams its progress to the log.
// It is the command-line counterpart of POST /generate.
func main() {
	var (
		countFlag      int
		chunkFlag      int
		categoriesFlag string
		cuisinesFlag   string
		dietaryFlag    string
		noMediaFlag    bool
		noStoreFlag    bool
		printFlag      bool
		timeoutFlag    time.Duration
	)
	flag.IntVar(&countFlag, "count", 10, "number of meals to generate (1-100)")
	flag.IntVar(&chunkFlag, "chunk-size", 0, "items per chunk (defaults to PIPELINE_CHUNK_SIZE)")
	flag.StringVar(&categoriesFlag, "categories", "", "comma separated meal categories")
	flag.StringVar(&cuisinesFlag, "cuisines", "", "comma separated cuisines")
	flag.StringVar(&dietaryFlag, "dietary", "", "comma separated dietary tags")
	flag.BoolVar(&noMediaFlag, "no-media", false, "skip image generation and use placeholders")
	flag.BoolVar(&noStoreFlag, "no-store", false, "keep provider image URLs instead of uploading")
	flag.BoolVar(&printFlag, "print", false, "print the persisted items as JSON when the batch finishes")
	flag.DurationVar(&timeoutFlag, "timeout", 30*time.Minute, "give up after this long")
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "batchgen: %v\n", err)
		os.Exit(1)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "batchgen").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeoutFlag)
	defer cancel()

	rt, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("batchgen: failed to wire pipeline")
	}
	defer rt.Close()

	req := domain.BatchRequest{
		Count:      countFlag,
		ChunkSize:  chunkFlag,
		Categories: splitFlag(categoriesFlag),
		Cuisines:   splitFlag(cuisinesFlag),
		Dietary:    splitFlag(dietaryFlag),
	}
	if noMediaFlag {
		req.Features.GenerateMedia = boolPtr(false)
	}
	if noStoreFlag {
		req.Features.StoreMedia = boolPtr(false)
	}

	batch, err := rt.Coordinator.Start(ctx, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "batchgen: %v\n", err)
		os.Exit(1)
	}
	log := logger.With().Str("batch_id", batch.ID).Logger()
	log.Info().Int("count", batch.Request.Count).Int("chunk_size", batch.Request.ChunkSize).Msg("batchgen: started")

	sub, err := rt.Coordinator.Subscribe(ctx, batch.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("batchgen: subscribe failed")
	}
	defer sub.Close()

	var final domain.ProgressSnapshot
	for done := false; !done; {
		select {
		case snap, ok := <-sub.Events():
			if !ok {
				done = true
				break
			}
			final = snap
			log.Info().
				Str("status", string(snap.Status)).
				Str("phase", string(snap.Phase)).
				Int("chunk", snap.CurrentChunk).
				Int("completed", snap.ItemsCompleted).
				Int("failed", snap.ItemsFailed).
				Int("total", snap.TotalItems).
				Msg("batchgen: progress")
		case <-ctx.Done():
			rt.Coordinator.Cancel(batch.ID)
			waitCtx, waitCancel := context.WithTimeout(context.Background(), 30*time.Second)
			_ = rt.Coordinator.Wait(waitCtx, batch.ID)
			waitCancel()
			log.Warn().Err(ctx.Err()).Msg("batchgen: interrupted, batch cancelled")
			os.Exit(1)
		}
	}

	for _, e := range final.Errors {
		log.Warn().
			Str("stage", string(e.Stage)).
			Int("chunk", e.ChunkIndex).
			Int("item", e.ItemIndex).
			Str("item_name", e.ItemName).
			Msg(e.Message)
	}
	log.Info().
		Str("status", string(final.Status)).
		Int("completed", final.ItemsCompleted).
		Int("failed", final.ItemsFailed).
		Int("degraded", final.ItemsDegraded).
		Msg("batchgen: finished")

	if printFlag {
		items, err := rt.Items.ListByBatch(ctx, batch.ID)
		if err != nil {
			log.Fatal().Err(err).Msg("batchgen: list items failed")
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(items); err != nil {
			log.Fatal().Err(err).Msg("batchgen: encode items failed")
		}
	}
	if final.Status != domain.BatchStatusCompleted {
		os.Exit(2)
	}
}

func splitFlag(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func boolPtr(v bool) *bool { return &v }
