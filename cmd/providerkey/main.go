package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mealgen/internal/infra"
	"mealgen/internal/infra/credentials"
)

func main() {
	var (
		keyFlag      string
		providerFlag string
		checkFlag    bool
	)
	flag.StringVar(&keyFlag, "key", "", "API key for the selected provider (fallbacks to environment)")
	flag.StringVar(&providerFlag, "provider", credentials.ProviderQwen, "Provider to configure (qwen or openai)")
	flag.BoolVar(&checkFlag, "check", false, "report whether a key is stored instead of writing one")
	flag.Parse()

	provider := strings.TrimSpace(strings.ToLower(providerFlag))
	switch provider {
	case credentials.ProviderQwen, credentials.ProviderOpenAI:
	case "":
		provider = credentials.ProviderQwen
	default:
		fmt.Fprintf(os.Stderr, "unsupported provider %q\n", providerFlag)
		os.Exit(1)
	}

	key := strings.TrimSpace(keyFlag)
	if key == "" && !checkFlag {
		switch provider {
		case credentials.ProviderOpenAI:
			key = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		default:
			key = strings.TrimSpace(os.Getenv("QWEN_API_KEY"))
		}
	}
	if key == "" && !checkFlag {
		fmt.Fprintf(os.Stderr, "%s API key is required via -key or environment\n", strings.ToUpper(provider))
		os.Exit(1)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "providerkey").Str("provider", provider).Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))

	ctxExec, cancelExec := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelExec()

	if checkFlag {
		stored, ok, err := store.Lookup(ctxExec, provider)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read %s api key: %v\n", provider, err)
			os.Exit(1)
		}
		if !ok {
			fmt.Printf("%s API key is not stored\n", strings.ToUpper(provider))
			os.Exit(3)
		}
		fmt.Printf("%s API key stored (%s), updated %s\n", strings.ToUpper(provider), credentials.Mask(stored.Token), stored.UpdatedAt.UTC().Format(time.RFC3339))
		return
	}

	var persistErr error
	switch provider {
	case credentials.ProviderOpenAI:
		persistErr = store.SetOpenAIAPIKey(ctxExec, key)
	default:
		persistErr = store.SetQwenAPIKey(ctxExec, key)
	}
	if persistErr != nil {
		fmt.Fprintf(os.Stderr, "failed to persist %s api key: %v\n", provider, persistErr)
		os.Exit(1)
	}

	fmt.Printf("%s API key stored successfully\n", strings.ToUpper(provider))
}
