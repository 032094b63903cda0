// README: Benchmark runner for the booking API; executes HTTP/DB/Redis scenario checks and prints results.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"fixit/internal/config"
)

// Config is read from FIXIT_BENCH_* variables. The database and Redis addresses
// come from the same FIXIT_DB_DSN / FIXIT_REDIS_ADDR the API reads.
type Config struct {
	BaseURL        string        `split_words:"true" default:"http://localhost:8080"`
	MigrationPath  string        `split_words:"true" default:"migrations/0001_init.sql"`
	ApplyMigration bool          `split_words:"true"`
	Strict         bool          `split_words:"true"`
	Timeout        time.Duration `split_words:"true" default:"60s"`
	Concurrency    int           `split_words:"true" default:"20"`
	Duration       time.Duration `split_words:"true" default:"10s"`

	DSN       string `ignored:"true"`
	RedisAddr string `ignored:"true"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("FIXIT_BENCH", &cfg); err != nil {
		return Config{}, fmt.Errorf("load bench config: %w", err)
	}
	var stores struct {
		DB    config.DBConfig
		Redis config.RedisConfig
	}
	if err := envconfig.Process("FIXIT", &stores); err != nil {
		return Config{}, fmt.Errorf("load store config: %w", err)
	}
	if cfg.Concurrency <= 0 {
		return Config{}, fmt.Errorf("bench concurrency must be positive")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.DSN = stores.DB.DSN
	cfg.RedisAddr = stores.Redis.Addr
	return cfg, nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	results := NewRunner(cfg).RunAll(ctx)

	counts := make(map[string]int, 4)
	for _, r := range results {
		counts[r.Status]++
	}
	fmt.Println("\n== Summary ==")
	fmt.Printf("PASS=%d FAIL=%d PENDING=%d SKIP=%d\n", counts["PASS"], counts["FAIL"], counts["PENDING"], counts["SKIP"])

	if counts["FAIL"] > 0 || (cfg.Strict && counts["PENDING"] > 0) {
		os.Exit(1)
	}
}
