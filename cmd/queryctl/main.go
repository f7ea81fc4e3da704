// queryctl executes a single query against a dashboard data endpoint using
// the same cache/retry/dedup stack the dashboards embed. It exists for
// poking at endpoints and for checking cache behavior from the command line.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kwlytics/queryclient"
	"github.com/kwlytics/queryclient/cache"
)

func main() {
	var (
		cfgFile   = flag.String("config", "", "config file (yaml/toml/json)")
		operation = flag.String("op", "", "operation name to execute")
		params    = flag.String("params", "{}", "parameters as a JSON object")
		variant   = flag.String("variant", "", "optional operation variant")
		policy    = flag.String("fetch-policy", "", "cache-first|cache-and-network|network-only|no-cache")
		showStats = flag.Bool("stats", false, "print cache metrics after the query")
		debug     = flag.Bool("debug", false, "verbose logging")
	)
	flag.Parse()

	logger := newLogger(*debug)
	defer func() { _ = logger.Sync() }()

	v := viper.New()
	v.SetDefault("endpoint", "http://localhost:4000/query")
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("max_retries", queryclient.DefaultMaxRetries)
	v.SetDefault("cache.max_size", cache.DefaultMaxSize)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetEnvPrefix("QUERYCTL")
	v.AutomaticEnv()
	if *cfgFile != "" {
		v.SetConfigFile(*cfgFile)
		if err := v.ReadInConfig(); err != nil {
			logger.Fatal("read config", zap.Error(err))
		}
	}

	if *operation == "" {
		fmt.Fprintln(os.Stderr, "usage: queryctl -op <operation> [-params '{...}'] [flags]")
		os.Exit(2)
	}
	var vars map[string]any
	if err := json.Unmarshal([]byte(*params), &vars); err != nil {
		logger.Fatal("parse -params", zap.Error(err))
	}

	store := cache.New[json.RawMessage](cache.Config{
		MaxSize:    v.GetInt("cache.max_size"),
		DefaultTTL: v.GetDuration("cache.ttl"),
		Policy:     cache.LRU{},
		Logger:     logger,
	})
	defer func() { _ = store.Close() }()

	client, err := queryclient.New(queryclient.Config{
		Endpoint:       v.GetString("endpoint"),
		Credentials:    queryclient.StaticToken(v.GetString("token")),
		Store:          store,
		RequestTimeout: v.GetDuration("timeout"),
		MaxRetries:     v.GetInt("max_retries"),
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal("create client", zap.Error(err))
	}
	defer func() { _ = client.Close() }()

	opts := queryclient.Options{}
	if *policy != "" {
		fp, err := queryclient.ParseFetchPolicy(*policy)
		if err != nil {
			logger.Fatal("parse fetch policy", zap.Error(err))
		}
		opts.FetchPolicy = fp
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	res := client.Execute(ctx, queryclient.Descriptor{
		Operation: *operation,
		Params:    vars,
		Variant:   *variant,
	}, opts)
	if res.Err != nil {
		logger.Fatal("query failed", zap.Error(res.Err))
	}
	os.Stdout.Write(res.Data)
	fmt.Println()

	if *showStats {
		m := store.Metrics()
		fmt.Fprintf(os.Stderr, "hits=%d misses=%d hit_ratio=%.2f size=%d avg_lookup_ms=%.3f\n",
			m.Hits, m.Misses, m.HitRatio, m.Size, m.AvgResponseTimeMs)
	}
}

func newLogger(debug bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return logger
}
