package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/qstream-io/qstream/internal/shared/config"
	"github.com/qstream-io/qstream/internal/shared/logging"
	pkgcore "github.com/qstream-io/qstream/pkg/core"
	"github.com/qstream-io/qstream/pkg/query"
	"github.com/qstream-io/qstream/pkg/serializer"
	"github.com/qstream-io/qstream/pkg/stream"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	jobFlag := flag.String("job", "", "job ID to query")
	stateFlag := flag.String("state", "", "queryable state name")
	keyFlag := flag.Int("key", 0, "int32 key to look up")
	retryUnknown := flag.Bool("retry-unknown-key", false, "keep retrying while the key is unknown")
	flag.Parse()

	cfg, err := config.LoadClient(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.NewSlogLogger(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)

	jobID, err := uuid.Parse(*jobFlag)
	if err != nil {
		logger.Fatal("Invalid job ID", "error", err)
	}
	if *stateFlag == "" {
		logger.Fatal("State name is required")
	}

	lookup := query.NewHTTPLocationLookup(cfg.ControlPlane.URL, nil)
	opts := []query.Option{
		query.WithRetryDelay(cfg.Query.RetryDelay),
		query.WithDialTimeout(cfg.Query.DialTimeout),
		query.WithLogger(logger),
	}
	if cfg.Query.LocationCacheSize > 0 {
		opts = append(opts, query.WithLocationCache(cfg.Query.LocationCacheSize))
	}
	client, err := query.NewClient(lookup, opts...)
	if err != nil {
		logger.Fatal("Failed to create query client", "error", err)
	}
	defer client.Close()

	key := int32(*keyFlag)
	keyBytes, err := serializer.Int32Serializer{}.Marshal(key)
	if err != nil {
		logger.Fatal("Failed to serialize key", "error", err)
	}
	data, err := query.SerializeKeyAndNamespace(
		key, serializer.Int32Serializer{},
		serializer.Void{}, serializer.VoidSerializer{},
	)
	if err != nil {
		logger.Fatal("Failed to serialize key and namespace", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Query.LookupTimeout)
	defer cancel()

	var lookupOpts []query.LookupOption
	if *retryUnknown {
		lookupOpts = append(lookupOpts, query.RetryUnknownKey())
	}

	raw, err := client.Lookup(ctx, jobID, *stateFlag, pkgcore.Hash(keyBytes), data, lookupOpts...).Await(ctx)
	if err != nil {
		logger.Fatal("Lookup failed", "job_id", jobID.String(), "state", *stateFlag, "key", key, "error", err)
	}

	value, err := query.DeserializeValue(raw, stream.KeyCountSerializer{})
	if err != nil {
		// Not every state stores KeyCount values; fall back to raw bytes.
		fmt.Printf("key=%d value=0x%x\n", key, raw)
		return
	}
	fmt.Printf("key=%d count=%d\n", value.Key, value.Count)
}
