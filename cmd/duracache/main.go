// Command duracache is a small demo harness exercising the duracache
// library against a temp-backed SQLite store: it writes a handful of
// records, reads them back, deletes one, prints the statistics ledger,
// and exits.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"duracache"
	"duracache/internal/logging"
	"duracache/pkg/config"
)

var (
	configPath = flag.String("config", "configs/duracache.yaml", "path to configuration file")
	instanceID = flag.String("instance-id", "", "unique instance identifier")
)

// demoRecord is the concrete Record implementation the demo command
// stores: a JSON-encoded value tagged with a fixed schema version.
type demoRecord struct {
	Value string `json:"value"`
}

func (demoRecord) SchemaVersion() string { return "1.0.0" }

func (r demoRecord) Encode() ([]byte, error) {
	return json.Marshal(r)
}

func decodeDemoRecord(data []byte) (demoRecord, error) {
	var r demoRecord
	err := json.Unmarshal(data, &r)
	return r, err
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *instanceID != "" {
		cfg.Instance.ID = *instanceID
	}

	logger, err := logging.InitializeFromConfig(cfg.Instance.ID, logging.FileConfig{
		Level:         cfg.Logging.Level,
		EnableConsole: cfg.Logging.EnableConsole,
		EnableFile:    cfg.Logging.EnableFile,
		BufferSize:    cfg.Logging.BufferSize,
		LogDir:        cfg.Logging.LogDir,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	startupID := logging.NewCorrelationID()
	ctx := logging.WithCorrelationID(context.Background(), startupID)
	logger.Info(ctx, logging.ComponentMain, logging.ActionStart, "duracache demo starting",
		map[string]interface{}{"instance_id": cfg.Instance.ID})

	if err := os.MkdirAll(cfg.Instance.DataDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to create data directory: %v\n", err)
		os.Exit(1)
	}
	storePath := filepath.Join(cfg.Instance.DataDir, "cache.db")

	cache, err := duracache.New[demoRecord](demoRecord{}, decodeDemoRecord, duracache.Config{
		StorePath:          storePath,
		MaxMemoryItems:     cfg.Cache.MaxMemoryItems,
		MaxMemorySizeBytes: cfg.Cache.MaxMemorySizeBytes,
		MaxDiskItems:       cfg.Cache.MaxDiskItems,
		MaxDiskSizeBytes:   cfg.Cache.MaxDiskSizeBytes,
		MemoryTTLSeconds:   cfg.Cache.MemoryTTLSeconds,
		DiskTTLSeconds:     cfg.Cache.DiskTTLSeconds,
		MaxItemSizeBytes:   cfg.Cache.MaxItemSizeBytes,
		Logger:             logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to open cache: %v\n", err)
		os.Exit(1)
	}
	defer cache.Close()

	fmt.Printf("duracache demo instance %q, store at %s\n", cfg.Instance.ID, storePath)

	seed := map[string]demoRecord{
		"user:1":    {Value: "John Doe"},
		"user:2":    {Value: "Jane Smith"},
		"counter:1": {Value: "42"},
		"config:db": {Value: "postgres://localhost:5432"},
	}
	if err := cache.PutMany(seed); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: seeding cache failed: %v\n", err)
		os.Exit(1)
	}
	for key, rec := range seed {
		fmt.Printf("PUT %s = %v\n", key, rec.Value)
	}

	fmt.Println("\nreading values back...")
	for key := range seed {
		rec, ok, err := cache.Get(key)
		if err != nil {
			fmt.Fprintf(os.Stderr, "GET %s failed: %v\n", key, err)
			continue
		}
		if ok {
			fmt.Printf("GET %s = %v\n", key, rec.Value)
		} else {
			fmt.Printf("GET %s = (miss)\n", key)
		}
	}

	if err := cache.Delete("counter:1"); err != nil {
		fmt.Fprintf(os.Stderr, "DELETE counter:1 failed: %v\n", err)
	} else {
		fmt.Println("\nDELETE counter:1")
	}

	stats, err := cache.GetStats()
	if err != nil {
		fmt.Fprintf(os.Stderr, "GetStats failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nstats: %+v\n", stats)

	logger.Info(ctx, logging.ComponentMain, logging.ActionStop, "duracache demo finished", nil)
}
