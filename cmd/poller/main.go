package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"
	"github.com/tridentbot/erlc-ingest/internal/api"
	"github.com/tridentbot/erlc-ingest/internal/directory"
	"github.com/tridentbot/erlc-ingest/internal/lock"
	"github.com/tridentbot/erlc-ingest/internal/poller"
	"github.com/tridentbot/erlc-ingest/internal/prc"
	"github.com/tridentbot/erlc-ingest/internal/registry"
	"github.com/tridentbot/erlc-ingest/internal/snapshot"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getduration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		slog.Warn("invalid duration, using default", "key", key, "value", v, "default", def)
	}
	return def
}

func getint(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		slog.Warn("invalid integer, using default", "key", key, "value", v, "default", def)
	}
	return def
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	// Config from env
	dynamoTable := getenv("DYNAMODB_TABLE", "erlc-tenants")
	dynamoEndpoint := os.Getenv("DYNAMODB_ENDPOINT")
	redisAddr := os.Getenv("REDIS_ADDR") // optional: enables per-tenant pass locks
	chAddr := getenv("CLICKHOUSE_ADDR", "localhost:9000")
	chDatabase := getenv("CLICKHOUSE_DATABASE", "default")
	chUser := getenv("CLICKHOUSE_USER", "default")
	chPassword := os.Getenv("CLICKHOUSE_PASSWORD")
	snapshotTable := getenv("SNAPSHOT_TABLE", snapshot.DefaultTable)
	globalKey := os.Getenv("PRC_GLOBAL_KEY")
	port := getenv("PORT", "8080")
	localMode := os.Getenv("LOCAL_MODE") == "true" || dynamoEndpoint != ""

	opts := poller.Options{
		TickInterval:            getduration("TICK_INTERVAL", poller.DefaultTickInterval),
		GlobalMaxConcurrency:    getint("GLOBAL_MAX_CONCURRENCY", poller.DefaultGlobalMaxConcurrency),
		PerTenantMaxConcurrency: getint("PER_TENANT_MAX_CONCURRENCY", poller.DefaultPerTenantMaxConcurrency),
		MaxRetries:              getint("MAX_RETRIES", 3),
		BackoffBase:             getduration("BACKOFF_BASE", 400*time.Millisecond),
	}
	refreshInterval := getduration("REFRESH_INTERVAL", directory.DefaultRefreshInterval)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// AWS DynamoDB
	var awsOptFns []func(*awsconfig.LoadOptions) error
	if localMode {
		// Use static credentials for local DynamoDB
		awsOptFns = append(awsOptFns,
			awsconfig.WithRegion("us-east-1"),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				getenv("AWS_ACCESS_KEY_ID", "test"),
				getenv("AWS_SECRET_ACCESS_KEY", "test"),
				"",
			)),
		)
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOptFns...)
	if err != nil {
		slog.Error("load AWS config", "err", err)
		os.Exit(1)
	}
	var dynamoOpts []func(*dynamodb.Options)
	if dynamoEndpoint != "" {
		dynamoOpts = append(dynamoOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = &dynamoEndpoint
		})
	}
	db := dynamodb.NewFromConfig(awsCfg, dynamoOpts...)
	reg := registry.New(db, dynamoTable)

	// ClickHouse sink
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{chAddr},
		Auth: clickhouse.Auth{
			Database: chDatabase,
			Username: chUser,
			Password: chPassword,
		},
	})
	if err != nil {
		slog.Error("clickhouse open", "addr", chAddr, "err", err)
		os.Exit(1)
	}
	if err := conn.Ping(ctx); err != nil {
		slog.Error("clickhouse ping", "addr", chAddr, "err", err)
		os.Exit(1)
	}
	slog.Info("clickhouse connected", "addr", chAddr, "table", snapshotTable)
	writer := snapshot.NewWriter(snapshot.NewClickHouseSink(conn), snapshotTable, slog.Default())

	// Optional redis pass locks
	var locker lock.Locker
	if redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		locker = lock.New(rdb)
		slog.Info("pass locking enabled", "redis", redisAddr)
	}

	dir := directory.New(reg, refreshInterval)
	go dir.Run(ctx)

	factory := func(_, serverKey string) *prc.Client {
		return prc.NewClient(prc.Config{ServerKey: serverKey, GlobalKey: globalKey})
	}
	p := poller.New(reg, dir, writer, locker, factory, opts)
	p.Start(ctx)

	// Ops HTTP API
	h := api.New(reg, dir, p)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: h.Router(),
	}
	go func() {
		slog.Info("ops api listening", "port", port, "local_mode", localMode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	p.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
}
