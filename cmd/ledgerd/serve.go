package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ledger/internal/actor"
	"ledger/internal/admin"
	"ledger/internal/audit"
	"ledger/internal/caps"
	"ledger/internal/cluster"
	"ledger/internal/config"
	"ledger/internal/persistence"
	"ledger/internal/pgmq"
	"ledger/internal/pipeline"
	"ledger/internal/secrets"

	"cloud.google.com/go/pubsub"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

func newServeCmd(log zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the ledger node: pipeline, cluster routing, and admin surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), log)
		},
	}
}

func serve(parentCtx context.Context, log zerolog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.SecretsBackend == "gcp" {
		if err := resolveSecrets(ctx, cfg); err != nil {
			return err
		}
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.RelationalURL)
	if err != nil {
		return fmt.Errorf("parse relational store DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.RelationalPoolSize)
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connect to relational store: %w", err)
	}
	defer pool.Close()

	sqlDB, err := sql.Open("pgx", cfg.BusPgmqDSN)
	if err != nil {
		return fmt.Errorf("open pgmq connection: %w", err)
	}
	defer sqlDB.Close()
	pgmqClient := pgmq.New(sqlDB)

	relational := persistence.NewRelational(pool)
	var legacy *persistence.Legacy
	if cfg.LegacyStoreActive {
		s3Client, err := persistence.NewLegacyClient(ctx, cfg.DocumentURL, cfg.DocumentRegion, cfg.DocumentAccessKey, cfg.DocumentSecretKey)
		if err != nil {
			return fmt.Errorf("build legacy store client: %w", err)
		}
		legacy = persistence.NewLegacy(s3Client, cfg.DocumentBucket)
	}
	store := persistence.NewStore(relational, legacy, 0, log)
	go store.RunMirrorWorker(ctx)

	idem := persistence.NewIdempotencyStore(pool)
	capsTable, err := caps.Load(cfg.CapsFile, cfg.DefaultCapMs, log)
	if err != nil {
		return fmt.Errorf("load caps table: %w", err)
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCPProjectIDPubSub)
	if err != nil {
		return fmt.Errorf("create pub/sub client: %w", err)
	}
	defer pubsubClient.Close()

	tail := audit.NewTail(log)
	go tail.Run(ctx.Done())
	publisher := audit.NewPublisher(pubsubClient, cfg.AuditTopic, log)
	sink := audit.NewFanOut(publisher, tail)

	reg := prometheus.NewRegistry()
	metrics := pipeline.NewMetrics(reg)

	membership, err := buildMembership(ctx, cfg, log)
	if err != nil {
		return err
	}
	if runner, ok := membership.(interface{ Run(context.Context) }); ok {
		go runner.Run(ctx)
	}

	idleTimeout := time.Duration(cfg.IdleTimeoutMs) * time.Millisecond
	requestTimeout := time.Duration(cfg.ClusterRequestTimeout) * time.Millisecond

	supervisor := actor.NewSupervisor(store, idleTimeout, time.Now, log)
	rpcClient := cluster.NewRPCClient(cfg.ClusterRPCSigningSecret, cfg.ClusterNodeID, requestTimeout)
	router := cluster.NewRouter(cfg.ClusterNodeID, membership, supervisor, rpcClient, requestTimeout, log)
	go router.Watch(ctx)

	dispatcher := pipeline.NewDispatcher(router, capsTable, idem, sink, time.Now, log)
	processorPool := pipeline.NewProcessorPool(dispatcher, cfg.ProcessorConcurrency, metrics, log)

	pgmqProducer := pipeline.NewPgmqProducer(ctx, pgmqClient, map[string]string{
		cfg.BusQueueJobs:    pipeline.TopicJobsComplete,
		cfg.BusQueueCredits: pipeline.TopicEntitlementsCredit,
	}, cfg.BusPollTimeoutS, cfg.BusPollBatchSize, log)

	pushProducer := pipeline.NewPubSubPushProducer(map[string]string{
		cfg.BusQueueJobs:    pipeline.TopicJobsComplete,
		cfg.BusQueueCredits: pipeline.TopicEntitlementsCredit,
	}, log)

	go processorPool.Run(ctx, pgmqProducer, pushProducer)

	clusterRPC := cluster.RPCHandler(cfg.ClusterRPCSigningSecret, router.LocalDispatch, log)
	adminHandler := admin.New(router, clusterRPC, tail, log)

	isLocalDev := cfg.PubSubEmulatorHost != ""
	pushAuth := pipeline.PubSubAuthMiddleware(isLocalDev, cfg.PubSubPushAudience, cfg.PubSubPushServiceAcct, log)

	mux := http.NewServeMux()
	mux.Handle("/", adminHandler)
	mux.Handle("/push/", http.StripPrefix("/push", pushAuth(pushProducer.Handler())))

	srv := &http.Server{
		Addr:         cfg.AdminListenAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	metricsSrv := &http.Server{
		Addr:    cfg.MetricsListenAddr,
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("ledgerd: metrics server failed")
		}
	}()

	log.Info().Str("addr", cfg.AdminListenAddr).Str("node_id", cfg.ClusterNodeID).Msg("ledgerd: serving")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("admin server: %w", err)
	}
	log.Info().Msg("ledgerd: shut down gracefully")
	return nil
}

func resolveSecrets(ctx context.Context, cfg *config.Config) error {
	resolver, err := secrets.NewResolver(ctx, cfg.GCPProjectID)
	if err != nil {
		return fmt.Errorf("build secrets resolver: %w", err)
	}
	password, err := resolver.Resolve(ctx, secrets.RelationalPasswordSecretID)
	if err != nil {
		return fmt.Errorf("resolve relational password: %w", err)
	}
	dsn, err := secrets.OverrideRelationalPassword(cfg.RelationalURL, password)
	if err != nil {
		return fmt.Errorf("override relational password: %w", err)
	}
	cfg.RelationalURL = dsn

	if cfg.LegacyStoreActive {
		secretKey, err := resolver.Resolve(ctx, secrets.DocumentSecretKeySecretID)
		if err != nil {
			return fmt.Errorf("resolve document store secret key: %w", err)
		}
		cfg.DocumentSecretKey = secretKey
	}
	return nil
}

// buildMembership chooses the Kubernetes-backed registry in any
// non-development environment and a fixed single-node registry
// otherwise, the same "development" environment branch used
// elsewhere in this codebase to relax production-only settings.
func buildMembership(ctx context.Context, cfg *config.Config, log zerolog.Logger) (cluster.Membership, error) {
	if cfg.Environment == "development" {
		node := cluster.Node{ID: cfg.ClusterNodeID, Address: fmt.Sprintf("127.0.0.1:%d", cfg.ClusterRPCPort)}
		return cluster.NewStaticMembership([]cluster.Node{node}), nil
	}

	restCfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("load in-cluster config: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("build kubernetes clientset: %w", err)
	}
	return cluster.NewK8sMembership(clientset, cfg.ClusterK8sNamespace, cfg.ClusterK8sServiceName, cfg.ClusterRPCPort, log), nil
}
