package config

import (
	"github.com/kelseyhightower/envconfig"
)

// Config holds every setting the ledger reads at startup (spec.md §6).
type Config struct {
	Environment string `envconfig:"ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Relational store (authoritative).
	RelationalURL      string `envconfig:"RELATIONAL_URL" required:"true"`
	RelationalPoolSize int    `envconfig:"RELATIONAL_POOL_SIZE" default:"10"`

	// Legacy document store (S3-backed, transitional; §4.5/§4.9).
	DocumentURL       string `envconfig:"DOCUMENT_URL" required:"true"`
	DocumentBucket    string `envconfig:"DOCUMENT_BUCKET" required:"true"`
	DocumentRegion    string `envconfig:"DOCUMENT_REGION" default:"us-east-1"`
	DocumentAccessKey string `envconfig:"DOCUMENT_ACCESS_KEY"`
	DocumentSecretKey string `envconfig:"DOCUMENT_SECRET_KEY"`
	DocumentPoolSize  int    `envconfig:"DOCUMENT_POOL_SIZE" default:"50"`
	LegacyStoreActive bool   `envconfig:"LEGACY_STORE_ACTIVE" default:"true"`

	// Secrets backend: "env" resolves the fields above directly; "gcp"
	// overrides RelationalURL's password component and DocumentSecretKey
	// from Secret Manager at startup (internal/secrets).
	SecretsBackend string `envconfig:"SECRETS_BACKEND" default:"env"`
	GCPProjectID   string `envconfig:"GCP_PROJECT_ID"`

	// Message bus: pull model (pgmq) and push model (Pub/Sub).
	BusPgmqDSN       string `envconfig:"BUS_PGMQ_DSN"`
	BusQueueJobs     string `envconfig:"BUS_QUEUE_JOBS" default:"jobs_complete"`
	BusQueueCredits  string `envconfig:"BUS_QUEUE_CREDITS" default:"entitlements_credits"`
	BusPollTimeoutS  int    `envconfig:"BUS_POLL_TIMEOUT_SEC" default:"10"`
	BusPollBatchSize int    `envconfig:"BUS_POLL_BATCH_SIZE" default:"10"`
	BusDeadLetterDLQ string `envconfig:"BUS_DEAD_LETTER_QUEUE" default:"ledger_dlq"`

	GCPProjectIDPubSub    string `envconfig:"GCP_PROJECT_ID_PUBSUB"`
	PubSubEmulatorHost    string `envconfig:"PUBSUB_EMULATOR_HOST"`
	PubSubPushAudience    string `envconfig:"PUBSUB_PUSH_AUDIENCE"`
	PubSubPushServiceAcct string `envconfig:"PUBSUB_PUSH_SERVICE_ACCOUNT_EMAIL"`
	AuditTopic            string `envconfig:"AUDIT_TOPIC" default:"ledger_change_events"`

	// Pipeline (producer/processor concurrency, idle shutdown).
	ProducerConcurrency   int `envconfig:"PIPELINE_PRODUCER_CONCURRENCY" default:"1"`
	ProcessorConcurrency  int `envconfig:"PIPELINE_PROCESSOR_CONCURRENCY" default:"20"`
	ProcessorMaxDemand    int `envconfig:"PIPELINE_PROCESSOR_MAX_DEMAND" default:"10"`
	IdleTimeoutMs         int `envconfig:"IDLE_TIMEOUT_MS" default:"3600000"`
	ClusterRequestTimeout int `envconfig:"CLUSTER_REQUEST_TIMEOUT_MS" default:"2000"`

	// Cluster membership / routing.
	ClusterMembershipSelector string `envconfig:"CLUSTER_MEMBERSHIP_SELECTOR" default:"app=ledger"`
	ClusterK8sNamespace       string `envconfig:"CLUSTER_K8S_NAMESPACE" default:"default"`
	ClusterK8sServiceName     string `envconfig:"CLUSTER_K8S_SERVICE_NAME" default:"ledger-headless"`
	ClusterNodeID             string `envconfig:"CLUSTER_NODE_ID"`
	ClusterRPCPort            int    `envconfig:"CLUSTER_RPC_PORT" default:"7500"`
	ClusterRPCSigningSecret   string `envconfig:"CLUSTER_RPC_SIGNING_SECRET" required:"true"`

	// Job-type cost caps (loaded from a TOML file, not flat env vars,
	// since it's an open-ended map; see internal/caps).
	CapsFile     string `envconfig:"CAPS_FILE" default:"caps.toml"`
	DefaultCapMs int64  `envconfig:"DEFAULT_CAP_MS" default:"300000"`

	// Admin/ops HTTP surfaces.
	AdminListenAddr   string `envconfig:"ADMIN_LISTEN_ADDR" default:":8090"`
	MetricsListenAddr string `envconfig:"METRICS_LISTEN_ADDR" default:":9090"`
}

// Load reads Config from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
