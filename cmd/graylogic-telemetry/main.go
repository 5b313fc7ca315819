// Gray Logic Telemetry - real-time telemetry and notification core.
//
// This is the main entry point for the telemetry service. It:
//   - Validates and buffers device telemetry arriving over MQTT and HTTP
//   - Runs the stream processing pipeline over every persisted record
//   - Fans processed data and alerts out to WebSocket channel subscribers
//   - Delivers user notifications over push, SMS, email and in-app channels
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws/session"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-telemetry/internal/api"
	"github.com/nerrad567/gray-logic-telemetry/internal/audit"
	"github.com/nerrad567/gray-logic-telemetry/internal/auth"
	"github.com/nerrad567/gray-logic-telemetry/internal/delivery"
	"github.com/nerrad567/gray-logic-telemetry/internal/device"
	"github.com/nerrad567/gray-logic-telemetry/internal/hub"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/cloud"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/dynamo"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-telemetry/internal/ingest"
	"github.com/nerrad567/gray-logic-telemetry/internal/notify"
	"github.com/nerrad567/gray-logic-telemetry/internal/pipeline"
	"github.com/nerrad567/gray-logic-telemetry/internal/telemetry"
	"github.com/nerrad567/gray-logic-telemetry/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// drainTimeout bounds the final pipeline drain after the workers stop.
const drainTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic Telemetry",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	m := metrics.New()
	registry, err := metrics.NewRegistry(m)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	checks := map[string]api.HealthChecker{"database": db}

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		checks["mqtt"] = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	var awsSession *session.Session
	if cloud.Enabled(cfg.AWS) {
		awsSession, err = cloud.NewSession(cfg.AWS)
		if err != nil {
			return fmt.Errorf("creating AWS session: %w", err)
		}
		log.Info("AWS session created", "region", cfg.AWS.Region)
	}

	var dynamoClient *dynamo.Client
	if cfg.AWS.DynamoDB.Enabled {
		dynamoClient, err = dynamo.New(awsSession, cfg.AWS.DynamoDB.Table)
		if err != nil {
			return fmt.Errorf("creating DynamoDB client: %w", err)
		}
		checks["dynamodb"] = dynamoClient
		log.Info("DynamoDB persister enabled", "table", cfg.AWS.DynamoDB.Table)
	}

	deviceRegistry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	deviceRegistry.SetLogger(log.Component("device"))
	if refreshErr := deviceRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", deviceRegistry.GetDeviceCount())

	auditRepo := audit.NewSQLiteRepository(db.DB)
	authn := auth.NewJWTAuthenticator(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer)

	channelHub := hub.New(hub.Config{
		AuthenticationRequired: cfg.Hub.AuthenticationRequired,
		HeartbeatInterval:      time.Duration(cfg.Hub.HeartbeatInterval) * time.Second,
		MaxMessagesPerMinute:   cfg.Hub.MaxMessagesPerMinute,
	},
		hub.WithLogger(log.Component("hub")),
		hub.WithMetrics(m),
		hub.WithAuthenticator(authn),
		hub.WithAuditor(auditRepo),
	)

	orchestrator := buildOrchestrator(cfg, db, channelHub, mqttClient, awsSession, auditRepo, log, m)
	alerts := buildAlertPublisher(cfg, channelHub, orchestrator, mqttClient)

	cache := pipeline.NewCache()
	sqlitePersister := ingest.NewSQLitePersister(db)
	proc, err := buildPipeline(cfg, channelHub, cache, sqlitePersister, alerts, mqttClient, deviceRegistry, log, m)
	if err != nil {
		return err
	}

	buffer := ingest.NewBuffer(ingest.Config{
		BatchSize:     cfg.Ingestion.BatchSize,
		BatchTimeout:  time.Duration(cfg.Ingestion.BatchTimeout) * time.Millisecond,
		RetryAttempts: cfg.Ingestion.RetryAttempts,
		RetryDelay:    time.Duration(cfg.Ingestion.RetryDelay) * time.Millisecond,
	},
		buildPersister(sqlitePersister, influxClient, dynamoClient),
		ingest.WithForwarder(proc),
		ingest.WithAlerts(alerts),
		ingest.WithLogger(log.Component("ingest")),
		ingest.WithMetrics(m),
	)

	validator := telemetry.NewValidator(telemetry.WithMetrics(m))
	ingestor := ingest.NewIngestor(validator, buffer, alerts, log.Component("ingest"))
	if mqttClient != nil {
		if subErr := ingestor.SubscribeMQTT(mqttClient); subErr != nil {
			return fmt.Errorf("subscribing to telemetry topics: %w", subErr)
		}
		log.Info("subscribed to MQTT telemetry", "pattern", mqtt.Topics{}.AllTelemetry())
	}

	server, err := api.New(api.Deps{
		Config:         cfg.API,
		Hub:            cfg.Hub,
		Security:       cfg.Security,
		Logger:         log.Component("api"),
		Metrics:        m,
		MetricsHandler: registry.Handler(),
		Authenticator:  authn,
		Ingestor:       ingestor,
		Pipeline:       proc,
		Cache:          cache,
		ChannelHub:     channelHub,
		Notifier:       orchestrator,
		Rules:          notify.NewSQLiteRuleStore(db.DB),
		Preferences:    notify.NewSQLitePreferenceStore(db.DB),
		Devices:        deviceRegistry,
		AuditRepo:      auditRepo,
		HealthChecks:   checks,
		Version:        version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return buffer.Run(gctx) })
	g.Go(func() error { return proc.Run(gctx) })
	g.Go(func() error { return channelHub.Run(gctx) })

	if err := server.Start(gctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-gctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if closeErr := server.Close(); closeErr != nil {
		log.Error("error closing API server", "error", closeErr)
	}

	runErr := g.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	drained, remaining := proc.DrainAll(drainCtx)
	if drained > 0 {
		log.Info("pipeline drained", "records", drained)
	}
	if remaining > 0 {
		log.Warn("pipeline drain timed out", "undrained", remaining)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("worker stopped: %w", runErr)
	}

	log.Info("Gray Logic Telemetry stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies every configured dependency is healthy.
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, c := range checks {
		if err := c.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// buildOrchestrator wires the notification orchestrator to whichever
// delivery adapters are configured. In-app delivery is always available.
func buildOrchestrator(
	cfg *config.Config,
	db *database.DB,
	channelHub *hub.Hub,
	mqttClient *mqtt.Client,
	awsSession *session.Session,
	auditRepo audit.Repository,
	log *logging.Logger,
	m *metrics.Metrics,
) *notify.Orchestrator {
	opts := []notify.Option{
		notify.WithInApp(delivery.HubInApp{Hub: channelHub}),
		notify.WithRepository(notify.NewSQLiteRepository(db.DB)),
		notify.WithPreferences(notify.NewSQLitePreferenceStore(db.DB)),
		notify.WithRules(notify.NewSQLiteRuleStore(db.DB)),
		notify.WithBroadcaster(channelHub),
		notify.WithAuditor(auditRepo),
		notify.WithDeliveryTimeout(time.Duration(cfg.Notifications.DeliveryTimeout) * time.Second),
		notify.WithLogger(log.Component("notify")),
		notify.WithMetrics(m),
	}
	if mqttClient != nil {
		opts = append(opts, notify.WithPush(delivery.NewMQTTPush(mqttClient)))
	}
	if cfg.AWS.SNS.Enabled {
		opts = append(opts, notify.WithSMS(delivery.NewSNSSender(awsSession, cfg.AWS.SNS.SenderID, cfg.AWS.SNS.SMSType)))
	}
	if cfg.AWS.SES.Enabled {
		opts = append(opts, notify.WithEmail(delivery.NewSESSender(awsSession, cfg.AWS.SES.Sender)))
	}
	return notify.New(opts...)
}

// buildAlertPublisher fans alerts out to the hub ALERTS channel, the
// configured notification recipients and, when connected, MQTT.
func buildAlertPublisher(cfg *config.Config, channelHub *hub.Hub, orchestrator *notify.Orchestrator, mqttClient *mqtt.Client) telemetry.AlertPublisher {
	publishers := telemetry.MultiAlertPublisher{hub.AlertPublisher{Hub: channelHub}}

	if len(cfg.Notifications.AlertRecipients) > 0 {
		publishers = append(publishers, notify.AlertNotifier{
			Orchestrator: orchestrator,
			Recipients:   cfg.Notifications.AlertRecipients,
			MinSeverity:  telemetry.Severity(cfg.Notifications.AlertMinSeverity),
		})
	}

	if mqttClient != nil {
		publishers = append(publishers, telemetry.AlertPublisherFunc(func(_ context.Context, a telemetry.Alert) error {
			return mqttClient.PublishJSON(mqtt.Topics{}.CoreAlert(a.Kind), a)
		}))
	}
	return publishers
}

// buildPipeline creates the stream pipeline with every output handler
// registered and loads processor definitions from disk when configured.
func buildPipeline(
	cfg *config.Config,
	channelHub *hub.Hub,
	cache *pipeline.Cache,
	store pipeline.RecordStore,
	alerts telemetry.AlertPublisher,
	mqttClient *mqtt.Client,
	devices *device.Registry,
	log *logging.Logger,
	m *metrics.Metrics,
) (*pipeline.Pipeline, error) {
	opts := []pipeline.Option{
		pipeline.WithLogger(log.Component("pipeline")),
		pipeline.WithMetrics(m),
		pipeline.WithOutput(pipeline.OutputPersistence, pipeline.PersistenceOutput{Store: store}),
		pipeline.WithOutput(pipeline.OutputCache, cache),
		pipeline.WithOutput(pipeline.OutputWebSocket, pipeline.WebSocketOutput{Hub: channelHub}),
		pipeline.WithOutput(pipeline.OutputWebhook, pipeline.NewWebhookOutput(time.Duration(cfg.Pipeline.WebhookTimeout)*time.Second)),
		pipeline.WithOutput(pipeline.OutputAlert, pipeline.AlertOutput{Alerts: alerts}),
		pipeline.WithEnricher("device", devices),
	}
	if mqttClient != nil {
		opts = append(opts, pipeline.WithOutput(pipeline.OutputStream, pipeline.StreamOutput{Publisher: mqttClient}))
	}

	proc := pipeline.New(pipeline.Config{
		BatchSize:      cfg.Pipeline.BatchSize,
		BatchTimeout:   time.Duration(cfg.Pipeline.BatchTimeout) * time.Millisecond,
		ErrorHandling:  pipeline.ErrorPolicy(cfg.Pipeline.ErrorHandling),
		RetryAttempts:  cfg.Pipeline.RetryAttempts,
		RetryDelay:     time.Duration(cfg.Pipeline.RetryDelay) * time.Millisecond,
		QueueHighWater: cfg.Pipeline.QueueHighWater,
	}, opts...)

	if cfg.Pipeline.ProcessorsFile == "" {
		return proc, nil
	}

	defs, err := pipeline.LoadDefinitions(cfg.Pipeline.ProcessorsFile)
	if err != nil {
		return nil, fmt.Errorf("loading processor definitions: %w", err)
	}
	if err := proc.Load(defs); err != nil {
		return nil, fmt.Errorf("loading processors: %w", err)
	}
	log.Info("pipeline processors loaded",
		"path", cfg.Pipeline.ProcessorsFile,
		"count", len(defs),
	)
	return proc, nil
}

// buildPersister returns the SQLite persister alone, or a fan-out over
// every enabled telemetry backend.
func buildPersister(sqlite *ingest.SQLitePersister, influxClient *influxdb.Client, dynamoClient *dynamo.Client) ingest.Persister {
	backends := []ingest.NamedPersister{{Name: "sqlite", Persister: sqlite}}
	if influxClient != nil {
		backends = append(backends, ingest.NamedPersister{Name: "influxdb", Persister: ingest.NewInfluxPersister(influxClient)})
	}
	if dynamoClient != nil {
		backends = append(backends, ingest.NamedPersister{Name: "dynamodb", Persister: ingest.NewDynamoPersister(dynamoClient)})
	}
	if len(backends) == 1 {
		return sqlite
	}
	return ingest.NewMultiPersister(backends...)
}
