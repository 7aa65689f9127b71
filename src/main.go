package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fatorch/src/clients"
	"fatorch/src/fat/allocator"
	"fatorch/src/fat/clockid"
	"fatorch/src/fat/eventbus"
	fatexecutor "fatorch/src/fat/executor"
	"fatorch/src/fat/facade"
	"fatorch/src/fat/leaderlease"
	"fatorch/src/fat/manualtest"
	"fatorch/src/fat/model"
	fatneo4j "fatorch/src/fat/neo4j"
	"fatorch/src/fat/plc"
	"fatorch/src/fat/scheduler"
	"fatorch/src/fat/search"
	"fatorch/src/fat/statemanager"
	"fatorch/src/fat/store"
	"fatorch/src/platform/config"
	"fatorch/src/platform/lifecycle"
	"fatorch/src/platform/logging"
	"fatorch/src/services/email"

	neo4jdriver "github.com/neo4j/neo4j-go-driver/v6/neo4j"
	"github.com/shopspring/decimal"
	"go.yaml.in/yaml/v3"
)

func main() {
	cfg, err := config.Load(config.LoadConfigOptions{
		YamlFilePaths: []string{"/app/config/config.yaml"},
		EnvVarPrefix:  "FATORCH_",
	})
	if err != nil {
		panic(fmt.Sprintf("Error loading config: %+v", err))
	}

	loggerFactory, err := logging.NewFactory(logging.Options{
		AppInstanceID: cfg.Application.InstanceName,
		AppVersion:    cfg.Application.Version,
		AppCommit:     cfg.Application.Commit,
		AppBuildDate:  cfg.Application.BuildTime,
		RootLevel:     cfg.Logging.RootLevel,
		LiteralLevels: cfg.Logging.LiteralLevels,
		RegexLevels:   cfg.Logging.RegexLevels,
	})
	if err != nil {
		panic(fmt.Sprintf("Error creating logger factory: %+v", err))
	}
	logger := loggerFactory.Child("main")

	cfgBytes, err := yaml.Marshal(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to marshal config")
	}
	logger.Info().Msgf("Using config:\n%s", string(cfgBytes))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	infra, err := clients.BootstrapClients(cfg, loggerFactory)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to bootstrap infrastructure clients")
	}

	controller, err := lifecycle.NewController(lifecycle.ControllerOptions{
		Services: infra.Services,
		Timeouts: lifecycle.ControllerTimeoutsOptions{
			Startup:  30 * time.Second,
			Shutdown: 30 * time.Second,
		},
		Logger: logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build lifecycle controller")
	}
	if err := controller.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start infrastructure clients")
	}
	defer controller.Stop(context.Background())

	lease := leaderlease.New(leaderlease.Options{
		Client: infra.Etcd.Driver,
		Key:    cfg.Etcd.LeaderKey,
		TTLSec: int(cfg.Etcd.LeaseTTL.Seconds()),
		Logger: loggerFactory.Child("leaderlease"),
	})
	lost, err := lease.Acquire(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to acquire orchestrator leadership lease")
	}
	defer func() {
		if err := lease.Resign(context.Background()); err != nil {
			logger.Error().Err(err).Msg("Failed to resign orchestrator leadership lease")
		}
	}()

	relational := store.NewPostgresStore(infra.PostgreSQL.Driver)
	ledger, err := store.NewScyllaLedger(infra.ScyllaDB.Driver)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build scylla outcome ledger")
	}
	fatStore := store.NewComposedStore(relational, ledger)

	wiring := fatneo4j.NewSessionProjector(func() neo4jdriver.Session {
		return infra.Neo4j.NewSession(ctx, neo4jdriver.AccessModeWrite)
	})

	ids := clockid.NewIdGenerator()
	clock := clockid.NewRealClock()

	overflow, err := eventbus.NewRedisDLQSink(infra.Redis, loggerFactory.Child("eventbus.overflow"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build event bus overflow sink")
	}
	bus := eventbus.New(clock, overflow, loggerFactory.Child("eventbus"))

	kafkaMirror := eventbus.NewKafkaMirror(infra.Kafka, cfg.Kafka.Topics.TestProgress, loggerFactory.Child("eventbus.kafka_mirror"))
	go kafkaMirror.Run(ctx, bus.Subscribe("kafka-mirror"))

	natsMirror := eventbus.NewNatsMirror(infra.Nats.Driver, cfg.Nats.ManualStatusSubj, loggerFactory.Child("eventbus.nats_mirror"))
	go natsMirror.Run(ctx, bus.Subscribe("nats-mirror"))

	indexer := search.New(infra.Elasticsearch, cfg.Elasticsearch.IndexPrefix, loggerFactory.Child("search.indexer"))
	go indexer.Run(ctx, bus.Subscribe("search-indexer"))

	sm := statemanager.New(fatStore, bus, clock, ids, loggerFactory.Child("statemanager"))
	alloc := allocator.New(fatStore, wiring, ids)

	targetDriver, err := plc.NewDriver(toEndpointConfig(cfg.Plc.Target), loggerFactory.Child("plc.target"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build target plc driver")
	}
	testRigDriver, err := plc.NewDriver(toEndpointConfig(cfg.Plc.TestRig), loggerFactory.Child("plc.test_rig"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build test-rig plc driver")
	}
	if err := targetDriver.Connect(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to target plc")
	}
	defer func() { _ = targetDriver.Disconnect(context.Background()) }()
	if err := testRigDriver.Connect(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to test-rig plc")
	}
	defer func() { _ = testRigDriver.Disconnect(context.Background()) }()

	targetHealth, err := plc.NewHealthTracker(plc.EndpointTarget, targetDriver, loggerFactory.Child("plc.target.health"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to start target plc health tracker")
	}
	defer targetHealth.Stop(context.Background())
	testRigHealth, err := plc.NewHealthTracker(plc.EndpointTestRig, testRigDriver, loggerFactory.Child("plc.test_rig.health"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to start test-rig plc health tracker")
	}
	defer testRigHealth.Stop(context.Background())

	execCfgSource := fatexecutor.NewConfigSource(toExecutorConfig(cfg.Scheduler))
	executors := scheduler.Executors{
		model.ModuleTypeAI:            &fatexecutor.AIHardpoint{Config: execCfgSource, IDs: ids, Clock: clock},
		model.ModuleTypeAO:            &fatexecutor.AOHardpoint{Config: execCfgSource, IDs: ids, Clock: clock},
		model.ModuleTypeDI:            &fatexecutor.DIHardpoint{Config: execCfgSource, IDs: ids, Clock: clock},
		model.ModuleTypeDO:            &fatexecutor.DOHardpoint{Config: execCfgSource, IDs: ids, Clock: clock},
		model.ModuleTypeCommunication: &fatexecutor.Communication{Config: execCfgSource, IDs: ids, Clock: clock},
	}

	stopWatch, err := config.WatchSchedulerOverrides("/app/config/config.yaml", func(sc config.SchedulerConfig) {
		execCfgSource.Store(toExecutorConfig(sc))
		logger.Info().Msg("applied live scheduler config overrides")
	}, loggerFactory.Child("config.watch"))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to start scheduler config watch; live tuning disabled")
	} else {
		defer stopWatch()
	}

	sched := scheduler.New(fatStore, sm, bus, executors, testRigDriver, targetDriver, testRigHealth, targetHealth, ids, scheduler.Options{
		Cmax:        cfg.Scheduler.ConcurrencyLimit,
		StepTimeout: cfg.Scheduler.StepTimeout,
	}, loggerFactory.Child("scheduler"))

	coordinator := manualtest.New(fatStore, sm, bus, testRigDriver, targetDriver, loggerFactory.Child("manualtest"))

	notifier := email.NewService(email.ServiceOptions{
		Client:            infra.Email,
		TemplatesLocation: cfg.Email.TemplatesLocation,
		From:              cfg.Email.FromAddress,
		Organization:      cfg.Email.Organization,
		Logger:            loggerFactory.Child("email"),
	})

	app := facade.New(facade.Options{
		Store:            fatStore,
		Allocator:        alloc,
		StateManager:     sm,
		Scheduler:        sched,
		ManualTest:       coordinator,
		Notifier:         notifier,
		TestPLC:          testRigDriver,
		TargetPLC:        targetDriver,
		Clock:            clock,
		NotifyRecipients: cfg.Email.NotifyRecipients,
		Logger:           loggerFactory.Child("facade"),
	})
	_ = app // the operator surface (CLI/RPC) binds to app; not yet wired here

	logger.Info().Msg("fatorch orchestrator ready")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case <-lost:
		logger.Error().Msg("lost orchestrator leadership lease; shutting down")
	}
}

func toEndpointConfig(pc config.PlcEndpointConfig) plc.EndpointConfig {
	return plc.EndpointConfig{
		Name:           pc.Name,
		Protocol:       pc.Protocol,
		Address:        pc.Address,
		ConnectTimeout: pc.ConnectTimeout,
		ReadTimeout:    pc.ReadTimeout,
		WriteTimeout:   pc.WriteTimeout,
	}
}

func toExecutorConfig(sc config.SchedulerConfig) fatexecutor.Config {
	return fatexecutor.Config{
		Tolerance: fatexecutor.Tolerance{
			Abs: decimal.NewFromFloat(sc.ToleranceAbs),
			Rel: decimal.NewFromFloat(sc.ToleranceRel),
		},
		StabilizationWindow: sc.StabilizationWindow,
		DigitalSettleWindow: sc.DiDoSettleDelay,
		ContinueOnFailure:   true,
	}
}
