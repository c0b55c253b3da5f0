package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "xcenter2mqtt/internal/adapter/actor"
	"xcenter2mqtt/internal/config"
	"xcenter2mqtt/internal/core/actor"
	"xcenter2mqtt/internal/core/domain"
	"xcenter2mqtt/internal/core/service"
	"xcenter2mqtt/internal/server"
	"xcenter2mqtt/internal/util"
	"xcenter2mqtt/internal/util/actorutil"
	"xcenter2mqtt/pkg/xcenter_modbus"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/carlmjohnson/versioninfo"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)
	slog.Info("xcenter2mqtt", "version", versioninfo.Short())

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// attribute catalog
	registry, err := domain.NewAttributeRegistry(domain.XCenterAttributes(
		time.Duration(cfg.SafetyConfig.CommandMinIntervalSeconds) * time.Second))
	if err != nil {
		logger.Fatal("invalid attribute catalog", zap.Error(err))
	}

	deviceId := config.DeriveDeviceId(cfg)

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	// init device gateway provider
	deviceProv, err := deviceActorProvider(cfg, registry, logger)
	if err != nil {
		logger.Fatal("could not create modbus client", zap.Error(err))
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, deviceId, registry,
			service.NewSafetyValidator(logger),
			deviceProv,
			mqttActorProvider(cfg, deviceId, registry, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		return
	}

	// periodic discovery refresh
	sched, schedCancel, err := startDiscoveryRefresh(cfg, ctx, pid)
	if err != nil {
		logger.Fatal("could not start discovery refresh scheduler", zap.Error(err))
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	if sched != nil {
		sched.Stop()
		schedCancel()
	}

	// stopping the master lets the broker gateway publish the retained
	// offline marker before disconnecting
	_ = ctx.StopFuture(pid).Wait()
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => XCENTER_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("XCENTER_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("xcenter")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check bounds
	if cfg.DeviceModbusTcp.Host == "" {
		return nil, errors.New("config param device_modbus_tcp.host is required")
	}
	if cfg.BridgeConfig.PollIntervalMillis < 1000 {
		return nil, errors.New("config param bridge.poll_interval_millis should be >= 1000")
	}
	if cfg.BridgeConfig.PollRetryIntervalMillis < 1000 {
		return nil, errors.New("config param bridge.poll_retry_interval_millis should be >= 1000")
	}
	if cfg.SafetyConfig.CommandMinIntervalSeconds < 1 {
		return nil, errors.New("config param safety.command_min_interval_seconds should be >= 1")
	}
	if cfg.ReconnectConfig.DeviceSeedDelayMillis < 100 || cfg.ReconnectConfig.MQTTSeedDelayMillis < 100 {
		return nil, errors.New("config param reconnect seed delays should be >= 100ms")
	}
	if cfg.ReconnectConfig.DeviceMaxDelayMillis < cfg.ReconnectConfig.DeviceSeedDelayMillis ||
		cfg.ReconnectConfig.MQTTMaxDelayMillis < cfg.ReconnectConfig.MQTTSeedDelayMillis {
		return nil, errors.New("config param reconnect max delays should be >= their seed delays")
	}

	return &cfg, nil
}

func deviceActorProvider(cfg *config.Config, registry *domain.AttributeRegistry, logger *zap.Logger) (actor.DeviceActorProvider, error) {

	client, err := xcenter_modbus.CreateXCenterModbusClient(cfg.DeviceModbusTcp.Host,
		cfg.DeviceModbusTcp.Port, time.Duration(cfg.DeviceModbusTcp.TimeoutMillis)*time.Millisecond)
	if err != nil {
		return nil, err
	}

	return func() pactor.Actor {
		backoff := util.NewBackoff(time.Duration(cfg.ReconnectConfig.DeviceSeedDelayMillis)*time.Millisecond,
			time.Duration(cfg.ReconnectConfig.DeviceMaxDelayMillis)*time.Millisecond)
		return adactor.NewDeviceActor(client, registry, backoff, logger)
	}, nil
}

func mqttActorProvider(cfg *config.Config, deviceId string, registry *domain.AttributeRegistry, logger *zap.Logger) actor.MQTTActorProvider {
	return func() pactor.Actor {
		backoff := util.NewBackoff(time.Duration(cfg.ReconnectConfig.MQTTSeedDelayMillis)*time.Millisecond,
			time.Duration(cfg.ReconnectConfig.MQTTMaxDelayMillis)*time.Millisecond)
		return adactor.NewMQTTActor(cfg, deviceId, registry, backoff, logger)
	}
}

// startDiscoveryRefresh schedules a periodic re-publish of the discovery
// configs. They are retained and deterministic, so the refresh is a no-op
// for the broker unless its retained store was wiped.
func startDiscoveryRefresh(cfg *config.Config, ctx *pactor.RootContext, master *pactor.PID) (quartz.Scheduler, context.CancelFunc, error) {
	if !cfg.MQTT.HADiscoveryEnable || cfg.MQTT.HADiscoveryRefreshMinutes == 0 {
		return nil, nil, nil
	}

	sched := quartz.NewStdScheduler()
	schedCtx, cancel := context.WithCancel(context.Background())
	sched.Start(schedCtx)

	refreshJob := job.NewFunctionJob(func(_ context.Context) (bool, error) {
		ctx.Send(master, domain.RefreshDiscovery{})
		return true, nil
	})
	interval := time.Duration(cfg.MQTT.HADiscoveryRefreshMinutes) * time.Minute
	err := sched.ScheduleJob(quartz.NewJobDetail(refreshJob, quartz.NewJobKey("ha_discovery_refresh")),
		quartz.NewSimpleTrigger(interval))
	if err != nil {
		cancel()
		return nil, nil, err
	}

	return sched, cancel, nil
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("device_modbus_tcp.port", 502)
	viper.SetDefault("device_modbus_tcp.timeout_millis", 1000)
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "xcenter")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("mqtt.ha_discovery_refresh_minutes", 0)
	viper.SetDefault("bridge.poll_interval_millis", 30000)
	viper.SetDefault("bridge.poll_retry_interval_millis", 5000)
	viper.SetDefault("safety.command_min_interval_seconds", 60)
	viper.SetDefault("reconnect.device_seed_delay_millis", 5000)
	viper.SetDefault("reconnect.device_max_delay_millis", 300000)
	viper.SetDefault("reconnect.mqtt_seed_delay_millis", 1000)
	viper.SetDefault("reconnect.mqtt_max_delay_millis", 120000)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
