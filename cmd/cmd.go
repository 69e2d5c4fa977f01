package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/voltbridge/ocpp-gateway/internal/auth"
	"github.com/voltbridge/ocpp-gateway/internal/bus"
	"github.com/voltbridge/ocpp-gateway/internal/cache"
	"github.com/voltbridge/ocpp-gateway/internal/config"
	"github.com/voltbridge/ocpp-gateway/internal/db"
	"github.com/voltbridge/ocpp-gateway/internal/events"
	"github.com/voltbridge/ocpp-gateway/internal/metrics"
	"github.com/voltbridge/ocpp-gateway/internal/router"
	"github.com/voltbridge/ocpp-gateway/internal/schemas"
	"github.com/voltbridge/ocpp-gateway/internal/server"
	websocketManager "github.com/voltbridge/ocpp-gateway/internal/server/websocket"
	"github.com/ztrue/shutdown"
	"golang.org/x/sync/errgroup"
)

func NewCommand(version, commit string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ocpp-gateway",
		Version: fmt.Sprintf("%s - %s", version, commit),
		Annotations: map[string]string{
			"version": version,
			"commit":  commit,
		},
		RunE:          run,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.RegisterFlags(cmd)
	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	slog.Info("ocpp-gateway", "version", cmd.Annotations["version"], "commit", cmd.Annotations["commit"])

	config, err := config.LoadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	err = config.Validate()
	if err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	var stationCache cache.Cache
	var redisClient redis.UniversalClient
	if config.Redis.Enabled {
		redisClient = connectRedis(config)
		defer redisClient.Close()
		stationCache = cache.NewRedis(redisClient)
		slog.Info("Using Redis shared cache")
	} else {
		stationCache = cache.NewMemory()
		slog.Info("Using in-memory cache, single-instance deployment assumed")
	}

	var messageBus interface {
		bus.Sender
		bus.Receiver
	}
	var natsConn *nats.Conn
	if config.NATS.Enabled {
		natsConn, err = nats.Connect(config.NATS.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer natsConn.Close()
		messageBus = bus.NewNATS(natsConn)
		slog.Info("Using NATS message bus")
	} else {
		messageBus = bus.NewMemory()
		slog.Info("Using in-memory message bus, no external modules will be reached")
	}

	database, err := db.MakeDB(config)
	if err != nil {
		return fmt.Errorf("failed to make database: %w", err)
	}
	slog.Info("Database connection established")

	validator, err := schemas.NewValidator()
	if err != nil {
		return fmt.Errorf("failed to compile action schemas: %w", err)
	}
	slog.Info("Action schemas compiled", "actions", len(validator.Actions()))

	gatewayMetrics := metrics.NewMetrics()
	eventBus := events.NewEventBus()
	go logEvents(eventBus)

	manager := websocketManager.NewManager(config, stationCache, gatewayMetrics, eventBus, auth.NewDatabaseAuthenticator(database))
	messageRouter := router.New(config, stationCache, messageBus, messageBus, validator, manager, gatewayMetrics)

	slog.Info("Starting HTTP server")
	server, err := server.NewServer(config, manager, messageRouter)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}
	err = server.Start()
	if err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	stop := func(_ os.Signal) {
		slog.Info("Shutting down")

		errGrp := errgroup.Group{}

		errGrp.Go(func() error {
			return server.Stop()
		})
		errGrp.Go(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			manager.Shutdown(ctx)
			return nil
		})

		err := errGrp.Wait()
		if err != nil {
			slog.Error("Shutdown error", "error", err.Error())
		}
		slog.Info("Shutdown complete")
	}

	if cmd.Annotations["version"] == "testing" {
		doneChannel := make(chan struct{})
		go func() {
			slog.Info("Sleeping for 5 seconds")
			time.Sleep(5 * time.Second)
			slog.Info("Sending SIGTERM")
			stop(syscall.SIGTERM)
			doneChannel <- struct{}{}
		}()
		<-doneChannel
	} else {
		shutdown.AddWithParam(stop)
		shutdown.Listen(syscall.SIGINT, syscall.SIGKILL, syscall.SIGTERM, syscall.SIGQUIT)
	}

	return nil
}

func logEvents(eventBus *events.EventBus) {
	for event := range eventBus.GetChannel() {
		switch event := event.(type) {
		case events.ConnectEvent:
			slog.Debug("Lifecycle event", "type", event.GetType(), "station", event.StationID, "remote", event.RemoteAddr)
		case events.DisconnectEvent:
			slog.Debug("Lifecycle event", "type", event.GetType(), "station", event.StationID)
		case events.ReceivedEvent:
			slog.Debug("Lifecycle event", "type", event.GetType(), "station", event.StationID, "bytes", len(event.Raw))
		case events.SentEvent:
			slog.Debug("Lifecycle event", "type", event.GetType(), "station", event.StationID, "bytes", len(event.Raw))
		}
	}
}

func connectRedis(config *config.Config) redis.UniversalClient {
	if config.Redis.Sentinel.Enabled {
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:       config.Redis.Sentinel.MasterName,
			SentinelAddrs:    config.Redis.Sentinel.Addresses,
			SentinelPassword: config.Redis.Sentinel.Password,
			Password:         config.Redis.Password,
			Username:         config.Redis.Username,
			DB:               config.Redis.Database,
		})
	}
	return redis.NewClient(&redis.Options{
		Addr:     config.Redis.Address,
		Username: config.Redis.Username,
		Password: config.Redis.Password,
		DB:       config.Redis.Database,
	})
}
