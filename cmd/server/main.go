package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/alisaviation/carbonintensity/internal/config"
	"github.com/alisaviation/carbonintensity/internal/fault"
	"github.com/alisaviation/carbonintensity/internal/logger"
	"github.com/alisaviation/carbonintensity/internal/metrics"
	"github.com/alisaviation/carbonintensity/internal/render"
	"github.com/alisaviation/carbonintensity/internal/server"
	"github.com/alisaviation/carbonintensity/internal/upstream"
)

func main() {
	if err := logger.Initialize("info"); err != nil {
		panic(err)
	}
	conf, err := config.SetConfigServer()
	if err != nil {
		logger.Log.Fatal("Invalid configuration", zap.Error(err))
	}
	if err := logger.Initialize(conf.LogLevel); err != nil {
		logger.Log.Fatal("Invalid log level", zap.String("level", conf.LogLevel), zap.Error(err))
	}
	defer logger.Log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf); err != nil {
		logger.Log.Fatal("Server failed", zap.Error(err))
	}
}

func run(ctx context.Context, conf config.Server) error {
	renderer, err := render.Load(conf.TemplatePath)
	if err != nil {
		return err
	}

	if conf.APIKey == "" {
		logger.Log.Warn("ELECTRICITY_MAP_API_KEY is not set, upstream calls will be rejected")
	}

	registry := metrics.NewRegistry()
	faults := fault.NewInjector(conf.FailureRate, conf.MinDelay, conf.MaxDelay, fault.WithRecorder(registry))
	client := upstream.NewClient(conf.UpstreamURL, conf.APIKey, conf.UpstreamTimeout, faults, registry)

	if conf.PushGatewayURL != "" {
		pusher := metrics.NewPusher(conf.PushGatewayURL, registry, conf.PushInterval)
		done := make(chan struct{})
		pushCtx, cancel := context.WithCancel(ctx)
		go func() {
			defer close(done)
			pusher.Run(pushCtx)
		}()
		defer func() {
			cancel()
			<-done
		}()
		logger.Log.Info("Pushing metrics", zap.String("pushgateway", conf.PushGatewayURL))
	}

	logger.Log.Info("Serving carbon intensity",
		zap.String("zone", conf.Zone),
		zap.Float64("failure_rate", conf.FailureRate),
		zap.Duration("min_delay", conf.MinDelay),
		zap.Duration("max_delay", conf.MaxDelay),
	)
	return server.NewServer(conf, registry, faults, client, renderer).Run(ctx)
}
