package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mkrupp/nutrifit-client/internal/apitest"
	"github.com/mkrupp/nutrifit-client/internal/infra/config"
	"github.com/mkrupp/nutrifit-client/internal/infra/logging"
	"github.com/mkrupp/nutrifit-client/internal/infra/telemetry"
	"github.com/mkrupp/nutrifit-client/internal/infra/transport/http"
)

const (
	appName = "nutrifit"
	svcName = "fakeapi"
)

type Config struct {
	config.EnvConfig

	Log  logging.LoggerConfig     `envPrefix:"LOG_"`
	API  apitest.Config           `envPrefix:"API_"`
	HTTP http.HTTPTransportConfig `envPrefix:"HTTP_"`
	OTel telemetry.Config         `envPrefix:"OTEL_"`
}

func main() {
	var (
		cfg Config
		ctx = context.Background()

		configPrefix = strings.ToUpper(strings.Join([]string{appName, svcName}, "_"))
		loggerName   = strings.ToLower(strings.Join([]string{appName, svcName}, "."))
	)

	if err := config.Parse(ctx, &cfg, configPrefix); err != nil {
		panic(err)
	}

	logging.Configure(ctx, cfg.Log, loggerName)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config) (err error) {
	log := logging.GetLogger("cmd.fakeapi")

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "error", "err", err)

			return
		}

		log.InfoContext(ctx, "shutdown")
	}()

	providers, err := telemetry.NewProviders(ctx, cfg.OTel, svcName)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	providers.SetGlobal()

	defer func() { _ = providers.Shutdown(context.WithoutCancel(ctx)) }()

	api, err := apitest.NewFromConfig(cfg.API)
	if err != nil {
		return fmt.Errorf("new fake api: %w", err)
	}

	if err := http.ListenAndServe(ctx, api.Router(), cfg.HTTP); err != nil {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}
