package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/mkrupp/nutrifit-client/internal/infra/config"
	"github.com/mkrupp/nutrifit-client/internal/infra/logging"
	"github.com/mkrupp/nutrifit-client/internal/infra/telemetry"
	"github.com/mkrupp/nutrifit-client/internal/repo/credential"
	"github.com/mkrupp/nutrifit-client/internal/svc/apiclient"
	"github.com/mkrupp/nutrifit-client/internal/svc/imagesvc"
	"github.com/mkrupp/nutrifit-client/internal/svc/sessionsvc"
)

const (
	appName = "nutrifit"
	svcName = "fitclient"
)

type Config struct {
	config.EnvConfig

	Log     logging.LoggerConfig    `envPrefix:"LOG_"`
	API     apiclient.GatewayConfig `envPrefix:"API_"`
	Store   credential.Config       `envPrefix:"STORE_"`
	Session sessionsvc.Config       `envPrefix:"SESSION_"`
	Image   imagesvc.ImageConfig    `envPrefix:"IMAGE_"`
	OTel    telemetry.Config        `envPrefix:"OTEL_"`
}

func main() {
	var (
		cfg Config
		ctx = context.Background()

		configPrefix = strings.ToUpper(strings.Join([]string{appName, svcName}, "_"))
		loggerName   = strings.ToLower(strings.Join([]string{appName, svcName}, "."))
	)

	if err := config.Parse(ctx, &cfg, configPrefix); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logging.Configure(ctx, cfg.Log, loggerName)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	providers, err := telemetry.NewProviders(ctx, cfg.OTel, svcName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	providers.SetGlobal()

	err = run(ctx, cfg, os.Args[1:], os.Stdout)

	_ = providers.Shutdown(context.WithoutCancel(ctx))

	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, err)
		usage(os.Stderr)
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
