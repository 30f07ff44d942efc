package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	awstranslate "github.com/aws/aws-sdk-go-v2/service/translate"
	"github.com/spf13/cobra"

	"github.com/vango-go/callbridge/pkg/bridge/config"
	"github.com/vango-go/callbridge/pkg/bridge/directory"
	"github.com/vango-go/callbridge/pkg/bridge/metrics"
	"github.com/vango-go/callbridge/pkg/bridge/params"
	"github.com/vango-go/callbridge/pkg/bridge/profile"
	"github.com/vango-go/callbridge/pkg/bridge/proxy"
	"github.com/vango-go/callbridge/pkg/bridge/server"
	"github.com/vango-go/callbridge/pkg/bridge/store"
	"github.com/vango-go/callbridge/pkg/bridge/telephony"
	"github.com/vango-go/callbridge/pkg/bridge/translate"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runServe(cmd.Context()); err != nil {
				return fail(cmd, err)
			}
			return nil
		},
	}
}

// loadAWSConfig honors CALLBRIDGE_AWS_REGION over the SDK default chain.
func loadAWSConfig(ctx context.Context, cfg config.Config) (awsClients, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return awsClients{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsClients{
		dynamo:    dynamodb.NewFromConfig(awsCfg),
		ssm:       ssm.NewFromConfig(awsCfg),
		translate: awstranslate.NewFromConfig(awsCfg),
	}, nil
}

type awsClients struct {
	dynamo    *dynamodb.Client
	ssm       *ssm.Client
	translate *awstranslate.Client
}

// buildSelector assembles the provider-switchable translator: AWS and
// DeepL behind a selector driven by the provider parameter.
func buildSelector(cfg config.Config, src params.Source, logger *slog.Logger, awsProvider translate.Translator) (*translate.Selector, error) {
	providers := map[string]translate.Translator{
		"aws":   awsProvider,
		"deepl": translate.NewDeepL(nil, "", src, cfg.DeepLKeyParamName),
	}
	return translate.NewSelector(providers, "aws", src, cfg.ProviderParamName, logger)
}

func runServe(ctx context.Context) error {
	logger := newLogger()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	clients, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return err
	}
	sessionStore := store.NewDynamo(clients.dynamo, cfg.TableName)
	src := params.NewSSM(clients.ssm)

	translator, err := buildSelector(cfg, src, logger, translate.NewAWS(clients.translate))
	if err != nil {
		return err
	}
	selectorCtx, selectorCancel := context.WithCancel(ctx)
	defer selectorCancel()
	go translator.Run(selectorCtx, cfg.ProviderRefreshInterval)

	srv := server.New(cfg, logger, server.Deps{
		Dir:        directory.New(sessionStore),
		Leases:     proxy.NewStore(sessionStore),
		Profiles:   profile.NewCatalog(sessionStore),
		Calls:      telephony.NewTwilio(cfg.TwilioAccountSid, cfg.TwilioAuthToken),
		Translator: translator,
		Metrics:    metrics.New(cfg.MetricsNamespace),
	})

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}

	logger.Info("starting bridge", "addr", cfg.Addr, "relay_url", cfg.RelayURL(), "table", cfg.TableName)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("bridge stopped")
	return nil
}
