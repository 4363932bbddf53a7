package cmd

import (
	"context"
	"errors"
	"log"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/mail-triage/internal/ai"
	"github.com/spigell/mail-triage/internal/classifier"
	"github.com/spigell/mail-triage/internal/logger"
)

var services = []ai.Service{ai.Classification, ai.Extraction, ai.Attachment}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and show which provider serves each service",
	Run: func(_ *cobra.Command, _ []string) {
		check()
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func check() {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	cfg, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	e, err := newEngine(cfg, logger)
	if err != nil {
		logger.Fatal("preparing the engine", zap.Error(err))
	}

	failed := false
	for _, service := range services {
		for _, fallback := range []bool{false, true} {
			role := ai.RoleName(fallback)

			if !e.registry.Configured(service, fallback) {
				logger.Info("service role is not mapped",
					zap.String("service", string(service)),
					zap.String("role", role),
				)
				continue
			}

			// Building the client resolves the API key and the provider shape.
			client, err := e.registry.Client(ctx, service, fallback)
			if err != nil {
				failed = true
				logger.Error("service role is broken",
					zap.String("service", string(service)),
					zap.String("role", role),
					zap.Error(err),
				)
				continue
			}

			logger.Info("service role",
				zap.String("service", string(service)),
				zap.String("role", role),
				zap.String("provider", client.Provider),
				zap.String("kind", client.Kind),
				zap.String("model", client.Params.Model),
				zap.Bool("dedicated_classify", client.Classifier != nil),
				zap.Bool("dedicated_extract", client.Extractor != nil),
			)
		}
	}

	for _, s := range classifier.Describe(e.pipeline.Stages()) {
		fields := []zap.Field{
			zap.String("stage", s.Name),
			zap.Bool("enabled", s.Enabled),
		}
		if s.Reason != "" {
			fields = append(fields, zap.String("reason", s.Reason))
		}

		keys := make([]string, 0, len(s.Details))
		for k := range s.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fields = append(fields, zap.String(k, s.Details[k]))
		}

		logger.Info("classification stage", fields...)
	}

	if failed {
		logger.Fatal("configuration check failed", zap.Error(errors.New("some providers could not be built")))
	}

	logger.Info("configuration is valid")
}
