package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/goccy/go-json"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/mail-triage/internal/ai"
	"github.com/spigell/mail-triage/internal/ai/providers"
	"github.com/spigell/mail-triage/internal/classifier"
	"github.com/spigell/mail-triage/internal/config"
	"github.com/spigell/mail-triage/internal/email"
	"github.com/spigell/mail-triage/internal/extraction"
	"github.com/spigell/mail-triage/internal/logger"
	"github.com/spigell/mail-triage/internal/normalize"
	"github.com/spigell/mail-triage/internal/processing"
	"github.com/spigell/mail-triage/internal/rules"
)

const (
	PromptPrint  = "Print results"
	PromptDump   = "Dump results to file"
	PromptReport = "Report by category"
	PromptExit   = "Exit"
)

var errExit = errors.New("exit requested")

var prompt = promptui.Select{
	Label: "What to do with the results?",
	Items: []string{PromptPrint, PromptReport, PromptDump, PromptExit},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Classify messages and extract records from them",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringSliceP("input", "i", nil, ".eml or .json files, or directories with them")
	runCmd.Flags().BoolP("auto-approve", "y", false, "print results and exit without asking")

	runCmd.MarkFlagRequired("input")
}

// engine is everything needed to process messages for a given config.
type engine struct {
	rules     *rules.Rules
	registry  *ai.Registry
	pipeline  *classifier.Pipeline
	processor *processing.Processor
}

func newEngine(cfg *config.Config, logger *zap.Logger) (*engine, error) {
	r, err := cfg.Classification.Rules()
	if err != nil {
		return nil, fmt.Errorf("loading classification rules: %w", err)
	}

	registry := ai.NewRegistry(cfg.AI, providers.NewFactory(logger), logger)

	pipeline := classifier.New(r, registry, logger,
		classifier.WithMaxLogLength(cfg.AI.MaxLogLength),
	)

	extractor := extraction.New(registry, normalize.New(logger), logger,
		extraction.WithMaxLogLength(cfg.AI.MaxLogLength),
	)

	return &engine{
		rules:     r,
		registry:  registry,
		pipeline:  pipeline,
		processor: processing.New(pipeline, extractor, r.Attachments, logger),
	}, nil
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	cfg, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the mail-triage", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(cfg, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	e, err := newEngine(cfg, logger)
	if err != nil {
		logger.Fatal("preparing the engine", zap.Error(err))
	}

	for _, s := range classifier.Describe(e.pipeline.Stages()) {
		if !s.Enabled {
			logger.Info("classification stage disabled", zap.String("stage", s.Name), zap.String("reason", s.Reason))
		}
	}

	paths, err := cmd.Flags().GetStringSlice("input")
	if err != nil {
		logger.Fatal("reading input flag", zap.Error(err))
	}

	messages, err := email.LoadPaths(paths)
	if err != nil {
		logger.Fatal("loading messages", zap.Error(err))
	}

	if len(messages) == 0 {
		logger.Info("exiting", zap.String("reason", "no messages found"))
		return
	}

	logger.Info("processing messages", zap.Int("count", len(messages)))

	outcomes := e.processor.ProcessAll(ctx, messages)

	logger.Info("messages processed", zap.Any("categories", reportByCategory(outcomes)))

	autoApprove, _ := cmd.Flags().GetBool("auto-approve")
	if autoApprove {
		if err := handleAction(PromptPrint, logger, outcomes); err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}
		return
	}

	for {
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		if err := handleAction(action, logger, outcomes); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

func handleAction(action string, logger *zap.Logger, outcomes []processing.Outcome) error {
	switch action {
	case PromptPrint:
		pretty, err := json.MarshalIndent(outcomes, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding results: %w", err)
		}
		fmt.Println(string(pretty))
		return nil
	case PromptReport:
		pretty, _ := json.MarshalIndent(reportByCategory(outcomes), "", "  ")
		logger.Info(string(pretty), zap.Int("messages count", len(outcomes)))
		return nil
	case PromptDump:
		filename, err := dumpToTmpFile(outcomes)
		if err != nil {
			return fmt.Errorf("dump results to file: %w", err)
		}
		logger.Info("dumping result to file", zap.String("filename", filename))
		return nil
	case PromptExit:
		logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

// reportByCategory counts outcomes per category. Failed messages are counted under "error".
func reportByCategory(outcomes []processing.Outcome) map[string]int {
	report := make(map[string]int)
	for _, o := range outcomes {
		if o.Status == processing.StatusError {
			report[string(processing.StatusError)]++
			continue
		}
		report[string(o.Category)]++
	}
	return report
}

func dumpToTmpFile(outcomes []processing.Outcome) (string, error) {
	file, err := os.CreateTemp("", "outcomes_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(outcomes); err != nil {
		return "", err
	}

	return file.Name(), nil
}
