package main

import (
	"context"
	"io"
	"math/rand"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Li-dongyang/crfgo/config"
	"github.com/Li-dongyang/crfgo/crf"
	"github.com/Li-dongyang/crfgo/dataset"
)

var (
	configFile string
	verbose    bool
	logger     = zap.NewNop()
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the process exit code. The logger writes
// to errOut from the start, so argument and flag errors that cobra reports
// before any command runs are not lost.
func run(ctx context.Context, args []string, errOut io.Writer) int {
	logger = newLogger(errOut, false)
	defer func() { _ = logger.Sync() }()

	root := newRootCommand(errOut)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Error("command failed", zap.Error(err))
		return 1
	}
	return 0
}

// newLogger builds a JSON logger at info level, or a console logger at debug
// level when debug is set.
func newLogger(w io.Writer, debug bool) *zap.Logger {
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	level := zapcore.InfoLevel
	if debug {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		level = zapcore.DebugLevel
	}
	return zap.New(zapcore.NewCore(encoder, zapcore.AddSync(w), level))
}

func newRootCommand(errOut io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "crfgo",
		Short:         "Tag CoNLL sentences with a linear-chain CRF and exact Viterbi decoding",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logger = newLogger(errOut, true)
			}
		},
	}
	root.SetErr(errOut)
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "./config.yaml", "Path to the config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	root.AddCommand(
		&cobra.Command{
			Use:   "tag",
			Short: "Tag test_file and write predictions to output_file (stdout if unset)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runTag(cmd.Context(), false)
			},
		},
		&cobra.Command{
			Use:   "eval",
			Short: "Tag test_file and report token accuracy against its gold labels",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runTag(cmd.Context(), true)
			},
		},
		&cobra.Command{
			Use:   "import-weights <file>",
			Short: "Load a text weight file and save it as the weights_path snapshot",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runImport(args[0])
			},
		},
		newSplitCommand(),
	)
	return root
}

func newSplitCommand() *cobra.Command {
	var (
		seed    int64
		devProp float64
	)
	cmd := &cobra.Command{
		Use:   "split <labeled-file> <train-out> <dev-out>",
		Short: "Shuffle a labeled CoNLL file and split it sentence-wise into train and dev files",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSplit(args[0], args[1], args[2], seed, devProp)
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 0, "Shuffle seed")
	cmd.Flags().Float64Var(&devProp, "dev-prop", 0.25, "Share of sentences written to the dev file")
	return cmd
}

func loadModel() (*config.Config, *crf.LinearCRF, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	model, err := crf.OpenModel(cfg, crf.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	logger.Info("model ready",
		zap.String("model", cfg.ModelName),
		zap.Int("labels", cfg.NumLabels()),
		zap.Int("templates", len(cfg.Templates)))
	return cfg, model, nil
}

func runTag(ctx context.Context, evaluate bool) error {
	cfg, model, err := loadModel()
	if err != nil {
		return err
	}
	if cfg.TestFile == "" {
		return errors.New("test_file is not set")
	}
	testDataset, err := dataset.Load(cfg.TestFile, cfg)
	if err != nil {
		return err
	}

	tagger, err := crf.NewTagger(model, cfg.MaxConcurrency)
	if err != nil {
		return err
	}
	defer tagger.Release()

	stats, err := tagger.TagAll(ctx, testDataset.Data)
	if err != nil {
		return err
	}
	logger.Info("tagging done",
		zap.Int64("sentences", stats.Decoded),
		zap.Int("tokens", testDataset.NumTokens()))

	if evaluate {
		acc := crf.Evaluate(testDataset.Data)
		logger.Info("evaluation",
			zap.Int("correct", acc.Correct),
			zap.Int("total", acc.Total),
			zap.Float64("accuracy", acc.Value()))
	}

	if cfg.OutputFile == "" {
		return testDataset.Write(os.Stdout, cfg)
	}
	return testDataset.Store(cfg.OutputFile, cfg)
}

func runSplit(allFile, trainFile, devFile string, seed int64, devProp float64) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	all, err := dataset.Load(allFile, cfg)
	if err != nil {
		return err
	}
	train, dev, err := all.Split(rand.New(rand.NewSource(seed)), devProp)
	if err != nil {
		return err
	}
	if err := train.Store(trainFile, cfg); err != nil {
		return err
	}
	if err := dev.Store(devFile, cfg); err != nil {
		return err
	}
	logger.Info("split done",
		zap.Int("train", train.Len()),
		zap.Int("dev", dev.Len()),
		zap.Int64("seed", seed))
	return nil
}

func runImport(path string) error {
	cfg, model, err := loadModel()
	if err != nil {
		return err
	}
	if cfg.WeightsPath == "" {
		return errors.New("weights_path is not set")
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open weight file")
	}
	defer f.Close()

	if _, err := model.LoadWeights(f); err != nil {
		return errors.Wrapf(err, "import %s", path)
	}
	return model.SaveModel(cfg.WeightsPath)
}
