package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"auroraetl/internal/db"
	"auroraetl/internal/etl"
	"auroraetl/internal/jobargs"
	"auroraetl/internal/logging"
)

// configArg names a YAML file of default job arguments.
const configArg = "config"

func main() {
	lambdaMode := strings.TrimSpace(os.Getenv("AWS_LAMBDA_FUNCTION_NAME")) != ""
	if !lambdaMode {
		// .env is optional for local runs
		_ = godotenv.Load()
	}

	logger, err := logging.New()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.Named("mask-job")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := db.LoadAWSConfig(ctx)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}

	if lambdaMode {
		// a MaskJob runs once, so each invocation gets its own
		lambda.Start(func(ctx context.Context, ev map[string]string) (etl.Summary, error) {
			return etl.NewMaskJob(cfg, logger).Handle(ctx, ev)
		})
		return
	}

	execute := func(ctx context.Context, args jobargs.Args) (etl.Summary, error) {
		return etl.NewMaskJob(cfg, logger).Execute(ctx, args)
	}
	if err := runCLI(ctx, os.Args[1:], execute, os.Stdout); err != nil {
		logger.Error("mask job failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

type executeFunc func(ctx context.Context, args jobargs.Args) (etl.Summary, error)

// runCLI resolves argv (plus --config defaults) and prints the run summary.
func runCLI(ctx context.Context, argv []string, execute executeFunc, out io.Writer) error {
	args := jobargs.Parse(argv)
	if path := args.Get(configArg); path != "" {
		defaults, err := jobargs.LoadDefaults(path)
		if err != nil {
			return err
		}
		args = jobargs.Merge(defaults, args)
	}

	s, err := execute(ctx, args)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
