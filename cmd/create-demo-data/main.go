package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"auroraetl/internal/db"
	"auroraetl/internal/logging"
	"auroraetl/internal/seed"
)

func main() {
	ctx := context.Background()

	logger, err := logging.New()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := db.LoadAWSConfig(ctx)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}

	h := &seed.Handler{
		API:    db.NewRDSDataClient(cfg),
		Log:    logger.Named("create-demo-data"),
		Getenv: os.Getenv,
	}
	lambda.Start(h.Handle)
}
