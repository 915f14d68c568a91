// Package main provides the Lambda handler entry point for adsbridge.
package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/peteski22/adsbridge/internal/app"
	"github.com/peteski22/adsbridge/internal/config"

	_ "time/tzdata"
)

// Response summarises a sync invocation.
type Response struct {
	Accounts int            `json:"accounts"`
	Records  map[string]int `json:"records"`
}

func main() {
	lambda.Start(handler)
}

func handler(ctx context.Context) (*Response, error) {
	settings, err := config.Load(config.NewViper(), "")
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := app.RequireOutputBucket(settings); err != nil {
		return nil, err
	}

	logger, err := app.NewLogger(app.LogFormatJSON, settings.LogLevel)
	if err != nil {
		return nil, err
	}
	defer func() { _ = logger.Sync() }()

	a, err := app.New(settings, logger, app.Options{})
	if err != nil {
		return nil, err
	}

	logger.Info("starting sync")
	result, err := a.Run(ctx)
	if err != nil {
		logger.Error("sync failed", zap.Error(err))
		return nil, err
	}

	return &Response{Accounts: result.Accounts, Records: result.Records}, nil
}
