package etl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/smithy-go"
)

type CrawlerClient interface {
	StartCrawler(ctx context.Context, params *glue.StartCrawlerInput, optFns ...func(*glue.Options)) (*glue.StartCrawlerOutput, error)
}

// CrawlerState is what StartOutputCrawler observed.
type CrawlerState string

const (
	CrawlerSkipped        CrawlerState = ""
	CrawlerStarted        CrawlerState = "STARTED"
	CrawlerAlreadyRunning CrawlerState = "RUNNING"
)

// StartOutputCrawler kicks off the Glue crawler that catalogs the masked
// output. A crawler that is already running picks the new objects up on its
// current pass, so that is not an error. No name means nothing to do.
func StartOutputCrawler(ctx context.Context, c CrawlerClient, name string) (CrawlerState, error) {
	name = strings.TrimSpace(name)
	if name == "" || c == nil {
		return CrawlerSkipped, nil
	}

	_, err := c.StartCrawler(ctx, &glue.StartCrawlerInput{Name: aws.String(name)})
	if err == nil {
		return CrawlerStarted, nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "CrawlerRunningException" {
		return CrawlerAlreadyRunning, nil
	}
	return CrawlerSkipped, fmt.Errorf("StartCrawler %s: %w", name, err)
}
