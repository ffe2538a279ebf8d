package etl

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartOutputCrawler(t *testing.T) {
	ctx := context.Background()

	state, err := StartOutputCrawler(ctx, nil, "crawler")
	require.NoError(t, err)
	assert.Equal(t, CrawlerSkipped, state)

	g := &fakeGlue{}
	state, err = StartOutputCrawler(ctx, g, "  ")
	require.NoError(t, err)
	assert.Equal(t, CrawlerSkipped, state)
	assert.Empty(t, g.crawled)

	state, err = StartOutputCrawler(ctx, g, "masked")
	require.NoError(t, err)
	assert.Equal(t, CrawlerStarted, state)
	assert.Equal(t, []string{"masked"}, g.crawled)

	g.crawlErr = &smithy.GenericAPIError{Code: "EntityNotFoundException", Message: "no crawler"}
	_, err = StartOutputCrawler(ctx, g, "missing")
	var apiErr smithy.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "EntityNotFoundException", apiErr.ErrorCode())
	assert.Contains(t, err.Error(), "StartCrawler missing")
}

func TestNotifySummary(t *testing.T) {
	ctx := context.Background()
	p := &fakeSNS{}

	id, err := NotifySummary(ctx, p, "", Summary{})
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Empty(t, p.published)

	id, err = NotifySummary(ctx, p, "arn:aws:sns:us-east-1:123456789012:etl", Summary{
		Ok:      true,
		JobName: "AwsGlueEtlSampleCdk",
		Records: 1000,
		Output:  "s3://masked-bucket/mytable/",
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)

	require.Len(t, p.published, 1)
	in := p.published[0]
	assert.Equal(t, "AwsGlueEtlSampleCdk: masked 1000 records", aws.ToString(in.Subject))
	assert.Contains(t, aws.ToString(in.Message), `"output":"s3://masked-bucket/mytable/"`)

	_, err = NotifySummary(ctx, p, "arn", Summary{JobName: strings.Repeat("j", 200)})
	require.NoError(t, err)
	assert.Len(t, aws.ToString(p.published[1].Subject), 100)
}
