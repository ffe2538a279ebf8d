package etl

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

type Publisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// NotifySummary publishes the run summary as JSON to topicArn.
// Returns the SNS message id, or "" when no topic is configured.
func NotifySummary(ctx context.Context, p Publisher, topicArn string, s Summary) (string, error) {
	topicArn = strings.TrimSpace(topicArn)
	if topicArn == "" || p == nil {
		return "", nil
	}

	body, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}

	// SNS subjects are capped at 100 chars
	subject := fmt.Sprintf("%s: masked %d records", s.JobName, s.Records)
	if len(subject) > 100 {
		subject = subject[:100]
	}

	out, err := p.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(topicArn),
		Subject:  aws.String(subject),
		Message:  aws.String(string(body)),
	})
	if err != nil {
		return "", fmt.Errorf("sns publish %s: %w", topicArn, err)
	}
	return aws.ToString(out.MessageId), nil
}
