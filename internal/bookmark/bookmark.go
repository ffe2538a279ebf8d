package bookmark

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// TransformationContext names the bookmarked read. Changing it starts the
// job over from an empty bookmark.
const TransformationContext = "bookmark"

type Mode string

const (
	ModeEnable  Mode = "job-bookmark-enable"
	ModeDisable Mode = "job-bookmark-disable"
	ModePause   Mode = "job-bookmark-pause"
)

// ParseMode maps the job-bookmark-option argument; empty means disabled.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.TrimSpace(s)); m {
	case "":
		return ModeDisable, nil
	case ModeEnable, ModeDisable, ModePause:
		return m, nil
	default:
		return "", fmt.Errorf("invalid job-bookmark-option %q", s)
	}
}

// Reads reports whether the mode filters the source by a stored bookmark.
func (m Mode) Reads() bool { return m == ModeEnable || m == ModePause }

// Commits reports whether a successful run advances the bookmark.
func (m Mode) Commits() bool { return m == ModeEnable }

type State struct {
	PK        string `dynamodbav:"PK"`
	JobName   string `dynamodbav:"JobName"`
	Context   string `dynamodbav:"Context"`
	HashField string `dynamodbav:"HashField"`
	LastValue int64  `dynamodbav:"LastValue"`
	RunID     string `dynamodbav:"RunId"`
	UpdatedAt string `dynamodbav:"UpdatedAt"`
}

func Key(jobName, transformationCtx string) string {
	return fmt.Sprintf("JOB#%s#CTX#%s", jobName, transformationCtx)
}

type Store interface {
	Get(ctx context.Context, key string) (State, bool, error)
	Put(ctx context.Context, st State) error
}

type DDBClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoStore keeps one item per (job, transformation context) keyed by PK.
type DynamoStore struct {
	ddb   DDBClient
	table string
	now   func() time.Time
}

func NewDynamoStore(ddb DDBClient, table string) *DynamoStore {
	return &DynamoStore{ddb: ddb, table: table, now: time.Now}
}

func (s *DynamoStore) Get(ctx context.Context, key string) (State, bool, error) {
	out, err := s.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: key},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return State{}, false, fmt.Errorf("bookmark GetItem %s: %w", key, err)
	}
	if len(out.Item) == 0 {
		return State{}, false, nil
	}

	var st State
	if err := attributevalue.UnmarshalMap(out.Item, &st); err != nil {
		return State{}, false, fmt.Errorf("bookmark unmarshal %s: %w", key, err)
	}
	return st, true, nil
}

func (s *DynamoStore) Put(ctx context.Context, st State) error {
	if st.PK == "" {
		st.PK = Key(st.JobName, st.Context)
	}
	if st.UpdatedAt == "" {
		st.UpdatedAt = s.now().UTC().Format(time.RFC3339)
	}

	item, err := attributevalue.MarshalMap(st)
	if err != nil {
		return fmt.Errorf("bookmark marshal %s: %w", st.PK, err)
	}
	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("bookmark PutItem %s: %w", st.PK, err)
	}
	return nil
}
