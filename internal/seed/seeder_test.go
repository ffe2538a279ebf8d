package seed

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rdsdata"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rdsdata/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeDataAPI behaves like a tiny MySQL: DDL without IF NOT EXISTS fails on
// an existing object, inserts append rows.
type fakeDataAPI struct {
	calls     []string
	inputs    []*rdsdata.ExecuteStatementInput
	batch     *rdsdata.BatchExecuteStatementInput
	databases map[string]bool
	tables    map[string]bool
	rows      []string
	failOn    string
	failErr   error
}

func newFakeDataAPI() *fakeDataAPI {
	return &fakeDataAPI{databases: map[string]bool{}, tables: map[string]bool{}}
}

var ddlTarget = regexp.MustCompile(`^CREATE (DATABASE|TABLE) (IF NOT EXISTS )?([A-Za-z0-9_$.]+)`)

func (f *fakeDataAPI) ExecuteStatement(_ context.Context, in *rdsdata.ExecuteStatementInput, _ ...func(*rdsdata.Options)) (*rdsdata.ExecuteStatementOutput, error) {
	sql := aws.ToString(in.Sql)
	f.calls = append(f.calls, sql)
	f.inputs = append(f.inputs, in)
	if f.failOn != "" && strings.HasPrefix(sql, f.failOn) {
		return nil, f.failErr
	}

	m := ddlTarget.FindStringSubmatch(sql)
	if m == nil {
		return nil, errors.New("unsupported statement")
	}
	objects := f.databases
	if m[1] == "TABLE" {
		objects = f.tables
	}
	if objects[m[3]] && m[2] == "" {
		return nil, errors.New(strings.ToLower(m[1]) + " already exists")
	}
	objects[m[3]] = true
	return &rdsdata.ExecuteStatementOutput{}, nil
}

func (f *fakeDataAPI) BatchExecuteStatement(_ context.Context, in *rdsdata.BatchExecuteStatementInput, _ ...func(*rdsdata.Options)) (*rdsdata.BatchExecuteStatementOutput, error) {
	sql := aws.ToString(in.Sql)
	f.calls = append(f.calls, sql)
	f.batch = in
	if f.failOn != "" && strings.HasPrefix(sql, f.failOn) {
		return nil, f.failErr
	}

	out := &rdsdata.BatchExecuteStatementOutput{}
	for _, set := range in.ParameterSets {
		v, ok := set[0].Value.(*rdstypes.FieldMemberStringValue)
		if !ok {
			return nil, errors.New("content must be a string")
		}
		f.rows = append(f.rows, v.Value)
		out.UpdateResults = append(out.UpdateResults, rdstypes.UpdateResult{})
	}
	return out, nil
}

func testConfig() Config {
	return Config{
		ClusterArn: "arn:aws:rds:us-east-1:123456789012:cluster:demo",
		SecretArn:  "arn:aws:secretsmanager:us-east-1:123456789012:secret:demo",
		Database:   "mydatabase",
		Table:      "mytable",
	}
}

func TestSeeder_Run(t *testing.T) {
	api := newFakeDataAPI()
	cfg := testConfig()

	res, err := New(api, cfg, nil).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, []string{
		"CREATE DATABASE IF NOT EXISTS mydatabase",
		"CREATE TABLE IF NOT EXISTS mytable(id INT NOT NULL AUTO_INCREMENT, content TEXT NOT NULL, created_at DATETIME DEFAULT CURRENT_TIMESTAMP, PRIMARY KEY (id))",
		"INSERT INTO mytable(content) VALUES(:content)",
	}, api.calls)

	for _, in := range api.inputs {
		assert.Equal(t, cfg.ClusterArn, aws.ToString(in.ResourceArn))
		assert.Equal(t, cfg.SecretArn, aws.ToString(in.SecretArn))
		assert.Equal(t, cfg.Database, aws.ToString(in.Database))
	}
	assert.Equal(t, cfg.Database, aws.ToString(api.batch.Database))

	require.Len(t, api.batch.ParameterSets, RowCount)
	for _, set := range api.batch.ParameterSets {
		require.Len(t, set, 1)
		assert.Equal(t, "content", aws.ToString(set[0].Name))
	}

	require.Len(t, api.rows, 1000)
	alnum := regexp.MustCompile(`^[A-Za-z0-9]{16}$`)
	for _, c := range api.rows {
		assert.Regexp(t, alnum, c)
	}

	assert.Equal(t, 1000, res.RowsSubmitted)
	require.Len(t, res.Steps, 3)
	assert.Equal(t, StepBatchInsert, res.Steps[2].Step)
	assert.Equal(t, 1000, res.Steps[2].UpdateResults)
}

func TestSeeder_RunTwice(t *testing.T) {
	api := newFakeDataAPI()
	s := New(api, testConfig(), nil)

	_, err := s.Run(context.Background())
	require.NoError(t, err)
	before := len(api.rows)

	_, err = s.Run(context.Background())
	require.NoError(t, err, "rerun must not fail on existing database or table")

	assert.Equal(t, 1000, len(api.rows)-before)
}

func TestSeeder_StopsAtFailedStep(t *testing.T) {
	boom := errors.New("access denied")
	api := newFakeDataAPI()
	api.failOn = "CREATE TABLE"
	api.failErr = boom

	res, err := New(api, testConfig(), nil).Run(context.Background())
	require.Error(t, err)
	assert.Same(t, boom, err)

	assert.Len(t, api.calls, 2)
	assert.Nil(t, api.batch)
	assert.Len(t, res.Steps, 1)
	assert.True(t, api.databases["mydatabase"], "first step is not rolled back")
}

func TestSeeder_BatchInsertFailure(t *testing.T) {
	boom := errors.New("statement timeout")
	api := newFakeDataAPI()
	api.failOn = "INSERT"
	api.failErr = boom

	_, err := New(api, testConfig(), nil).Run(context.Background())
	assert.Equal(t, boom, err)
	assert.Empty(t, api.rows)
}

func TestStep_String(t *testing.T) {
	assert.Equal(t, "CREATE_DATABASE", StepCreateDatabase.String())
	assert.Equal(t, "CREATE_TABLE", StepCreateTable.String())
	assert.Equal(t, "BATCH_INSERT", StepBatchInsert.String())
	assert.Equal(t, "DONE", StepDone.String())
	assert.Equal(t, "Step(9)", Step(9).String())
}

func TestConfigFromEnv(t *testing.T) {
	env := map[string]string{
		"CLUSTER_ARN": " arn:cluster ",
		"SECRET_ARN":  "arn:secret",
		"DATABASE":    "mydatabase",
		"TABLE":       "mytable",
	}

	cfg, err := ConfigFromEnv(func(k string) string { return env[k] })
	require.NoError(t, err)
	assert.Equal(t, Config{
		ClusterArn: "arn:cluster",
		SecretArn:  "arn:secret",
		Database:   "mydatabase",
		Table:      "mytable",
	}, cfg)
}

func TestConfigFromEnv_Missing(t *testing.T) {
	_, err := ConfigFromEnv(func(k string) string {
		if k == "DATABASE" {
			return "mydatabase"
		}
		return ""
	})
	require.Error(t, err)
	assert.Equal(t, "missing env CLUSTER_ARN, SECRET_ARN, TABLE", err.Error())
}

func TestConfigFromEnv_InvalidNames(t *testing.T) {
	tests := []struct {
		name     string
		database string
		table    string
		ok       bool
	}{
		{name: "qualified table", database: "db1", table: "db1.events", ok: true},
		{name: "injection in table", database: "db1", table: "t; DROP TABLE x", ok: false},
		{name: "space in database", database: "my db", table: "t", ok: false},
		{name: "too many dots", database: "db1", table: "a.b.c", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := map[string]string{
				"CLUSTER_ARN": "c", "SECRET_ARN": "s",
				"DATABASE": tt.database, "TABLE": tt.table,
			}
			_, err := ConfigFromEnv(func(k string) string { return env[k] })
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestHandler_Handle(t *testing.T) {
	api := newFakeDataAPI()
	env := map[string]string{
		"CLUSTER_ARN": "c", "SECRET_ARN": "s", "DATABASE": "d", "TABLE": "t",
	}
	h := &Handler{API: api, Log: zap.NewNop(), Getenv: func(k string) string { return env[k] }}

	require.NoError(t, h.Handle(context.Background(), json.RawMessage(`{}`)))
	assert.Len(t, api.rows, 1000)

	delete(env, "TABLE")
	err := h.Handle(context.Background(), nil)
	assert.EqualError(t, err, "missing env TABLE")
}

// dataAPIError stands in for a typed SDK error; the Lambda runtime reports
// the concrete type of whatever Handle returns.
type dataAPIError struct{ msg string }

func (e *dataAPIError) Error() string { return e.msg }

func TestHandler_Handle_ReturnsStepErrorUnchanged(t *testing.T) {
	boom := &dataAPIError{msg: "BadRequestException: Access denied for user"}
	api := newFakeDataAPI()
	api.failOn = "CREATE TABLE"
	api.failErr = boom
	env := map[string]string{
		"CLUSTER_ARN": "c", "SECRET_ARN": "s", "DATABASE": "d", "TABLE": "t",
	}
	h := &Handler{API: api, Log: zap.NewNop(), Getenv: func(k string) string { return env[k] }}

	err := h.Handle(context.Background(), nil)
	require.Error(t, err)
	assert.Same(t, boom, err)
	assert.Equal(t, "BadRequestException: Access denied for user", err.Error())
}

func TestHandler_Handle_NilLogger(t *testing.T) {
	api := newFakeDataAPI()
	env := map[string]string{
		"CLUSTER_ARN": "c", "SECRET_ARN": "s", "DATABASE": "d", "TABLE": "t",
	}
	h := &Handler{API: api, Getenv: func(k string) string { return env[k] }}

	assert.NotPanics(t, func() {
		assert.NoError(t, h.Handle(context.Background(), nil))
	})
	assert.Len(t, api.rows, 1000)
}
