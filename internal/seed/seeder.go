package seed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rdsdata"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rdsdata/types"
	"go.uber.org/zap"

	"auroraetl/internal/randstr"
)

const (
	RowCount      = 1000
	ContentLength = 16
)

type DataAPI interface {
	ExecuteStatement(ctx context.Context, params *rdsdata.ExecuteStatementInput, optFns ...func(*rdsdata.Options)) (*rdsdata.ExecuteStatementOutput, error)
	BatchExecuteStatement(ctx context.Context, params *rdsdata.BatchExecuteStatementInput, optFns ...func(*rdsdata.Options)) (*rdsdata.BatchExecuteStatementOutput, error)
}

type Step int

const (
	StepCreateDatabase Step = iota
	StepCreateTable
	StepBatchInsert
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepCreateDatabase:
		return "CREATE_DATABASE"
	case StepCreateTable:
		return "CREATE_TABLE"
	case StepBatchInsert:
		return "BATCH_INSERT"
	case StepDone:
		return "DONE"
	default:
		return fmt.Sprintf("Step(%d)", int(s))
	}
}

func CreateDatabaseSQL(database string) string {
	return fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database)
}

func CreateTableSQL(table string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s("+
		"id INT NOT NULL AUTO_INCREMENT, "+
		"content TEXT NOT NULL, "+
		"created_at DATETIME DEFAULT CURRENT_TIMESTAMP, "+
		"PRIMARY KEY (id))", table)
}

func InsertSQL(table string) string {
	return fmt.Sprintf("INSERT INTO %s(content) VALUES(:content)", table)
}

// StepResult summarizes one Data API response.
type StepResult struct {
	Step           Step
	RecordsUpdated int64
	UpdateResults  int // batch insert only
}

type Result struct {
	Steps         []StepResult
	RowsSubmitted int
}

type Seeder struct {
	api        DataAPI
	cfg        Config
	log        *zap.Logger
	newContent func() string
}

func New(api DataAPI, cfg Config, log *zap.Logger) *Seeder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Seeder{
		api: api,
		cfg: cfg,
		log: log,
		newContent: func() string {
			return randstr.String(ContentLength)
		},
	}
}

// Run walks CREATE_DATABASE -> CREATE_TABLE -> BATCH_INSERT. Each step has to
// succeed before the next one starts. A step's error is returned as the Data
// API produced it; the failing step is only logged. Nothing is retried or rolled back; both
// DDL statements are IF NOT EXISTS so a rerun after a partial failure is safe.
func (s *Seeder) Run(ctx context.Context) (Result, error) {
	var res Result

	for step := StepCreateDatabase; step < StepDone; step++ {
		sr, err := s.runStep(ctx, step)
		if err != nil {
			s.log.Error("seed step failed", zap.Stringer("step", step), zap.Error(err))
			return res, err
		}
		s.log.Info("seed step done",
			zap.Stringer("step", step),
			zap.Int64("records_updated", sr.RecordsUpdated),
			zap.Int("update_results", sr.UpdateResults),
		)
		res.Steps = append(res.Steps, sr)
		if step == StepBatchInsert {
			res.RowsSubmitted = RowCount
		}
	}
	return res, nil
}

func (s *Seeder) runStep(ctx context.Context, step Step) (StepResult, error) {
	sr := StepResult{Step: step}

	switch step {
	case StepCreateDatabase, StepCreateTable:
		sql := CreateDatabaseSQL(s.cfg.Database)
		if step == StepCreateTable {
			sql = CreateTableSQL(s.cfg.Table)
		}
		out, err := s.api.ExecuteStatement(ctx, &rdsdata.ExecuteStatementInput{
			ResourceArn: aws.String(s.cfg.ClusterArn),
			SecretArn:   aws.String(s.cfg.SecretArn),
			Database:    aws.String(s.cfg.Database),
			Sql:         aws.String(sql),
		})
		if err != nil {
			return sr, err
		}
		sr.RecordsUpdated = out.NumberOfRecordsUpdated
		return sr, nil

	case StepBatchInsert:
		out, err := s.api.BatchExecuteStatement(ctx, &rdsdata.BatchExecuteStatementInput{
			ResourceArn:   aws.String(s.cfg.ClusterArn),
			SecretArn:     aws.String(s.cfg.SecretArn),
			Database:      aws.String(s.cfg.Database),
			Sql:           aws.String(InsertSQL(s.cfg.Table)),
			ParameterSets: s.parameterSets(RowCount),
		})
		if err != nil {
			return sr, err
		}
		sr.UpdateResults = len(out.UpdateResults)
		sr.RecordsUpdated = int64(len(out.UpdateResults))
		return sr, nil
	}
	return sr, fmt.Errorf("unknown step %d", int(step))
}

func (s *Seeder) parameterSets(n int) [][]rdstypes.SqlParameter {
	sets := make([][]rdstypes.SqlParameter, 0, n)
	for i := 0; i < n; i++ {
		sets = append(sets, []rdstypes.SqlParameter{{
			Name:  aws.String("content"),
			Value: &rdstypes.FieldMemberStringValue{Value: s.newContent()},
		}})
	}
	return sets
}

// Handler is the Lambda entry. Config is read on every invocation.
type Handler struct {
	API    DataAPI
	Log    *zap.Logger
	Getenv func(string) string
}

func (h *Handler) Handle(ctx context.Context, _ json.RawMessage) error {
	log := h.Log
	if log == nil {
		log = zap.NewNop()
	}
	cfg, err := ConfigFromEnv(h.Getenv)
	if err != nil {
		return err
	}
	res, err := New(h.API, cfg, log).Run(ctx)
	if err != nil {
		return err
	}
	log.Info("demo data seeded",
		zap.String("database", cfg.Database),
		zap.String("table", cfg.Table),
		zap.Int("rows", res.RowsSubmitted),
	)
	return nil
}
