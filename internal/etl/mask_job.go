package etl

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"auroraetl/internal/bookmark"
	"auroraetl/internal/connection"
	"auroraetl/internal/db"
	"auroraetl/internal/jobargs"
	"auroraetl/internal/mask"
	"auroraetl/internal/sink"
	"auroraetl/internal/source"
)

// MaxParallelReads caps how many hash partitions are read at once, and so
// how many connections a run holds against the source cluster. Partitions
// beyond the cap queue behind the running ones.
const MaxParallelReads = 8

// Source is the read side of a run. *source.Reader satisfies it.
type Source interface {
	Columns(ctx context.Context, table string) ([]source.Column, error)
	ReadPartition(ctx context.Context, table string, opts source.PartitionOptions, partition int) ([]mask.Record, error)
	Close() error
}

type OpenFunc func(ctx context.Context, conf *connection.JDBCConf, database string) (Source, error)

type GlueAPI interface {
	connection.GlueClient
	CrawlerClient
}

type Deps struct {
	Glue     GlueAPI
	Secrets  connection.SecretsClient
	S3       sink.S3Client
	DDB      bookmark.DDBClient
	SNS      Publisher
	Open     OpenFunc
	Log      *zap.Logger
	NewRunID func() string
}

// Options are the resolved job arguments.
type Options struct {
	JobName        string
	ConnectionName string
	Database       string
	Table          string
	OutputBucket   string
	OutputPath     string
	Bookmark       bookmark.Mode
	BookmarkTable  string
	Partitions     int
	CrawlerName    string
	NotifyTopicArn string
}

func OptionsFromArgs(a jobargs.Args) (Options, error) {
	if _, err := jobargs.Check(a, jobargs.Required); err != nil {
		return Options{}, err
	}
	mode, err := bookmark.ParseMode(a.Get(jobargs.BookmarkOption))
	if err != nil {
		return Options{}, err
	}
	parts, err := a.Int(jobargs.HashPartitions, source.DefaultHashPartitions)
	if err != nil {
		return Options{}, err
	}
	if parts <= 0 {
		return Options{}, fmt.Errorf("argument %s must be positive, got %d", jobargs.HashPartitions, parts)
	}

	o := Options{
		JobName:        a.Get(jobargs.JobName),
		ConnectionName: a.Get(jobargs.ConnectionName),
		Database:       a.Get(jobargs.DatabaseName),
		Table:          a.Get(jobargs.TableName),
		OutputBucket:   a.Get(jobargs.OutputBucket),
		OutputPath:     a.Get(jobargs.OutputPath),
		Bookmark:       mode,
		BookmarkTable:  a.Get(jobargs.BookmarkTable),
		Partitions:     parts,
		CrawlerName:    a.Get(jobargs.CrawlerName),
		NotifyTopicArn: a.Get(jobargs.NotifyTopicArn),
	}
	if o.Bookmark.Reads() && o.BookmarkTable == "" {
		return Options{}, fmt.Errorf("%s %s needs %s", jobargs.BookmarkOption, o.Bookmark, jobargs.BookmarkTable)
	}
	return o, nil
}

// Summary is returned to the caller (and the Lambda runtime) and published
// to SNS when a topic is configured.
type Summary struct {
	Ok           bool     `json:"ok"`
	JobName      string   `json:"job_name"`
	RunID        string   `json:"run_id"`
	Source       string   `json:"source"`
	Table        string   `json:"table"`
	Output       string   `json:"output"`
	Partitions   int      `json:"partitions"`
	Records      int      `json:"records"`
	Objects      []string `json:"objects,omitempty"`
	BookmarkMode string   `json:"bookmark_mode"`
	ReadAfter    *int64   `json:"read_after,omitempty"`
	Committed    *int64   `json:"committed,omitempty"`
	Crawler      string   `json:"crawler,omitempty"`
	MessageID    string   `json:"message_id,omitempty"`
	Duration     string   `json:"duration"`
}

// MaskJob reads a table through a Glue connection, masks the content column
// and writes Parquet to S3. A MaskJob runs once: Init, Run, Commit.
type MaskJob struct {
	deps Deps
	log  *zap.Logger

	opts  Options
	conf  *connection.JDBCConf
	store bookmark.Store
	after *int64
	runID string

	maxSeen *int64
	ran     bool
}

// NewMaskJob builds a job on real AWS clients.
func NewMaskJob(cfg aws.Config, log *zap.Logger) *MaskJob {
	return NewMaskJobWithDeps(Deps{
		Glue:    glue.NewFromConfig(cfg),
		Secrets: secretsmanager.NewFromConfig(cfg),
		S3:      s3.NewFromConfig(cfg),
		DDB:     db.NewDynamoClient(cfg),
		SNS:     sns.NewFromConfig(cfg),
		Open:    OpenSQL,
		Log:     log,
	})
}

func NewMaskJobWithDeps(d Deps) *MaskJob {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.NewRunID == nil {
		d.NewRunID = uuid.NewString
	}
	if d.Open == nil {
		d.Open = OpenSQL
	}
	return &MaskJob{deps: d, log: d.Log}
}

// OpenSQL opens the source with the database/sql driver for the vendor.
func OpenSQL(ctx context.Context, conf *connection.JDBCConf, database string) (Source, error) {
	r, err := source.Open(ctx, conf, database)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Init validates arguments, resolves the Glue connection and loads the
// bookmark for modes that read it.
func (j *MaskJob) Init(ctx context.Context, args jobargs.Args) error {
	opts, err := OptionsFromArgs(args)
	if err != nil {
		return err
	}
	j.opts = opts
	j.runID = j.deps.NewRunID()
	j.log = j.deps.Log.With(zap.String("job", opts.JobName), zap.String("run_id", j.runID))

	conf, err := connection.ExtractJDBCConf(ctx, j.deps.Glue, j.deps.Secrets, opts.ConnectionName)
	if err != nil {
		return fmt.Errorf("resolve connection: %w", err)
	}
	j.conf = conf

	if opts.Bookmark.Reads() {
		j.store = bookmark.NewDynamoStore(j.deps.DDB, opts.BookmarkTable)
		st, found, err := j.store.Get(ctx, bookmark.Key(opts.JobName, bookmark.TransformationContext))
		if err != nil {
			return err
		}
		if found && st.HashField == source.DefaultHashField {
			last := st.LastValue
			j.after = &last
		}
	}

	j.log.Info("job initialized",
		zap.String("connection", opts.ConnectionName),
		zap.String("source", conf.WithDatabase(opts.Database)),
		zap.String("table", opts.Table),
		zap.String("output", sink.OutputURI(opts.OutputBucket, opts.OutputPath)),
		zap.String("bookmark", string(opts.Bookmark)),
		zap.Int("partitions", opts.Partitions),
	)
	return nil
}

type partResult struct {
	records int
	key     string
	max     *int64
}

// Run reads every hash partition concurrently, masks it and uploads one
// Parquet object per non-empty partition. The first failure cancels the
// remaining partitions.
func (j *MaskJob) Run(ctx context.Context) (Summary, error) {
	if j.conf == nil {
		return Summary{}, fmt.Errorf("mask job: Run before Init")
	}
	if j.ran {
		return Summary{}, fmt.Errorf("mask job: already run")
	}
	j.ran = true
	start := time.Now()

	src, err := j.deps.Open(ctx, j.conf, j.opts.Database)
	if err != nil {
		return Summary{}, err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			j.log.Warn("close source", zap.Error(cerr))
		}
	}()

	cols, err := src.Columns(ctx, j.opts.Table)
	if err != nil {
		return Summary{}, err
	}
	w, err := sink.NewWriter(j.deps.S3, j.opts.OutputBucket, j.opts.OutputPath, j.runID, cols)
	if err != nil {
		return Summary{}, err
	}

	popts := source.PartitionOptions{
		HashField:  source.DefaultHashField,
		Partitions: j.opts.Partitions,
		After:      j.after,
	}
	results := make([]partResult, j.opts.Partitions)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(j.opts.Partitions, MaxParallelReads))
	for p := 0; p < j.opts.Partitions; p++ {
		g.Go(func() error {
			recs, err := src.ReadPartition(gctx, j.opts.Table, popts, p)
			if err != nil {
				return err
			}
			masked, err := mask.MaskAll(recs)
			if err != nil {
				return fmt.Errorf("partition %d: %w", p, err)
			}
			key, err := w.WritePart(gctx, p, masked)
			if err != nil {
				return err
			}
			m, err := maxHashValue(recs, popts.HashField)
			if err != nil {
				return fmt.Errorf("partition %d: %w", p, err)
			}
			results[p] = partResult{records: len(masked), key: key, max: m}
			j.log.Debug("partition written", zap.Int("partition", p), zap.Int("records", len(masked)), zap.String("key", key))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		j.log.Error("job failed", zap.Error(err))
		return Summary{}, err
	}

	s := Summary{
		Ok:           true,
		JobName:      j.opts.JobName,
		RunID:        j.runID,
		Source:       j.conf.WithDatabase(j.opts.Database),
		Table:        j.opts.Table,
		Output:       w.URI(),
		Partitions:   j.opts.Partitions,
		BookmarkMode: string(j.opts.Bookmark),
		ReadAfter:    j.after,
	}
	for _, r := range results {
		s.Records += r.records
		if r.key != "" {
			s.Objects = append(s.Objects, r.key)
		}
		if r.max != nil && (j.maxSeen == nil || *r.max > *j.maxSeen) {
			v := *r.max
			j.maxSeen = &v
		}
	}
	s.Duration = time.Since(start).Round(time.Millisecond).String()

	j.log.Info("job run complete",
		zap.Int("records", s.Records),
		zap.Int("objects", len(s.Objects)),
		zap.String("duration", s.Duration),
	)
	return s, nil
}

// Commit advances the bookmark to the largest id this run read. Only enable
// mode commits, and a run that read nothing leaves the bookmark unchanged.
// Returns the committed value, or nil when nothing was written.
func (j *MaskJob) Commit(ctx context.Context) (*int64, error) {
	if !j.ran {
		return nil, fmt.Errorf("mask job: Commit before Run")
	}
	if !j.opts.Bookmark.Commits() || j.maxSeen == nil {
		return nil, nil
	}
	if j.after != nil && *j.maxSeen <= *j.after {
		return nil, nil
	}

	err := j.store.Put(ctx, bookmark.State{
		JobName:   j.opts.JobName,
		Context:   bookmark.TransformationContext,
		HashField: source.DefaultHashField,
		LastValue: *j.maxSeen,
		RunID:     j.runID,
	})
	if err != nil {
		return nil, err
	}
	j.log.Info("bookmark committed", zap.Int64("last_value", *j.maxSeen))
	v := *j.maxSeen
	return &v, nil
}

// Execute is a full run: Init, Run, Commit, then the optional crawler start
// and SNS summary.
func (j *MaskJob) Execute(ctx context.Context, args jobargs.Args) (Summary, error) {
	if err := j.Init(ctx, args); err != nil {
		return Summary{}, err
	}
	s, err := j.Run(ctx)
	if err != nil {
		return Summary{}, err
	}
	if s.Committed, err = j.Commit(ctx); err != nil {
		return Summary{}, err
	}

	state, err := StartOutputCrawler(ctx, j.deps.Glue, j.opts.CrawlerName)
	if err != nil {
		return Summary{}, err
	}
	s.Crawler = string(state)

	if s.MessageID, err = NotifySummary(ctx, j.deps.SNS, j.opts.NotifyTopicArn, s); err != nil {
		return Summary{}, err
	}
	return s, nil
}

// Handle runs the job from a Lambda event whose keys are job arguments.
func (j *MaskJob) Handle(ctx context.Context, ev map[string]string) (Summary, error) {
	return j.Execute(ctx, jobargs.FromEvent(ev))
}

func maxHashValue(recs []mask.Record, field string) (*int64, error) {
	var out *int64
	for _, r := range recs {
		v, ok := r[field]
		if !ok || v == nil {
			continue
		}
		n, err := toInt64(v)
		if err != nil {
			return nil, fmt.Errorf("hash field %s: %w", field, err)
		}
		if out == nil || n > *out {
			out = &n
		}
	}
	return out, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", n)
		}
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
}
