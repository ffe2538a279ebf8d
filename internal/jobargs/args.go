package jobargs

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Keys every masking job run needs.
const (
	JobName        = "JOB_NAME"
	ConnectionName = "CONNECTION_NAME"
	DatabaseName   = "DATABASE_NAME"
	TableName      = "TABLE_NAME"
	OutputBucket   = "OUTPUT_BUCKET"
	OutputPath     = "OUTPUT_PATH"
)

// Optional keys.
const (
	BookmarkOption = "job-bookmark-option"
	BookmarkTable  = "BOOKMARK_TABLE"
	HashPartitions = "HASH_PARTITIONS" // read splits; at most etl.MaxParallelReads run at once
	CrawlerName    = "CRAWLER_NAME"
	NotifyTopicArn = "NOTIFY_TOPIC_ARN"
)

var Required = []string{JobName, ConnectionName, DatabaseName, TableName, OutputBucket, OutputPath}

var ErrMissingArgs = errors.New("missing required job arguments")

// Args holds resolved job arguments keyed without the leading "--".
type Args map[string]string

func (a Args) Get(key string) string {
	return strings.TrimSpace(a[key])
}

// Int returns def when key is unset. A set but unparsable value is an error.
func (a Args) Int(key string, def int) (int, error) {
	v := a.Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("argument %s: %w", key, err)
	}
	return n, nil
}

func (a Args) Missing(required []string) []string {
	var missing []string
	for _, k := range required {
		if a.Get(k) == "" {
			missing = append(missing, k)
		}
	}
	return missing
}

// Parse collects every "--KEY value" and "--KEY=value" pair from argv. A flag
// followed by another flag (or nothing) gets an empty value. Tokens that are
// not flags are skipped. Later occurrences win.
func Parse(argv []string) Args {
	out := Args{}
	for i := 0; i < len(argv); i++ {
		tok := argv[i]
		if !strings.HasPrefix(tok, "--") || len(tok) == 2 {
			continue
		}
		key := strings.TrimPrefix(tok, "--")
		if k, v, ok := strings.Cut(key, "="); ok {
			out[k] = v
			continue
		}
		if i+1 < len(argv) && !strings.HasPrefix(argv[i+1], "--") {
			out[key] = argv[i+1]
			i++
			continue
		}
		out[key] = ""
	}
	return out
}

// Resolve parses argv and fails when any required key is absent or empty.
func Resolve(argv []string, required []string) (Args, error) {
	return Check(Parse(argv), required)
}

func Check(a Args, required []string) (Args, error) {
	if missing := a.Missing(required); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingArgs, strings.Join(missing, ", "))
	}
	return a, nil
}

// FromEvent normalizes a Lambda event payload into Args.
func FromEvent(ev map[string]string) Args {
	out := make(Args, len(ev))
	for k, v := range ev {
		out[strings.TrimPrefix(k, "--")] = v
	}
	return out
}

// LoadDefaults reads a YAML mapping of default arguments, e.g.
//
//	--job-bookmark-option: job-bookmark-enable
//	--OUTPUT_PATH: mytable
func LoadDefaults(path string) (Args, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job defaults: %w", err)
	}
	var m map[string]string
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse job defaults %s: %w", path, err)
	}
	return FromEvent(m), nil
}

// Merge returns defaults overlaid with explicit values. An explicit key with
// no value (a bare "--KEY") does not clear a default.
func Merge(defaults, explicit Args) Args {
	out := make(Args, len(defaults)+len(explicit))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range explicit {
		if strings.TrimSpace(v) == "" && out.Get(k) != "" {
			continue
		}
		out[k] = v
	}
	return out
}
