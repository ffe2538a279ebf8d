package seed

import (
	"fmt"
	"regexp"
	"strings"

	"auroraetl/internal/db"
)

type Config struct {
	ClusterArn string
	SecretArn  string
	Database   string
	Table      string
}

// Names end up inside DDL text, so only bare identifiers are accepted.
var (
	databaseName = regexp.MustCompile(`^[A-Za-z0-9_$]+$`)
	tableName    = regexp.MustCompile(`^[A-Za-z0-9_$]+(\.[A-Za-z0-9_$]+)?$`)
)

// ConfigFromEnv reads CLUSTER_ARN, SECRET_ARN, DATABASE and TABLE.
// All four are required.
func ConfigFromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		ClusterArn: strings.TrimSpace(getenv(db.EnvClusterArn)),
		SecretArn:  strings.TrimSpace(getenv(db.EnvSecretArn)),
		Database:   strings.TrimSpace(getenv(db.EnvDatabase)),
		Table:      strings.TrimSpace(getenv(db.EnvTable)),
	}

	var missing []string
	if cfg.ClusterArn == "" {
		missing = append(missing, db.EnvClusterArn)
	}
	if cfg.SecretArn == "" {
		missing = append(missing, db.EnvSecretArn)
	}
	if cfg.Database == "" {
		missing = append(missing, db.EnvDatabase)
	}
	if cfg.Table == "" {
		missing = append(missing, db.EnvTable)
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing env %s", strings.Join(missing, ", "))
	}

	if !databaseName.MatchString(cfg.Database) {
		return Config{}, fmt.Errorf("invalid %s %q", db.EnvDatabase, cfg.Database)
	}
	if !tableName.MatchString(cfg.Table) {
		return Config{}, fmt.Errorf("invalid %s %q", db.EnvTable, cfg.Table)
	}
	return cfg, nil
}
