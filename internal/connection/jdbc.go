package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

type GlueClient interface {
	GetConnection(ctx context.Context, params *glue.GetConnectionInput, optFns ...func(*glue.Options)) (*glue.GetConnectionOutput, error)
}

type SecretsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Glue connection property keys.
const (
	propJDBCURL  = "JDBC_CONNECTION_URL"
	propUsername = "USERNAME"
	propPassword = "PASSWORD"
	propSecretID = "SECRET_ID"
)

// JDBCConf is what a job needs to reach the source database. URL has no
// database path; callers append the database they want.
type JDBCConf struct {
	URL      string
	User     string
	Password string
	Vendor   string
	Host     string
	Port     int
}

// WithDatabase returns "{url}/{database}".
func (c *JDBCConf) WithDatabase(database string) string {
	return fmt.Sprintf("%s/%s", c.URL, database)
}

// ExtractJDBCConf resolves a Glue connection by name. Credentials come from
// the USERNAME/PASSWORD properties, or from the Secrets Manager secret named
// by SECRET_ID when the connection uses one. secrets may be nil when no
// connection in use references a secret.
func ExtractJDBCConf(ctx context.Context, g GlueClient, secrets SecretsClient, name string) (*JDBCConf, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("missing glue connection name")
	}

	out, err := g.GetConnection(ctx, &glue.GetConnectionInput{
		Name:         aws.String(name),
		HidePassword: false,
	})
	if err != nil {
		return nil, fmt.Errorf("glue GetConnection %s: %w", name, err)
	}
	if out.Connection == nil {
		return nil, fmt.Errorf("glue connection %s not found", name)
	}
	props := out.Connection.ConnectionProperties

	raw := strings.TrimSpace(props[propJDBCURL])
	if raw == "" {
		return nil, fmt.Errorf("glue connection %s has no %s", name, propJDBCURL)
	}
	vendor, host, port, _, err := ParseJDBCURL(raw)
	if err != nil {
		return nil, fmt.Errorf("glue connection %s: %w", name, err)
	}

	conf := &JDBCConf{
		URL:      fmt.Sprintf("jdbc:%s://%s:%d", vendor, host, port),
		User:     props[propUsername],
		Password: props[propPassword],
		Vendor:   vendor,
		Host:     host,
		Port:     port,
	}

	if secretID := strings.TrimSpace(props[propSecretID]); secretID != "" && conf.User == "" {
		if secrets == nil {
			return nil, fmt.Errorf("glue connection %s uses secret %s but no secrets client is configured", name, secretID)
		}
		user, pass, err := credentialsFromSecret(ctx, secrets, secretID)
		if err != nil {
			return nil, err
		}
		conf.User, conf.Password = user, pass
	}

	if conf.User == "" {
		return nil, fmt.Errorf("glue connection %s has no credentials", name)
	}
	return conf, nil
}

type rdsSecret struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func credentialsFromSecret(ctx context.Context, c SecretsClient, secretID string) (string, string, error) {
	out, err := c.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", "", fmt.Errorf("secretsmanager GetSecretValue %s: %w", secretID, err)
	}
	var s rdsSecret
	if err := json.Unmarshal([]byte(aws.ToString(out.SecretString)), &s); err != nil {
		return "", "", fmt.Errorf("parse secret %s: %w", secretID, err)
	}
	if s.Username == "" {
		return "", "", fmt.Errorf("secret %s has no username", secretID)
	}
	return s.Username, s.Password, nil
}

var defaultPorts = map[string]int{
	"mysql":      3306,
	"postgresql": 5432,
}

// ParseJDBCURL splits jdbc:<vendor>://host[:port][/database][?params].
func ParseJDBCURL(raw string) (vendor, host string, port int, database string, err error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(raw), "jdbc:")
	if !ok {
		return "", "", 0, "", fmt.Errorf("not a jdbc url: %q", raw)
	}
	u, perr := url.Parse(rest)
	if perr != nil {
		return "", "", 0, "", fmt.Errorf("parse jdbc url: %w", perr)
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return "", "", 0, "", fmt.Errorf("jdbc url needs vendor and host: %q", raw)
	}

	vendor = strings.ToLower(u.Scheme)
	host = u.Hostname()
	port = defaultPorts[vendor]
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", "", 0, "", fmt.Errorf("jdbc url port: %w", err)
		}
	}
	if port == 0 {
		return "", "", 0, "", fmt.Errorf("jdbc url has no port and vendor %s has no default", vendor)
	}
	database = strings.Trim(u.Path, "/")
	return vendor, host, port, database, nil
}
