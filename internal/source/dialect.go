package source

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"auroraetl/internal/connection"
)

// Dialect covers the few places the supported engines disagree.
type Dialect struct {
	Vendor string
	Driver string
	quote  string
	dsn    func(conf *connection.JDBCConf, database string) string
	param  func(n int) string
}

var dialects = map[string]Dialect{
	"mysql": {
		Vendor: "mysql",
		Driver: "mysql",
		quote:  "`",
		dsn:    mysqlDSN,
		param:  func(int) string { return "?" },
	},
	"postgresql": {
		Vendor: "postgresql",
		Driver: "postgres",
		quote:  `"`,
		dsn:    postgresDSN,
		param:  func(n int) string { return "$" + strconv.Itoa(n) },
	},
}

func DialectFor(vendor string) (Dialect, error) {
	d, ok := dialects[strings.ToLower(vendor)]
	if !ok {
		return Dialect{}, fmt.Errorf("unsupported jdbc vendor %q", vendor)
	}
	return d, nil
}

// QuoteIdent quotes each dot separated part of a table or column name.
func (d Dialect) QuoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		p = strings.ReplaceAll(p, d.quote, d.quote+d.quote)
		parts[i] = d.quote + p + d.quote
	}
	return strings.Join(parts, ".")
}

func (d Dialect) DSN(conf *connection.JDBCConf, database string) string {
	return d.dsn(conf, database)
}

func mysqlDSN(conf *connection.JDBCConf, database string) string {
	cfg := mysql.NewConfig()
	cfg.User = conf.User
	cfg.Passwd = conf.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(conf.Host, strconv.Itoa(conf.Port))
	cfg.DBName = database
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

func postgresDSN(conf *connection.JDBCConf, database string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(conf.User, conf.Password),
		Host:   net.JoinHostPort(conf.Host, strconv.Itoa(conf.Port)),
		Path:   "/" + database,
	}
	return u.String()
}
