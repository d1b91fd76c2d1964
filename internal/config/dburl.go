package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ParseDatabaseURL maps a DATABASE_URL to a storage kind and driver DSN.
//
//	postgres://…, postgresql+x://…     → postgres, driver suffix dropped
//	sqlserver://…, mssql://…            → mssql, scheme sqlserver
//	mysql://u:p@host:port/db, mysql+x://… → mysql, go-sql-driver DSN
//	sqlite:///path, sqlite://path, file:… → sqlite, file path
func ParseDatabaseURL(raw string) (kind, dsn string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	scheme := strings.ToLower(u.Scheme)
	if i := strings.IndexByte(scheme, '+'); i >= 0 {
		scheme = scheme[:i]
	}
	switch scheme {
	case "postgres", "postgresql":
		u.Scheme = scheme
		return "postgres", u.String(), nil
	case "sqlserver", "mssql":
		u.Scheme = "sqlserver"
		return "mssql", u.String(), nil
	case "mysql", "mariadb":
		return "mysql", mysqlDSN(u), nil
	case "sqlite", "sqlite3":
		p := u.Host + u.Path
		if u.Host == "" {
			p = strings.TrimPrefix(u.Path, "/")
			if strings.HasPrefix(u.Path, "//") {
				p = "/" + strings.TrimLeft(u.Path, "/")
			}
		}
		if p == "" {
			return "", "", fmt.Errorf("sqlite url %q has no path", raw)
		}
		return "sqlite", p, nil
	case "file":
		return "sqlite", raw, nil
	default:
		return "", "", fmt.Errorf("unsupported database url scheme %q", u.Scheme)
	}
}

func mysqlDSN(u *url.URL) string {
	mc := mysql.NewConfig()
	mc.User = u.User.Username()
	mc.Passwd, _ = u.User.Password()
	mc.Net = "tcp"
	host := u.Host
	if host == "" {
		host = "localhost"
	}
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "3306")
	}
	mc.Addr = host
	mc.DBName = strings.TrimPrefix(u.Path, "/")
	for k, v := range u.Query() {
		if len(v) > 0 {
			if mc.Params == nil {
				mc.Params = map[string]string{}
			}
			mc.Params[k] = v[0]
		}
	}
	return mc.FormatDSN()
}
