package config

import (
	"fmt"
	"net/url"
)

func buildMySQLDSN(db DatabaseRuntimeConfig) string {
	if db.DSN != "" {
		return db.DSN
	}
	loc := db.Loc
	if loc == "" {
		loc = defaultDBLoc
	}
	charset := db.Charset
	if charset == "" {
		charset = defaultDBCharset
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=%s",
		db.User, db.Password, db.Host, db.Port, db.Name, charset, url.QueryEscape(loc))
}

func buildRedisURL(r RedisRuntimeConfig) string {
	if r.URL != "" {
		return r.URL
	}
	auth := ""
	switch {
	case r.Username != "" && r.Password != "":
		auth = fmt.Sprintf("%s:%s@", url.QueryEscape(r.Username), url.QueryEscape(r.Password))
	case r.Password != "":
		auth = fmt.Sprintf(":%s@", url.QueryEscape(r.Password))
	}
	return fmt.Sprintf("redis://%s%s:%d/%d", auth, r.Host, r.Port, r.DB)
}
