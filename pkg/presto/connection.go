package presto

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/prestodb/presto-go-client/presto"
	log "github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/wait"
)

// ConnString builds a presto-go-client DSN.
func ConnString(host, user, catalog, schema string, useTLS bool) string {
	scheme := "http"
	if useTLS {
		scheme = "https"
	}
	u := url.URL{
		Scheme: scheme,
		User:   url.User(user),
		Host:   host,
	}
	q := url.Values{}
	q.Set("catalog", catalog)
	q.Set("schema", schema)
	u.RawQuery = q.Encode()
	return u.String()
}

func NewPrestoConnWithRetry(ctx context.Context, logger log.FieldLogger, connStr string, connBackoff time.Duration, maxRetries int) (*sql.DB, error) {
	var db *sql.DB
	backoff := wait.Backoff{
		Duration: connBackoff,
		Factor:   1.25,
		Steps:    maxRetries,
	}
	cond := func() (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		var err error
		db, err = sql.Open("presto", connStr)
		if err == nil {
			err = db.PingContext(ctx)
			if err == nil {
				return true, nil
			}
			db.Close()
		}
		logger.WithError(err).Debugf("error encountered, backing off and trying again: %v", err)
		return false, nil
	}
	err := wait.ExponentialBackoff(backoff, cond)
	if err != nil {
		if err == wait.ErrWaitTimeout {
			return nil, fmt.Errorf("timed out while waiting to connect to presto")
		}
		return nil, err
	}

	return db, nil
}
