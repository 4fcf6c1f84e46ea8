package couchbase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/rs/zerolog/log"
)

// Config describes where the patient collections live.
type Config struct {
	URL      string
	Username string
	Password string
	Bucket   string
	Scope    string
}

// Connection represents the Couchbase connection
type Connection struct {
	cluster    *gocb.Cluster
	bucket     *gocb.Bucket
	bucketName string
	scopeName  string
}

// connectionString accepts bare hosts and http:// URLs as well as couchbase:// ones.
func connectionString(url string) string {
	switch {
	case strings.HasPrefix(url, "couchbase://"), strings.HasPrefix(url, "couchbases://"):
		return url
	case strings.HasPrefix(url, "http://"):
		return "couchbase://" + strings.TrimPrefix(url, "http://")
	case strings.HasPrefix(url, "https://"):
		return "couchbases://" + strings.TrimPrefix(url, "https://")
	default:
		return "couchbase://" + url
	}
}

// NewConnection creates a new Couchbase connection
func NewConnection(ctx context.Context, cfg Config) (*Connection, error) {
	connStr := connectionString(cfg.URL)
	scope := cfg.Scope
	if scope == "" {
		scope = "_default"
	}

	log.Info().
		Str("url", connStr).
		Str("bucket", cfg.Bucket).
		Str("scope", scope).
		Msg("Creating Couchbase connection")

	cluster, err := gocb.Connect(connStr, gocb.ClusterOptions{
		Authenticator: gocb.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		},
		TimeoutsConfig: gocb.TimeoutsConfig{
			ConnectTimeout:    60 * time.Second,
			KVTimeout:         5 * time.Second,
			QueryTimeout:      30 * time.Second,
			ManagementTimeout: 30 * time.Second,
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to Couchbase cluster")
		return nil, fmt.Errorf("connect cluster: %w", err)
	}

	bucket := cluster.Bucket(cfg.Bucket)
	err = bucket.WaitUntilReady(30*time.Second, &gocb.WaitUntilReadyOptions{
		Context:      ctx,
		ServiceTypes: []gocb.ServiceType{gocb.ServiceTypeKeyValue, gocb.ServiceTypeQuery},
	})
	if err != nil {
		cluster.Close(nil)
		log.Error().Err(err).Msg("Couchbase bucket not ready")
		return nil, fmt.Errorf("bucket not ready: %w", err)
	}

	log.Info().Msg("Couchbase connection created successfully")
	return &Connection{
		cluster:    cluster,
		bucket:     bucket,
		bucketName: cfg.Bucket,
		scopeName:  scope,
	}, nil
}

// Close closes the Couchbase connection
func (c *Connection) Close() error {
	if c.cluster != nil {
		return c.cluster.Close(nil)
	}
	return nil
}

// Collection returns a collection in the configured scope.
func (c *Connection) Collection(name string) *gocb.Collection {
	return c.bucket.Scope(c.scopeName).Collection(name)
}

// keyspace returns the fully qualified N1QL path of a collection.
func (c *Connection) keyspace(collection string) string {
	return fmt.Sprintf("`%s`.`%s`.`%s`", c.bucketName, c.scopeName, collection)
}
