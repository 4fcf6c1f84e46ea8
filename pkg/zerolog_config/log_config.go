package zerolog_config

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.elastic.co/ecszerolog"
)

var appPrefix string
var setAppPrefixOnce *sync.Once = &sync.Once{}
var startupLoggerOnce *sync.Once = &sync.Once{}

// ElasticsearchWriter sends logs directly to Elasticsearch
type ElasticsearchWriter struct {
	URL    string
	Client *http.Client
}

func (ew ElasticsearchWriter) Write(p []byte) (n int, err error) {
	client := ew.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	resp, err := client.Post(documentURL(ew.URL), "application/json", bytes.NewReader(p))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("elasticsearch returned %d", resp.StatusCode)
	}

	return len(p), nil
}

// documentURL returns the index API endpoint for an index URL.
func documentURL(indexURL string) string {
	return strings.TrimRight(indexURL, "/") + "/_doc"
}

// newLogger builds the application logger. Without an Elasticsearch URL it
// writes to the console only.
func newLogger(elasticsearchURL, index string, console io.Writer) zerolog.Logger {
	consoleWriter := zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}

	if elasticsearchURL == "" {
		return zerolog.New(consoleWriter).With().Str("app", appPrefix).
			Timestamp().Logger()
	}

	// ECS format for Elasticsearch
	ecsLogger := ecszerolog.New(&ElasticsearchWriter{
		URL: strings.TrimRight(elasticsearchURL, "/") + "/" + index,
	})

	multi := zerolog.MultiLevelWriter(
		ecsLogger,
		consoleWriter,
	)

	return zerolog.New(multi).With().Str("app", appPrefix).
		Timestamp().Logger()
}

// SetAppPrefix sets the app prefix
func SetAppPrefix(app string) {
	setAppPrefixOnce.Do(func() {
		appPrefix = app
	})
}

// StartupWithEnv sets up the global logger, shipping to the given
// Elasticsearch index when elasticsearchURL is set.
// Run SetAppPrefix before StartupWithEnv.
func StartupWithEnv(elasticsearchURL, index, level string) error {
	if index == "" {
		return fmt.Errorf("index is required")
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	startupLoggerOnce.Do(func() {
		zerolog.SetGlobalLevel(lvl)
		log.Logger = newLogger(elasticsearchURL, index, os.Stdout)
	})
	return nil
}
