package zerolog_config

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentURL(t *testing.T) {
	assert.Equal(t, "http://es:9200/logs/_doc", documentURL("http://es:9200/logs"))
	assert.Equal(t, "http://es:9200/logs/_doc", documentURL("http://es:9200/logs/"))
}

func TestElasticsearchWriter(t *testing.T) {
	var (
		mu   sync.Mutex
		got  []byte
		path string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		path = r.URL.Path
		got, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	w := ElasticsearchWriter{URL: srv.URL + "/logs"}
	n, err := w.Write([]byte(`{"message":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, len(`{"message":"hi"}`), n)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/logs/_doc", path)
	assert.JSONEq(t, `{"message":"hi"}`, string(got))
}

func TestElasticsearchWriter_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := ElasticsearchWriter{URL: srv.URL}.Write([]byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestNewLogger_ConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("", "logs", &buf)

	logger.Info().Str("doc_id", "abc").Msg("Patient created")

	assert.Contains(t, buf.String(), "Patient created")
	assert.Contains(t, buf.String(), "abc")
}

func TestStartupWithEnv_RejectsBadInput(t *testing.T) {
	require.Error(t, StartupWithEnv("", "", "info"))
	require.Error(t, StartupWithEnv("", "logs", "loud"))
}
