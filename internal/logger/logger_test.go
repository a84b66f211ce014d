package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/inkboost/internal/config"
)

func TestInitWritesFileAndConsole(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	file := filepath.Join(dir, "nested", "inkboost.log")

	require.NoError(t, Init(Options{Level: "info", File: file, MaxSizeMB: 1, Console: &console}))
	defer Close()

	log.Debug().Msg("hidden")
	log.Info().Str("job_id", "j1").Int("pages", 3).Msg("document assembled")

	var ev map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(console.Bytes()), &ev))
	assert.Equal(t, "document assembled", ev["message"])
	assert.Equal(t, "j1", ev["job_id"])
	assert.NotContains(t, console.String(), "hidden")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "document assembled")
}

func TestInitBadLevelFallsBackToInfo(t *testing.T) {
	var console bytes.Buffer
	require.NoError(t, Init(Options{Level: "loud", Console: &console}))
	log.Debug().Msg("quiet")
	log.Info().Msg("audible")
	assert.NotContains(t, console.String(), "quiet")
	assert.Contains(t, console.String(), "audible")
}

type sink struct{ events []axiom.Event }

func (s *sink) Send(ev axiom.Event) { s.events = append(s.events, ev) }

func TestAxiomWriterDropsDebug(t *testing.T) {
	s := &sink{}
	w := &axiomWriter{client: s, service: DefaultService}

	_, err := w.Write([]byte(`{"level":"debug","message":"noise"}`))
	require.NoError(t, err)
	_, err = w.Write([]byte(`{"level":"warn","message":"slow page"}`))
	require.NoError(t, err)
	_, err = w.Write([]byte("not json"))
	require.NoError(t, err)

	require.Len(t, s.events, 2)
	assert.Equal(t, "slow page", s.events[0]["message"])
	assert.Equal(t, "inkboost", s.events[0]["service"])
	assert.Equal(t, "not json", s.events[1]["message"])
}

func TestOptionsFrom(t *testing.T) {
	cfg := config.Config{}
	cfg.Logging.Level = "debug"
	cfg.Axiom.Dataset = "prod_inkboost"
	opts := OptionsFrom(cfg)
	assert.Equal(t, "debug", opts.Level)
	assert.Equal(t, "prod_inkboost", opts.AxiomDataset)
	assert.Equal(t, DefaultService, opts.Service)
}
