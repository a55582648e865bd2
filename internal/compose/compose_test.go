package compose

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCompose(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_BasicStack(t *testing.T) {
	dir := t.TempDir()
	path := writeCompose(t, dir, "demo.yml", `
services:
  db:
    image: postgres:16
    environment:
      - POSTGRES_PASSWORD=secret
    volumes:
      - /data/db:/var/lib/postgresql/data
  api:
    image: demo/api:latest
    depends_on:
      - db
    environment:
      - API_KEY
    healthcheck:
      test: ["CMD", "curl", "-f", "http://localhost/health"]
      interval: 5s
      timeout: 2s
      retries: 3
networks:
  backbone:
    external: true
`)

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "demo", s.Name)
	require.Contains(t, s.Services, "api")
	require.Contains(t, s.Services, "db")

	api := s.Services["api"]
	assert.Equal(t, []string{"db"}, api.DependsOn)
	assert.Equal(t, []string{"API_KEY"}, api.Env)
	require.NotNil(t, api.HealthCheck)
	assert.Equal(t, "5s", api.HealthCheck.Interval)
	assert.Equal(t, uint64(3), api.HealthCheck.Retries)

	db := s.Services["db"]
	assert.Equal(t, []string{"POSTGRES_PASSWORD=secret"}, db.Env)
	assert.Equal(t, []string{"/data/db:/var/lib/postgresql/data"}, db.Volumes)

	assert.Contains(t, s.ExternalNetworkNames(), "backbone")
}

func TestLoad_EnvironmentAsMapping(t *testing.T) {
	dir := t.TempDir()
	path := writeCompose(t, dir, "mapped.yml", `
services:
  api:
    image: demo/api:latest
    environment:
      LOG_LEVEL: debug
`)

	s, err := Load(path)
	require.NoError(t, err)
	pairs, bare := s.Services["api"].ExplicitEnv()
	assert.Equal(t, "debug", pairs["LOG_LEVEL"])
	assert.Empty(t, bare)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/compose.yml")
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeCompose(t, dir, "broken.yml", "services: [this is not a mapping")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_StackNameFromFileStem(t *testing.T) {
	dir := t.TempDir()
	path := writeCompose(t, dir, "payments.compose.yaml", `
services:
  worker:
    image: demo/worker:latest
`)

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "payments.compose", s.Name)
}
