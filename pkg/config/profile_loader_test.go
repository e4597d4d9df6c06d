package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const euProfileYAML = `name: "EU production"
code: eu
exporter:
  system: loan-orchestrator
  component: proofpack-exporter
  version: "1.0"
lineage:
  max_depth: 500
hashing:
  include_metadata: false
archive:
  default: true
retention:
  bundle_days: 2555
  audit_log_days: 365
`

func writeProfile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "profile_eu.yaml", euProfileYAML)

	p, err := LoadProfile(dir, "EU")
	require.NoError(t, err)

	assert.Equal(t, "EU production", p.Name)
	assert.Equal(t, "eu", p.Code)
	assert.Equal(t, "loan-orchestrator", p.Exporter.System)
	assert.Equal(t, 500, p.Lineage.MaxDepth)
	assert.False(t, p.Hashing.IncludeMetadata)
	assert.True(t, p.Archive.Default)
	assert.Equal(t, 2555, p.Retention.BundleDays)
}

func TestLoadProfile_Missing(t *testing.T) {
	_, err := LoadProfile(t.TempDir(), "nowhere")
	assert.Error(t, err)
}

func TestLoadProfile_CodeDefaultsFromFilename(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "profile_us.yaml", "name: US\n")

	p, err := LoadProfile(dir, "us")
	require.NoError(t, err)
	assert.Equal(t, "us", p.Code)
}

func TestLoadAllProfiles(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "profile_eu.yaml", euProfileYAML)
	writeProfile(t, dir, "profile_us.yaml", "name: US\ncode: us\n")

	profiles, err := LoadAllProfiles(dir)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "EU production", profiles["eu"].Name)
	assert.Equal(t, "US", profiles["us"].Name)
}

func TestLoadAllProfiles_BadYAML(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "profile_bad.yaml", "::\n\t- not yaml")

	_, err := LoadAllProfiles(dir)
	assert.Error(t, err)
}
