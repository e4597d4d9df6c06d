package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ExportProfile is a per-deployment export policy, typically one per source
// system or jurisdiction.
type ExportProfile struct {
	Name      string          `yaml:"name" json:"name"`
	Code      string          `yaml:"code" json:"code"`
	Exporter  ExporterConfig  `yaml:"exporter" json:"exporter"`
	Lineage   LineageConfig   `yaml:"lineage" json:"lineage"`
	Hashing   HashingConfig   `yaml:"hashing" json:"hashing"`
	Archive   ArchiveConfig   `yaml:"archive" json:"archive"`
	Retention RetentionConfig `yaml:"retention" json:"retention"`
}

// ExporterConfig is the identity stamped into manifests produced under this
// profile.
type ExporterConfig struct {
	System    string `yaml:"system" json:"system"`
	Component string `yaml:"component" json:"component"`
	Version   string `yaml:"version" json:"version"`
}

// LineageConfig bounds ancestry walks.
type LineageConfig struct {
	MaxDepth int `yaml:"max_depth" json:"max_depth"`
}

// HashingConfig controls record hash coverage. All producers and verifiers
// sharing records must agree on it.
type HashingConfig struct {
	IncludeMetadata bool `yaml:"include_metadata" json:"include_metadata"`
}

// ArchiveConfig controls the default output format.
type ArchiveConfig struct {
	Default bool `yaml:"default" json:"default"`
}

// RetentionConfig defines how long exported bundles are kept.
type RetentionConfig struct {
	BundleDays   int `yaml:"bundle_days" json:"bundle_days"`
	AuditLogDays int `yaml:"audit_log_days" json:"audit_log_days"`
}

// LoadProfile loads a profile YAML by code, searching the profiles directory
// for profile_<code>.yaml.
func LoadProfile(profilesDir, code string) (*ExportProfile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", code, err)
	}

	var profile ExportProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", code, err)
	}
	if profile.Code == "" {
		profile.Code = code
	}
	return &profile, nil
}

// LoadAllProfiles loads every profile_*.yaml in the profiles directory,
// keyed by code.
func LoadAllProfiles(profilesDir string) (map[string]*ExportProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*ExportProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var profile ExportProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if profile.Code == "" {
			base := filepath.Base(path)
			profile.Code = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}
		profiles[profile.Code] = &profile
	}
	return profiles, nil
}
