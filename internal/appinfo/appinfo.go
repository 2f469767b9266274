// Package appinfo exposes the application metadata embedded from app.yaml.
package appinfo

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed app.yaml
var manifest []byte

// Metadata captures static identifiers for the application.
type Metadata struct {
	Name        string
	BinaryName  string
	Slug        string
	Description string
	Version     string
}

// Info describes the current build.
var Info = mustParse(manifest)

// Version returns the semantic version.
func Version() string {
	return Info.Version
}

// UserAgent is sent with every backend request.
func UserAgent() string {
	return Info.Slug + "/" + Info.Version
}

func mustParse(data []byte) Metadata {
	meta, err := parseManifest(data)
	if err != nil {
		panic(err)
	}
	return meta
}

type manifestDocument struct {
	Metadata struct {
		Name        string `yaml:"name"`
		Slug        string `yaml:"slug"`
		Description string `yaml:"description"`
		Version     string `yaml:"version"`
	} `yaml:"metadata"`
	Spec struct {
		Entrypoint struct {
			Command string `yaml:"command"`
		} `yaml:"entrypoint"`
	} `yaml:"spec"`
}

func parseManifest(data []byte) (Metadata, error) {
	var doc manifestDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Metadata{}, fmt.Errorf("appinfo: decode manifest: %w", err)
	}

	meta := Metadata{
		Name:        strings.TrimSpace(doc.Metadata.Name),
		Slug:        strings.TrimSpace(doc.Metadata.Slug),
		Description: strings.TrimSpace(doc.Metadata.Description),
		Version:     strings.TrimSpace(doc.Metadata.Version),
	}
	if meta.Version == "" {
		return Metadata{}, fmt.Errorf("appinfo: metadata.version missing in manifest")
	}
	if meta.Slug == "" {
		return Metadata{}, fmt.Errorf("appinfo: metadata.slug missing in manifest")
	}
	if meta.Name == "" {
		meta.Name = meta.Slug
	}
	if meta.Description == "" {
		meta.Description = meta.Name
	}

	meta.BinaryName = strings.TrimPrefix(strings.TrimSpace(doc.Spec.Entrypoint.Command), "./")
	if meta.BinaryName == "" {
		meta.BinaryName = meta.Slug
	}
	return meta, nil
}
