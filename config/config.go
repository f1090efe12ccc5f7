// Package config loads the YAML description of an HLE system: guest memory
// regions, kernel limits and the NFC service with its simulated figure.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Memory   MemoryConfig   `yaml:"memory"`
	Kernel   KernelConfig   `yaml:"kernel"`
	Services ServicesConfig `yaml:"services"`
}

// ---- MEMORY ----

type MemoryConfig struct {
	Regions []RegionConfig `yaml:"regions"`
}

type RegionConfig struct {
	Name string `yaml:"name"`
	Base uint32 `yaml:"base"`
	Size Size   `yaml:"size"`
	// Type is "ram" (default) or "rom".
	Type string `yaml:"type"`
}

// ---- KERNEL ----

type KernelConfig struct {
	MaxHandles int `yaml:"max_handles"`
}

// ---- SERVICES ----

type ServicesConfig struct {
	NFC NFCConfig `yaml:"nfc"`
}

type NFCConfig struct {
	Ports      []string      `yaml:"ports"`
	TagPresent *bool         `yaml:"tag_present"`
	Amiibo     *AmiiboConfig `yaml:"amiibo"`
}

// AmiiboConfig describes the figure the simulated reader holds.
type AmiiboConfig struct {
	Nickname      string  `yaml:"nickname"`
	Country       uint8   `yaml:"country"`
	Flags         uint8   `yaml:"flags"`
	SetupDate     string  `yaml:"setup_date"`
	LastWriteDate string  `yaml:"last_write_date"`
	CharacterID   []uint8 `yaml:"character_id"`
	SeriesID      uint8   `yaml:"series_id"`
	AmiiboID      uint16  `yaml:"amiibo_id"`
	Type          uint8   `yaml:"type"`
	Version       uint8   `yaml:"version"`
	WriteCounter  uint16  `yaml:"write_counter"`
	UID           string  `yaml:"uid"`
	Protocol      uint8   `yaml:"protocol"`
	TagType       uint8   `yaml:"tag_type"`
}

// Size is a byte count written as number[gGmMkK].
type Size uint32

func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	n, err := ParseSize(value.Value, "")
	if err != nil {
		return fmt.Errorf("line %d: size: %w", value.Line, err)
	}

	if n < 0 || n > 0xffffffff {
		return fmt.Errorf("line %d: size %q does not fit 32 bits", value.Line, value.Value)
	}

	*s = Size(n)

	return nil
}

// Load reads, validates and normalizes the configuration at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// Decode parses a configuration from r. Unknown keys are rejected.
func Decode(r io.Reader) (*Config, error) {
	cfg := &Config{}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	Normalize(cfg)

	return cfg, nil
}

// Parse is Decode over a byte slice.
func Parse(data []byte) (*Config, error) {
	return Decode(bytes.NewReader(data))
}
