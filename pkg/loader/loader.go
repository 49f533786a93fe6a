// Package loader reads and writes rule and diagram documents in YAML or
// JSON. Rule records are decoded on top of rule.DefaultData, so fields
// missing from a document keep their defaults.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/vanderheijden86/flowstate/pkg/diagram"
	"github.com/vanderheijden86/flowstate/pkg/metrics"
	"github.com/vanderheijden86/flowstate/pkg/rule"
)

// Format is a document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ErrUnsupportedVersion is returned for documents written by a newer schema.
var ErrUnsupportedVersion = errors.New("unsupported schema version")

// DetectFormat picks the encoding from the file extension; anything that is
// not .json is read as YAML.
func DetectFormat(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// RulesDocument is the on-disk form of a rule set.
type RulesDocument struct {
	SchemaVersion int         `yaml:"schemaVersion" json:"schemaVersion"`
	Rules         []rule.Data `yaml:"rules" json:"rules"`
}

type rawYAMLRules struct {
	SchemaVersion int         `yaml:"schemaVersion"`
	Rules         []yaml.Node `yaml:"rules"`
}

type rawJSONRules struct {
	SchemaVersion int               `json:"schemaVersion"`
	Rules         []json.RawMessage `json:"rules"`
}

// LoadRules reads a rule document.
func LoadRules(path string) ([]rule.Data, error) {
	defer metrics.Timer(metrics.RuleLoad)()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no rules found at %s", path)
		}
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	ds, err := ParseRules(data, DetectFormat(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// ParseRules decodes a rule document, backfilling defaults per record.
func ParseRules(data []byte, format Format) ([]rule.Data, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var (
		version int
		out     []rule.Data
	)
	switch format {
	case FormatJSON:
		var raw rawJSONRules
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("invalid rules document: %w", err)
		}
		version = raw.SchemaVersion
		for i, msg := range raw.Rules {
			d := rule.DefaultData()
			if err := json.Unmarshal(msg, &d); err != nil {
				return nil, fmt.Errorf("rule %d: %w", i, err)
			}
			out = append(out, d)
		}
	default:
		var raw rawYAMLRules
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("invalid rules document: %w", err)
		}
		version = raw.SchemaVersion
		for i := range raw.Rules {
			d := rule.DefaultData()
			if err := raw.Rules[i].Decode(&d); err != nil {
				return nil, fmt.Errorf("rule %d: %w", i, err)
			}
			out = append(out, d)
		}
	}
	if version > rule.SchemaVersion {
		return nil, fmt.Errorf("%w: %d (newest is %d)", ErrUnsupportedVersion, version, rule.SchemaVersion)
	}
	for i := range out {
		if out[i].SchemaVersion > rule.SchemaVersion {
			return nil, fmt.Errorf("rule %d: %w: %d", i, ErrUnsupportedVersion, out[i].SchemaVersion)
		}
		out[i].SchemaVersion = rule.SchemaVersion
	}
	return out, nil
}

// EncodeRules renders a rule document.
func EncodeRules(ds []rule.Data, format Format) ([]byte, error) {
	doc := RulesDocument{SchemaVersion: rule.SchemaVersion, Rules: ds}
	if format == FormatJSON {
		return json.MarshalIndent(doc, "", "  ")
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SaveRules writes a rule document atomically.
func SaveRules(path string, ds []rule.Data) error {
	data, err := EncodeRules(ds, DetectFormat(path))
	if err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}
	return writeAtomic(path, data)
}

// LoadDiagram reads a diagram document and initializes it.
func LoadDiagram(path string) (*diagram.Diagram, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no diagram found at %s", path)
		}
		return nil, fmt.Errorf("failed to read diagram: %w", err)
	}
	d, err := ParseDiagram(data, DetectFormat(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// ParseDiagram decodes and initializes a diagram document.
func ParseDiagram(data []byte, format Format) (*diagram.Diagram, error) {
	var d diagram.Diagram
	var err error
	if format == FormatJSON {
		err = json.Unmarshal(data, &d)
	} else {
		err = yaml.Unmarshal(data, &d)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid diagram document: %w", err)
	}
	if err := d.Init(); err != nil {
		return nil, err
	}
	return &d, nil
}

// writeAtomic replaces path through a temp file and a rename, so watchers
// never see a partial document.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
