package loader

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/vanderheijden86/flowstate/pkg/rule"
)

const minimalYAML = `
schemaVersion: 1
rules:
  - alias: cpu
    pattern: cpu-.*
    numberTH:
      - {color: red, value: 0}
      - {color: orange, value: 50}
    maps:
      shapes:
        dataList:
          - {pattern: web, style: strokeColor}
  - alias: disk
    type: string
    decimals: 0
    maps:
      texts:
        options: {identByProp: value}
        dataList:
          - {pattern: Disk, textReplace: as}
`

const minimalJSON = `{
  "rules": [
    {"alias": "cpu", "pattern": "cpu-.*", "unit": "percent",
     "maps": {"links": {"dataList": [{"pattern": "web", "linkUrl": "https://dash/${_metric}"}]}}}
  ]
}`

func TestParseRules_BackfillsDefaults(t *testing.T) {
	ds, err := ParseRules([]byte(minimalYAML), FormatYAML)
	if err != nil {
		t.Fatal(err)
	}
	if len(ds) != 2 {
		t.Fatalf("got %d rules, want 2", len(ds))
	}

	cpu := ds[0]
	def := rule.DefaultData()
	if cpu.Unit != def.Unit || cpu.Decimals != def.Decimals || cpu.Type != rule.TypeNumber || cpu.RefID != "A" {
		t.Errorf("defaults not backfilled: unit %q decimals %d type %q refId %q", cpu.Unit, cpu.Decimals, cpu.Type, cpu.RefID)
	}
	if len(cpu.NumberTH) != 2 || cpu.NumberTH[1].Color != "orange" {
		t.Errorf("numberTH = %+v", cpu.NumberTH)
	}
	if cpu.Maps.Shapes.Options != rule.DefaultMapOptions() {
		t.Errorf("shape options = %+v, want defaults", cpu.Maps.Shapes.Options)
	}

	disk := ds[1]
	if disk.Decimals != 0 || disk.Type != rule.TypeString {
		t.Errorf("explicit values lost: %+v", disk)
	}
	opts := disk.Maps.Texts.Options
	if opts.IdentByProp != rule.IdentByValue || !opts.EnableRegEx {
		t.Errorf("partial options not merged: %+v", opts)
	}

	for _, d := range ds {
		if _, err := rule.New(d); err != nil {
			t.Errorf("rule %s does not build: %v", d.Alias, err)
		}
	}
}

func TestParseRules_JSON(t *testing.T) {
	ds, err := ParseRules([]byte(minimalJSON), FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	if len(ds) != 1 || ds[0].Unit != "percent" || ds[0].DateFormat != rule.DefaultData().DateFormat {
		t.Fatalf("rules = %+v", ds)
	}
	if got := ds[0].Maps.Links.DataList; len(got) != 1 || got[0].LinkURL != "https://dash/${_metric}" {
		t.Errorf("links = %+v", got)
	}
	if ds[0].SchemaVersion != rule.SchemaVersion {
		t.Errorf("schemaVersion = %d", ds[0].SchemaVersion)
	}
}

func TestParseRules_Errors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format Format
		is     error
	}{
		{"newer document", "schemaVersion: 9\nrules: []\n", FormatYAML, ErrUnsupportedVersion},
		{"newer record", "rules:\n  - {alias: a, schemaVersion: 3}\n", FormatYAML, ErrUnsupportedVersion},
		{"bad yaml", "rules: [", FormatYAML, nil},
		{"bad json", `{"rules": [1}`, FormatJSON, nil},
		{"wrong field type", `{"rules": [{"decimals": "two"}]}`, FormatJSON, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRules([]byte(tt.data), tt.format)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("error = %v, want %v", err, tt.is)
			}
		})
	}

	ds, err := ParseRules([]byte("  \n"), FormatYAML)
	if err != nil || ds != nil {
		t.Errorf("empty document = %v, %v", ds, err)
	}
}

func TestSaveRules_RoundTrip(t *testing.T) {
	ds, err := ParseRules([]byte(minimalYAML), FormatYAML)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"rules.yaml", "rules.json"} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "nested", name)
			if err := SaveRules(path, ds); err != nil {
				t.Fatal(err)
			}
			back, err := LoadRules(path)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(back, ds) {
				t.Errorf("round trip changed rules:\n got %+v\nwant %+v", back, ds)
			}
			entries, _ := os.ReadDir(filepath.Dir(path))
			if len(entries) != 1 {
				t.Errorf("temp files left behind: %v", entries)
			}
		})
	}
}

func TestLoadRules_Missing(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "none.yaml"))
	if err == nil || !strings.Contains(err.Error(), "no rules found") {
		t.Errorf("error = %v", err)
	}
}

func TestLoadDiagram(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "diagram.yaml")
	doc := `
title: Hosts
cells:
  - id: web
    label: Web
    style: {fillColor: "#eeeeee"}
    metadata: {tags: "frontend,prod"}
    geometry: {x: 10, y: 20, width: 120, height: 60}
  - id: db
    label: DB
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	d, err := LoadDiagram(path)
	if err != nil {
		t.Fatal(err)
	}
	web, ok := d.Cell("web")
	if !ok || d.Title != "Hosts" {
		t.Fatalf("diagram = %+v", d)
	}
	if web.OriginalStyle("fillColor") != "#eeeeee" || web.Geometry.Width != 120 {
		t.Errorf("web = %+v", web)
	}
	db, _ := d.Cell("db")
	if db.Style == nil || db.Metadata == nil {
		t.Error("maps not initialized for a bare cell")
	}

	if _, err := ParseDiagram([]byte(`{"cells":[{"id":"a"},{"id":"a"}]}`), FormatJSON); err == nil {
		t.Error("duplicate cell ids accepted")
	}
}

func TestDetectFormat(t *testing.T) {
	if DetectFormat("a/RULES.JSON") != FormatJSON || DetectFormat("rules.yml") != FormatYAML || DetectFormat("rules") != FormatYAML {
		t.Error("DetectFormat")
	}
}
