package core

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/validation"
)

// templateFile is the multi-template form of a template file:
//
//	templates:
//	  - id: amazon_products
//	    attributes: [...]
type templateFile struct {
	Templates []Template `json:"templates" yaml:"templates" toml:"templates"`
}

// templateExtensions lists the file types LoadTemplateDir picks up.
var templateExtensions = map[string]bool{".yaml": true, ".yml": true, ".toml": true, ".json": true}

// decodeFile unmarshals data into v according to the file extension.
func decodeFile(path string, data []byte, v any) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, v)
	case ".toml":
		_, err := toml.NewDecoder(bytes.NewReader(data)).Decode(v)
		return err
	case ".json":
		return json.Unmarshal(data, v)
	default:
		return fmt.Errorf("unsupported template file %q: want .yaml, .yml, .toml or .json", path)
	}
}

// ParseTemplates decodes one template, or a "templates" list, from data.
// path only selects the decoder and is recorded as each template's Source.
func ParseTemplates(path string, data []byte) ([]*Template, error) {
	var multi templateFile
	if err := decodeFile(path, data, &multi); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidTemplate, path, err)
	}
	if len(multi.Templates) == 0 {
		var single Template
		if err := decodeFile(path, data, &single); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidTemplate, path, err)
		}
		multi.Templates = []Template{single}
	}

	out := make([]*Template, len(multi.Templates))
	for i := range multi.Templates {
		t := multi.Templates[i]
		t.Source = path
		out[i] = &t
	}
	return out, nil
}

// LoadTemplateFile reads and decodes the templates in one file.
func LoadTemplateFile(path string) ([]*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	return ParseTemplates(path, data)
}

// LoadTemplateDir registers every template file in dir, in name order.
// A missing directory loads nothing. Every bad file is reported; good
// files are still registered.
func LoadTemplateDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		slog.Warn("template directory not found", "dir", dir)
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read template dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && templateExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var (
		loaded int
		errs   []string
	)
	for _, name := range names {
		path := filepath.Join(dir, name)
		templates, err := LoadTemplateFile(path)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		for _, t := range templates {
			if err := Register(t); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", path, err))
				continue
			}
			loaded++
			slog.Debug("template registered", "template_id", t.ID, "channel", t.Channel, "file", path)
		}
	}

	if len(errs) > 0 {
		return loaded, fmt.Errorf("load templates from %s:\n  %s", dir, strings.Join(errs, "\n  "))
	}
	return loaded, nil
}

// LoadRules reads a field → rules map, as used by the validate command:
//
//	sku:
//	  - rule_type: required
//	  - rule_type: regex
//	    params: {pattern: "^[A-Z0-9-]+$"}
func LoadRules(path string) (map[string][]validation.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	rules := make(map[string][]validation.Rule)
	if err := decodeFile(path, data, &rules); err != nil {
		return nil, fmt.Errorf("decode rules %s: %w", path, err)
	}
	for field, list := range rules {
		for i := range list {
			list[i].FieldName = field
		}
	}
	return rules, nil
}
