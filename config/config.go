// Package config loads the YAML file that describes a tagger: its label
// alphabet, feature templates, weight store and data paths.
package config

import (
	"os"
	"runtime"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultCacheBytes is the fastcache size used when cache_bytes is unset.
const DefaultCacheBytes = 128 << 20 // 128 MB

// Template is a word-window feature template. Offsets are relative to the
// current position, so {-1, 0} reads the previous and the current word.
type Template struct {
	Name    string `yaml:"name"`
	Offsets []int  `yaml:"offsets"`
}

// DefaultTemplates look at the current word and its two neighbours.
func DefaultTemplates() []Template {
	return []Template{
		{Name: "U00", Offsets: []int{0}},
		{Name: "U01", Offsets: []int{-1}},
		{Name: "U02", Offsets: []int{1}},
	}
}

type Config struct {
	ModelName   string `yaml:"model_name"`   // Name of the model
	WeightsPath string `yaml:"weights_path"` // Path to the fastcache snapshot
	CacheBytes  int    `yaml:"cache_bytes"`  // Upper bound of the weight store
	TestFile    string `yaml:"test_file"`    // Path to the CoNLL file to tag
	OutputFile  string `yaml:"output_file"`  // Path to the output file, stdout if empty

	Labels    []string   `yaml:"labels"`    // Ordered label alphabet
	Templates []Template `yaml:"templates"` // Emission feature templates

	MaxConcurrency int `yaml:"max_concurrency"` // Maximum number of concurrent goroutines

	Label2Idx map[string]int `yaml:"-"` // Label to index
	Idx2Label map[int]string `yaml:"-"` // Index to label
}

// Load reads, defaults and validates the config at fname.
func Load(fname string) (*Config, error) {
	dataBytes, err := os.ReadFile(fname)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	return Parse(dataBytes)
}

// Parse is Load without the file read.
func Parse(dataBytes []byte) (*Config, error) {
	config := &Config{}
	if err := yaml.Unmarshal(dataBytes, config); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.index()
	return config, nil
}

func (config *Config) applyDefaults() {
	if config.CacheBytes <= 0 {
		config.CacheBytes = DefaultCacheBytes
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = runtime.NumCPU()
	}
	if len(config.Templates) == 0 {
		config.Templates = DefaultTemplates()
	}
}

// Validate rejects configs the tagger cannot run with.
func (config *Config) Validate() error {
	if len(config.Labels) == 0 {
		return errors.New("config: at least one label is required")
	}
	seen := make(map[string]bool, len(config.Labels))
	for _, label := range config.Labels {
		if label == "" {
			return errors.New("config: empty label name")
		}
		if label == "_" {
			return errors.New(`config: label "_" is reserved for missing labels`)
		}
		if seen[label] {
			return errors.Errorf("config: duplicate label %q", label)
		}
		seen[label] = true
	}

	names := make(map[string]bool, len(config.Templates))
	for i, tmpl := range config.Templates {
		if tmpl.Name == "" {
			return errors.Errorf("config: template %d has no name", i)
		}
		if names[tmpl.Name] {
			return errors.Errorf("config: duplicate template %q", tmpl.Name)
		}
		if len(tmpl.Offsets) == 0 {
			return errors.Errorf("config: template %q has no offsets", tmpl.Name)
		}
		names[tmpl.Name] = true
	}
	return nil
}

func (config *Config) index() {
	config.Label2Idx = make(map[string]int, len(config.Labels))
	config.Idx2Label = make(map[int]string, len(config.Labels))
	for i, label := range config.Labels {
		config.Label2Idx[label] = i
		config.Idx2Label[i] = label
	}
}

// NumLabels is the size of the label alphabet.
func (config *Config) NumLabels() int {
	return len(config.Labels)
}

// LabelIndex returns the index of label, or false if it is not in the alphabet.
func (config *Config) LabelIndex(label string) (int, bool) {
	idx, ok := config.Label2Idx[label]
	return idx, ok
}

// LabelName returns the name of label index idx.
func (config *Config) LabelName(idx int) string {
	return config.Idx2Label[idx]
}
