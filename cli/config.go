package main

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/ankit-chaubey/image-metadata-surgery/core"
	"github.com/ankit-chaubey/image-metadata-surgery/core/log"
)

// Config is the optional YAML file passed with -config.
//
//	encoding: shift_jis
//	log_level: 1
//	json: true
//	workers: 8
type Config struct {
	Encoding string `yaml:"encoding"`
	LogLevel *int   `yaml:"log_level"`
	JSON     bool   `yaml:"json"`
	Workers  int    `yaml:"workers"`
}

func defaultConfig() Config {
	return Config{Workers: runtime.NumCPU()}
}

// loadConfig reads path over the defaults. An empty path returns the
// defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, core.Wrap(core.IOError, "config", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return cfg, nil
}

func (c Config) apply() {
	if c.LogLevel != nil {
		log.SetLevel(*c.LogLevel)
	}
}

// TableRow is one row of a mutation table file:
//
//   - family: iptc
//     key: Iptc.Application2.Keywords
//     values: [sea, sky]
//     type: array
type TableRow struct {
	Family        string `yaml:"family"`
	core.Mutation `yaml:",inline"`
}

// loadTable reads a mutation table and groups its rows by family, keeping
// file order within each family.
func loadTable(path string) (map[core.Family][]core.Mutation, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, core.Wrap(core.IOError, "table", err)
	}
	var rows []TableRow
	if err := yaml.Unmarshal(b, &rows); err != nil {
		return nil, fmt.Errorf("parse table %s: %w", path, err)
	}
	out := map[core.Family][]core.Mutation{}
	for i, r := range rows {
		f, err := core.ParseFamily(r.Family)
		if err != nil {
			return nil, fmt.Errorf("table %s row %d: %w", path, i+1, err)
		}
		if r.Type == "" {
			r.Type = core.TypeString
		}
		out[f] = append(out[f], r.Mutation)
	}
	return out, nil
}
