// --------------------------------------------------------------------------------
// Author: Thomas F McGeehan V
//
// This file is part of a software project developed by Thomas F McGeehan V.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
// For more information about the MIT License, please visit:
// https://opensource.org/licenses/MIT
//
// Acknowledgment appreciated but not required.
// --------------------------------------------------------------------------------

package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v2"
)

// DBCreds holds the Postgres connection settings.
type DBCreds struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// Enabled reports whether a database has been configured.
func (c DBCreds) Enabled() bool {
	return c.Host != "" && c.Database != ""
}

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Model struct {
		// Path of a gob encoded model file.
		Path string `yaml:"path"`
		// Name of a model stored in the database, used when Path is empty.
		Name string `yaml:"name"`
		// Retain truncates the model to this many eigenvectors when > 0.
		Retain int `yaml:"retain"`
	} `yaml:"model"`

	Scoring struct {
		Normalize      bool  `yaml:"normalize"`
		LogProbability *bool `yaml:"log_probability"`
		Workers        int   `yaml:"workers"`
	} `yaml:"scoring"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	DBCreds DBCreds `yaml:"db_creds"`
}

// LogProbability reports whether scores are log-likelihoods. Defaults to true.
func (c *Config) LogProbability() bool {
	return c.Scoring.LogProbability == nil || *c.Scoring.LogProbability
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// LoadConfig loads the configuration from a YAML file
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.UnmarshalStrict(data, &config); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config file: %w", err)
	}
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Scoring.Workers == 0 {
		c.Scoring.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.DBCreds.Port == "" {
		c.DBCreds.Port = "5432"
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Scoring.Workers < 0 {
		return fmt.Errorf("scoring.workers must not be negative, got %d", c.Scoring.Workers)
	}
	if c.Model.Retain < 0 {
		return fmt.Errorf("model.retain must not be negative, got %d", c.Model.Retain)
	}
	if c.Model.Path == "" && c.Model.Name != "" && !c.DBCreds.Enabled() {
		return fmt.Errorf("model.name %q requires db_creds", c.Model.Name)
	}
	return nil
}
