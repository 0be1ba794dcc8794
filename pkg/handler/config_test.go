// Copyright 2025 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package handler

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		TemplatesDir: "/templates",
		NATSServer:   "nats://localhost:4222",
		BatchSize:    10,
		FetchTimeout: 5 * time.Second,
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}, wantErr: false},
		{name: "missing templates dir", mutate: func(c *Config) { c.TemplatesDir = "" }, wantErr: true},
		{name: "missing nats server", mutate: func(c *Config) { c.NATSServer = "" }, wantErr: true},
		{name: "zero batch size", mutate: func(c *Config) { c.BatchSize = 0 }, wantErr: true},
		{name: "negative fetch timeout", mutate: func(c *Config) { c.FetchTimeout = -1 }, wantErr: true},
		{name: "invalid skip users regexp", mutate: func(c *Config) { c.SkipUsers = "(" }, wantErr: true},
		{name: "invalid repositories regexp", mutate: func(c *Config) { c.Repositories = "(" }, wantErr: true},
		{name: "valid regexps", mutate: func(c *Config) { c.SkipUsers = "^bot-"; c.Repositories = "^acme/" }, wantErr: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
