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

package monitor

import "testing"

func validMonitorConfig() *Config {
	return &Config{
		Repositories: []string{"acme/widget"},
		NATSServer:   "nats://localhost:4222",
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
		{name: "missing repositories falls back to discovery", mutate: func(c *Config) { c.Repositories = nil }, wantErr: false},
		{name: "missing nats server", mutate: func(c *Config) { c.NATSServer = "" }, wantErr: true},
		{name: "invalid updated-since", mutate: func(c *Config) { c.UpdatedSince = "yesterday" }, wantErr: true},
		{name: "valid updated-since", mutate: func(c *Config) { c.UpdatedSince = "2024-01-01T00:00:00Z" }, wantErr: false},
		{name: "invalid interval", mutate: func(c *Config) { c.Interval = "banana" }, wantErr: true},
		{name: "valid interval", mutate: func(c *Config) { c.Interval = "5m" }, wantErr: false},
		{name: "lock bucket without object", mutate: func(c *Config) { c.LockBucket = "b" }, wantErr: true},
		{name: "lock bucket and object", mutate: func(c *Config) { c.LockBucket = "b"; c.LockObject = "o" }, wantErr: false},
		{name: "pubsub project without topic", mutate: func(c *Config) { c.PubSubProjectID = "p" }, wantErr: true},
		{name: "pubsub project and topic", mutate: func(c *Config) { c.PubSubProjectID = "p"; c.PubSubTopicID = "t" }, wantErr: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := validMonitorConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
