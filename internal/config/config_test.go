package config

import "testing"

func TestValidate(t *testing.T) {
	valid := Config{Port: 8080, TieBreak: "tenant_first", ScoreWorkers: 4}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero port", func(c *Config) { c.Port = 0 }},
		{"port too high", func(c *Config) { c.Port = 70000 }},
		{"unknown tie break", func(c *Config) { c.TieBreak = "random" }},
		{"zero workers", func(c *Config) { c.ScoreWorkers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.modify(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.TieBreak != "tenant_first" {
		t.Errorf("TieBreak = %q, want tenant_first", cfg.TieBreak)
	}
	if !cfg.AwaitAgent {
		t.Error("AwaitAgent should default to true")
	}
}
