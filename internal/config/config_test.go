package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/san-kum/fopdtsim/internal/dynamo"
	"github.com/san-kum/fopdtsim/internal/integrators"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Backend != "emulated" {
		t.Errorf("expected emulated backend, got %s", cfg.Backend)
	}
	if cfg.Session.Period <= 0 {
		t.Error("period should be positive")
	}
	if _, err := cfg.Session.Parse(); err != nil {
		t.Fatalf("default session should parse: %v", err)
	}
}

func TestParseConvertsToTicks(t *testing.T) {
	s := DefaultSession()
	p, err := s.Parse()
	require.NoError(t, err)

	require.Equal(t, 2.0, p.Params.Gain)
	require.InDelta(t, 50.0, p.Params.TimeConstant, 1e-9)
	require.InDelta(t, 10.0, p.Params.DeadTime, 1e-9)
	require.Equal(t, 5.0, p.Seconds.TimeConstant)
	require.Equal(t, "0", p.Unit)
	require.IsType(t, &integrators.RK4{}, p.Integrator)
	require.Equal(t, DefaultSubsteps, p.Substeps)
	require.True(t, p.Noise)

	s.Period = 50 * time.Millisecond
	p, err = s.Parse()
	require.NoError(t, err)
	require.InDelta(t, 100.0, p.Params.TimeConstant, 1e-9)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*Session)
		field string
	}{
		{"empty sp", func(s *Session) { s.SPTag = " " }, "sp_tag"},
		{"empty pv", func(s *Session) { s.PVTag = "" }, "pv_tag"},
		{"empty cv", func(s *Session) { s.CVTag = "" }, "cv_tag"},
		{"empty address", func(s *Session) { s.Address = "" }, "address"},
		{"bad octet", func(s *Session) { s.Address = "10.0.0.300" }, "address"},
		{"bad port", func(s *Session) { s.Address = "10.0.0.1:99999" }, "address"},
		{"ipv6", func(s *Session) { s.Address = "::1" }, "address"},
		{"slot text", func(s *Session) { s.Slot = "one" }, "slot"},
		{"slot range", func(s *Session) { s.Slot = "256" }, "slot"},
		{"gain text", func(s *Session) { s.Gain = "abc" }, "gain"},
		{"bias nan", func(s *Session) { s.Bias = "NaN" }, "bias"},
		{"tau zero", func(s *Session) { s.TimeConstant = "0" }, "time_constant"},
		{"tau negative", func(s *Session) { s.TimeConstant = "-1" }, "time_constant"},
		{"dead negative", func(s *Session) { s.DeadTime = "-0.5" }, "dead_time"},
		{"integrator", func(s *Session) { s.Integrator = "verlet" }, "integrator"},
		{"period", func(s *Session) { s.Period = -time.Second }, "period"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSession()
			tt.mut(&s)
			_, err := s.Parse()
			require.ErrorIs(t, err, dynamo.ErrConfiguration)

			var cfgErr *dynamo.ConfigError
			require.True(t, errors.As(err, &cfgErr))
			require.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestValidateAddress(t *testing.T) {
	for _, ok := range []string{"192.168.1.10", "192.168.1.10:102", "plc-01", "plc.local:1883", " 10.0.0.1 "} {
		_, err := ValidateAddress(ok)
		require.NoError(t, err, ok)
	}
	for _, bad := range []string{"", "-plc", "a..b", "1.2.3", "host:0"} {
		_, err := ValidateAddress(bad)
		require.Error(t, err, bad)
	}
}

func TestLoadSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fopdtsim.yaml")
	cfg := DefaultConfig()
	cfg.Session.Gain = "3.5"
	cfg.Session.Period = 200 * time.Millisecond
	cfg.Telemetry.Brokers = []string{"a:9092", "b:9092"}
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "3.5", loaded.Session.Gain)
	require.Equal(t, 200*time.Millisecond, loaded.Session.Period)
	require.Equal(t, cfg.Telemetry.Brokers, loaded.Telemetry.Brokers)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("FOPDTSIM_ADDRESS", "10.1.1.1")
	t.Setenv("FOPDTSIM_GAIN", " 4 ")
	t.Setenv("FOPDTSIM_PERIOD", "50ms")
	t.Setenv("FOPDTSIM_SEED", "42")
	t.Setenv("FOPDTSIM_KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv())
	require.Equal(t, "10.1.1.1", cfg.Session.Address)
	require.Equal(t, "4", cfg.Session.Gain)
	require.Equal(t, 50*time.Millisecond, cfg.Session.Period)
	require.Equal(t, uint64(42), cfg.Session.Seed)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Telemetry.Brokers)
	require.True(t, cfg.Telemetry.Enabled)

	t.Setenv("FOPDTSIM_GRACE", "soon")
	err := DefaultConfig().ApplyEnv()
	require.ErrorIs(t, err, dynamo.ErrConfiguration)
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("slow_deadtime")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Session.DeadTime != "8.0" {
		t.Errorf("expected dead time 8.0, got %s", cfg.Session.DeadTime)
	}
	if cfg.Session.SPTag != "SP" {
		t.Error("preset should keep default tags")
	}

	cfg = GetPreset("fast")
	require.Equal(t, 50*time.Millisecond, cfg.Session.Period)
	require.InDelta(t, 0.05, cfg.Emulator.Period, 1e-12)
}

func TestGetPreset_NotFound(t *testing.T) {
	if GetPreset("nonexistent") != nil {
		t.Error("expected nil for nonexistent preset")
	}
}

func TestListPresets(t *testing.T) {
	presets := ListPresets()
	require.Equal(t, []string{"e2e", "fast", "slow_deadtime", "sluggish"}, presets)
}
