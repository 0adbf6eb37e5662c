package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/fopdtsim/internal/tagio"
)

const (
	DefaultPeriod     = 100 * time.Millisecond
	DefaultTimeout    = 2 * time.Second
	DefaultGrace      = 250 * time.Millisecond
	DefaultIntegrator = "rk4"
	DefaultSubsteps   = 20
	DefaultDataDir    = ".fopdtsim"
)

type Config struct {
	Backend   string               `yaml:"backend"`
	Session   Session              `yaml:"session"`
	Emulator  tagio.EmulatorConfig `yaml:"emulator"`
	MQTT      tagio.MQTTConfig     `yaml:"mqtt"`
	Recorder  RecorderConfig       `yaml:"recorder"`
	Telemetry TelemetryConfig      `yaml:"telemetry"`
	HTTP      HTTPConfig           `yaml:"http"`
	Log       LogConfig            `yaml:"log"`
	DataDir   string               `yaml:"data_dir"`
}

// Session is the operator-facing description of one simulation run. Model
// parameters stay strings until Parse so that typos surface as
// configuration errors rather than YAML errors.
type Session struct {
	SPTag   string `yaml:"sp_tag"`
	PVTag   string `yaml:"pv_tag"`
	CVTag   string `yaml:"cv_tag"`
	Address string `yaml:"address"`
	Slot    string `yaml:"slot"`

	Gain         string `yaml:"gain"`
	TimeConstant string `yaml:"time_constant"`
	DeadTime     string `yaml:"dead_time"`
	Bias         string `yaml:"bias"`

	Period     time.Duration `yaml:"period"`
	Timeout    time.Duration `yaml:"timeout"`
	Grace      time.Duration `yaml:"grace"`
	Integrator string        `yaml:"integrator"`
	Substeps   int           `yaml:"substeps"`
	Seed       uint64        `yaml:"seed"`
	NoNoise    bool          `yaml:"no_noise"`
}

type RecorderConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	BatchSize int    `yaml:"batch_size"`
}

type TelemetryConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Journal bool   `yaml:"journal"`
}

func DefaultSession() Session {
	return Session{
		SPTag:        "SP",
		PVTag:        "PV",
		CVTag:        "CV",
		Address:      "127.0.0.1",
		Slot:         "0",
		Gain:         "2.0",
		TimeConstant: "5.0",
		DeadTime:     "1.0",
		Bias:         "0.0",
		Period:       DefaultPeriod,
		Timeout:      DefaultTimeout,
		Grace:        DefaultGrace,
		Integrator:   DefaultIntegrator,
		Substeps:     DefaultSubsteps,
	}
}

func DefaultConfig() *Config {
	return &Config{
		Backend:  tagio.KindEmulated,
		Session:  DefaultSession(),
		Emulator: tagio.DefaultEmulatorConfig(),
		MQTT:     tagio.DefaultMQTTConfig(),
		Recorder: RecorderConfig{Path: "ticks.sqlite3", BatchSize: 100},
		Telemetry: TelemetryConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "fopdtsim.ticks",
		},
		HTTP:    HTTPConfig{Addr: ":8080"},
		Log:     LogConfig{Level: "info"},
		DataDir: DefaultDataDir,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FOPDTSIM_"

// ApplyEnv overlays FOPDTSIM_* variables onto cfg. Unset variables leave
// the current value alone.
func (c *Config) ApplyEnv() error {
	str := map[string]*string{
		"BACKEND":       &c.Backend,
		"SP_TAG":        &c.Session.SPTag,
		"PV_TAG":        &c.Session.PVTag,
		"CV_TAG":        &c.Session.CVTag,
		"ADDRESS":       &c.Session.Address,
		"SLOT":          &c.Session.Slot,
		"GAIN":          &c.Session.Gain,
		"TIME_CONSTANT": &c.Session.TimeConstant,
		"DEAD_TIME":     &c.Session.DeadTime,
		"BIAS":          &c.Session.Bias,
		"INTEGRATOR":    &c.Session.Integrator,
		"MQTT_PREFIX":   &c.MQTT.Prefix,
		"MQTT_USERNAME": &c.MQTT.Username,
		"MQTT_PASSWORD": &c.MQTT.Password,
		"KAFKA_TOPIC":   &c.Telemetry.Topic,
		"HTTP_ADDR":     &c.HTTP.Addr,
		"LOG_LEVEL":     &c.Log.Level,
		"DATA_DIR":      &c.DataDir,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	durations := map[string]*time.Duration{
		"PERIOD":  &c.Session.Period,
		"TIMEOUT": &c.Session.Timeout,
		"GRACE":   &c.Session.Grace,
	}
	for key, dst := range durations {
		v, ok := os.LookupEnv(EnvPrefix + key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return envError(key, err)
		}
		*dst = d
	}

	if v, ok := os.LookupEnv(EnvPrefix + "SEED"); ok {
		seed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return envError("SEED", err)
		}
		c.Session.Seed = seed
	}
	if v, ok := os.LookupEnv(EnvPrefix + "KAFKA_BROKERS"); ok {
		c.Telemetry.Brokers = splitAndTrim(v)
		c.Telemetry.Enabled = len(c.Telemetry.Brokers) > 0
	}
	return nil
}

func splitAndTrim(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
