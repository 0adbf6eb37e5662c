package config

import (
	"fmt"
	"math"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/san-kum/fopdtsim/internal/dynamo"
	"github.com/san-kum/fopdtsim/internal/integrators"
	"github.com/san-kum/fopdtsim/internal/process"
)

// Parsed is a validated Session with numbers in place of strings and
// model timings converted to scan ticks.
type Parsed struct {
	SPTag   string
	PVTag   string
	CVTag   string
	Address string
	Unit    string

	// Seconds holds the model as entered; Params is the same model in ticks.
	Seconds process.Params
	Params  process.Params

	Period     time.Duration
	Timeout    time.Duration
	Grace      time.Duration
	Integrator dynamo.Integrator
	Substeps   int
	Seed       uint64
	Noise      bool
}

var hostnameRE = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9\-]{0,61}[A-Za-z0-9])?(\.[A-Za-z0-9]([A-Za-z0-9\-]{0,61}[A-Za-z0-9])?)*$`)

func configErr(field, format string, args ...any) error {
	return &dynamo.ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func envError(key string, err error) error {
	return &dynamo.ConfigError{Field: EnvPrefix + key, Reason: "invalid value", Err: err}
}

// Parse validates s. Every failure is a *dynamo.ConfigError.
func (s Session) Parse() (Parsed, error) {
	var p Parsed

	for _, tag := range []struct {
		field string
		val   string
		dst   *string
	}{
		{"sp_tag", s.SPTag, &p.SPTag},
		{"pv_tag", s.PVTag, &p.PVTag},
		{"cv_tag", s.CVTag, &p.CVTag},
	} {
		v := strings.TrimSpace(tag.val)
		if v == "" {
			return Parsed{}, configErr(tag.field, "tag name is empty")
		}
		*tag.dst = v
	}

	addr, err := ValidateAddress(s.Address)
	if err != nil {
		return Parsed{}, err
	}
	p.Address = addr

	slot, err := strconv.Atoi(strings.TrimSpace(s.Slot))
	if err != nil || slot < 0 || slot > 255 {
		return Parsed{}, configErr("slot", "must be an integer in 0..255, got %q", s.Slot)
	}
	p.Unit = strconv.Itoa(slot)

	nums := []struct {
		field string
		raw   string
		dst   *float64
	}{
		{"gain", s.Gain, &p.Seconds.Gain},
		{"time_constant", s.TimeConstant, &p.Seconds.TimeConstant},
		{"dead_time", s.DeadTime, &p.Seconds.DeadTime},
		{"bias", s.Bias, &p.Seconds.Bias},
	}
	for _, n := range nums {
		v, err := strconv.ParseFloat(strings.TrimSpace(n.raw), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return Parsed{}, configErr(n.field, "not a number: %q", n.raw)
		}
		*n.dst = v
	}

	p.Period = s.Period
	if p.Period == 0 {
		p.Period = DefaultPeriod
	}
	p.Params, err = process.FromSeconds(p.Seconds.Gain, p.Seconds.TimeConstant, p.Seconds.DeadTime, p.Seconds.Bias, p.Period)
	if err != nil {
		return Parsed{}, err
	}

	p.Timeout = s.Timeout
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	p.Grace = s.Grace
	if p.Grace <= 0 {
		p.Grace = DefaultGrace
	}

	p.Integrator, err = integrators.ByName(s.Integrator)
	if err != nil {
		return Parsed{}, &dynamo.ConfigError{Field: "integrator", Reason: err.Error(), Err: err}
	}
	p.Substeps = s.Substeps
	if p.Substeps <= 0 {
		p.Substeps = DefaultSubsteps
	}

	p.Seed = s.Seed
	p.Noise = !s.NoNoise
	return p, nil
}

// ValidateAddress accepts host[:port] where host is an IPv4 address or a
// DNS name, and returns the trimmed address.
func ValidateAddress(raw string) (string, error) {
	addr := strings.TrimSpace(raw)
	if addr == "" {
		return "", configErr("address", "is empty")
	}

	host := addr
	if h, port, err := net.SplitHostPort(addr); err == nil {
		n, perr := strconv.Atoi(port)
		if perr != nil || n < 1 || n > 65535 {
			return "", configErr("address", "bad port in %q", raw)
		}
		host = h
	}

	if ip := net.ParseIP(host); ip != nil {
		if ip.To4() == nil {
			return "", configErr("address", "only IPv4 addresses are supported, got %q", raw)
		}
		return addr, nil
	}
	if looksNumeric(host) || !hostnameRE.MatchString(host) {
		return "", configErr("address", "malformed host %q", host)
	}
	return addr, nil
}

// looksNumeric catches dotted numbers like 10.0.0.300 that are neither a
// valid IP nor a sensible hostname.
func looksNumeric(host string) bool {
	for _, part := range strings.Split(host, ".") {
		if _, err := strconv.Atoi(part); err != nil {
			return false
		}
	}
	return true
}
