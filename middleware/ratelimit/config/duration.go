package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sosodev/duration"
	"gopkg.in/yaml.v3"
)

// ParseDuration aceita ISO-8601 ("PT1M", "PT15M", "P1DT2H", "PT0.5S") ou a
// sintaxe do Go ("1m", "15m"). A parte ISO fica com sosodev/duration, que usa
// dias de 24h; aqui só tratamos sinal, caixa e vírgula decimal.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	iso := strings.ToUpper(s)
	neg := false
	switch {
	case strings.HasPrefix(iso, "-"):
		neg, iso = true, iso[1:]
	case strings.HasPrefix(iso, "+"):
		iso = iso[1:]
	}
	if !strings.HasPrefix(iso, "P") {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: expected ISO-8601 (PT1M) or Go syntax (1m)", s)
		}
		return d, nil
	}
	if iso == "P" || iso == "PT" || strings.HasSuffix(iso, "T") {
		return 0, fmt.Errorf("invalid duration %q: no components", s)
	}

	parsed, err := duration.Parse(strings.ReplaceAll(iso, ",", "."))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d := parsed.ToTimeDuration()
	if neg {
		d = -d
	}
	return d, nil
}

// FormatDuration escreve a duração em ISO-8601 (ex.: 90s -> "PT1M30S").
func FormatDuration(d time.Duration) string {
	switch {
	case d == 0:
		return "PT0S"
	case d < 0:
		return "-" + duration.Format(-d)
	}
	return duration.Format(d)
}

// Duration é time.Duration com (de)serialização YAML em ISO-8601.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return FormatDuration(time.Duration(d)) }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string: %w", node.Line, err)
	}
	parsed, err := ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// MarshalText faz o JSON (ex.: /actuator/info) sair em ISO-8601 também.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
