// Package reference holds the sector and broker tables read once per run.
//
// A Lookup is immutable after Load returns and is passed explicitly to every worker
// that needs it. There is no package-level table.
package reference

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Origin is the domestic/foreign classification of a counterparty.
type Origin string

const (
	Domestic Origin = "Domestic"
	Foreign  Origin = "Foreign"
)

// ParseOrigin accepts the long names and the single-letter exchange codes.
// The second result is false for empty or unknown input.
func ParseOrigin(s string) (Origin, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "D", "DOMESTIC":
		return Domestic, true
	case "F", "FOREIGN", "A", "ASING":
		return Foreign, true
	}
	return "", false
}

// Broker is a member firm.
type Broker struct {
	Code   string
	Name   string
	Origin Origin
}

type fileFormat struct {
	Instruments []struct {
		Code   string `yaml:"code"`
		Sector string `yaml:"sector"`
	} `yaml:"instruments"`
	Brokers []struct {
		Code   string `yaml:"code"`
		Name   string `yaml:"name"`
		Origin string `yaml:"origin"`
	} `yaml:"brokers"`
}

// Lookup is the read-only reference table.
type Lookup struct {
	sectors map[string]string
	brokers map[string]Broker
	codes   []string
}

// Load reads a reference YAML file.
func Load(path string) (*Lookup, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(b)
}

// Parse builds a Lookup from YAML content.
func Parse(b []byte) (*Lookup, error) {
	var f fileFormat
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	l := &Lookup{
		sectors: make(map[string]string, len(f.Instruments)),
		brokers: make(map[string]Broker, len(f.Brokers)),
	}
	for _, in := range f.Instruments {
		code := normalizeCode(in.Code)
		if code == "" {
			continue
		}
		if _, dup := l.sectors[code]; !dup {
			l.codes = append(l.codes, code)
		}
		l.sectors[code] = strings.TrimSpace(in.Sector)
	}
	sort.Strings(l.codes)

	for _, br := range f.Brokers {
		code := normalizeCode(br.Code)
		if code == "" {
			continue
		}
		origin, ok := ParseOrigin(br.Origin)
		if !ok {
			origin = Domestic
		}
		l.brokers[code] = Broker{Code: code, Name: strings.TrimSpace(br.Name), Origin: origin}
	}
	return l, nil
}

// Empty returns a Lookup with no entries.
func Empty() *Lookup {
	return &Lookup{sectors: map[string]string{}, brokers: map[string]Broker{}}
}

func normalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Instruments returns the instrument codes, sorted. The slice is a copy.
func (l *Lookup) Instruments() []string {
	out := make([]string, len(l.codes))
	copy(out, l.codes)
	return out
}

// Sector returns the sector of code, or "" if unknown.
func (l *Lookup) Sector(code string) string {
	return l.sectors[normalizeCode(code)]
}

// Broker returns the broker entry for code.
func (l *Lookup) Broker(code string) (Broker, bool) {
	b, ok := l.brokers[normalizeCode(code)]
	return b, ok
}

// BrokerOrigin returns the registered origin of a broker, if any.
func (l *Lookup) BrokerOrigin(code string) (Origin, bool) {
	b, ok := l.brokers[normalizeCode(code)]
	if !ok {
		return "", false
	}
	return b.Origin, true
}

// BrokerCount is the number of known brokers.
func (l *Lookup) BrokerCount() int { return len(l.brokers) }
