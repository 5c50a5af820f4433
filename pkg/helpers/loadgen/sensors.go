package loadgen

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
)

// Range overrides a sensor's default value bounds.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// ParseRange reads "min,max".
func ParseRange(s string) (*Range, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var r Range
	if _, err := fmt.Sscanf(strings.ReplaceAll(s, " ", ""), "%g,%g", &r.Min, &r.Max); err != nil {
		return nil, fmt.Errorf("invalid range %q, want min,max: %w", s, err)
	}
	if r.Min > r.Max {
		return nil, fmt.Errorf("invalid range %q: min is greater than max", s)
	}
	return &r, nil
}

// ValueGenerator produces one sensor reading.
type ValueGenerator func(rnd *rand.Rand, override *Range) any

var sensorGenerators = map[string]ValueGenerator{
	"temperature": func(rnd *rand.Rand, o *Range) any {
		r := pick(o, Range{Min: 20, Max: 35})
		return round(uniform(rnd, r), 2)
	},
	"humidity": func(rnd *rand.Rand, o *Range) any {
		return intBetween(rnd, pick(o, Range{Min: 30, Max: 90}))
	},
	"motion": func(rnd *rand.Rand, _ *Range) any {
		return rnd.Intn(2) == 1
	},
	"door": func(rnd *rand.Rand, _ *Range) any {
		if rnd.Intn(2) == 1 {
			return "open"
		}
		return "closed"
	},
	"energy": func(rnd *rand.Rand, o *Range) any {
		r := pick(o, Range{Min: 0.1, Max: 5.0})
		return round(uniform(rnd, r), 3)
	},
	"light": func(rnd *rand.Rand, o *Range) any {
		return intBetween(rnd, pick(o, Range{Min: 100, Max: 1000}))
	},
}

// SensorTypes lists the sensors the simulator can emulate.
func SensorTypes() []string {
	names := make([]string, 0, len(sensorGenerators))
	for name := range sensorGenerators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GeneratorFor returns the value generator of a sensor type.
func GeneratorFor(sensor string) (ValueGenerator, error) {
	g, ok := sensorGenerators[strings.ToLower(sensor)]
	if !ok {
		return nil, fmt.Errorf("unknown sensor type %q", sensor)
	}
	return g, nil
}

func pick(override *Range, def Range) Range {
	if override != nil {
		return *override
	}
	return def
}

func uniform(rnd *rand.Rand, r Range) float64 {
	return r.Min + rnd.Float64()*(r.Max-r.Min)
}

// intBetween is inclusive of both bounds.
func intBetween(rnd *rand.Rand, r Range) int {
	lo, hi := int(r.Min), int(r.Max)
	if hi <= lo {
		return lo
	}
	return lo + rnd.Intn(hi-lo+1)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
