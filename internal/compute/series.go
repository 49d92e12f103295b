package compute

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Series is a deterministic update rule applied once per step. Next must
// depend only on the step index and the previous accumulator.
type Series interface {
	Name() string
	Next(i int, acc float64) (float64, error)
	// Scale converts the raw accumulator into the reported value.
	Scale(acc float64) float64
}

// Leibniz is the Gregory–Leibniz series: π/4 = 1 − 1/3 + 1/5 − 1/7 + …
type Leibniz struct{}

func (Leibniz) Name() string { return "leibniz" }

func (Leibniz) Next(i int, acc float64) (float64, error) {
	term := 1.0 / float64(2*i+1)
	if i%2 == 1 {
		term = -term
	}
	return acc + term, nil
}

func (Leibniz) Scale(acc float64) float64 { return acc * 4 }

// Nilakantha is π = 3 + 4/(2·3·4) − 4/(4·5·6) + … and converges much faster
// than Leibniz for the same number of steps.
type Nilakantha struct{}

func (Nilakantha) Name() string { return "nilakantha" }

func (Nilakantha) Next(i int, acc float64) (float64, error) {
	n := float64(2*i + 2)
	term := 4.0 / (n * (n + 1) * (n + 2))
	if i%2 == 1 {
		term = -term
	}
	return acc + term, nil
}

func (Nilakantha) Scale(acc float64) float64 { return 3 + acc }

var knownSeries = map[string]Series{
	Leibniz{}.Name():    Leibniz{},
	Nilakantha{}.Name(): Nilakantha{},
}

// SeriesByName looks up a built-in series. The empty name selects Leibniz.
func SeriesByName(name string) (Series, error) {
	if name == "" {
		return Leibniz{}, nil
	}
	s, ok := knownSeries[strings.ToLower(name)]
	if !ok {
		return nil, errors.Errorf("unknown series %q (known: %s)", name, strings.Join(SeriesNames(), ", "))
	}
	return s, nil
}

// SeriesNames lists the built-in series in sorted order.
func SeriesNames() []string {
	names := make([]string, 0, len(knownSeries))
	for name := range knownSeries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
