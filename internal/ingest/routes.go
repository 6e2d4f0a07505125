package ingest

import (
	"fmt"
	"os"
	"regexp"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Rules configures route name validation.
type Rules struct {
	// RoutePattern is the grammar of regular route names.
	RoutePattern string `yaml:"routePattern" validate:"required"`
	// VariantPattern captures the normalized route id in group 1.
	VariantPattern string `yaml:"variantPattern" validate:"required"`
	TrainPattern   string `yaml:"trainPattern" validate:"required"`
	// Exceptions are rail and metro route names outside the grammar.
	Exceptions   []string `yaml:"exceptions"`
	FilterTrains bool     `yaml:"filterTrains"`
}

func DefaultRules() Rules {
	return Rules{
		RoutePattern:   `^\d{4}[A-Za-z]{0,2}\d?$`,
		VariantPattern: `^(\d{4}[A-Za-z]{0,2})\d$`,
		TrainPattern:   `^300[12]`,
		Exceptions:     []string{"31M1", "31M2", "31M1B", "31M2B", "31M2M"},
	}
}

// LoadRules reads rules from a YAML file. Fields absent from the file keep
// their defaults.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read ingest rules: %w", err)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("parse ingest rules: %w", err)
	}
	if err := validator.New().Struct(rules); err != nil {
		return Rules{}, fmt.Errorf("invalid ingest rules: %w", err)
	}
	return rules, nil
}

type routeMatcher struct {
	route        *regexp.Regexp
	variant      *regexp.Regexp
	train        *regexp.Regexp
	exceptions   map[string]struct{}
	filterTrains bool
}

func newRouteMatcher(r Rules) (*routeMatcher, error) {
	m := &routeMatcher{
		exceptions:   make(map[string]struct{}, len(r.Exceptions)),
		filterTrains: r.FilterTrains,
	}
	var err error
	if m.route, err = regexp.Compile(r.RoutePattern); err != nil {
		return nil, fmt.Errorf("invalid route pattern: %w", err)
	}
	if m.variant, err = regexp.Compile(r.VariantPattern); err != nil {
		return nil, fmt.Errorf("invalid variant pattern: %w", err)
	}
	if m.train, err = regexp.Compile(r.TrainPattern); err != nil {
		return nil, fmt.Errorf("invalid train pattern: %w", err)
	}
	for _, e := range r.Exceptions {
		m.exceptions[e] = struct{}{}
	}
	return m, nil
}

func (m *routeMatcher) valid(name string) bool {
	if _, ok := m.exceptions[name]; ok {
		return true
	}
	return m.route.MatchString(name)
}

func (m *routeMatcher) rejectTrain(name string) bool {
	return m.filterTrains && m.train.MatchString(name)
}

// normalize strips the trailing variant digit, e.g. 1010H4 becomes 1010H.
func (m *routeMatcher) normalize(name string) string {
	if sub := m.variant.FindStringSubmatch(name); len(sub) == 2 {
		return sub[1]
	}
	return name
}
