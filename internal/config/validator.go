package config

import (
	"fmt"
	"strings"

	"github.com/pulseboard/pulseboard/internal/filter"
	"github.com/pulseboard/pulseboard/internal/widget"
)

// Validate checks the config for:
//   - Duplicate or missing widget ids
//   - Widget types outside the known set
//   - Refresh intervals below one second
//   - Widget configs whose filter keys do not parse
func Validate(cfg *Config) error {
	if cfg.Version == "" {
		return fmt.Errorf("config: version is required")
	}
	ids := make(map[string]struct{})
	var problems []string

	for i, w := range cfg.Widgets {
		if w.ID == "" {
			problems = append(problems, fmt.Sprintf("widgets[%d]: id is required", i))
			continue
		}
		if _, dup := ids[w.ID]; dup {
			problems = append(problems, fmt.Sprintf("duplicate widget id %q", w.ID))
		}
		ids[w.ID] = struct{}{}

		if _, err := widget.ParseType(string(w.Type)); err != nil {
			problems = append(problems, fmt.Sprintf("widget %s: %s", w.ID, err))
		}
		if w.RefreshSeconds < 1 {
			problems = append(problems, fmt.Sprintf("widget %s: refresh_seconds must be >= 1", w.ID))
		}
		if _, err := filter.Build(w.Config); err != nil {
			problems = append(problems, fmt.Sprintf("widget %s: %s", w.ID, err))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
