package worldhost

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/worldhost/server/pkg/registry"
)

// analyticsHeader is written once, the first time analytics.csv is
// created or found empty.
const analyticsHeader = "timestamp,total,countries\n"

// runAnalytics periodically appends a row of (timestamp, total
// connections, per-country breakdown) to path, until stop is closed.
// Grounded on original_source/src/modules/analytics.rs.
func runAnalytics(stop <-chan struct{}, path string, interval time.Duration, reg *registry.Registry, log zerolog.Logger) {
	if interval <= 0 {
		log.Info().Msg("analytics disabled")
		return
	}
	log.Info().Dur("interval", interval).Msg("starting analytics system")

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if err := writeAnalyticsRow(path, reg); err != nil {
				log.Error().Err(err).Msg("failed to update analytics.csv")
			}
		}
	}
}

func writeAnalyticsRow(path string, reg *registry.Registry) error {
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		if err := os.WriteFile(path, []byte(analyticsHeader), 0o644); err != nil {
			return fmt.Errorf("create analytics.csv: %w", err)
		}
	}

	byCountry := map[string]int{}
	total := 0
	for _, c := range reg.Iter() {
		total++
		if info, ok := c.Country(); ok {
			byCountry[info.CountryString()]++
		}
	}

	countries := make([]string, 0, len(byCountry))
	for country := range byCountry {
		countries = append(countries, country)
	}
	sort.Strings(countries)

	parts := make([]string, len(countries))
	for i, country := range countries {
		parts[i] = fmt.Sprintf("%s:%d", country, byCountry[country])
	}

	line := fmt.Sprintf("%s,%d,%s\n", time.Now().Format(time.RFC3339), total, strings.Join(parts, ";"))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open analytics.csv: %w", err)
	}
	defer f.Close()
	_, err = f.WriteString(line)
	return err
}
