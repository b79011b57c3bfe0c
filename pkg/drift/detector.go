package drift

import (
	"fmt"
	"sort"
	"time"

	"github.com/blackwell-systems/stackwarden/pkg/types"
)

// MissingValue marks a desired slot with no observed counterpart
const MissingValue = "missing"

// Observed is the runtime composition synthesized by the reconciler from
// the recent event window and live resource probes
type Observed struct {
	Providers      map[string]string
	ResourceHealth map[string]ResourceHealth
	Integrations   map[string]map[string]string
}

// ResourceHealth is the probe outcome for one declared resource
type ResourceHealth struct {
	Healthy bool
	Message string
}

// Report is the outcome of one desired-vs-observed comparison
type Report struct {
	DriftDetected bool
	Items         []types.DriftItem
	ComparedAt    time.Time
}

// Fingerprint derives the stable identifier used to count healing attempts
// for a drift item
func Fingerprint(item types.DriftItem) string {
	return fmt.Sprintf("%s:%s", item.Type, item.Component)
}

// Compare checks the declared composition against the observed one and
// returns every divergence. It is a pure function: no store reads, no
// store writes, no probes. Persisting the report is the reconciler's job.
func Compare(desired *types.Composition, observed *Observed, now time.Time) *Report {
	report := &Report{ComparedAt: now}
	if desired == nil {
		return report
	}

	report.Items = append(report.Items, compareProviders(desired, observed, now)...)
	report.Items = append(report.Items, compareResources(desired, observed, now)...)
	report.Items = append(report.Items, compareIntegrations(desired, observed, now)...)

	// Deterministic ordering: highest severity first, then by component
	sort.SliceStable(report.Items, func(i, j int) bool {
		if report.Items[i].Severity != report.Items[j].Severity {
			return report.Items[i].Severity.Rank() > report.Items[j].Severity.Rank()
		}
		return report.Items[i].Component < report.Items[j].Component
	})

	report.DriftDetected = len(report.Items) > 0
	return report
}

// compareProviders flags any logical slot whose observed provider differs
// from the declared one
func compareProviders(desired *types.Composition, observed *Observed, now time.Time) []types.DriftItem {
	var items []types.DriftItem

	slots := make([]string, 0, len(desired.Providers))
	for slot := range desired.Providers {
		slots = append(slots, slot)
	}
	sort.Strings(slots)

	for _, slot := range slots {
		want := desired.Providers[slot]
		got := MissingValue
		if observed != nil {
			if p, ok := observed.Providers[slot]; ok && p != "" {
				got = p
			}
		}
		if want != got {
			items = append(items, types.DriftItem{
				Type:       types.DriftProvider,
				Component:  slot,
				Expected:   want,
				Observed:   got,
				Severity:   types.SeverityCritical,
				DetectedAt: now,
			})
		}
	}
	return items
}

// compareResources flags declared resources whose live probe reports
// anything other than healthy
func compareResources(desired *types.Composition, observed *Observed, now time.Time) []types.DriftItem {
	var items []types.DriftItem

	names := make([]string, 0, len(desired.Resources))
	for name := range desired.Resources {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if desired.Resources[name].ProbeType == types.ProbeNone {
			continue
		}
		var health ResourceHealth
		if observed != nil {
			health = observed.ResourceHealth[name]
		}
		if !health.Healthy {
			got := health.Message
			if got == "" {
				got = "unhealthy"
			}
			items = append(items, types.DriftItem{
				Type:       types.DriftResource,
				Component:  name,
				Expected:   "healthy",
				Observed:   got,
				Severity:   types.SeverityHigh,
				DetectedAt: now,
			})
		}
	}
	return items
}

// compareIntegrations flags declared integration configs that do not
// structurally match the config extracted from recent events. A config
// never observed in the event window is not comparable and is skipped;
// silence is not evidence of drift.
func compareIntegrations(desired *types.Composition, observed *Observed, now time.Time) []types.DriftItem {
	var items []types.DriftItem

	names := make([]string, 0, len(desired.Integrations))
	for name := range desired.Integrations {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if observed == nil {
			continue
		}
		got, ok := observed.Integrations[name]
		if !ok {
			continue
		}
		want := desired.Integrations[name]
		if !configsMatch(want, got) {
			items = append(items, types.DriftItem{
				Type:       types.DriftIntegration,
				Component:  name,
				Expected:   formatConfig(want),
				Observed:   formatConfig(got),
				Severity:   types.SeverityMedium,
				DetectedAt: now,
			})
		}
	}
	return items
}

func configsMatch(want, got map[string]string) bool {
	if len(want) != len(got) {
		return false
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func formatConfig(cfg map[string]string) string {
	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := ""
	for i, k := range keys {
		if i > 0 {
			out += ","
		}
		out += k + "=" + cfg[k]
	}
	return out
}
