package baseline

import "sort"

// Drift is the comparison of a current run against a pinned baseline.
type Drift struct {
	NewServices     []string
	MissingServices []string

	ConfidenceDelta int

	HasReadinessDelta bool
	ReadinessDelta    int

	HasDurationDelta     bool
	DurationDeltaPercent float64

	Present bool
}

// CompareToBaseline computes the drift between currentServices (name ->
// score) and the pinned baseline.
func CompareToBaseline(b *StackBaseline, currentServices map[string]int, currentConfidence, currentReadiness int, currentDuration float64) *Drift {
	expected := make(map[string]struct{}, len(b.ExpectedServices))
	for _, name := range b.ExpectedServices {
		expected[name] = struct{}{}
	}

	var newServices, missingServices []string
	for name := range currentServices {
		if _, ok := expected[name]; !ok {
			newServices = append(newServices, name)
		}
	}
	for name := range expected {
		if _, ok := currentServices[name]; !ok {
			missingServices = append(missingServices, name)
		}
	}
	sort.Strings(newServices)
	sort.Strings(missingServices)

	d := &Drift{
		NewServices:     newServices,
		MissingServices: missingServices,
		ConfidenceDelta: currentConfidence - b.ExpectedConfidence,
	}

	if b.ExpectedReadiness != nil {
		d.HasReadinessDelta = true
		d.ReadinessDelta = currentReadiness - *b.ExpectedReadiness
	}

	if b.ExpectedDuration > 0 {
		d.HasDurationDelta = true
		d.DurationDeltaPercent = (currentDuration - b.ExpectedDuration) * 100 / b.ExpectedDuration
	}

	d.Present = len(d.NewServices) > 0 ||
		len(d.MissingServices) > 0 ||
		d.ConfidenceDelta != 0 ||
		(d.HasReadinessDelta && d.ReadinessDelta != 0) ||
		(d.HasDurationDelta && d.DurationDeltaPercent != 0)

	return d
}
