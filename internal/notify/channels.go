package notify

import (
	"encoding/json"
	"fmt"
	"os"
)

// channelsFile is the on-disk shape of the notification channel registry:
// an optional global fallback channel plus per-stack overrides, keyed by
// stack name.
type channelsFile struct {
	Global *Channel           `json:"global,omitempty"`
	Stacks map[string]Channel `json:"stacks,omitempty"`
}

// LoadChannelRegistry reads the channel registry JSON file at path and
// returns a populated Registry. A missing file yields an empty Registry
// (no channels configured), matching the other per-stack JSON stores in
// this system.
func LoadChannelRegistry(path string) (*Registry, error) {
	reg := NewRegistry()

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return reg, nil
		}
		return nil, fmt.Errorf("notify: read channels file %s: %w", path, err)
	}

	var cf channelsFile
	if err := json.Unmarshal(b, &cf); err != nil {
		return nil, fmt.Errorf("notify: parse channels file %s: %w", path, err)
	}

	if cf.Global != nil {
		reg.SetGlobal(*cf.Global)
	}
	for stack, ch := range cf.Stacks {
		reg.SetStack(stack, ch)
	}
	return reg, nil
}
