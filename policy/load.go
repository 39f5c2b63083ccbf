package policy

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadRulesFile reads a JSON array of Rule from path. An empty path is not
// an error: it simply yields no rules, meaning every ref update is allowed.
func LoadRulesFile(path string) ([]Rule, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read rules file: %w", err)
	}
	var rules []Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("policy: parse rules file: %w", err)
	}
	return rules, nil
}
