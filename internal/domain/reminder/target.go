package reminder

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Well-known target keys used by the back-office UI.
const (
	TargetNetDeposit = "net_deposit"
	TargetFTD        = "ftd"
	TargetDeposit    = "deposit"
	TargetPR         = "pr"
	TargetMarketing  = "marketing"
)

// Target is a payment category with the approver assigned to it.
type Target struct {
	Enabled  bool   `json:"enabled"`
	Assignee string `json:"assignee"`
}

// UnmarshalJSON accepts enabled as a bool, a number or a string such as
// "yes". A non-object entry decodes as a disabled target with no assignee.
func (t *Target) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		*t = Target{}
		return nil
	}
	*t = Target{
		Enabled:  looseBool(fields["enabled"]),
		Assignee: looseText(fields["assignee"]),
	}
	return nil
}

func looseBool(raw json.RawMessage) bool {
	switch strings.ToLower(looseText(raw)) {
	case "", "false", "0", "no", "off":
		return false
	}
	return true
}

// Targets maps a target key to its configuration.
type Targets map[string]Target

// Assignee returns the approver email for key, or "" when none is set.
func (t Targets) Assignee(key string) string {
	target, ok := t[key]
	if !ok {
		return ""
	}
	return strings.TrimSpace(target.Assignee)
}

// Encode renders the targets column. Nil encodes as an empty object.
func (t Targets) Encode() (string, error) {
	if t == nil {
		return "{}", nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("encode targets: %w", err)
	}
	return string(b), nil
}
