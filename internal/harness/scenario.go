package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of device requests and the checks run
// after them.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Fixtures is an optional seed file. Empty means the standard test
	// fixtures (testutil.Fixtures). LoadScenario resolves it relative to
	// the scenario file.
	Fixtures string `yaml:"fixtures,omitempty"`

	// Start pins the clock (RFC 3339). Empty means testutil.DefaultTime.
	Start string `yaml:"start,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Actor names the authenticated caller of a step.
type Actor struct {
	Tenant  string `yaml:"tenant"`
	User    string `yaml:"user"`
	Channel string `yaml:"channel,omitempty"`
}

func (a Actor) String() string {
	return a.Tenant + "/" + a.User
}

// Step performs exactly one of Push, Pull, Claim or Advance.
type Step struct {
	Name    string      `yaml:"name,omitempty"`
	Push    *PushStep   `yaml:"push,omitempty"`
	Pull    *PullStep   `yaml:"pull,omitempty"`
	Claim   *ClaimStep  `yaml:"claim,omitempty"`
	Advance string      `yaml:"advance,omitempty"` // Go duration
	Expect  *StepExpect `yaml:"expect,omitempty"`
}

// PushStep submits a mutation batch. Mutations use the wire field names.
type PushStep struct {
	Actor     Actor            `yaml:"actor"`
	DeviceID  string           `yaml:"device_id"`
	Mutations []map[string]any `yaml:"mutations"`
}

// PullStep reads the change feed.
type PullStep struct {
	Actor    Actor  `yaml:"actor"`
	DeviceID string `yaml:"device_id"`
	Cursor   int64  `yaml:"cursor"`
	Scope    struct {
		Mode     string `yaml:"mode"`
		OutletID string `yaml:"outlet_id,omitempty"`
	} `yaml:"scope"`
	Limit int `yaml:"limit,omitempty"`
}

// ClaimStep leases invoice ranges.
type ClaimStep struct {
	Actor    Actor  `yaml:"actor"`
	DeviceID string `yaml:"device_id"`
	OutletID string `yaml:"outlet_id"`
	Days     []struct {
		Date  string `yaml:"date"`
		Count int64  `yaml:"count"`
	} `yaml:"days"`
}

// StepExpect checks a step's response. Unset fields are not checked.
type StepExpect struct {
	// Reject is the expected request-level reason code.
	Reject string `yaml:"reject,omitempty"`

	// Outcomes lists each mutation's outcome in batch order.
	Outcomes []string `yaml:"outcomes,omitempty"`

	// Changes is the number of changes a pull returns.
	Changes *int  `yaml:"changes,omitempty"`
	HasMore *bool `yaml:"has_more,omitempty"`

	// Ranges lists granted claim ranges as "<from>-<to>".
	Ranges []string `yaml:"ranges,omitempty"`
}

// Assertion validates state after all steps ran.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Tenant string `yaml:"tenant,omitempty"`

	// MutationID selects a journal row (outcome) or the order a mutation
	// created (order_state).
	MutationID string `yaml:"mutation_id,omitempty"`

	// OrderCode selects an order (order_state).
	OrderCode string `yaml:"order_code,omitempty"`

	// EntityType filters change_count. Empty counts every change.
	EntityType string `yaml:"entity_type,omitempty"`

	// Period selects the quota period. Empty means the current one.
	Period string `yaml:"period,omitempty"`

	// Count is the expected number of change records (change_count).
	Count int `yaml:"count,omitempty"`

	// Templates is the exact dispatched template sequence (notifications).
	Templates []string `yaml:"templates,omitempty"`

	// Expect holds expected field values. Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertOutcome       = "outcome"
	AssertOrderState    = "order_state"
	AssertChangeCount   = "change_count"
	AssertQuota         = "quota"
	AssertNotifications = "notifications"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly. A relative fixtures path is resolved
// against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if scenario.Fixtures != "" && !filepath.IsAbs(scenario.Fixtures) {
		scenario.Fixtures = filepath.Join(filepath.Dir(path), scenario.Fixtures)
	}
	if scenario.Fixtures != "" {
		if _, err := os.Stat(scenario.Fixtures); err != nil {
			return nil, fmt.Errorf("invalid scenario: fixtures file not found: %s", scenario.Fixtures)
		}
	}
	return scenario, nil
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.Start != "" {
		if _, err := time.Parse(time.RFC3339, s.Start); err != nil {
			return fmt.Errorf("start: %w", err)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	actions := 0
	for _, set := range []bool{st.Push != nil, st.Pull != nil, st.Claim != nil, st.Advance != ""} {
		if set {
			actions++
		}
	}
	if actions != 1 {
		return fmt.Errorf("steps[%d]: exactly one of push, pull, claim or advance is required", index)
	}

	switch {
	case st.Advance != "":
		d, err := time.ParseDuration(st.Advance)
		if err != nil {
			return fmt.Errorf("steps[%d]: advance: %w", index, err)
		}
		if d <= 0 {
			return fmt.Errorf("steps[%d]: advance must be positive", index)
		}
		if st.Expect != nil {
			return fmt.Errorf("steps[%d]: advance takes no expect", index)
		}
	case st.Push != nil:
		if err := validateActor(index, st.Push.Actor); err != nil {
			return err
		}
		if len(st.Push.Mutations) == 0 {
			return fmt.Errorf("steps[%d]: push needs at least one mutation", index)
		}
	case st.Pull != nil:
		if err := validateActor(index, st.Pull.Actor); err != nil {
			return err
		}
	case st.Claim != nil:
		if err := validateActor(index, st.Claim.Actor); err != nil {
			return err
		}
	}

	if st.Expect != nil {
		for _, o := range st.Expect.Outcomes {
			status, _, _ := strings.Cut(o, ":")
			if status != "applied" && status != "duplicate" && status != "rejected" {
				return fmt.Errorf("steps[%d].expect: unknown outcome %q", index, o)
			}
		}
	}
	return nil
}

func validateActor(index int, a Actor) error {
	if a.Tenant == "" || a.User == "" {
		return fmt.Errorf("steps[%d]: actor needs tenant and user", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertOutcome:
		if a.Tenant == "" || a.MutationID == "" {
			return fmt.Errorf("assertions[%d]: tenant and mutation_id are required for outcome", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for outcome", index)
		}
	case AssertOrderState:
		if a.Tenant == "" {
			return fmt.Errorf("assertions[%d]: tenant is required for order_state", index)
		}
		if (a.MutationID == "") == (a.OrderCode == "") {
			return fmt.Errorf("assertions[%d]: exactly one of mutation_id or order_code is required for order_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for order_state", index)
		}
	case AssertChangeCount:
		if a.Tenant == "" {
			return fmt.Errorf("assertions[%d]: tenant is required for change_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for change_count", index)
		}
	case AssertQuota:
		if a.Tenant == "" {
			return fmt.Errorf("assertions[%d]: tenant is required for quota", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for quota", index)
		}
	case AssertNotifications:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
