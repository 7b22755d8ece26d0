package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fieldsync/internal/record"
	"github.com/roach88/fieldsync/internal/store"
)

// Scenario defines a conformance test scenario: a sequence of client and
// network steps followed by assertions on the trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Steps run in order against one client.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one action of a scenario.
type Step struct {
	// Action is one of the Action* constants.
	Action string `yaml:"action"`

	// Text and Image are the raw input for create.
	Text  string `yaml:"text,omitempty"`
	Image string `yaml:"image,omitempty"`

	// Count is the number of records for create and of calls for
	// sync_concurrent.
	Count int `yaml:"count,omitempty"`

	// Status is the HTTP status used by reject.
	Status int `yaml:"status,omitempty"`

	// Expect validates the step outcome. If nil, the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected result of a step.
type ExpectClause struct {
	// Outcome is one of the Outcome* constants. Defaults to "ok".
	Outcome string `yaml:"outcome,omitempty"`

	// Synced is the expected synced count of a sync step.
	Synced *int `yaml:"synced,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Collection is "pending", "synchronized" or, for collection_count, "remote".
	Collection string `yaml:"collection,omitempty"`

	// Count is the expected number of records, batches or trace events.
	Count int `yaml:"count,omitempty"`

	// Status is the expected record status (collection_status).
	Status string `yaml:"status,omitempty"`

	// Action is the step action (trace_count).
	Action string `yaml:"action,omitempty"`

	// Actions is the expected action order (trace_order).
	Actions []string `yaml:"actions,omitempty"`
}

// Step action constants.
const (
	ActionCreate         = "create"
	ActionSync           = "sync"
	ActionSyncConcurrent = "sync_concurrent"
	ActionOffline        = "offline"
	ActionOnline         = "online"
	ActionReject         = "reject"
	ActionAccept         = "accept"
	ActionReset          = "reset"
	ActionReopen         = "reopen"
	ActionCorrupt        = "corrupt"
)

// Assertion type constants.
const (
	AssertCollectionCount    = "collection_count"
	AssertCollectionStatus   = "collection_status"
	AssertSyncedAfterCreated = "synced_after_created"
	AssertUniqueIDs          = "unique_ids"
	AssertSynchronizedOrder  = "synchronized_order"
	AssertRemoteBatches      = "remote_batches"
	AssertTraceCount         = "trace_count"
	AssertTraceOrder         = "trace_order"
)

// collectionRemote names the endpoint's received set in collection_count.
const collectionRemote = "remote"

var validActions = map[string]bool{
	ActionCreate: true, ActionSync: true, ActionSyncConcurrent: true,
	ActionOffline: true, ActionOnline: true, ActionReject: true,
	ActionAccept: true, ActionReset: true, ActionReopen: true,
	ActionCorrupt: true,
}

var validOutcomes = map[string]bool{
	OutcomeOK: true, OutcomeTransport: true, OutcomeServerRejected: true,
	OutcomeBlocked: true, OutcomeFatal: true, OutcomeError: true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
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
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
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
	if st.Action == "" {
		return fmt.Errorf("steps[%d]: action is required", index)
	}
	if !validActions[st.Action] {
		return fmt.Errorf("steps[%d]: unknown action %q", index, st.Action)
	}
	if st.Count < 0 {
		return fmt.Errorf("steps[%d]: count must be non-negative", index)
	}
	if st.Action == ActionCreate && st.Text == "" && st.Image == "" {
		return fmt.Errorf("steps[%d]: create needs text or image", index)
	}
	if st.Action == ActionReject && st.Status != 0 && (st.Status < 300 || st.Status > 599) {
		return fmt.Errorf("steps[%d]: reject status must be 300-599, got %d", index, st.Status)
	}
	if st.Expect != nil {
		if st.Expect.Outcome != "" && !validOutcomes[st.Expect.Outcome] {
			return fmt.Errorf("steps[%d].expect: unknown outcome %q", index, st.Expect.Outcome)
		}
		if st.Expect.Synced != nil && st.Action != ActionSync && st.Action != ActionSyncConcurrent {
			return fmt.Errorf("steps[%d].expect: synced only applies to sync steps", index)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}

	switch a.Type {
	case AssertCollectionCount:
		if a.Collection != string(store.Pending) && a.Collection != string(store.Synchronized) && a.Collection != collectionRemote {
			return fmt.Errorf("assertions[%d]: collection must be pending, synchronized or remote for collection_count", index)
		}
	case AssertCollectionStatus:
		if a.Collection != string(store.Pending) && a.Collection != string(store.Synchronized) {
			return fmt.Errorf("assertions[%d]: collection must be pending or synchronized for collection_status", index)
		}
		if !record.Status(a.Status).Valid() {
			return fmt.Errorf("assertions[%d]: unknown status %q", index, a.Status)
		}
	case AssertSyncedAfterCreated, AssertUniqueIDs, AssertSynchronizedOrder, AssertRemoteBatches:
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
