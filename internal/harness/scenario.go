package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/civicsync/internal/record"
)

// Scenario is a scripted run against the cache: an initial connectivity
// state, a list of steps, and assertions over the trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Online is the initial connectivity state.
	Online bool `yaml:"online"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scenario action. Which fields apply depends on Action.
type Step struct {
	Action    string           `yaml:"action"`
	Partition string           `yaml:"partition,omitempty"`
	Key       string           `yaml:"key,omitempty"`
	Records   []map[string]any `yaml:"records,omitempty"`
	Payload   map[string]any   `yaml:"payload,omitempty"`
	Online    *bool            `yaml:"online,omitempty"`
	ActionID  int64            `yaml:"action_id,omitempty"`
	Error     string           `yaml:"error,omitempty"`

	// Expect is matched as a subset of the step's JSON result.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Step actions.
const (
	StepCacheRecords = "cache_records"
	StepDeleteRecord = "delete_record"
	StepClearCache   = "clear_cache"
	StepSubmit       = "submit"
	StepQueueAction  = "queue_action"
	StepSync         = "sync"
	StepSignal       = "signal"
	StepFailAction   = "fail_action"
	StepDeliveryDown = "delivery_down"
	StepDeliveryUp   = "delivery_up"
	StepClearQueue   = "clear_queue"
)

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Keys are idempotency keys (delivered_keys, pending_keys).
	Keys []string `yaml:"keys,omitempty"`

	// Count is the expected number (pending_count, record_count).
	Count int `yaml:"count,omitempty"`

	// Partition and Key select records (record_count, record).
	Partition string `yaml:"partition,omitempty"`
	Key       string `yaml:"key,omitempty"`

	// Expect holds expected field values, matched as a subset (record, stats).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Absent asserts that the record does not exist (record).
	Absent bool `yaml:"absent,omitempty"`
}

// Assertion type constants.
const (
	AssertDeliveredKeys = "delivered_keys"
	AssertPendingKeys   = "pending_keys"
	AssertPendingCount  = "pending_count"
	AssertRecordCount   = "record_count"
	AssertRecord        = "record"
	AssertStats         = "stats"
)

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

// ParseScenario parses scenario YAML. Unknown fields are rejected.
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

func validateStep(index int, s *Step) error {
	switch s.Action {
	case "":
		return fmt.Errorf("steps[%d]: action is required", index)
	case StepCacheRecords:
		if err := validatePartition(s.Partition); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
		if len(s.Records) == 0 {
			return fmt.Errorf("steps[%d]: records are required for cache_records", index)
		}
	case StepDeleteRecord:
		if err := validatePartition(s.Partition); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
		if s.Key == "" {
			return fmt.Errorf("steps[%d]: key is required for delete_record", index)
		}
	case StepSubmit, StepQueueAction:
		if s.Payload == nil {
			return fmt.Errorf("steps[%d]: payload is required for %s", index, s.Action)
		}
	case StepSignal:
		if s.Online == nil {
			return fmt.Errorf("steps[%d]: online is required for signal", index)
		}
	case StepFailAction:
		if s.ActionID <= 0 {
			return fmt.Errorf("steps[%d]: action_id must be positive for fail_action", index)
		}
	case StepClearCache, StepSync, StepDeliveryDown, StepDeliveryUp, StepClearQueue:
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", index, s.Action)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertDeliveredKeys, AssertPendingKeys:
	case AssertPendingCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertRecordCount:
		if err := validatePartition(a.Partition); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertRecord:
		if err := validatePartition(a.Partition); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for record", index)
		}
		if !a.Absent && len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect or absent is required for record", index)
		}
	case AssertStats:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for stats", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func validatePartition(name string) error {
	if name == "" {
		return fmt.Errorf("partition is required")
	}
	_, err := record.ParsePartition(name)
	return err
}
