package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validScenario = `
name: valid
description: "A valid scenario"
online: true
steps:
  - action: cache_records
    partition: events
    records:
      - { id: e1, title: "Town hall", startDate: "2024-03-10" }
  - action: submit
    payload: { op: rsvp, event: e1 }
    expect: { status: delivered }
  - action: signal
    online: false
  - action: fail_action
    action_id: 2
    error: rejected
assertions:
  - type: record
    partition: events
    key: e1
    expect: { title: "Town hall" }
  - type: pending_count
    count: 0
`

func TestParseScenario_Valid(t *testing.T) {
	s, err := ParseScenario([]byte(validScenario))
	require.NoError(t, err)

	assert.Equal(t, "valid", s.Name)
	assert.True(t, s.Online)
	require.Len(t, s.Steps, 4)

	assert.Equal(t, StepCacheRecords, s.Steps[0].Action)
	assert.Equal(t, "events", s.Steps[0].Partition)
	require.Len(t, s.Steps[0].Records, 1)
	assert.Equal(t, "2024-03-10", s.Steps[0].Records[0]["startDate"])

	assert.Equal(t, map[string]any{"op": "rsvp", "event": "e1"}, s.Steps[1].Payload)
	assert.Equal(t, map[string]any{"status": "delivered"}, s.Steps[1].Expect)

	require.NotNil(t, s.Steps[2].Online)
	assert.False(t, *s.Steps[2].Online)

	assert.Equal(t, int64(2), s.Steps[3].ActionID)
	assert.Equal(t, "rejected", s.Steps[3].Error)

	require.Len(t, s.Assertions, 2)
	assert.Equal(t, AssertRecord, s.Assertions[0].Type)
	assert.Equal(t, "e1", s.Assertions[0].Key)
}

func TestParseScenario_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "malformed",
			yaml:    "name: [unclosed",
			wantErr: "failed to parse YAML",
		},
		{
			name: "unknown field",
			yaml: `
name: x
description: d
stepz: []
`,
			wantErr: "field stepz not found",
		},
		{
			name: "missing name",
			yaml: `
description: d
steps: [{action: sync}]
assertions: [{type: pending_count}]
`,
			wantErr: "name is required",
		},
		{
			name: "missing description",
			yaml: `
name: x
steps: [{action: sync}]
assertions: [{type: pending_count}]
`,
			wantErr: "description is required",
		},
		{
			name: "no steps",
			yaml: `
name: x
description: d
assertions: [{type: pending_count}]
`,
			wantErr: "steps list is required",
		},
		{
			name: "no assertions",
			yaml: `
name: x
description: d
steps: [{action: sync}]
`,
			wantErr: "assertions list is required",
		},
		{
			name: "unknown step",
			yaml: `
name: x
description: d
steps: [{action: teleport}]
assertions: [{type: pending_count}]
`,
			wantErr: `steps[0]: unknown action "teleport"`,
		},
		{
			name: "missing action",
			yaml: `
name: x
description: d
steps: [{key: k}]
assertions: [{type: pending_count}]
`,
			wantErr: "steps[0]: action is required",
		},
		{
			name: "unknown partition",
			yaml: `
name: x
description: d
steps: [{action: cache_records, partition: widgets, records: [{id: 1}]}]
assertions: [{type: pending_count}]
`,
			wantErr: "steps[0]",
		},
		{
			name: "cache without records",
			yaml: `
name: x
description: d
steps: [{action: cache_records, partition: events}]
assertions: [{type: pending_count}]
`,
			wantErr: "records are required",
		},
		{
			name: "delete without key",
			yaml: `
name: x
description: d
steps: [{action: delete_record, partition: events}]
assertions: [{type: pending_count}]
`,
			wantErr: "key is required for delete_record",
		},
		{
			name: "submit without payload",
			yaml: `
name: x
description: d
steps: [{action: sync}, {action: submit}]
assertions: [{type: pending_count}]
`,
			wantErr: "steps[1]: payload is required for submit",
		},
		{
			name: "signal without online",
			yaml: `
name: x
description: d
steps: [{action: signal}]
assertions: [{type: pending_count}]
`,
			wantErr: "online is required for signal",
		},
		{
			name: "fail_action without id",
			yaml: `
name: x
description: d
steps: [{action: fail_action}]
assertions: [{type: pending_count}]
`,
			wantErr: "action_id must be positive",
		},
		{
			name: "unknown assertion",
			yaml: `
name: x
description: d
steps: [{action: sync}]
assertions: [{type: vibes}]
`,
			wantErr: `assertions[0]: unknown assertion type "vibes"`,
		},
		{
			name: "missing assertion type",
			yaml: `
name: x
description: d
steps: [{action: sync}]
assertions: [{count: 1}]
`,
			wantErr: "assertions[0]: type is required",
		},
		{
			name: "negative count",
			yaml: `
name: x
description: d
steps: [{action: sync}]
assertions: [{type: pending_count, count: -1}]
`,
			wantErr: "count must be non-negative",
		},
		{
			name: "record without expect",
			yaml: `
name: x
description: d
steps: [{action: sync}]
assertions: [{type: record, partition: events, key: e1}]
`,
			wantErr: "expect or absent is required",
		},
		{
			name: "record without key",
			yaml: `
name: x
description: d
steps: [{action: sync}]
assertions: [{type: record, partition: events, absent: true}]
`,
			wantErr: "key is required for record",
		},
		{
			name: "record_count without partition",
			yaml: `
name: x
description: d
steps: [{action: sync}]
assertions: [{type: record_count, count: 0}]
`,
			wantErr: "partition is required",
		},
		{
			name: "stats without expect",
			yaml: `
name: x
description: d
steps: [{action: sync}]
assertions: [{type: stats}]
`,
			wantErr: "expect is required for stats",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validScenario), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "valid", s.Name)
}

func TestLoadScenario_Testdata(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		s, err := LoadScenario(path)
		require.NoError(t, err, path)
		assert.Equal(t, filepath.Base(path), s.Name+".yaml", "scenario name should match its file")
	}
}
