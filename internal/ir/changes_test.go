package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeSet_Summary(t *testing.T) {
	key := func(name string) Key { return Key{Kind: "null:Resource", Name: name} }

	cs := &ChangeSet{Changes: []*Change{
		{Key: key("a"), Action: ActionCreate},
		{Key: key("b"), Action: ActionUpdate},
		{Key: key("c"), Action: ActionDelete, Replacing: true},
		{Key: key("c"), Action: ActionCreate, Replacing: true},
		{Key: key("d"), Action: ActionDelete},
		{Key: key("e"), Action: ActionNoop},
	}}

	sum := cs.Summary()
	assert.Equal(t, Summary{Create: 1, Update: 1, Delete: 1, Replace: 1, Noop: 1}, sum)
	assert.True(t, cs.HasChanges())
}

func TestChangeSet_HasChanges_AllNoop(t *testing.T) {
	cs := &ChangeSet{Changes: []*Change{
		{Key: Key{Kind: "null:Resource", Name: "a"}, Action: ActionNoop},
		{Key: Key{Kind: "null:Resource", Name: "b"}, Action: ActionNoop},
	}}
	assert.False(t, cs.HasChanges())

	empty := &ChangeSet{}
	assert.False(t, empty.HasChanges())
}

func TestReport_SummaryAndEntry(t *testing.T) {
	key := func(name string) Key { return Key{Kind: "null:Resource", Name: name} }

	r := &Report{Entries: []*ReportEntry{
		{Key: key("a"), Action: ActionCreate, Outcome: OutcomeApplied},
		{Key: key("b"), Action: ActionUpdate, Outcome: OutcomeFailed, Err: "boom"},
		{Key: key("c"), Action: ActionCreate, Outcome: OutcomeSkipped},
		{Key: key("d"), Action: ActionNoop, Outcome: OutcomeNoop},
	}}

	assert.Equal(t, ReportSummary{Applied: 1, Failed: 1, Skipped: 1, Noop: 1}, r.Summary())

	entry := r.Entry(key("b"))
	require.NotNil(t, entry)
	assert.Equal(t, "boom", entry.Err)
	assert.Nil(t, r.Entry(key("ghost")))
}
