package audit

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLog_AppendAndRead(t *testing.T) {
	log := NewFileLog(filepath.Join(t.TempDir(), "audit", "merges.json"))

	rec := Record{
		SessionID: "s1",
		Branch:    "strand/feature",
		StartedAt: time.Now().UTC(),
		MergedAt:  time.Now().UTC(),
		Resolved:  []string{"docs/CHANGELOG.md"},
	}
	require.NoError(t, log.Append(rec))

	records, err := log.Read()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "s1", records[0].SessionID)
	assert.Equal(t, []string{"docs/CHANGELOG.md"}, records[0].Resolved)
}

func TestFileLog_Bounded(t *testing.T) {
	log := NewFileLog(filepath.Join(t.TempDir(), "merges.json"))

	for i := 0; i < MaxRecords+10; i++ {
		require.NoError(t, log.Append(Record{SessionID: fmt.Sprintf("s%d", i)}))
	}

	records, err := log.Read()
	require.NoError(t, err)
	assert.Len(t, records, MaxRecords)
	assert.Equal(t, fmt.Sprintf("s%d", 10), records[0].SessionID, "oldest records trimmed")
	assert.Equal(t, fmt.Sprintf("s%d", MaxRecords+9), records[len(records)-1].SessionID)
}

func TestFileLog_ReadMissing(t *testing.T) {
	log := NewFileLog(filepath.Join(t.TempDir(), "missing.json"))
	records, err := log.Read()
	require.NoError(t, err)
	assert.Nil(t, records)
}
