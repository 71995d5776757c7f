package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.journal")
	j, err := NewJournal(path)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j, path
}

func TestJournal_RecoverLastSaveWins(t *testing.T) {
	j, _ := newTestJournal(t)

	require.NoError(t, j.Save(ProgressRecord{MissionID: "m1", Robot: "bumble", PoseDone: 2, PoseTotal: 10}))
	require.NoError(t, j.Save(ProgressRecord{MissionID: "m1", Robot: "bumble", PoseDone: 5, PoseTotal: 10}))
	require.NoError(t, j.Save(ProgressRecord{MissionID: "m2", Robot: "honey", PoseDone: 1, PoseTotal: 4}))

	pending, err := j.Recover()
	require.NoError(t, err)
	require.Len(t, pending, 2)

	// 首次出现顺序保持不变，同一任务取最后一次进度
	assert.Equal(t, "m1", pending[0].MissionID)
	assert.Equal(t, 5, pending[0].PoseDone)
	assert.Equal(t, "m2", pending[1].MissionID)
}

func TestJournal_CompletedMissionsExcluded(t *testing.T) {
	j, _ := newTestJournal(t)

	require.NoError(t, j.Save(ProgressRecord{MissionID: "m1", PoseDone: 3}))
	require.NoError(t, j.Save(ProgressRecord{MissionID: "m2", PoseDone: 1}))
	require.NoError(t, j.Complete("m1"))

	pending, err := j.Recover()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "m2", pending[0].MissionID, "已结束的任务不应被恢复")
}

func TestJournal_CorruptLinesIgnored(t *testing.T) {
	j, path := newTestJournal(t)
	require.NoError(t, j.Save(ProgressRecord{MissionID: "m1", PoseDone: 3}))

	// 模拟写坏的一行
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("{broken json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	pending, err := j.Recover()
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestJournal_AppendAfterRecover(t *testing.T) {
	j, _ := newTestJournal(t)
	require.NoError(t, j.Save(ProgressRecord{MissionID: "m1", PoseDone: 1}))

	_, err := j.Recover()
	require.NoError(t, err)

	// Recover 之后继续追加不应覆盖已有记录
	require.NoError(t, j.Save(ProgressRecord{MissionID: "m1", PoseDone: 2}))
	pending, err := j.Recover()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].PoseDone)
}
