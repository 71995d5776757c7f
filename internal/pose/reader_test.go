package pose

import (
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRead_MixedContent(t *testing.T) {
	input := `# 注释行
11.0 -4.0 4.9 0.0 0.0 0.0 1.0

not a pose line
10.5 -7.0
`
	poses, skipped, err := Read(strings.NewReader(input), testLogger())
	require.NoError(t, err)

	assert.Len(t, poses, 1, "只有一行是合法位姿")
	assert.Equal(t, 2, skipped, "两行畸形数据应被跳过")
	assert.Equal(t, 11.0, poses[0].X)
	assert.Equal(t, 1.0, poses[0].Orientation.W)
}

func TestRead_EulerDegrees(t *testing.T) {
	poses, skipped, err := Read(strings.NewReader("1.0 2.0 3.0 0.0 0.0 90.0\n"), testLogger())
	require.NoError(t, err)
	require.Len(t, poses, 1)
	assert.Zero(t, skipped)

	// yaw = 90 度的 ZYX 四元数
	q := poses[0].Orientation
	assert.InDelta(t, 0.0, q.X, 1e-9)
	assert.InDelta(t, 0.0, q.Y, 1e-9)
	assert.InDelta(t, math.Sqrt2/2, q.Z, 1e-9)
	assert.InDelta(t, math.Sqrt2/2, q.W, 1e-9)
}

func TestRead_QuaternionBeforeEuler(t *testing.T) {
	// 7 个数值必须按四元数解析，不能落入 6 字段的欧拉角分支
	poses, _, err := Read(strings.NewReader("0 0 0 0 0 0 1\n"), testLogger())
	require.NoError(t, err)
	require.Len(t, poses, 1)
	assert.Equal(t, 1.0, poses[0].Orientation.W, "第 7 个字段应被当作四元数的 w 分量")
}

func TestRead_TrailingJunkIgnored(t *testing.T) {
	// 前 7 个数值之后的内容忽略
	poses, skipped, err := Read(strings.NewReader("1 2 3 0 0 0 1 extra tokens here\n"), testLogger())
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, poses, 1)
	assert.Equal(t, 3.0, poses[0].Z)
}

func TestRead_InlineHashIsComment(t *testing.T) {
	poses, skipped, err := Read(strings.NewReader("  # x y z qx qy qz qw\n1 2 3 0 0 0 1\n"), testLogger())
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Len(t, poses, 1)
}

func TestFromRPY_Identity(t *testing.T) {
	q := FromRPY(0, 0, 0)
	assert.Equal(t, 1.0, q.W)
	assert.Zero(t, q.X)
	assert.Zero(t, q.Y)
	assert.Zero(t, q.Z)
}
