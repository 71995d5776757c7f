package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inspection-fleet-demo/internal/types"
)

// buildJEMProblem 构建一个小型的 JEM 舱段问题实例
func buildJEMProblem(t *testing.T) *Problem {
	t.Helper()
	p, err := BuildProblem(
		[]Location{
			{ID: "jem_bay0", Real: false},
			{ID: "jem_bay1", Real: true},
			{ID: "jem_bay2", Real: true},
			{ID: "jem_bay3", Real: true},
		},
		[]RobotState{
			{ID: "bumble", Location: "berth1"},
			{ID: "honey", Location: "jem_bay1"},
		},
		[]Order{
			{ID: "o0", Identity: 0, Kind: types.OrderPanorama},
			{ID: "o1", Identity: 1, Kind: types.OrderStereo},
		},
		[][2]types.LocationID{
			{"jem_bay0", "jem_bay1"},
			{"jem_bay1", "jem_bay2"},
			{"jem_bay2", "jem_bay3"},
		},
		[]Dock{{Location: "jem_bay3", Berth: "berth1"}},
		[]GoalPredicate{
			{Kind: GoalCompletedPanorama, Robot: "bumble", Order: "o0", Location: "jem_bay2"},
			{Kind: GoalCompletedStereo, Robot: "honey", Order: "o1", Location: "jem_bay2", Bound: "jem_bay1"},
			{Kind: GoalRobotAt, Robot: "bumble", Location: "berth1"},
		},
	)
	require.NoError(t, err)
	return p
}

func TestBuildProblem_Relations(t *testing.T) {
	p := buildJEMProblem(t)

	// 邻接关系双向成立
	assert.True(t, p.MoveConnected("jem_bay1", "jem_bay2"))
	assert.True(t, p.MoveConnected("jem_bay2", "jem_bay1"), "邻接关系必须对称")
	assert.False(t, p.MoveConnected("jem_bay1", "jem_bay3"))
	assert.False(t, p.MoveConnected("jem_bay1", "jem_bay1"))

	// locations-different 派生关系
	assert.True(t, p.LocationsDifferent("jem_bay1", "jem_bay2"))
	assert.False(t, p.LocationsDifferent("jem_bay1", "jem_bay1"))
	assert.False(t, p.LocationsDifferent("jem_bay1", "unknown"))

	// 停靠连接与泊位
	berth, ok := p.DockConnected("jem_bay3")
	require.True(t, ok)
	assert.Equal(t, types.BerthID("berth1"), berth)
	_, ok = p.DockConnected("jem_bay1")
	assert.False(t, ok)

	// 工单关联键与 need-stereo 派生
	id, ok := p.OrderIdentity("o1")
	require.True(t, ok)
	assert.Equal(t, 1, id)
	assert.True(t, p.NeedStereo("o1"), "立体目标应派生 need-stereo")
	assert.False(t, p.NeedStereo("o0"))

	order, ok := p.OrderByID("o0")
	require.True(t, ok)
	assert.Equal(t, types.OrderPanorama, order.Kind)
}

func TestBuildProblem_ConfigurationErrors(t *testing.T) {
	locations := []Location{{ID: "a", Real: true}, {ID: "b", Real: false}}

	cases := []struct {
		name  string
		build func() error
	}{
		{"舱位重复", func() error {
			_, err := BuildProblem([]Location{{ID: "a", Real: true}, {ID: "a", Real: true}}, nil, nil, nil, nil, nil)
			return err
		}},
		{"机器人重复", func() error {
			robots := []RobotState{{ID: "r", Location: "a"}, {ID: "r", Location: "a"}}
			_, err := BuildProblem(locations, robots, nil, nil, nil, nil)
			return err
		}},
		{"机器人初始位置未知", func() error {
			_, err := BuildProblem(locations, []RobotState{{ID: "r", Location: "nowhere"}}, nil, nil, nil, nil)
			return err
		}},
		{"邻接关系引用未知舱位", func() error {
			_, err := BuildProblem(locations, nil, nil, [][2]types.LocationID{{"a", "c"}}, nil, nil)
			return err
		}},
		{"舱位自连接", func() error {
			_, err := BuildProblem(locations, nil, nil, [][2]types.LocationID{{"a", "a"}}, nil, nil)
			return err
		}},
		{"停靠连接指向非物理舱位", func() error {
			_, err := BuildProblem(locations, nil, nil, nil, []Dock{{Location: "b", Berth: "berth1"}}, nil)
			return err
		}},
		{"目标引用未知工单", func() error {
			robots := []RobotState{{ID: "r", Location: "a"}}
			goals := []GoalPredicate{{Kind: GoalCompletedPanorama, Robot: "r", Order: "missing", Location: "a"}}
			_, err := BuildProblem(locations, robots, nil, nil, nil, goals)
			return err
		}},
		{"目标引用未知机器人", func() error {
			goals := []GoalPredicate{{Kind: GoalRobotAt, Robot: "ghost", Location: "a"}}
			_, err := BuildProblem(locations, nil, nil, nil, nil, goals)
			return err
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.build()
			require.Error(t, err)
			var cfgErr *ConfigurationError
			assert.ErrorAs(t, err, &cfgErr, "应返回 ConfigurationError")
		})
	}
}

func TestBuildProblem_RobotStartsAtBerth(t *testing.T) {
	// 泊位是合法的初始位置，即使它不在舱位列表里
	p := buildJEMProblem(t)
	require.Len(t, p.Robots, 2)
	assert.Equal(t, types.LocationID("berth1"), p.Robots[0].Location)
}

func TestValidate_CleanProblem(t *testing.T) {
	p := buildJEMProblem(t)
	assert.Empty(t, Validate(p), "合法问题实例不应有约束违反")
}

func TestValidate_BrokenSymmetry(t *testing.T) {
	p := buildJEMProblem(t)
	p.addMoveConnectedDirected("jem_bay1", "jem_bay3")

	violations := Validate(p)
	require.NotEmpty(t, violations)
	found := false
	for _, v := range violations {
		if v.Predicate == "move-connected" {
			found = true
		}
	}
	assert.True(t, found, "应发现被破坏的对称性: %v", violations)
}

func TestValidate_StereoSameLocation(t *testing.T) {
	p := buildJEMProblem(t)
	p.Goals = append(p.Goals, GoalPredicate{
		Kind: GoalCompletedStereo, Robot: "honey", Order: "o1",
		Location: "jem_bay2", Bound: "jem_bay2",
	})

	violations := Validate(p)
	found := false
	for _, v := range violations {
		if v.Predicate == "need-stereo" {
			found = true
		}
	}
	assert.True(t, found, "基准舱位与边界舱位相同的立体目标应被拒绝")
}
