package domain

import (
	"fmt"
	"sort"

	"inspection-fleet-demo/internal/types"
)

// ConfigurationError 表示任务域描述本身有误
// 属于致命错误：任务构建立即中止，绝不自动修补
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "配置错误: " + e.Reason
}

func configErrorf(format string, args ...interface{}) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// Location 表示图上的一个舱位节点
// Real 为真表示机器人可以实际占据并从中巡视的物理舱位；
// 为假表示只作图结构用的虚拟节点（如入口舱）
type Location struct {
	ID   types.LocationID
	Real bool
}

// RobotState 表示一台机器人及其初始位置
type RobotState struct {
	ID       types.RobotID
	Location types.LocationID
}

// Order 表示一个巡检工单
// Identity 是与指派无关的稳定关联键，执行期间用它对应 robot-order 函数
type Order struct {
	ID       types.OrderID
	Identity int
	Kind     types.OrderKind
}

// Dock 表示舱位与泊位之间的停靠连接
type Dock struct {
	Location types.LocationID
	Berth    types.BerthID
}

// GoalKind 定义任务目标谓词的种类
type GoalKind string

const (
	GoalCompletedPanorama GoalKind = "completed-panorama"
	GoalCompletedStereo   GoalKind = "completed-stereo"
	GoalRobotAt           GoalKind = "robot-at"
)

// GoalPredicate 是任务目标合取式中的一个谓词
// 立体类目标使用 Location (基准舱位) + Bound (边界舱位) 两个参数
type GoalPredicate struct {
	Kind     GoalKind
	Robot    types.RobotID
	Order    types.OrderID    // robot-at 目标不携带工单
	Location types.LocationID // panorama / robot-at 的舱位，stereo 的基准舱位
	Bound    types.LocationID // 仅 stereo
}

// pair 是无序关系的存储键（按存入方向保存，构建时双向写入）
type pair struct {
	a, b types.LocationID
}

// Problem 是规划器消费的任务域实例
// 构建完成后在规划期间只读；谓词和数值函数用强类型存储，
// 仅在边界序列化成规划器期望的文本形式
type Problem struct {
	Locations []Location
	Berths    []types.BerthID
	Robots    []RobotState
	Orders    []Order
	Goals     []GoalPredicate

	moveConnected map[pair]bool
	dockConnected map[types.LocationID]types.BerthID
	orderIdentity map[types.OrderID]int
	robotOrder    map[types.RobotID]int // 初始均为 IdleOrder
	needStereo    map[types.OrderID]bool
	locationByID  map[types.LocationID]Location
	berthSet      map[types.BerthID]bool
}

// BuildProblem 从任务配置构建规划问题实例
// 以下情况返回 ConfigurationError：邻接关系引用未知舱位；停靠连接指向
// 非物理舱位；目标谓词引用不存在的工单；机器人或舱位列表含重复标识
func BuildProblem(
	locations []Location,
	robots []RobotState,
	orders []Order,
	adjacency [][2]types.LocationID,
	docks []Dock,
	goals []GoalPredicate,
) (*Problem, error) {
	p := &Problem{
		Locations:     locations,
		Robots:        robots,
		Orders:        orders,
		Goals:         goals,
		moveConnected: make(map[pair]bool),
		dockConnected: make(map[types.LocationID]types.BerthID),
		orderIdentity: make(map[types.OrderID]int),
		robotOrder:    make(map[types.RobotID]int),
		needStereo:    make(map[types.OrderID]bool),
		locationByID:  make(map[types.LocationID]Location),
		berthSet:      make(map[types.BerthID]bool),
	}

	// 舱位去重检查
	for _, loc := range locations {
		if _, dup := p.locationByID[loc.ID]; dup {
			return nil, configErrorf("舱位标识重复: %s", loc.ID)
		}
		p.locationByID[loc.ID] = loc
	}

	// 停靠连接：只允许挂在物理舱位上
	// 先于机器人处理，泊位也是合法的初始位置
	for _, d := range docks {
		loc, known := p.locationByID[d.Location]
		if !known {
			return nil, configErrorf("停靠连接引用未知舱位: %s", d.Location)
		}
		if !loc.Real {
			return nil, configErrorf("停靠连接指向非物理舱位: %s", d.Location)
		}
		p.dockConnected[d.Location] = d.Berth
		if !p.berthSet[d.Berth] {
			p.berthSet[d.Berth] = true
			p.Berths = append(p.Berths, d.Berth)
		}
	}
	sort.Slice(p.Berths, func(i, j int) bool { return p.Berths[i] < p.Berths[j] })

	// 机器人去重检查，并初始化 robot-order 为空闲哨兵值
	// 初始位置可以是舱位，也可以是泊位
	for _, r := range robots {
		if _, dup := p.robotOrder[r.ID]; dup {
			return nil, configErrorf("机器人标识重复: %s", r.ID)
		}
		_, knownLoc := p.locationByID[r.Location]
		if !knownLoc && !p.berthSet[types.BerthID(r.Location)] {
			return nil, configErrorf("机器人 %s 的初始位置 %s 不存在", r.ID, r.Location)
		}
		p.robotOrder[r.ID] = types.IdleOrder
	}

	// 工单标识与关联键
	for _, o := range orders {
		if _, dup := p.orderIdentity[o.ID]; dup {
			return nil, configErrorf("工单标识重复: %s", o.ID)
		}
		p.orderIdentity[o.ID] = o.Identity
	}

	// 邻接关系：双向写入保证对称；自连接视为配置错误
	for _, edge := range adjacency {
		a, b := edge[0], edge[1]
		if _, known := p.locationByID[a]; !known {
			return nil, configErrorf("邻接关系引用未知舱位: %s", a)
		}
		if _, known := p.locationByID[b]; !known {
			return nil, configErrorf("邻接关系引用未知舱位: %s", b)
		}
		if a == b {
			return nil, configErrorf("舱位 %s 不允许与自身相连", a)
		}
		p.moveConnected[pair{a, b}] = true
		p.moveConnected[pair{b, a}] = true
	}

	// 目标谓词一致性检查；立体目标自动派生 need-stereo
	for _, g := range goals {
		switch g.Kind {
		case GoalCompletedPanorama, GoalCompletedStereo:
			if _, known := p.orderIdentity[g.Order]; !known {
				return nil, configErrorf("目标谓词引用未知工单: %s", g.Order)
			}
		case GoalRobotAt:
			// 无工单参数
		default:
			return nil, configErrorf("未知的目标谓词种类: %s", g.Kind)
		}
		if _, known := p.robotOrder[g.Robot]; !known {
			return nil, configErrorf("目标谓词引用未知机器人: %s", g.Robot)
		}
		if g.Kind == GoalCompletedStereo {
			p.needStereo[g.Order] = true
		}
	}

	return p, nil
}

// MoveConnected 查询两个舱位是否可直接移动互达
func (p *Problem) MoveConnected(a, b types.LocationID) bool {
	return p.moveConnected[pair{a, b}]
}

// LocationsDifferent 查询 locations-different 关系
// 该关系对每对不同的已知舱位成立，规划器用它禁止自指派
func (p *Problem) LocationsDifferent(a, b types.LocationID) bool {
	if a == b {
		return false
	}
	_, okA := p.locationByID[a]
	_, okB := p.locationByID[b]
	return okA && okB
}

// DockConnected 查询舱位连接到的泊位
func (p *Problem) DockConnected(loc types.LocationID) (types.BerthID, bool) {
	b, ok := p.dockConnected[loc]
	return b, ok
}

// OrderIdentity 返回工单的数值关联键
func (p *Problem) OrderIdentity(id types.OrderID) (int, bool) {
	v, ok := p.orderIdentity[id]
	return v, ok
}

// NeedStereo 查询工单是否要求立体巡视
func (p *Problem) NeedStereo(id types.OrderID) bool {
	return p.needStereo[id]
}

// OrderByID 根据标识查找工单
func (p *Problem) OrderByID(id types.OrderID) (Order, bool) {
	for _, o := range p.Orders {
		if o.ID == id {
			return o, true
		}
	}
	return Order{}, false
}

// availableLocations 返回初始时刻未被任何机器人占据的位置集合（含泊位）
// 序列化和校验共用，排序保证输出确定性
func (p *Problem) availableLocations() []string {
	occupied := make(map[types.LocationID]bool)
	for _, r := range p.Robots {
		occupied[r.Location] = true
	}
	var avail []string
	for _, loc := range p.Locations {
		if !occupied[loc.ID] {
			avail = append(avail, string(loc.ID))
		}
	}
	for _, b := range p.Berths {
		if !occupied[types.LocationID(b)] {
			avail = append(avail, string(b))
		}
	}
	sort.Strings(avail)
	return avail
}
