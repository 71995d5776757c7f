package domain

import (
	"fmt"

	"inspection-fleet-demo/internal/types"
)

// ConstraintViolation 表示一致性校验发现的一个问题
// 校验不会中止，所有问题一次性收集返回
type ConstraintViolation struct {
	Predicate string // 出问题的谓词或约束名称
	Detail    string // 人类可读的说明
}

func (v ConstraintViolation) String() string {
	return fmt.Sprintf("[%s] %s", v.Predicate, v.Detail)
}

// Validate 对已构建的问题实例做一致性校验
// 检查 move-connected 与 locations-different 的对称性和反自反性、
// 每个泊位至少有一个可停靠的物理舱位、立体工单引用两个不同舱位
func Validate(p *Problem) []ConstraintViolation {
	var violations []ConstraintViolation

	// move-connected 必须对称且反自反
	for key := range p.moveConnected {
		if key.a == key.b {
			violations = append(violations, ConstraintViolation{
				Predicate: "move-connected",
				Detail:    fmt.Sprintf("舱位 %s 与自身相连", key.a),
			})
		}
		if !p.moveConnected[pair{key.b, key.a}] {
			violations = append(violations, ConstraintViolation{
				Predicate: "move-connected",
				Detail:    fmt.Sprintf("(%s, %s) 成立但 (%s, %s) 不成立", key.a, key.b, key.b, key.a),
			})
		}
	}

	// locations-different 对每对不同舱位双向成立且对自身不成立
	for _, la := range p.Locations {
		for _, lb := range p.Locations {
			if la.ID == lb.ID {
				if p.LocationsDifferent(la.ID, lb.ID) {
					violations = append(violations, ConstraintViolation{
						Predicate: "locations-different",
						Detail:    fmt.Sprintf("对 (%s, %s) 不应成立", la.ID, lb.ID),
					})
				}
				continue
			}
			if !p.LocationsDifferent(la.ID, lb.ID) || !p.LocationsDifferent(lb.ID, la.ID) {
				violations = append(violations, ConstraintViolation{
					Predicate: "locations-different",
					Detail:    fmt.Sprintf("对 (%s, %s) 应双向成立", la.ID, lb.ID),
				})
			}
		}
	}

	// 每个泊位至少要有一个停靠连接的物理舱位
	for _, berth := range p.Berths {
		found := false
		for loc, b := range p.dockConnected {
			if b != berth {
				continue
			}
			if l, ok := p.locationByID[loc]; ok && l.Real {
				found = true
				break
			}
		}
		if !found {
			violations = append(violations, ConstraintViolation{
				Predicate: "dock-connected",
				Detail:    fmt.Sprintf("泊位 %s 没有任何可停靠的物理舱位", berth),
			})
		}
	}

	// 立体工单必须引用两个不同的舱位
	for _, g := range p.Goals {
		if g.Kind != GoalCompletedStereo {
			continue
		}
		if g.Location == g.Bound {
			violations = append(violations, ConstraintViolation{
				Predicate: "need-stereo",
				Detail:    fmt.Sprintf("立体工单 %s 的基准舱位与边界舱位相同: %s", g.Order, g.Location),
			})
		}
	}

	return violations
}

// addMoveConnectedDirected 仅测试用：绕过 BuildProblem 写入单向邻接关系，
// 以便验证 Validate 能发现破坏的对称性
func (p *Problem) addMoveConnectedDirected(a, b types.LocationID) {
	p.moveConnected[pair{a, b}] = true
}
