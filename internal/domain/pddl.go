package domain

import (
	"fmt"
	"sort"
	"strings"

	"inspection-fleet-demo/internal/types"
)

// PDDL 将问题实例序列化为外部规划器消费的 PDDL 问题文本
// 输出顺序固定（对象、init 谓词、数值函数、目标合取式），相同输入
// 产生字节一致的文本
func (p *Problem) PDDL(name, domainName string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("(define (problem %s)\n", name))
	sb.WriteString(fmt.Sprintf("    (:domain %s)\n", domainName))
	sb.WriteString("    (:metric minimize (total-time))\n")

	// 对象声明
	sb.WriteString("    (:objects\n")
	sb.WriteString("        " + strings.Join(p.locationNames(), " ") + " - location\n")
	sb.WriteString("        " + strings.Join(p.berthNames(), " ") + " - location\n")
	sb.WriteString("        " + strings.Join(p.robotNames(), " ") + " - robot\n")
	sb.WriteString("        " + strings.Join(p.orderNames(), " ") + " - order\n")
	sb.WriteString("    )\n")

	// 初始状态
	sb.WriteString("    (:init\n")
	for _, line := range p.initLines() {
		sb.WriteString("        " + line + "\n")
	}
	sb.WriteString("    )\n")

	// 目标合取式
	sb.WriteString("    (:goal\n        (and\n")
	for _, g := range p.Goals {
		sb.WriteString("            " + goalLine(g) + "\n")
	}
	sb.WriteString("        )\n    )\n")
	sb.WriteString(")\n")
	return sb.String()
}

// initLines 按生成器的固定顺序产出 init 段的全部谓词和数值函数
func (p *Problem) initLines() []string {
	var lines []string

	// move-connected：按字典序输出每个有向对
	var edges []pair
	for key := range p.moveConnected {
		edges = append(edges, key)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].a != edges[j].a {
			return edges[i].a < edges[j].a
		}
		return edges[i].b < edges[j].b
	})
	for _, e := range edges {
		lines = append(lines, fmt.Sprintf("(move-connected %s %s)", e.a, e.b))
	}

	// location-real：仅物理舱位
	for _, loc := range p.Locations {
		if loc.Real {
			lines = append(lines, fmt.Sprintf("(location-real %s)", loc.ID))
		}
	}

	// dock-connected
	var dockLocs []string
	for loc := range p.dockConnected {
		dockLocs = append(dockLocs, string(loc))
	}
	sort.Strings(dockLocs)
	for _, loc := range dockLocs {
		lines = append(lines, fmt.Sprintf("(dock-connected %s %s)", loc, p.dockConnected[types.LocationID(loc)]))
	}

	// robots-different：全部不同机器人有序对
	for _, a := range p.Robots {
		for _, b := range p.Robots {
			if a.ID != b.ID {
				lines = append(lines, fmt.Sprintf("(robots-different %s %s)", a.ID, b.ID))
			}
		}
	}

	// locations-different：全部不同舱位有序对（含泊位）
	names := p.allLocationNames()
	for _, a := range names {
		for _, b := range names {
			if a != b {
				lines = append(lines, fmt.Sprintf("(locations-different %s %s)", a, b))
			}
		}
	}

	// robot-available / robot-at
	for _, r := range p.Robots {
		lines = append(lines, fmt.Sprintf("(robot-available %s)", r.ID))
	}
	for _, r := range p.Robots {
		lines = append(lines, fmt.Sprintf("(robot-at %s %s)", r.ID, r.Location))
	}

	// location-available：初始未被占据的位置
	for _, loc := range p.availableLocations() {
		lines = append(lines, fmt.Sprintf("(location-available %s)", loc))
	}

	// need-stereo：由 completed-stereo 目标派生
	for _, g := range p.Goals {
		if g.Kind == GoalCompletedStereo {
			lines = append(lines, fmt.Sprintf("(need-stereo %s %s %s %s)", g.Robot, g.Order, g.Location, g.Bound))
		}
	}

	// 数值函数：工单关联键与机器人当前工单（空闲哨兵值）
	for _, o := range p.Orders {
		lines = append(lines, fmt.Sprintf("(= (order-identity %s) %d)", o.ID, o.Identity))
	}
	for _, r := range p.Robots {
		lines = append(lines, fmt.Sprintf("(= (robot-order %s) %d)", r.ID, types.IdleOrder))
	}

	return lines
}

func goalLine(g GoalPredicate) string {
	switch g.Kind {
	case GoalCompletedPanorama:
		return fmt.Sprintf("(completed-panorama %s %s %s)", g.Robot, g.Order, g.Location)
	case GoalCompletedStereo:
		return fmt.Sprintf("(completed-stereo %s %s %s %s)", g.Robot, g.Order, g.Location, g.Bound)
	case GoalRobotAt:
		return fmt.Sprintf("(robot-at %s %s)", g.Robot, g.Location)
	}
	return ""
}

func (p *Problem) locationNames() []string {
	names := make([]string, len(p.Locations))
	for i, loc := range p.Locations {
		names[i] = string(loc.ID)
	}
	sort.Strings(names)
	return names
}

func (p *Problem) berthNames() []string {
	names := make([]string, len(p.Berths))
	for i, b := range p.Berths {
		names[i] = string(b)
	}
	return names
}

func (p *Problem) allLocationNames() []string {
	names := p.locationNames()
	names = append(names, p.berthNames()...)
	sort.Strings(names)
	return names
}

func (p *Problem) robotNames() []string {
	names := make([]string, len(p.Robots))
	for i, r := range p.Robots {
		names[i] = string(r.ID)
	}
	return names
}

func (p *Problem) orderNames() []string {
	names := make([]string, len(p.Orders))
	for i, o := range p.Orders {
		names[i] = string(o.ID)
	}
	return names
}
