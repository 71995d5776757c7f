package domain

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"inspection-fleet-demo/internal/types"
)

// PlanStep 是外部规划器输出的一个有序动作
// 形如 `0.000: (undock bumble berth1 jem_bay7) [30.000]`
type PlanStep struct {
	Start    float64  // 计划开始时刻 (秒)
	Action   string   // 动作名称 (move / dock / undock / panorama / stereo ...)
	Args     []string // 动作参数，第一个通常是机器人
	Duration float64  // 计划持续时间 (秒)
}

// Robot 返回该步骤涉及的机器人（约定为第一个参数）
func (s PlanStep) Robot() types.RobotID {
	if len(s.Args) == 0 {
		return ""
	}
	return types.RobotID(s.Args[0])
}

// OrderKind 返回该步骤对应的巡检工单类型
// 移动/停靠类动作不是工单，返回 false
func (s PlanStep) OrderKind() (types.OrderKind, bool) {
	switch s.Action {
	case "panorama":
		return types.OrderPanorama, true
	case "stereo":
		return types.OrderStereo, true
	case "geometry":
		return types.OrderGeometry, true
	case "anomaly":
		return types.OrderAnomaly, true
	case "volumetric":
		return types.OrderVolumetric, true
	}
	return "", false
}

// ParsePlan 解析规划器输出的时序计划
// 空行与 ';' 注释行忽略；格式错误的行使整个计划解析失败，
// 计划是规划器的完整输出，任何一行坏掉都不可信
func ParsePlan(r io.Reader) ([]PlanStep, error) {
	var steps []PlanStep

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}

		step, err := parsePlanLine(line)
		if err != nil {
			return nil, fmt.Errorf("计划第 %d 行无效: %w", lineNo, err)
		}
		steps = append(steps, step)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取计划失败: %w", err)
	}
	return steps, nil
}

func parsePlanLine(line string) (PlanStep, error) {
	var step PlanStep

	colon := strings.Index(line, ":")
	open := strings.Index(line, "(")
	closing := strings.LastIndex(line, ")")
	if colon < 0 || open < colon || closing < open {
		return step, fmt.Errorf("缺少时间戳或动作括号: %q", line)
	}

	start, err := strconv.ParseFloat(strings.TrimSpace(line[:colon]), 64)
	if err != nil {
		return step, fmt.Errorf("时间戳解析失败: %w", err)
	}
	step.Start = start

	fields := strings.Fields(line[open+1 : closing])
	if len(fields) == 0 {
		return step, fmt.Errorf("动作为空: %q", line)
	}
	step.Action = fields[0]
	step.Args = fields[1:]

	// 持续时间部分 [d] 可选
	rest := strings.TrimSpace(line[closing+1:])
	if strings.HasPrefix(rest, "[") && strings.HasSuffix(rest, "]") {
		d, err := strconv.ParseFloat(strings.TrimSpace(rest[1:len(rest)-1]), 64)
		if err != nil {
			return step, fmt.Errorf("持续时间解析失败: %w", err)
		}
		step.Duration = d
	}
	return step, nil
}
