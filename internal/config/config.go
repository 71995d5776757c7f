package config

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/viper"

	"inspection-fleet-demo/internal/domain"
	"inspection-fleet-demo/internal/types"
)

// LocationConfig 定义一个舱位节点
type LocationConfig struct {
	ID   string `mapstructure:"id"`
	Real bool   `mapstructure:"real"` // 是否为机器人可占据的物理舱位
}

// RobotConfig 定义一台机器人及其初始位置
type RobotConfig struct {
	ID       string `mapstructure:"id"`
	Location string `mapstructure:"location"`
}

// OrderConfig 定义一个巡检工单
type OrderConfig struct {
	ID       string `mapstructure:"id"`
	Identity int    `mapstructure:"identity"` // 与指派无关的稳定关联键
	Kind     string `mapstructure:"kind"`     // panorama / stereo / geometry / anomaly / volumetric
}

// DockConfig 定义舱位与泊位的停靠连接
type DockConfig struct {
	Location string `mapstructure:"location"`
	Berth    string `mapstructure:"berth"`
}

// GoalConfig 定义任务目标合取式中的一个谓词
type GoalConfig struct {
	Type     string `mapstructure:"type"` // panorama / stereo / robot_at
	Robot    string `mapstructure:"robot"`
	Order    string `mapstructure:"order,omitempty"`
	Location string `mapstructure:"location"`
	Bound    string `mapstructure:"bound,omitempty"` // 仅 stereo：边界舱位
}

// PanoConfig 定义全景覆盖规划参数（角度单位为度，内部转换为弧度）
type PanoConfig struct {
	PanRadiusDeg  float64 `mapstructure:"pan_radius_deg"`
	TiltRadiusDeg float64 `mapstructure:"tilt_radius_deg"`
	HFovDeg       float64 `mapstructure:"h_fov_deg"`
	VFovDeg       float64 `mapstructure:"v_fov_deg"`
	Overlap       float64 `mapstructure:"overlap"`
	ToleranceDeg  float64 `mapstructure:"tolerance_deg"`
}

// TimeoutConfig 定义各阶段独立的超时预算（秒）
// deadline <= 0 表示不设总时限
type TimeoutConfig struct {
	ConnectSec  float64 `mapstructure:"connect_sec"`
	ActiveSec   float64 `mapstructure:"active_sec"`
	ResponseSec float64 `mapstructure:"response_sec"`
	DeadlineSec float64 `mapstructure:"deadline_sec"`
}

// Connect 返回连接阶段超时
func (t TimeoutConfig) Connect() time.Duration { return secToDuration(t.ConnectSec) }

// Active 返回激活阶段超时
func (t TimeoutConfig) Active() time.Duration { return secToDuration(t.ActiveSec) }

// Response 返回反馈间隔超时
func (t TimeoutConfig) Response() time.Duration { return secToDuration(t.ResponseSec) }

// Deadline 返回总时限，<= 0 时返回 0 表示不限
func (t TimeoutConfig) Deadline() time.Duration {
	if t.DeadlineSec <= 0 {
		return 0
	}
	return secToDuration(t.DeadlineSec)
}

func secToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}

// Config 定义应用程序的配置结构
// 使用 mapstructure 标签来映射配置文件中的字段
type Config struct {
	Locations []LocationConfig  `mapstructure:"locations"`
	Adjacency [][]string        `mapstructure:"adjacency"` // 对称邻接关系，只需写一个方向
	Docks     []DockConfig      `mapstructure:"docks"`
	Robots    []RobotConfig     `mapstructure:"robots"`
	Orders    []OrderConfig     `mapstructure:"orders"`
	Goals     []GoalConfig      `mapstructure:"goals"`
	Frame     string            `mapstructure:"frame"`      // 位姿参考坐标系标签
	PoseFiles map[string]string `mapstructure:"pose_files"` // 工单类型(小写) -> 位姿文件路径
	Pano      PanoConfig        `mapstructure:"pano"`
	Timeouts  TimeoutConfig     `mapstructure:"timeouts"`
	StepRules map[string]string `mapstructure:"step_rules"` // 动作名 -> expr 规则表达式
	Remote    string            `mapstructure:"remote"`     // 远程执行器地址 (ws://...)
	PlanFile  string            `mapstructure:"plan_file"`  // 规划器输出的计划文件
	Journal   string            `mapstructure:"journal"`    // 进度日志路径
}

// LoadConfig 从 config.yaml 文件加载配置
// 使用 Viper 库来读取和解析配置文件
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config") // 配置文件名称 (不带扩展名)
	viper.SetConfigType("yaml")   // 配置文件类型
	viper.AddConfigPath(".")      // 查找配置文件的路径 (当前目录)

	// 设置默认值
	viper.SetDefault("frame", "sci_cam")
	viper.SetDefault("journal", "progress.journal")
	viper.SetDefault("timeouts.connect_sec", 10.0)
	viper.SetDefault("timeouts.active_sec", 10.0)
	viper.SetDefault("timeouts.response_sec", 200.0)
	viper.SetDefault("timeouts.deadline_sec", -1.0)
	viper.SetDefault("pano.overlap", 0.5)
	viper.SetDefault("pano.tolerance_deg", 0.1)

	// 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 将配置解析到结构体中
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return &cfg, nil
}

const deg2rad = math.Pi / 180.0

// PanRadius 返回弧度制的全景参数
func (p PanoConfig) PanRadius() float64  { return p.PanRadiusDeg * deg2rad }
func (p PanoConfig) TiltRadius() float64 { return p.TiltRadiusDeg * deg2rad }
func (p PanoConfig) HFov() float64       { return p.HFovDeg * deg2rad }
func (p PanoConfig) VFov() float64       { return p.VFovDeg * deg2rad }
func (p PanoConfig) Tolerance() float64  { return p.ToleranceDeg * deg2rad }

// ToProblem 将配置转换为规划问题实例
// 转换过程中的一致性错误原样返回（ConfigurationError）
func (c *Config) ToProblem() (*domain.Problem, error) {
	locations := make([]domain.Location, len(c.Locations))
	for i, l := range c.Locations {
		locations[i] = domain.Location{ID: types.LocationID(l.ID), Real: l.Real}
	}

	robots := make([]domain.RobotState, len(c.Robots))
	for i, r := range c.Robots {
		robots[i] = domain.RobotState{ID: types.RobotID(r.ID), Location: types.LocationID(r.Location)}
	}

	orders := make([]domain.Order, len(c.Orders))
	for i, o := range c.Orders {
		kind, err := parseOrderKind(o.Kind)
		if err != nil {
			return nil, err
		}
		orders[i] = domain.Order{ID: types.OrderID(o.ID), Identity: o.Identity, Kind: kind}
	}

	adjacency := make([][2]types.LocationID, 0, len(c.Adjacency))
	for _, edge := range c.Adjacency {
		if len(edge) != 2 {
			return nil, fmt.Errorf("邻接关系必须是两个舱位: %v", edge)
		}
		adjacency = append(adjacency, [2]types.LocationID{types.LocationID(edge[0]), types.LocationID(edge[1])})
	}

	docks := make([]domain.Dock, len(c.Docks))
	for i, d := range c.Docks {
		docks[i] = domain.Dock{Location: types.LocationID(d.Location), Berth: types.BerthID(d.Berth)}
	}

	goals := make([]domain.GoalPredicate, 0, len(c.Goals))
	for _, g := range c.Goals {
		pred := domain.GoalPredicate{
			Robot:    types.RobotID(g.Robot),
			Order:    types.OrderID(g.Order),
			Location: types.LocationID(g.Location),
			Bound:    types.LocationID(g.Bound),
		}
		switch g.Type {
		case "panorama":
			pred.Kind = domain.GoalCompletedPanorama
		case "stereo":
			pred.Kind = domain.GoalCompletedStereo
		case "robot_at":
			pred.Kind = domain.GoalRobotAt
		default:
			return nil, fmt.Errorf("未知的目标类型: %s", g.Type)
		}
		goals = append(goals, pred)
	}

	return domain.BuildProblem(locations, robots, orders, adjacency, docks, goals)
}

func parseOrderKind(kind string) (types.OrderKind, error) {
	switch kind {
	case "panorama":
		return types.OrderPanorama, nil
	case "stereo":
		return types.OrderStereo, nil
	case "geometry":
		return types.OrderGeometry, nil
	case "anomaly":
		return types.OrderAnomaly, nil
	case "volumetric":
		return types.OrderVolumetric, nil
	}
	return "", fmt.Errorf("未知的工单类型: %s", kind)
}
