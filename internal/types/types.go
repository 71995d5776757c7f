package types

// RobotID 定义巡检机器人 ID
// 使用字符串类型，方便在日志和配置中直接使用
type RobotID string

// LocationID 定义舱位 ID（图上的节点，可能是真实舱位也可能是虚拟节点）
type LocationID string

// BerthID 定义泊位 ID（机器人任务起止的停靠点）
type BerthID string

// OrderID 定义巡检工单 ID (e.g. "o0", "o1")
type OrderID string

// IdleOrder 表示机器人空闲时 robot-order 函数的哨兵值
const IdleOrder = -1

// OrderKind 定义巡检工单的类型
type OrderKind string

const (
	OrderPanorama   OrderKind = "PANORAMA"   // 全景拍摄：按覆盖规划生成云台姿态序列
	OrderStereo     OrderKind = "STEREO"     // 立体巡视：需要访问两个不同的舱位
	OrderGeometry   OrderKind = "GEOMETRY"   // 几何建图：按预置位姿列表采集
	OrderAnomaly    OrderKind = "ANOMALY"    // 异常检查：对目标位姿逐一做分类判定
	OrderVolumetric OrderKind = "VOLUMETRIC" // 体积扫描：信号场/体积数据采集
)

// Command 定义下发给远程执行器的指令类型
// 每次派发必须且只能携带其中一种
type Command string

const (
	CmdPause      Command = "PAUSE"  // 暂停当前巡检
	CmdResume     Command = "RESUME" // 恢复巡检
	CmdRepeat     Command = "REPEAT" // 重做上一个已完成的位姿
	CmdSkip       Command = "SKIP"   // 跳过当前位姿
	CmdSave       Command = "SAVE"   // 保存当前进度
	CmdAnomaly    Command = "ANOMALY"
	CmdGeometry   Command = "GEOMETRY"
	CmdPanorama   Command = "PANORAMA"
	CmdVolumetric Command = "VOLUMETRIC"
)

// IsOrderKind 判断指令是否为工单类指令（需要携带位姿序列）
func (c Command) IsOrderKind() bool {
	switch c {
	case CmdAnomaly, CmdGeometry, CmdPanorama, CmdVolumetric:
		return true
	}
	return false
}

// Quaternion 表示姿态四元数
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Pose 表示一个巡检位姿：位置 + 姿态
type Pose struct {
	X           float64    `json:"x"`
	Y           float64    `json:"y"`
	Z           float64    `json:"z"`
	Orientation Quaternion `json:"orientation"`
}

// Goal 是下发给远程执行器的一个目标
// 工单类指令携带位姿序列和参考坐标系；控制类指令只携带 Command
type Goal struct {
	Command Command `json:"command"`
	Frame   string  `json:"frame,omitempty"` // 位姿的参考坐标系标签 (e.g. "sci_cam")
	Poses   []Pose  `json:"poses,omitempty"`
	TraceID string  `json:"trace_id,omitempty"` // 链路追踪 ID，跨进程透传
}

// Feedback 是远程执行器回传的过程反馈
// 四个标签均为不透明字符串，原样透出给操作员
type Feedback struct {
	Event    string `json:"event"`
	State    string `json:"state"`
	Subevent string `json:"subevent"`
	Substate string `json:"substate"`
	PoseIdx  int    `json:"pose_idx"`  // 当前执行到的位姿下标
	PoseDone int    `json:"pose_done"` // 已完成的位姿数量
}

// ResultCode 定义终态结果码
type ResultCode string

const (
	ResultSuccess   ResultCode = "SUCCESS"
	ResultPreempted ResultCode = "PREEMPTED"
	ResultAborted   ResultCode = "ABORTED"
	ResultTimedOut  ResultCode = "TIMED_OUT"
)

// TimeoutPhase 标记超时发生在哪个阶段
type TimeoutPhase string

const (
	PhaseConnect  TimeoutPhase = "CONNECT"
	PhaseActive   TimeoutPhase = "ACTIVE"
	PhaseResponse TimeoutPhase = "RESPONSE"
	PhaseDeadline TimeoutPhase = "DEADLINE"
)

// 几何类工单逐位姿采集状态码
const (
	PicNotAcquired = 0 // 未采集
	PicAcquired    = 1 // 图像已采集并处理
)

// InspectionOver 是"巡检全部结束"的哨兵结果语，收到后进程停止接收指令
const InspectionOver = "Inspection Over"

// Result 是远程执行器回传的终态结果
// AnomalyResults / GeometryResults 只在对应类型的工单中出现
type Result struct {
	Code            ResultCode   `json:"code"`
	Phase           TimeoutPhase `json:"phase,omitempty"`            // 仅 TIMED_OUT 时有效
	Summary         string       `json:"summary"`                    // 人类可读的结束说明
	Response        int          `json:"response"`                   // 数字响应码
	AnomalyResults  []string     `json:"anomaly_results,omitempty"`  // 逐位姿分类判定
	GeometryResults []int        `json:"geometry_results,omitempty"` // 逐位姿采集状态
}
