package pose

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"inspection-fleet-demo/internal/types"
)

const deg2rad = math.Pi / 180.0

// ReadFile 从位姿列表文件中读取巡检位姿序列
// 文件格式：每行一个位姿；'#' 开头或空白行忽略；
// 7 个数值字段 = 位置 + 四元数；6 个数值字段 = 位置 + 欧拉角（度）
// 其他非空行跳过并记录告警，不中断整个文件的读取
func ReadFile(path string, logger *slog.Logger) ([]types.Pose, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("无法打开位姿文件 %s: %w", path, err)
	}
	defer f.Close()
	return Read(f, logger.With("pose_file", path))
}

// Read 从任意输入流读取位姿序列，返回位姿列表和被跳过的格式错误行数
func Read(r io.Reader, logger *slog.Logger) ([]types.Pose, int, error) {
	var poses []types.Pose
	skipped := 0

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if isBlankOrComment(line) {
			continue
		}

		p, ok := parseLine(line)
		if !ok {
			skipped++
			logger.Warn("忽略无效的位姿行", "line_no", lineNo, "line", line)
			continue
		}
		poses = append(poses, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("读取位姿文件失败: %w", err)
	}
	return poses, skipped, nil
}

// isBlankOrComment 判断一行是否为空白或注释
// 遇到 '#' 即视为注释行，无需再检查后续字符
func isBlankOrComment(line string) bool {
	for _, c := range line {
		if c == '#' {
			return true
		}
		if c != ' ' && c != '\t' && c != '\r' && c != '\n' {
			return false
		}
	}
	return true
}

// parseLine 解析一行位姿数据
// 先按 7 字段（四元数）解析，失败再按 6 字段（欧拉角）解析；顺序不可调换，
// 否则部分畸形输入的解析结果会发生变化
func parseLine(line string) (types.Pose, bool) {
	fields := strings.Fields(line)

	nums := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			break
		}
		nums = append(nums, v)
	}

	// 超出 7 个数值之后的内容忽略，与原始工具的流式解析行为一致
	if len(nums) >= 7 {
		return types.Pose{
			X: nums[0], Y: nums[1], Z: nums[2],
			Orientation: types.Quaternion{X: nums[3], Y: nums[4], Z: nums[5], W: nums[6]},
		}, true
	}
	if len(nums) >= 6 {
		return types.Pose{
			X: nums[0], Y: nums[1], Z: nums[2],
			Orientation: FromRPY(nums[3]*deg2rad, nums[4]*deg2rad, nums[5]*deg2rad),
		}, true
	}
	return types.Pose{}, false
}

// FromRPY 将欧拉角（roll/pitch/yaw，弧度，ZYX 顺序）转换为四元数
func FromRPY(roll, pitch, yaw float64) types.Quaternion {
	hr, hp, hy := roll/2, pitch/2, yaw/2
	sr, cr := math.Sin(hr), math.Cos(hr)
	sp, cp := math.Sin(hp), math.Cos(hp)
	sy, cy := math.Sin(hy), math.Cos(hy)

	return types.Quaternion{
		X: sr*cp*cy - cr*sp*sy,
		Y: cr*sp*cy + sr*cp*sy,
		Z: cr*cp*sy - sr*sp*cy,
		W: cr*cp*cy + sr*sp*sy,
	}
}
