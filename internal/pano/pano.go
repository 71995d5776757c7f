package pano

import (
	"fmt"
	"math"
)

// Attitude 表示全景序列中的一个云台姿态（单张图像的中心指向）
// 全景中心固定在 pan, tilt = 0, 0，实际朝向由参考位姿决定
type Attitude struct {
	Pan  float64 // 水平角 (弧度)
	Tilt float64 // 俯仰角 (弧度)
	Iy   int     // 行下标，0 = 最底行（最小 tilt）
	Ix   int     // 列下标，0 = 最左列（最小 pan）
}

// ComputeOrientations 根据期望的角度覆盖范围计算全景姿态序列
// 纯函数：相同输入永远产生相同的输出序列，这是规划可复现性的前提
//
// panRadius/tiltRadius: 覆盖 -radius .. +radius 的角度范围 (弧度)
// hFov/vFov: 相机水平/垂直视场角 (弧度)
// overlap: 相邻图像之间要求的最小重叠比例，0 <= overlap < 1
// tolerance: 姿态误差容忍度 (弧度)，即使相邻姿态偏差不超过该值仍保证覆盖
//
// 返回姿态序列（自底行向上逐行排列，行内按 pan 递增）以及行数、列数
func ComputeOrientations(panRadius, tiltRadius, hFov, vFov, overlap, tolerance float64) ([]Attitude, int, int, error) {
	if panRadius <= 0 || tiltRadius <= 0 || hFov <= 0 || vFov <= 0 {
		return nil, 0, 0, fmt.Errorf("无效的全景参数: 角度范围和视场角必须为正")
	}
	if overlap < 0 || overlap >= 1 {
		return nil, 0, 0, fmt.Errorf("无效的重叠比例: %v (要求 0 <= overlap < 1)", overlap)
	}
	if tolerance < 0 {
		return nil, 0, 0, fmt.Errorf("无效的容忍度: %v (要求 tolerance >= 0)", tolerance)
	}
	// 有效步长必须为正，否则无法用有限张图像满足重叠要求
	if hFov*(1-overlap)-tolerance <= 0 || vFov*(1-overlap)-tolerance <= 0 {
		return nil, 0, 0, fmt.Errorf("重叠比例与容忍度组合导致步长非正")
	}

	panCenters := axisCenters(panRadius, hFov, overlap, tolerance)
	tiltCenters := axisCenters(tiltRadius, vFov, overlap, tolerance)

	nrows := len(tiltCenters)
	ncols := len(panCenters)

	// 行优先输出：底行 (iy=0) 的所有列先出，便于物理执行时每行做一次连续的
	// pan 扫描，减少云台换向次数
	out := make([]Attitude, 0, nrows*ncols)
	for iy, tilt := range tiltCenters {
		for ix, pan := range panCenters {
			out = append(out, Attitude{Pan: pan, Tilt: tilt, Iy: iy, Ix: ix})
		}
	}
	return out, nrows, ncols, nil
}

// axisCenters 计算单轴上的图像中心序列
// 若单张图像即可覆盖整个范围，中心取 0；否则边界图像恰好覆盖到
// ±(radius + tolerance)，其余图像等间距分布
func axisCenters(radius, fov, overlap, tol float64) []float64 {
	w := 2 * radius
	if w+2*tol-fov < 0 {
		// 范围小于视场角：一张即可，居中
		return []float64{0}
	}

	// 覆盖充分性条件: stride <= fov*(1-overlap) - tol
	// 边界约束: (n-1)*stride + fov = w + 2*tol
	// 联立取最小整数 n
	n := int(math.Ceil((w+2*tol-fov)/(fov*(1-overlap)-tol))) + 1
	if n < 2 {
		// w + 2*tol == fov 的临界情形
		return []float64{0}
	}

	first := -(radius + tol) + fov/2
	step := (w + 2*tol - fov) / float64(n-1)

	centers := make([]float64, n)
	for i := range centers {
		centers[i] = first + float64(i)*step
	}
	return centers
}
