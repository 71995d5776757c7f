package persistence

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"

	"inspection-fleet-demo/internal/types"
)

// ProgressRecord 是一次 Save 指令持久化的任务进度
type ProgressRecord struct {
	MissionID string          `json:"mission_id"`
	Robot     types.RobotID   `json:"robot"`
	Order     types.OrderID   `json:"order"`
	Kind      types.OrderKind `json:"kind"`
	PoseIdx   int             `json:"pose_idx"`  // 当前执行到的位姿下标
	PoseDone  int             `json:"pose_done"` // 已完成的位姿数量
	PoseTotal int             `json:"pose_total"`
}

// LogEntry 代表日志文件中的一条记录
type LogEntry struct {
	Type      string          `json:"type"`                 // 记录类型: "SAVE" (进度) 或 "COMPLETE" (任务结束)
	Progress  *ProgressRecord `json:"progress,omitempty"`   // 如果是进度记录，包含完整的进度数据
	MissionID string          `json:"mission_id,omitempty"` // 如果是任务结束，只包含任务 ID
}

// Journal 实现了简单的追加式进度日志，支撑 Save 指令和启动恢复
type Journal struct {
	file *os.File   // 日志文件句柄
	mu   sync.Mutex // 互斥锁，保证文件写入的原子性
}

// NewJournal 创建或打开一个进度日志文件
func NewJournal(path string) (*Journal, error) {
	// O_APPEND: 追加写入, O_CREATE: 文件不存在则创建, O_RDWR: 读写模式
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	return &Journal{file: file}, nil
}

// Save 将一条任务进度写入日志
func (j *Journal) Save(rec ProgressRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry := LogEntry{Type: "SAVE", Progress: &rec}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	// 写入数据并在末尾添加换行符
	_, err = j.file.Write(append(data, '\n'))
	if err != nil {
		return err
	}
	// 确保数据被刷新到磁盘，防止数据丢失
	return j.file.Sync()
}

// Complete 在日志中标记一个任务已结束
func (j *Journal) Complete(missionID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry := LogEntry{Type: "COMPLETE", MissionID: missionID}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	_, err = j.file.Write(append(data, '\n'))
	if err != nil {
		return err
	}
	return j.file.Sync()
}

// Recover 从日志文件中恢复未结束任务的最后一次保存进度
// 在系统启动时调用；同一任务多次保存时以最后一条为准
func (j *Journal) Recover() ([]ProgressRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	// 将文件指针移动到开头以进行读取
	if _, err := j.file.Seek(0, 0); err != nil {
		return nil, err
	}

	saved := make(map[string]ProgressRecord) // 任务 ID -> 最后一次保存的进度
	var order []string                       // 保持首次出现顺序，输出确定
	completed := make(map[string]bool)       // 已结束的任务 ID

	scanner := bufio.NewScanner(j.file)
	for scanner.Scan() {
		var entry LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			// 忽略损坏的行
			continue
		}

		switch entry.Type {
		case "SAVE":
			if entry.Progress == nil {
				continue
			}
			if _, seen := saved[entry.Progress.MissionID]; !seen {
				order = append(order, entry.Progress.MissionID)
			}
			saved[entry.Progress.MissionID] = *entry.Progress
		case "COMPLETE":
			completed[entry.MissionID] = true
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// 找出所有保存过进度但未结束的任务
	var pending []ProgressRecord
	for _, id := range order {
		if !completed[id] {
			pending = append(pending, saved[id])
		}
	}

	// 恢复文件指针到末尾，以便后续追加写入
	if _, err := j.file.Seek(0, os.SEEK_END); err != nil {
		return nil, err
	}

	return pending, nil
}

// Close 关闭日志文件
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}
