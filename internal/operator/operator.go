package operator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/chzyer/readline"

	"inspection-fleet-demo/internal/types"
)

// Dispatcher 是操作员指令的接收方（执行引擎的派发入口）
type Dispatcher interface {
	Dispatch(ctx context.Context, cmds ...types.Command) error
}

// Menu 是操作员可用指令的提示文本
const Menu = `Available actions:
0) Exit
1) Pause
2) Resume
3) Repeat
4) Skip
5) Save
Specify the number of the command to publish and hit 'enter'.`

// tokenCommands 将单行整数指令映射为派发指令；0 = Exit 单独处理
var tokenCommands = map[int]types.Command{
	1: types.CmdPause,
	2: types.CmdResume,
	3: types.CmdRepeat,
	4: types.CmdSkip,
	5: types.CmdSave,
}

// ParseToken 解析一行操作员输入
// 返回 (command, exit, err)：无法识别的输入返回错误，调用方重新提示
func ParseToken(line string) (types.Command, bool, error) {
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return "", false, fmt.Errorf("invalid option")
	}
	if n == 0 {
		return "", true, nil
	}
	cmd, ok := tokenCommands[n]
	if !ok {
		return "", false, fmt.Errorf("invalid option")
	}
	return cmd, false, nil
}

// Loop 是操作员输入任务：阻塞读取单行指令并派发给执行引擎
// 读到 Exit 或共享停止标志置位后返回；由调用方 join
type Loop struct {
	rl     *readline.Instance
	stop   *atomic.Bool
	logger *slog.Logger
}

// NewLoop 创建操作员输入循环
func NewLoop(stop *atomic.Bool, logger *slog.Logger) (*Loop, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "",
		EOFPrompt:       "",
	})
	if err != nil {
		return nil, err
	}
	return &Loop{rl: rl, stop: stop, logger: logger.With("component", "operator")}, nil
}

// Run 持续读取指令直到 Exit 或停止标志置位
// 每个被识别的指令都通过线程安全的派发入口进入状态机
func (l *Loop) Run(ctx context.Context, d Dispatcher) {
	fmt.Println(Menu)
	for !l.stop.Load() {
		line, err := l.rl.Readline()
		if err != nil {
			// 输入通道关闭 (EOF / 中断)，等同于退出
			l.stop.Store(true)
			return
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		cmd, exit, err := ParseToken(line)
		if err != nil {
			fmt.Println("Invalid option")
			continue
		}
		if exit {
			fmt.Printf("Input: %s - Exiting\n", strings.TrimSpace(line))
			l.stop.Store(true)
			return
		}

		fmt.Printf("Input: %s - %s\n", strings.TrimSpace(line), cmd)
		if err := d.Dispatch(ctx, cmd); err != nil {
			l.logger.Warn("指令派发被拒绝", "command", cmd, "error", err)
			fmt.Printf("Command rejected: %v\n", err)
		}
	}
}

// Close 释放终端资源
func (l *Loop) Close() {
	if l.rl != nil {
		_ = l.rl.Close()
	}
}
