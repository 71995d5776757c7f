package operator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inspection-fleet-demo/internal/types"
)

func TestParseToken(t *testing.T) {
	cases := []struct {
		input string
		cmd   types.Command
		exit  bool
	}{
		{"1", types.CmdPause, false},
		{"2", types.CmdResume, false},
		{"3", types.CmdRepeat, false},
		{"4", types.CmdSkip, false},
		{"5", types.CmdSave, false},
		{"0", "", true},
		{"  4  ", types.CmdSkip, false}, // 前后空白被忽略
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			cmd, exit, err := ParseToken(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.cmd, cmd)
			assert.Equal(t, tc.exit, exit)
		})
	}
}

func TestParseToken_Invalid(t *testing.T) {
	for _, input := range []string{"", "abc", "6", "-1", "1.5", "pause"} {
		t.Run(input, func(t *testing.T) {
			_, _, err := ParseToken(input)
			assert.Error(t, err, "输入 %q 应被拒绝", input)
		})
	}
}
