package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/andresmejia3/vigil/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		line string
		want Action
	}{
		{"apply Night", Action{Kind: ActionApply, Name: "Night"}},
		{"  SAVE  Late Shift ", Action{Kind: ActionSave, Name: "Late Shift"}},
		{"delete Night", Action{Kind: ActionDelete, Name: "Night"}},
		{"edit Late Shift 0.27", Action{Kind: ActionEdit, Name: "Late Shift", Value: 0.27}},
		{"up", Action{Kind: ActionUp}},
		{"down", Action{Kind: ActionDown}},
		{"set 0.3", Action{Kind: ActionSet, Value: 0.3}},
		{"list", Action{Kind: ActionList}},
		{"quit", Action{Kind: ActionQuit}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseAction(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAction_Rejects(t *testing.T) {
	for _, line := range []string{"", "jump", "apply", "edit Night", "edit Night high", "set", "set 0.2 0.3", "up 2", "quit now"} {
		_, err := ParseAction(line)
		assert.True(t, errors.Is(err, types.ErrInvalidInput), "%q: %v", line, err)
	}
}

func TestReadActions(t *testing.T) {
	var out strings.Builder
	in := strings.NewReader("up\n\nbogus\nset 0.25\n")
	var got []Action
	for a := range ReadActions(context.Background(), in, &out) {
		got = append(got, a)
	}
	assert.Equal(t, []Action{{Kind: ActionUp}, {Kind: ActionSet, Value: 0.25}}, got)
	assert.Contains(t, out.String(), "unknown command")
}

func TestActionKindString(t *testing.T) {
	assert.Equal(t, "edit", ActionEdit.String())
	assert.Equal(t, "action(99)", ActionKind(99).String())
}
