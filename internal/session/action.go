package session

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/andresmejia3/vigil/internal/types"
)

// ActionKind is a user command applied between frames.
type ActionKind int

const (
	ActionApply ActionKind = iota + 1
	ActionSave
	ActionEdit
	ActionDelete
	ActionUp
	ActionDown
	ActionSet
	ActionList
	ActionQuit
)

var actionVerbs = map[string]ActionKind{
	"apply":  ActionApply,
	"save":   ActionSave,
	"edit":   ActionEdit,
	"delete": ActionDelete,
	"up":     ActionUp,
	"down":   ActionDown,
	"set":    ActionSet,
	"list":   ActionList,
	"quit":   ActionQuit,
}

func (k ActionKind) String() string {
	for verb, kind := range actionVerbs {
		if kind == k {
			return verb
		}
	}
	return fmt.Sprintf("action(%d)", int(k))
}

type Action struct {
	Kind  ActionKind
	Name  string
	Value float64
}

// ParseAction reads one command line:
//
//	apply <name> | save <name> | delete <name> | edit <name> <value>
//	up | down | set <value> | list | quit
//
// Profile names may contain spaces; for edit the value is the last field.
func ParseAction(line string) (Action, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Action{}, fmt.Errorf("empty command: %w", types.ErrInvalidInput)
	}
	verb := strings.ToLower(fields[0])
	kind, ok := actionVerbs[verb]
	if !ok {
		return Action{}, fmt.Errorf("unknown command %q: %w", fields[0], types.ErrInvalidInput)
	}
	args := fields[1:]
	a := Action{Kind: kind}

	switch kind {
	case ActionApply, ActionSave, ActionDelete:
		if len(args) == 0 {
			return Action{}, fmt.Errorf("%s needs a profile name: %w", verb, types.ErrInvalidInput)
		}
		a.Name = strings.Join(args, " ")
	case ActionEdit:
		if len(args) < 2 {
			return Action{}, fmt.Errorf("edit needs a profile name and a value: %w", types.ErrInvalidInput)
		}
		v, err := parseValue(args[len(args)-1])
		if err != nil {
			return Action{}, err
		}
		a.Name = strings.Join(args[:len(args)-1], " ")
		a.Value = v
	case ActionSet:
		if len(args) != 1 {
			return Action{}, fmt.Errorf("set needs exactly one value: %w", types.ErrInvalidInput)
		}
		v, err := parseValue(args[0])
		if err != nil {
			return Action{}, err
		}
		a.Value = v
	default:
		if len(args) != 0 {
			return Action{}, fmt.Errorf("%s takes no arguments: %w", verb, types.ErrInvalidInput)
		}
	}
	return a, nil
}

func parseValue(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number: %w", s, types.ErrInvalidInput)
	}
	return v, nil
}
