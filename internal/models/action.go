package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Action is the kind of change being audited.
type Action string

const (
	ActionCreated Action = "Created"
	ActionUpdated Action = "Updated"
	ActionDeleted Action = "Deleted"
)

// actionOrdinals keeps the numeric wire form accepted from older clients.
var actionOrdinals = []Action{ActionCreated, ActionUpdated, ActionDeleted}

// Actions lists the known actions in ordinal order.
func Actions() []Action {
	return append([]Action(nil), actionOrdinals...)
}

func (a Action) Valid() bool {
	switch a {
	case ActionCreated, ActionUpdated, ActionDeleted:
		return true
	}
	return false
}

func (a Action) String() string { return string(a) }

// ParseAction accepts an action name (any case) or its ordinal ("0", "1", "2").
func ParseAction(s string) (Action, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n >= len(actionOrdinals) {
			return "", fmt.Errorf("unknown action %d", n)
		}
		return actionOrdinals[n], nil
	}
	for _, a := range actionOrdinals {
		if strings.EqualFold(s, string(a)) {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", s)
}

func (a *Action) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseAction(s)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("action must be a name or an ordinal: %w", err)
	}
	parsed, err := ParseAction(strconv.Itoa(n))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
