package core

import (
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"hbuild/internal/types"
)

// ParseMessage splits a broker body into its operation and payload at the
// first colon.
func ParseMessage(body string) (types.Message, error) {
	op, payload, ok := strings.Cut(strings.TrimSpace(body), ":")
	if !ok {
		return types.Message{}, invalidMessage(body)
	}
	msg := types.Message{Op: types.MessageOp(op), Payload: payload}
	switch msg.Op {
	case types.MessageOpBuild, types.MessageOpExecute, types.MessageOpLog, types.MessageOpResultGraph:
		return msg, nil
	}
	return types.Message{}, invalidMessage(body)
}

// ParseIdentities reads the comma-separated identity list of a build or
// execute payload.
func ParseIdentities(payload string) []string {
	var ids []string
	for _, part := range strings.Split(payload, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func BuildMessage(ids []string) types.Message {
	return types.Message{Op: types.MessageOpBuild, Payload: strings.Join(ids, ",")}
}

// ExecuteMessage carries a build order and, after a semicolon, the units
// that were explicitly requested. Runners rebuild those even when they are
// already installed.
func ExecuteMessage(order []string, selected []string) types.Message {
	payload := strings.Join(order, ",")
	if len(selected) > 0 {
		payload += ";" + strings.Join(selected, ",")
	}
	return types.Message{Op: types.MessageOpExecute, Payload: payload}
}

func ParseExecutePayload(payload string) (order []string, selected []string) {
	ids, requested, _ := strings.Cut(payload, ";")
	return ParseIdentities(ids), ParseIdentities(requested)
}

// LogMessage carries one chunk of step output. Text may contain colons;
// identity and stage may not.
func LogMessage(identity string, stage string, text string) types.Message {
	return types.Message{Op: types.MessageOpLog, Payload: identity + ":" + stage + ":" + text}
}

func ParseLogPayload(payload string) (types.LogEntry, error) {
	parts := strings.SplitN(payload, ":", 3)
	if len(parts) != 3 || parts[0] == "" {
		return types.LogEntry{}, invalidMessage(string(types.MessageOpLog) + ":" + payload)
	}
	return types.LogEntry{Unit: parts[0], Stage: parts[1], Text: parts[2]}, nil
}

func invalidMessage(body string) error {
	if len(body) > 64 {
		body = body[:64] + "..."
	}
	return errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(fmt.Sprintf("malformed message %q", body))
}
