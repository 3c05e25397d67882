// SPDX-License-Identifier: MPL-2.0

package bst

import (
	"errors"
	"fmt"
	"strings"
)

type (
	// ConfigItem is one parsed transition definition: the graph itself
	// plus the object types it governs and the states that interrupt a
	// process immediately.
	ConfigItem struct {
		Definition *Definition
		Objects    []string
		ForceStop  []string
	}

	// ConfigError reports an unparseable definition document.
	ConfigError struct {
		Line   int
		Detail string
	}
)

// ErrInvalidConfig is the sentinel error wrapped by ConfigError.
var ErrInvalidConfig = errors.New("invalid definition config")

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("invalid definition config: line %d: %s", e.Line, e.Detail)
	}
	return fmt.Sprintf("invalid definition config: %s", e.Detail)
}

// Unwrap returns ErrInvalidConfig so callers can use errors.Is for detection.
func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// prettyPrintReplace maps the reserved headings of the pretty-print
// format to their config keys.
var prettyPrintReplace = map[string]string{
	"Force stop:": "force_stop=",
	"Objects:":    "objects=",
	"Version:":    "version=",
}

// ParsePrettyPrint converts the human-oriented definition layout into
// the config format ParseConfig accepts. The input is a definition name
// underlined with dashes, followed by "state: next, next" lines and the
// optional "Objects:", "Force stop:" and "Version:" headings.
func ParsePrettyPrint(value string) (string, error) {
	lines := strings.Split(value, "\n")

	sepIdx := -1
	for idx, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "-") {
			sepIdx = idx
			break
		}
	}
	if sepIdx < 1 {
		return "", &ConfigError{Detail: "could not find header separator"}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n", strings.TrimSpace(lines[sepIdx-1]))

	for _, line := range lines[sepIdx+1:] {
		item := strings.TrimSpace(line)
		if item == "" || strings.HasPrefix(item, "#") {
			continue
		}

		replaced := false
		for heading, target := range prettyPrintReplace {
			if strings.HasPrefix(item, heading) {
				item = target + strings.TrimSpace(strings.TrimPrefix(item, heading))
				replaced = true
				break
			}
		}
		if !replaced {
			key, val, ok := strings.Cut(item, ":")
			if !ok {
				return "", &ConfigError{Detail: fmt.Sprintf("expected 'state: next' in %q", item)}
			}
			item = strings.TrimSpace(key) + "=" + strings.TrimSpace(val)
		}
		b.WriteString(item + "\n")
	}

	return strings.TrimSpace(b.String()), nil
}

// ParseConfig parses a definition in config format: a "[Name]" section
// followed by "key=value" lines. The keys "objects", "force_stop" and
// "version" are reserved; every other line declares a state and its
// comma-separated target states. States only ever mentioned as targets
// are added to the graph too.
func ParseConfig(data string) (*ConfigItem, error) {
	item := &ConfigItem{}

	var (
		name  string
		edges [][2]string
	)
	version := DefaultVersion

	for idx, raw := range strings.Split(data, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			if name != "" {
				return nil, &ConfigError{Line: idx + 1, Detail: "multiple definition sections"}
			}
			if !strings.HasSuffix(line, "]") {
				return nil, &ConfigError{Line: idx + 1, Detail: "unterminated section header"}
			}
			name = strings.TrimSpace(line[1 : len(line)-1])
			continue
		}
		if name == "" {
			return nil, &ConfigError{Line: idx + 1, Detail: "content before definition section"}
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, &ConfigError{Line: idx + 1, Detail: fmt.Sprintf("expected key=value, got %q", line)}
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "objects":
			item.Objects = append(item.Objects, splitList(value)...)
		case "force_stop":
			item.ForceStop = append(item.ForceStop, splitList(value)...)
		case "version":
			version = value
		default:
			for _, to := range splitList(value) {
				edges = append(edges, [2]string{key, to})
			}
		}
	}

	if name == "" {
		return nil, &ConfigError{Detail: "no definition section found"}
	}

	item.Definition = NewDefinition(name, version)
	for _, edge := range edges {
		item.Definition.AddNode(edge[0], "")
		item.Definition.AddNode(edge[1], "")
	}
	for _, edge := range edges {
		if err := item.Definition.AddEdge(edge[0], edge[1]); err != nil {
			return nil, err
		}
	}

	return item, nil
}

// ParseDefinition parses either format: the pretty-print layout is
// detected by its dashed separator line, anything else is treated as
// config format.
func ParseDefinition(data string) (*ConfigItem, error) {
	for _, line := range strings.Split(data, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "-") {
			converted, err := ParsePrettyPrint(data)
			if err != nil {
				return nil, err
			}
			return ParseConfig(converted)
		}
		if strings.HasPrefix(trimmed, "[") {
			break
		}
	}
	return ParseConfig(data)
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
