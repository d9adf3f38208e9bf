package records

import (
	"fmt"
	"strconv"
	"strings"
)

// applyOps applies patch operations to a decoded document body in order.
func applyOps(body map[string]interface{}, ops []PatchOp) error {
	for _, op := range ops {
		if err := applyOp(body, op); err != nil {
			return fmt.Errorf("apply %s %s: %w", op.Op, op.Path, err)
		}
	}
	return nil
}

func applyOp(body map[string]interface{}, op PatchOp) error {
	segments := splitPath(op.Path)
	if len(segments) == 0 {
		return ErrInvalidPath
	}

	// Appending ("-") grows a slice, which must be rebound in the slice's
	// own parent, so the walk stops one level higher in that case.
	if op.Op == OpAdd && segments[len(segments)-1] == "-" {
		if len(segments) < 2 {
			return fmt.Errorf("%w: append needs an array path", ErrInvalidPath)
		}
		parent, err := walk(body, segments[:len(segments)-2])
		if err != nil {
			return err
		}
		return appendAt(parent, segments[len(segments)-2], op.Value)
	}

	parent, err := walk(body, segments[:len(segments)-1])
	if err != nil {
		return err
	}
	leaf := segments[len(segments)-1]

	switch op.Op {
	case OpSet, OpAdd:
		return setAt(parent, leaf, op.Value)
	case OpRemove:
		return removeAt(parent, leaf)
	default:
		return fmt.Errorf("%w: %q", ErrBadOp, op.Op)
	}
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// walk descends to the container holding the final segment. Intermediate
// segments must already exist; patches never invent structure above the leaf.
func walk(body map[string]interface{}, segments []string) (interface{}, error) {
	var current interface{} = body
	for _, seg := range segments {
		switch node := current.(type) {
		case map[string]interface{}:
			next, ok := node[seg]
			if !ok {
				return nil, fmt.Errorf("%w: missing segment %q", ErrInvalidPath, seg)
			}
			current = next
		case []interface{}:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("%w: bad index %q", ErrInvalidPath, seg)
			}
			current = node[idx]
		default:
			return nil, fmt.Errorf("%w: cannot descend into %q", ErrInvalidPath, seg)
		}
	}
	return current, nil
}

func setAt(parent interface{}, leaf string, value interface{}) error {
	switch node := parent.(type) {
	case map[string]interface{}:
		node[leaf] = value
		return nil
	case []interface{}:
		idx, err := strconv.Atoi(leaf)
		if err != nil || idx < 0 || idx >= len(node) {
			return fmt.Errorf("%w: bad index %q", ErrInvalidPath, leaf)
		}
		node[idx] = value
		return nil
	default:
		return fmt.Errorf("%w: cannot set on %T", ErrInvalidPath, parent)
	}
}

// appendAt grows the array stored under key in parent and rebinds it. A
// missing or null key starts a fresh array.
func appendAt(parent interface{}, key string, value interface{}) error {
	switch node := parent.(type) {
	case map[string]interface{}:
		existing := node[key]
		if existing == nil {
			node[key] = []interface{}{value}
			return nil
		}
		arr, ok := existing.([]interface{})
		if !ok {
			return fmt.Errorf("%w: %q is not an array", ErrInvalidPath, key)
		}
		node[key] = append(arr, value)
		return nil
	case []interface{}:
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= len(node) {
			return fmt.Errorf("%w: bad index %q", ErrInvalidPath, key)
		}
		arr, ok := node[idx].([]interface{})
		if !ok {
			return fmt.Errorf("%w: element %q is not an array", ErrInvalidPath, key)
		}
		node[idx] = append(arr, value)
		return nil
	default:
		return fmt.Errorf("%w: cannot append under %T", ErrInvalidPath, parent)
	}
}

func removeAt(parent interface{}, leaf string) error {
	node, ok := parent.(map[string]interface{})
	if !ok {
		return fmt.Errorf("%w: cannot remove from %T", ErrInvalidPath, parent)
	}
	if _, ok := node[leaf]; !ok {
		return fmt.Errorf("%w: missing key %q", ErrInvalidPath, leaf)
	}
	delete(node, leaf)
	return nil
}
