// Package ordering implements the list manipulation behind the admin reorder tool.
package ordering

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexOutOfRange indicates a move referenced a position outside the list.
	ErrIndexOutOfRange = errors.New("position out of range")
	// ErrNotPermutation indicates a batch does not cover every item exactly once with positions 0..N-1.
	ErrNotPermutation = errors.New("order batch must assign positions 0..N-1 to every item exactly once")
)

// Position pairs an item identifier with its display index.
type Position struct {
	ID    string `json:"id"`
	Order int    `json:"order"`
}

// Move returns a copy of ids with the element at from relocated to to,
// shifting the elements in between by one place.
func Move(ids []string, from, to int) ([]string, error) {
	if from < 0 || from >= len(ids) || to < 0 || to >= len(ids) {
		return nil, fmt.Errorf("%w: move %d -> %d in list of %d", ErrIndexOutOfRange, from, to, len(ids))
	}

	result := make([]string, 0, len(ids))
	moved := ids[from]
	for idx, id := range ids {
		if idx == from {
			continue
		}
		result = append(result, id)
	}

	result = append(result, "")
	copy(result[to+1:], result[to:])
	result[to] = moved
	return result, nil
}

// Reindex assigns consecutive positions starting at zero.
func Reindex(ids []string) []Position {
	positions := make([]Position, len(ids))
	for idx, id := range ids {
		positions[idx] = Position{ID: id, Order: idx}
	}
	return positions
}

// Validate checks that batch is a renumbering of exactly the known ids
// using every position 0..N-1 once.
func Validate(batch []Position, known []string) error {
	if len(batch) != len(known) {
		return fmt.Errorf("%w: got %d items for %d challenges", ErrNotPermutation, len(batch), len(known))
	}

	expected := make(map[string]struct{}, len(known))
	for _, id := range known {
		expected[id] = struct{}{}
	}

	seenIDs := make(map[string]struct{}, len(batch))
	seenOrders := make([]bool, len(batch))
	for _, item := range batch {
		if _, ok := expected[item.ID]; !ok {
			return fmt.Errorf("%w: unknown id %q", ErrNotPermutation, item.ID)
		}
		if _, dup := seenIDs[item.ID]; dup {
			return fmt.Errorf("%w: duplicate id %q", ErrNotPermutation, item.ID)
		}
		if item.Order < 0 || item.Order >= len(batch) || seenOrders[item.Order] {
			return fmt.Errorf("%w: invalid position %d", ErrNotPermutation, item.Order)
		}
		seenIDs[item.ID] = struct{}{}
		seenOrders[item.Order] = true
	}
	return nil
}

// Sequence returns the ids of a validated batch sorted by position.
func Sequence(batch []Position) []string {
	ids := make([]string, len(batch))
	for _, item := range batch {
		if item.Order >= 0 && item.Order < len(ids) {
			ids[item.Order] = item.ID
		}
	}
	return ids
}
