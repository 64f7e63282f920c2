package model

import (
	"fmt"

	"github.com/KevinKickass/OpenSimCore/internal/types"
)

// EnumLabel returns the label of an enum quantity's current value.
func (m *Model) EnumLabel(name string) (string, error) {
	q, err := m.Lookup(name)
	if err != nil {
		return "", err
	}
	labels := q.Meta().EnumLabels
	idx, ok := types.ToInt(q.LastVal())
	if !ok || idx < 0 || idx >= len(labels) {
		return "", fmt.Errorf("quantity %q value %v is not a valid index into %v", name, q.LastVal(), labels)
	}
	return labels[idx], nil
}

// SetEnum sets an enum quantity by label.
func (m *Model) SetEnum(name, label string) error {
	q, err := m.Lookup(name)
	if err != nil {
		return err
	}
	idx, err := EnumIndex(q.Meta().EnumLabels, label)
	if err != nil {
		return fmt.Errorf("quantity %q: %w", name, err)
	}
	q.SetVal(int16(idx), m.Now())
	return nil
}

// EnumIndex finds label in labels.
func EnumIndex(labels []string, label string) (int, error) {
	for i, l := range labels {
		if l == label {
			return i, nil
		}
	}
	return -1, fmt.Errorf("label %q not in %v", label, labels)
}
