package bridge

import (
	"fmt"

	"github.com/marshallshelly/pebble-bridge/pkg/mapping"
	"github.com/marshallshelly/pebble-bridge/pkg/model"
)

// EnumAdapter stores enumeration members as small integers. Nil passes
// through in both directions.
type EnumAdapter struct {
	mapping.SmallInteger
	Enum model.Enumeration
}

// NewEnumAdapter creates the column type for fields carrying e.
func NewEnumAdapter(e model.Enumeration) *EnumAdapter {
	return &EnumAdapter{Enum: e}
}

// BindValue encodes a member to its integer value.
func (a *EnumAdapter) BindValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return a.Enum.Value(v)
}

// ResultValue decodes a stored integer into its member. A value that is not
// a member of the enumeration is an error.
func (a *EnumAdapter) ResultValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	var n int64
	switch x := v.(type) {
	case int64:
		n = x
	case int32:
		n = int64(x)
	case int16:
		n = int64(x)
	case int8:
		n = int64(x)
	case int:
		n = int64(x)
	default:
		return nil, fmt.Errorf("%s: cannot decode %T", a.Enum.Name(), v)
	}
	return a.Enum.Member(n)
}
