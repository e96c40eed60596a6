package model

import (
	"fmt"
	"math"
	"reflect"
	"sync"
)

// Enumeration describes an integer-backed enumerated type attached to an
// integer field.
type Enumeration interface {
	// Name is the enumeration's type name.
	Name() string
	// Type is the Go type of the members.
	Type() reflect.Type
	// Value returns the stored integer for a member. Plain Go integers are
	// accepted as already encoded and are not checked for membership.
	Value(member any) (int64, error)
	// Member builds the member for a stored integer. Values outside the
	// enumeration are an error.
	Member(value int64) (any, error)
}

// Integer is the constraint for enumeration member types.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32
}

type enumeration[T Integer] struct {
	name    string
	members map[int64]T
}

// EnumOf builds an Enumeration from the members of an integer type.
func EnumOf[T Integer](members ...T) Enumeration {
	e := &enumeration[T]{
		name:    reflect.TypeFor[T]().Name(),
		members: make(map[int64]T, len(members)),
	}
	for _, m := range members {
		e.members[int64(m)] = m
	}
	return e
}

func (e *enumeration[T]) Name() string       { return e.name }
func (e *enumeration[T]) Type() reflect.Type { return reflect.TypeFor[T]() }

func (e *enumeration[T]) Value(member any) (int64, error) {
	switch v := member.(type) {
	case T:
		return int64(v), nil
	case *T:
		if v == nil {
			return 0, fmt.Errorf("%s: nil member", e.name)
		}
		return int64(*v), nil
	}
	rv := reflect.ValueOf(member)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if u := rv.Uint(); u <= math.MaxInt64 {
			return int64(u), nil
		}
		return 0, fmt.Errorf("%s: %v overflows int64", e.name, member)
	}
	return 0, fmt.Errorf("%s: cannot encode %T", e.name, member)
}

func (e *enumeration[T]) Member(value int64) (any, error) {
	m, ok := e.members[value]
	if !ok {
		return nil, fmt.Errorf("%d is not a valid %s", value, e.name)
	}
	return m, nil
}

var (
	enumMu     sync.RWMutex
	enumByType = make(map[reflect.Type]Enumeration)
	enumByName = make(map[string]Enumeration)
)

// RegisterEnum makes an enumeration known to the struct-tag parser. Integer
// fields whose Go type matches, or whose tag names it with enum(Name), are
// declared with that enumeration.
//
//	func init() {
//	    model.RegisterEnum(model.EnumOf(StatusDraft, StatusPublished))
//	}
func RegisterEnum(e Enumeration) {
	enumMu.Lock()
	defer enumMu.Unlock()
	enumByType[e.Type()] = e
	enumByName[e.Name()] = e
}

func lookupEnum(t reflect.Type, name string) Enumeration {
	enumMu.RLock()
	defer enumMu.RUnlock()
	if name != "" {
		if e, ok := enumByName[name]; ok {
			return e
		}
	}
	if t == nil {
		return nil
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return enumByType[t]
}
