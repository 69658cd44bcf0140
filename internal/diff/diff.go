// Package diff pairs two same-identity collections and reports field-level
// differences between matched members.
package diff

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/soimon/notion-todoist/internal/model"
)

var (
	// ErrDuplicateIdentity means an identity occurs more than once on one side.
	ErrDuplicateIdentity = errors.New("duplicate identity")

	// ErrAmbiguousOrigin means an entity carries both or neither origin tag.
	ErrAmbiguousOrigin = errors.New("ambiguous origin")
)

// Entity is anything that can be paired: it exposes its sync identity and
// the store it was read from.
type Entity interface {
	Identity() string
	Origin() model.Origin
}

// IdentityError reports the identity that made pairing impossible.
type IdentityError struct {
	SyncID string
	Count  int
	Err    error
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("%v: sync id %q occurs %d times", e.Err, e.SyncID, e.Count)
}

func (e *IdentityError) Unwrap() error { return e.Err }

// Pair holds one member from each store sharing an identity.
type Pair[T any] struct {
	// Differences lists the names of the fields that differ, in field order.
	Differences []string
	Source      T
	Target      T
}

// Changed reports whether the members differ in any compared field.
func (p Pair[T]) Changed() bool { return len(p.Differences) > 0 }

// Result is the output of Diff.
type Result[T Entity] struct {
	Loners []T
	Pairs  []Pair[T]
}

// SourceLoners returns the loners read from the Source store.
func (r *Result[T]) SourceLoners() []T { return r.loners(model.OriginSource) }

// TargetLoners returns the loners read from the Target store.
func (r *Result[T]) TargetLoners() []T { return r.loners(model.OriginTarget) }

// Changed returns the pairs with at least one difference.
func (r *Result[T]) Changed() []Pair[T] {
	var out []Pair[T]
	for _, p := range r.Pairs {
		if p.Changed() {
			out = append(out, p)
		}
	}
	return out
}

func (r *Result[T]) loners(o model.Origin) []T {
	var out []T
	for _, l := range r.Loners {
		if l.Origin() == o {
			out = append(out, l)
		}
	}
	return out
}

// Comparator reports extra differing field names for a pair. It is used for
// fields the shallow comparison skips, such as slices.
type Comparator[T any] func(source, target T) []string

// Option configures a Diff call.
type Option[T any] func(*options[T])

type options[T any] struct {
	comparators []Comparator[T]
}

// WithComparator adds a class-specific comparator.
func WithComparator[T any](c Comparator[T]) Option[T] {
	return func(o *options[T]) {
		o.comparators = append(o.comparators, c)
	}
}

// Diff groups a and b by identity and classifies every element as a loner or
// as a member of a pair.
//
// Entities with an empty identity are always loners. An identity seen twice
// must come from two different origins; any other multiplicity is an
// *IdentityError. Output order follows first appearance in a, then b.
func Diff[T Entity](a, b []T, opts ...Option[T]) (*Result[T], error) {
	var o options[T]
	for _, opt := range opts {
		opt(&o)
	}

	all := make([]T, 0, len(a)+len(b))
	all = append(all, a...)
	all = append(all, b...)

	for _, e := range all {
		if e.Origin() == model.OriginAmbiguous {
			return nil, fmt.Errorf("%w: sync id %q", ErrAmbiguousOrigin, e.Identity())
		}
	}

	order := make([]string, 0, len(all))
	groups := make(map[string][]T, len(all))
	result := &Result[T]{}

	for _, e := range all {
		id := e.Identity()
		if id == "" {
			// Kept in place so loner order matches input order.
			order = append(order, "")
			groups[""] = append(groups[""], e)
			continue
		}
		if _, seen := groups[id]; !seen {
			order = append(order, id)
		}
		groups[id] = append(groups[id], e)
	}

	emptyIdx := 0
	for _, id := range order {
		if id == "" {
			result.Loners = append(result.Loners, groups[""][emptyIdx])
			emptyIdx++
			continue
		}
		members := groups[id]
		switch len(members) {
		case 1:
			result.Loners = append(result.Loners, members[0])
		case 2:
			pair, err := makePair(members[0], members[1], o.comparators)
			if err != nil {
				return nil, err
			}
			result.Pairs = append(result.Pairs, pair)
		default:
			return nil, &IdentityError{SyncID: id, Count: len(members), Err: ErrDuplicateIdentity}
		}
	}

	return result, nil
}

func makePair[T Entity](x, y T, comparators []Comparator[T]) (Pair[T], error) {
	var source, target T
	switch {
	case x.Origin() == model.OriginSource && y.Origin() == model.OriginTarget:
		source, target = x, y
	case x.Origin() == model.OriginTarget && y.Origin() == model.OriginSource:
		source, target = y, x
	default:
		return Pair[T]{}, &IdentityError{SyncID: x.Identity(), Count: 2, Err: ErrDuplicateIdentity}
	}

	differences := Fields(source, target)
	for _, c := range comparators {
		for _, name := range c(source, target) {
			if !contains(differences, name) {
				differences = append(differences, name)
			}
		}
	}
	return Pair[T]{Differences: differences, Source: source, Target: target}, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	timePtrType = reflect.TypeOf(&time.Time{})
)

type field struct {
	index int
	name  string
	kind  fieldKind
}

type fieldKind int

const (
	kindScalar fieldKind = iota
	kindTime
	kindTimePtr
)

var fieldCache sync.Map // reflect.Type -> []field

// Fields returns the names of the shallow fields that differ between a and b,
// which must be structs of the same type.
//
// Scalars compare by value and times by instant. Slices, maps, nested structs
// and pointers to anything other than time.Time are not compared.
func Fields[T any](a, b T) []string {
	va := reflect.Indirect(reflect.ValueOf(a))
	vb := reflect.Indirect(reflect.ValueOf(b))
	if va.Kind() != reflect.Struct || va.Type() != vb.Type() {
		return nil
	}

	var out []string
	for _, f := range comparableFields(va.Type()) {
		fa, fb := va.Field(f.index), vb.Field(f.index)
		if !equalField(f.kind, fa, fb) {
			out = append(out, f.name)
		}
	}
	return out
}

func equalField(kind fieldKind, a, b reflect.Value) bool {
	switch kind {
	case kindTime:
		return a.Interface().(time.Time).Equal(b.Interface().(time.Time))
	case kindTimePtr:
		if a.IsNil() || b.IsNil() {
			return a.IsNil() == b.IsNil()
		}
		return a.Interface().(*time.Time).Equal(*b.Interface().(*time.Time))
	default:
		return a.Interface() == b.Interface()
	}
}

func comparableFields(t reflect.Type) []field {
	if cached, ok := fieldCache.Load(t); ok {
		return cached.([]field)
	}

	var fields []field
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		f := field{index: i, name: fieldName(sf)}
		switch {
		case sf.Type == timeType:
			f.kind = kindTime
		case sf.Type == timePtrType:
			f.kind = kindTimePtr
		case isScalar(sf.Type.Kind()):
			f.kind = kindScalar
		default:
			continue
		}
		fields = append(fields, f)
	}

	fieldCache.Store(t, fields)
	return fields
}

func isScalar(k reflect.Kind) bool {
	switch k {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func fieldName(sf reflect.StructField) string {
	tag := sf.Tag.Get("json")
	if name, _, _ := strings.Cut(tag, ","); name != "" && name != "-" {
		return name
	}
	return sf.Name
}
