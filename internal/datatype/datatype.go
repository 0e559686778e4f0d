// Package datatype implements the qengine value model: a closed set of type
// descriptors with a widening lattice, null-safe coercion and comparison.
//
// Scalar descriptors are package-level singletons (Boolean, Integer, ...).
// Composite descriptors (Collection, Map, Enum, Complex) are built on demand
// and compared by canonical name.
package datatype

import (
	"strings"
)

// Kind classifies a DataType.
type Kind int

const (
	KindUnspecified Kind = iota
	KindBoolean
	KindShort
	KindInteger
	KindLong
	KindFloat
	KindDouble
	KindChar
	KindString
	KindDate
	KindDateTime
	KindTimestamp
	KindCollection
	KindMap
	KindEnum
	KindComplex
)

// IsScalar reports whether k is one of the scalar leaf kinds.
func (k Kind) IsScalar() bool {
	return k >= KindBoolean && k <= KindTimestamp
}

// IsNumeric reports whether k is an integral or floating point kind.
func (k Kind) IsNumeric() bool {
	return k >= KindShort && k <= KindDouble
}

// IsTemporal reports whether k is a date or time kind.
func (k Kind) IsTemporal() bool {
	return k >= KindDate && k <= KindTimestamp
}

// Ordering is the result of comparing two DataTypes in the widening lattice.
// It says nothing about the values of those types.
type Ordering int

const (
	Incompatible Ordering = iota
	Equal
	// OrderedBefore: the receiver widens into the other type.
	OrderedBefore
	// OrderedAfter: the other type widens into the receiver.
	OrderedAfter
)

func (o Ordering) String() string {
	switch o {
	case Equal:
		return "equal"
	case OrderedBefore:
		return "ordered-before"
	case OrderedAfter:
		return "ordered-after"
	default:
		return "incompatible"
	}
}

// DataType describes the shape of a value. Two DataTypes are equal iff their
// canonical names match.
type DataType interface {
	Name() string
	Kind() Kind
	CompareTo(other DataType) Ordering
}

// Basic is a DataType with value behaviour: parsing, coercion and comparison.
// The set of implementations is closed to this package.
type Basic interface {
	DataType
	// FromString parses text into the native representation. Empty text
	// yields nil (absent) for every type except String.
	FromString(text string) (any, error)
	// CompareValue coerces both operands, treating nil as the zero value,
	// and returns -1, 0 or 1.
	CompareValue(source, target any) (int, error)

	coerce(value any) (any, error)
	zero() any
	compare(a, b any) int
}

// SameType reports whether a and b name the same DataType.
func SameType(a, b DataType) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Name() == b.Name()
}

// WidensTo reports whether a value of type from may be used where to is declared.
func WidensTo(from, to DataType) bool {
	if from == nil || to == nil {
		return false
	}
	o := from.CompareTo(to)
	return o == Equal || o == OrderedBefore
}

// scalar carries the identity shared by all scalar descriptors.
type scalar struct {
	name string
	kind Kind
}

func (s scalar) Name() string { return s.name }
func (s scalar) Kind() Kind   { return s.kind }

func (s scalar) String() string { return s.name }

func (s scalar) CompareTo(other DataType) Ordering {
	return compareKinds(s.name, s.kind, other)
}

// widening lists, per kind, the kinds it widens into.
var widening = map[Kind][]Kind{
	KindBoolean: {KindShort, KindInteger},
	KindShort:   {KindInteger, KindLong},
	KindInteger: {KindLong},
	KindFloat:   {KindDouble},
	KindDate:    {KindDateTime},
}

func widens(from, to Kind) bool {
	for _, k := range widening[from] {
		if k == to {
			return true
		}
	}
	return false
}

// compareKinds implements the lattice for scalars. Composite types only ever
// compare Equal by name.
func compareKinds(name string, kind Kind, other DataType) Ordering {
	if other == nil {
		return Incompatible
	}
	if name == other.Name() {
		return Equal
	}
	if !kind.IsScalar() || !other.Kind().IsScalar() {
		return Incompatible
	}
	switch {
	case widens(kind, other.Kind()):
		return OrderedBefore
	case widens(other.Kind(), kind):
		return OrderedAfter
	default:
		return Incompatible
	}
}

// Scalar singletons.
var (
	Boolean   = &BooleanType{scalar{"boolean", KindBoolean}}
	Short     = newNumeric[int16]("short", KindShort, 16, false)
	Integer   = newNumeric[int32]("integer", KindInteger, 32, false)
	Long      = newNumeric[int64]("long", KindLong, 64, false)
	Float     = newNumeric[float32]("float", KindFloat, 32, true)
	Double    = newNumeric[float64]("double", KindDouble, 64, true)
	Char      = &CharType{scalar{"char", KindChar}}
	String    = &StringType{scalar{"string", KindString}}
	Date      = newTemporal("date", KindDate, dateLayouts, truncateToDay)
	DateTime  = newTemporal("datetime", KindDateTime, dateTimeLayouts, nil)
	Timestamp = newTemporal("timestamp", KindTimestamp, timestampLayouts, nil)
)

// scalars is the name table, built once.
var scalars = map[string]Basic{}

// aliases accepted by Parse in addition to the canonical names.
var aliases = map[string]string{
	"bool":    "boolean",
	"int":     "integer",
	"int16":   "short",
	"int32":   "integer",
	"int64":   "long",
	"float32": "float",
	"float64": "double",
	"text":    "string",
}

func init() {
	for _, b := range Scalars() {
		scalars[b.Name()] = b
	}
}

// Scalars returns every scalar descriptor in lattice order.
func Scalars() []Basic {
	return []Basic{Boolean, Short, Integer, Long, Float, Double, Char, String, Date, DateTime, Timestamp}
}

// Lookup finds a scalar descriptor by name, case-insensitively.
func Lookup(name string) (Basic, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := aliases[key]; ok {
		key = canonical
	}
	b, ok := scalars[key]
	return b, ok
}
