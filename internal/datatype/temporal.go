package datatype

import (
	"reflect"
	"strconv"
	"strings"
	"time"
)

var (
	dateLayouts      = []string{"2006-01-02", time.RFC3339Nano, "2006-01-02T15:04:05"}
	dateTimeLayouts  = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}
	timestampLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999", "2006-01-02T15:04:05.999999999"}
)

// Epoch is the zero value of the temporal types.
var Epoch = time.Unix(0, 0).UTC()

// TemporalType is the descriptor for Date, DateTime and Timestamp. Values are
// time.Time; Date values are truncated to midnight UTC.
type TemporalType struct {
	scalar
	layouts   []string
	normalize func(time.Time) time.Time
}

func newTemporal(name string, kind Kind, layouts []string, normalize func(time.Time) time.Time) *TemporalType {
	if normalize == nil {
		normalize = func(t time.Time) time.Time { return t.UTC() }
	}
	return &TemporalType{scalar: scalar{name, kind}, layouts: layouts, normalize: normalize}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FromString accepts any of the type's layouts or a count of epoch milliseconds.
func (tt *TemporalType) FromString(text string) (any, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil, nil
	}
	for _, layout := range tt.layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return tt.normalize(t), nil
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return tt.normalize(time.UnixMilli(ms)), nil
	}
	return nil, coercionError(text, tt, nil)
}

// Format renders a value in the type's primary layout.
func (tt *TemporalType) Format(t time.Time) string {
	return tt.normalize(t).Format(tt.layouts[0])
}

func (tt *TemporalType) CompareValue(source, target any) (int, error) {
	return compareValues(tt, source, target)
}

func (tt *TemporalType) coerce(value any) (any, error) {
	switch v := value.(type) {
	case time.Time:
		return tt.normalize(v), nil
	case string:
		return tt.FromString(v)
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int32, reflect.Int64:
		return tt.normalize(time.UnixMilli(rv.Int())), nil
	case reflect.String:
		return tt.FromString(rv.String())
	}
	return nil, coercionError(value, tt, nil)
}

func (tt *TemporalType) zero() any { return tt.normalize(Epoch) }

func (tt *TemporalType) compare(a, b any) int {
	return a.(time.Time).Compare(b.(time.Time))
}
