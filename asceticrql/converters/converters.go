// Package converters decodes the textual form of a query scalar into a typed value.
//
// A token such as "10", "true" or "date:2009-01-01" reaches a converter after the
// parser strips the optional "name:" prefix. The prefix picks the converter by name;
// without one the parser applies the configured default, normally "auto".
package converters

import (
	"encoding/json"
	"math"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
)

var (
	ErrUnknownConverter = errors.New("unknown converter")
	ErrInvalidValue     = errors.New("invalid value")
)

// Converter decodes one token.
type Converter func(token string) (any, error)

// UndefinedValue marks a missing value: the literal "undefined", an unbound "$N"
// parameter, or a property path that does not resolve.
type UndefinedValue struct{}

// Undefined is the only UndefinedValue.
var Undefined = UndefinedValue{}

func (UndefinedValue) String() string {
	return "undefined"
}

func (UndefinedValue) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

func IsUndefined(v any) bool {
	_, ok := v.(UndefinedValue)
	return ok
}

// Registry maps converter names to converters.
type Registry struct {
	converters map[string]Converter
}

func NewRegistry() *Registry {
	return &Registry{converters: make(map[string]Converter)}
}

// NewDefaultRegistry returns the built-in converters. In compatible mode "auto" reads
// a token wrapped in single quotes as an escaped string literal.
func NewDefaultRegistry(compatible bool) *Registry {
	reg := NewRegistry()
	reg.Register("auto", Auto(compatible))
	reg.Register("number", Number)
	reg.Register("epoch", Epoch)
	reg.Register("isodate", ISODate)
	reg.Register("date", Date)
	reg.Register("boolean", Boolean)
	reg.Register("string", String)
	reg.Register("re", Regexp(true))
	reg.Register("RE", Regexp(false))
	reg.Register("glob", Glob)
	reg.Register("uuid", UUID)
	reg.Register("ulid", ULID)
	return reg
}

func (r *Registry) Register(name string, c Converter) {
	r.converters[name] = c
}

func (r *Registry) Lookup(name string) (Converter, bool) {
	c, ok := r.converters[name]
	return c, ok
}

// MustLookup fails with ErrUnknownConverter for an unregistered name.
func (r *Registry) MustLookup(name string) (Converter, error) {
	c, ok := r.converters[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownConverter, "%q", name)
	}
	return c, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.converters))
	for name := range r.converters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var autoConverted = map[string]any{
	"true":      true,
	"false":     false,
	"null":      nil,
	"undefined": Undefined,
	"Infinity":  math.Inf(1),
	"-Infinity": math.Inf(-1),
}

// Auto recognizes literals, then numbers that re-render to the same text, and falls
// back to the URI-decoded string.
func Auto(compatible bool) Converter {
	return func(token string) (any, error) {
		if v, ok := autoConverted[token]; ok {
			return v, nil
		}
		if f, err := strconv.ParseFloat(token, 64); err == nil && !math.IsNaN(f) && FormatNumber(f) == token {
			return f, nil
		}
		s, err := Decode(token)
		if err != nil {
			return nil, err
		}
		if compatible && len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
			var unquoted string
			if err := json.Unmarshal([]byte(`"`+s[1:len(s)-1]+`"`), &unquoted); err != nil {
				return nil, errors.Wrapf(ErrInvalidValue, "quoted string %s", s)
			}
			return unquoted, nil
		}
		return s, nil
	}
}

// Decode reverses percent-encoding; '+' stays literal.
func Decode(token string) (string, error) {
	s, err := url.PathUnescape(token)
	if err != nil {
		return "", errors.Wrapf(ErrInvalidValue, "malformed escape in %q", token)
	}
	return s, nil
}

func Number(token string) (any, error) {
	s := strings.TrimSpace(token)
	if s == "" {
		return float64(0), nil
	}
	if v, ok := autoConverted[s]; ok {
		if f, isFloat := v.(float64); isFloat {
			return f, nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidValue, "invalid number %q", token)
	}
	return f, nil
}

// Epoch reads milliseconds since the Unix epoch.
func Epoch(token string) (any, error) {
	n, err := Number(token)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidValue, "invalid date %q", token)
	}
	ms := n.(float64)
	if math.IsInf(ms, 0) || math.IsNaN(ms) {
		return nil, errors.Wrapf(ErrInvalidValue, "invalid date %q", token)
	}
	return time.UnixMilli(int64(ms)).UTC(), nil
}

// ISODate completes a partial date such as "2009" or "2009-05" to a full UTC instant.
func ISODate(token string) (any, error) {
	const template = "0000-01-01T00:00:00Z"
	date := token
	if len(date) < 4 {
		date = strings.Repeat("0", 4-len(date)) + date
	}
	if len(date) < len(template) {
		date += template[len(date):]
	}
	return Date(date)
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006-01",
	"2006",
	time.RFC1123Z,
	time.RFC1123,
}

// Date reads the decoded token in one of the accepted layouts. Instants keep
// millisecond precision, the precision epoch: values are written with.
func Date(token string) (any, error) {
	s, err := Decode(token)
	if err != nil {
		return nil, err
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(time.Millisecond), nil
		}
	}
	return nil, errors.Wrapf(ErrInvalidValue, "invalid date %q", token)
}

func Boolean(token string) (any, error) {
	return token == "true", nil
}

func String(token string) (any, error) {
	return Decode(token)
}

// Regexp compiles the decoded token; ignoreCase selects "re" over "RE".
func Regexp(ignoreCase bool) Converter {
	return func(token string) (any, error) {
		s, err := Decode(token)
		if err != nil {
			return nil, err
		}
		if ignoreCase {
			s = "(?i)" + s
		}
		re, err := regexp.Compile(s)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidValue, "invalid pattern %q: %v", token, err)
		}
		return re, nil
	}
}

// Glob turns '*' and '?' wildcards into an anchored case-insensitive pattern.
func Glob(token string) (any, error) {
	s, err := Decode(token)
	if err != nil {
		return nil, err
	}
	p := regexp.QuoteMeta(s)
	p = strings.ReplaceAll(p, `\*`, ".*")
	p = strings.ReplaceAll(p, `\?`, ".?")
	if strings.HasPrefix(p, ".*") {
		p = p[2:]
	} else {
		p = "^" + p
	}
	if strings.HasSuffix(p, ".*") {
		p = p[:len(p)-2]
	} else {
		p += "$"
	}
	re, err := regexp.Compile("(?i)" + p)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidValue, "invalid glob %q", token)
	}
	return re, nil
}

func UUID(token string) (any, error) {
	s, err := Decode(token)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidValue, "invalid uuid %q", token)
	}
	return id, nil
}

func ULID(token string) (any, error) {
	s, err := Decode(token)
	if err != nil {
		return nil, err
	}
	id, err := ulid.ParseStrict(s)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidValue, "invalid ulid %q", token)
	}
	return id, nil
}

// FormatNumber renders f the way the auto converter reads it back.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mantissa, exp, _ := strings.Cut(s, "e")
		sign := exp[:1]
		digits := strings.TrimLeft(exp[1:], "0")
		if digits == "" {
			digits = "0"
		}
		return mantissa + "e" + sign + digits
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
