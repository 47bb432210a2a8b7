package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/krew-solutions/ascetic-rql-go/asceticrql/converters"
)

var autoConvert = converters.Auto(true)

// String renders the canonical query text. An "and" term renders its arguments joined
// by '&'; any other term renders as name(arg,...).
func (q *Query) String() string {
	if q.Operator() == DefaultName {
		return serializeArgs(q.Args, "&")
	}
	return termString(q)
}

func termString(q *Query) string {
	return q.Operator() + "(" + serializeArgs(q.Args, ",") + ")"
}

func serializeArgs(args []any, delimiter string) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = argString(arg)
	}
	return strings.Join(parts, delimiter)
}

func argString(arg any) string {
	switch v := arg.(type) {
	case *Query:
		return termString(v)
	case []any:
		return "(" + serializeArgs(v, ",") + ")"
	}
	return EncodeValue(arg)
}

// EncodeValue renders one scalar so that the default converter reads it back as the
// same value, adding a "type:" prefix when the bare text would be read differently.
func EncodeValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case converters.UndefinedValue:
		return "undefined"
	case bool:
		return strconv.FormatBool(val)
	case string:
		return encodeTyped("string", val)
	case *regexp.Regexp:
		src := val.String()
		if strings.HasPrefix(src, "(?i)") {
			return "re:" + encodeString(strings.TrimPrefix(src, "(?i)"))
		}
		return "RE:" + encodeString(src)
	case time.Time:
		return "epoch:" + strconv.FormatInt(val.UnixMilli(), 10)
	case uuid.UUID:
		return "uuid:" + val.String()
	case ulid.ULID:
		return "ulid:" + val.String()
	}
	if f, ok := ToFloat(v); ok {
		s := converters.FormatNumber(f)
		if back, err := autoConvert(s); err == nil && ValuesEqual(back, f) {
			return s
		}
		return "number:" + s
	}
	return encodeTyped("string", fmt.Sprint(v))
}

func encodeTyped(typ, s string) string {
	encoded := encodeString(s)
	if back, err := autoConvert(s); err != nil || back != any(s) {
		return typ + ":" + encoded
	}
	return encoded
}

// encodeString percent-encodes every byte outside the grammar's bare token set.
func encodeString(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isBareByte(c) {
			b.WriteByte(c)
			continue
		}
		if c == '<' || c == '>' {
			// upper-case %3C and %3E read back as comparison operators
			fmt.Fprintf(&b, "%%%02x", c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

func isBareByte(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '_', c == '.', c == '*':
		return true
	}
	return false
}

// Stringify gives the plain text of a scalar, as used for the cached primary key.
func Stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return "null"
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case *regexp.Regexp:
		return val.String()
	case fmt.Stringer:
		return val.String()
	}
	if f, ok := ToFloat(v); ok {
		return converters.FormatNumber(f)
	}
	return fmt.Sprint(v)
}
