package web

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// PrettyJSON parses content and prints the value back with a two-space
// indent. Like any parse-then-serialize round trip, a repeated key keeps
// its first position and its last value, and numbers come out in shortest
// form. It reports false when content is not valid JSON.
func PrettyJSON(content string) (string, bool) {
	if !gjson.Valid(content) {
		return "", false
	}
	var b strings.Builder
	writeValue(&b, gjson.Parse(content), "")
	return b.String(), true
}

type member struct {
	key   string
	value gjson.Result
}

func writeValue(b *strings.Builder, v gjson.Result, indent string) {
	switch {
	case v.IsObject():
		var members []member
		index := make(map[string]int)
		v.ForEach(func(k, val gjson.Result) bool {
			key := k.String()
			if i, ok := index[key]; ok {
				members[i].value = val
				return true
			}
			index[key] = len(members)
			members = append(members, member{key: key, value: val})
			return true
		})
		if len(members) == 0 {
			b.WriteString("{}")
			return
		}
		inner := indent + "  "
		b.WriteString("{\n")
		for i, m := range members {
			if i > 0 {
				b.WriteString(",\n")
			}
			b.WriteString(inner)
			writeString(b, m.key)
			b.WriteString(": ")
			writeValue(b, m.value, inner)
		}
		b.WriteString("\n" + indent + "}")
	case v.IsArray():
		items := v.Array()
		if len(items) == 0 {
			b.WriteString("[]")
			return
		}
		inner := indent + "  "
		b.WriteString("[\n")
		for i, item := range items {
			if i > 0 {
				b.WriteString(",\n")
			}
			b.WriteString(inner)
			writeValue(b, item, inner)
		}
		b.WriteString("\n" + indent + "]")
	default:
		switch v.Type {
		case gjson.String:
			writeString(b, v.Str)
		case gjson.Number:
			b.WriteString(formatNumber(v.Num))
		case gjson.True:
			b.WriteString("true")
		case gjson.False:
			b.WriteString("false")
		default:
			b.WriteString("null")
		}
	}
}

func writeString(b *strings.Builder, s string) {
	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		b.WriteString(strconv.Quote(s))
		return
	}
	b.WriteString(strings.TrimSuffix(sb.String(), "\n"))
}

// formatNumber prints f the way a browser serializes numbers: integers
// without a fraction, exponents outside [1e-6, 1e21), no -0, and
// overflowed values as null.
func formatNumber(f float64) string {
	switch {
	case math.IsInf(f, 0) || math.IsNaN(f):
		return "null"
	case f == 0:
		return "0"
	}
	abs := math.Abs(f)
	if abs < 1e21 && abs >= 1e-6 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	mant, exp, _ := strings.Cut(s, "e")
	sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
	return mant + "e" + sign + digits
}
