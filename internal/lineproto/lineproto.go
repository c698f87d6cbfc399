// Package lineproto is a small, deliberately minimal line-protocol
// parser, the boundary that hands parsed measurements to the write
// buffer. It covers the subset of the grammar the write buffer
// ingests: a measurement, optional tags, fields
// (int/float/bool/string), and a mandatory trailing timestamp.
package lineproto

import (
	"strconv"
	"strings"

	"github.com/malbeclabs/writebuf/internal/wberrors"
)

// FieldKind identifies the type a parsed field or tag value carries.
type FieldKind int

const (
	KindTag FieldKind = iota
	KindI64
	KindF64
	KindBool
	KindString
)

// KV is one key/value pair parsed from the tag set or field set.
type KV struct {
	Key  string
	Kind FieldKind
	Str  string
	I64  int64
	F64  float64
	Bool bool
}

// Line is one fully parsed measurement line.
type Line struct {
	Measurement string
	Tags        []KV
	Fields      []KV
	Timestamp   int64
}

// ParseLines parses newline-separated line-protocol text into Lines.
// Blank lines and lines starting with '#' are skipped. Each line must
// have a measurement, at least one field, and a timestamp; tags are
// optional.
func ParseLines(data []byte) ([]Line, error) {
	var lines []Line
	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parsed, err := parseLine(line)
		if err != nil {
			return nil, err
		}
		lines = append(lines, parsed)
	}
	return lines, nil
}

func parseLine(line string) (Line, error) {
	// identifiers,tag=val,tag=val field=val,field=val timestamp
	fields := splitUnescaped(line, ' ')
	if len(fields) != 3 {
		return Line{}, wberrors.BadInputf("malformed line protocol (expected 3 space-separated sections, got %d): %q", len(fields), line)
	}

	identAndTags := splitUnescaped(fields[0], ',')
	if len(identAndTags) == 0 || identAndTags[0] == "" {
		return Line{}, wberrors.BadInputf("missing measurement name: %q", line)
	}

	out := Line{Measurement: unescapeCommaSpace(identAndTags[0])}
	for _, kv := range identAndTags[1:] {
		k, v, err := splitKV(kv)
		if err != nil {
			return Line{}, err
		}
		out.Tags = append(out.Tags, KV{Key: k, Kind: KindTag, Str: unescapeCommaSpace(v)})
	}

	for _, kv := range splitUnescaped(fields[1], ',') {
		k, v, err := splitKV(kv)
		if err != nil {
			return Line{}, err
		}
		fv, err := parseFieldValue(v)
		if err != nil {
			return Line{}, wberrors.BadInputf("field %q: %v", k, err)
		}
		fv.Key = k
		out.Fields = append(out.Fields, fv)
	}
	if len(out.Fields) == 0 {
		return Line{}, wberrors.BadInputf("line has no fields: %q", line)
	}

	ts, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Line{}, wberrors.BadInputf("malformed timestamp %q: %v", fields[2], err)
	}
	out.Timestamp = ts

	return out, nil
}

func splitKV(kv string) (key, value string, err error) {
	idx := strings.IndexByte(kv, '=')
	if idx < 0 {
		return "", "", wberrors.BadInputf("malformed key=value pair: %q", kv)
	}
	return kv[:idx], kv[idx+1:], nil
}

func parseFieldValue(v string) (KV, error) {
	switch {
	case strings.HasPrefix(v, `"`) && strings.HasSuffix(v, `"`) && len(v) >= 2:
		return KV{Kind: KindString, Str: strings.ReplaceAll(v[1:len(v)-1], `\"`, `"`)}, nil
	case v == "t" || v == "T" || v == "true" || v == "True" || v == "TRUE":
		return KV{Kind: KindBool, Bool: true}, nil
	case v == "f" || v == "F" || v == "false" || v == "False" || v == "FALSE":
		return KV{Kind: KindBool, Bool: false}, nil
	case strings.HasSuffix(v, "i"):
		n, err := strconv.ParseInt(v[:len(v)-1], 10, 64)
		if err != nil {
			return KV{}, err
		}
		return KV{Kind: KindI64, I64: n}, nil
	default:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return KV{}, err
		}
		return KV{Kind: KindF64, F64: f}, nil
	}
}

// splitUnescaped splits s on sep, treating a backslash-escaped sep as
// literal and never splitting inside a double-quoted string value, so
// field values like str="some string" survive the space split intact.
func splitUnescaped(s string, sep byte) []string {
	var out []string
	var cur strings.Builder
	escaped := false
	inQuotes := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			cur.WriteByte(c)
			escaped = false
		case inQuotes:
			cur.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				i++
				cur.WriteByte(s[i])
			} else if c == '"' {
				inQuotes = false
			}
		case c == '"':
			inQuotes = true
			cur.WriteByte(c)
		case c == '\\':
			escaped = true
		case c == sep:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	out = append(out, cur.String())
	return out
}

func unescapeCommaSpace(s string) string {
	r := strings.NewReplacer(`\,`, ",", `\ `, " ", `\=`, "=")
	return r.Replace(s)
}
