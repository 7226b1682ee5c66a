package entity

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Detection is one labelled detection of a frame.
type Detection struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Prediction holds the detections of one frame in the order the inference
// server returned them.
type Prediction []Detection

// CompletionResult is the ordered list of per-frame predictions of a job.
type CompletionResult []Prediction

type ResultFormat string

const (
	ResultFormatText ResultFormat = "text"
	ResultFormatJSON ResultFormat = "json"
)

// Render serializes the result in the requested format. The text form keeps
// the line format existing consumers parse: one line per frame, each a list
// of ('label', score) tuples.
func (r CompletionResult) Render(format ResultFormat) ([]byte, error) {
	if format == ResultFormatJSON {
		out := make(CompletionResult, len(r))
		for i, p := range r {
			if p == nil {
				p = Prediction{}
			}
			out[i] = p
		}
		return json.Marshal(out)
	}
	var b strings.Builder
	for _, p := range r {
		b.WriteString(p.String())
		b.WriteByte('\n')
	}
	return []byte(b.String()), nil
}

func (p Prediction) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, d := range p {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		b.WriteString(quoteLabel(d.Label))
		b.WriteString(", ")
		b.WriteString(formatScore(d.Score))
		b.WriteByte(')')
	}
	b.WriteByte(']')
	return b.String()
}

// quoteLabel quotes with single quotes unless the label contains a single
// quote and no double quote.
func quoteLabel(s string) string {
	q := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		q = '"'
	}
	var b strings.Builder
	b.WriteByte(q)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\':
			b.WriteString(`\\`)
		case c == q:
			b.WriteByte('\\')
			b.WriteByte(c)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\t':
			b.WriteString(`\t`)
		case c == '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte(q)
	return b.String()
}

// formatScore prints the shortest round-trip form with a fixed notation for
// decimal exponents in [-4, 16) and an explicit ".0" on integral values.
func formatScore(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	if f == 0 {
		if math.Signbit(f) {
			return "-0.0"
		}
		return "0.0"
	}
	sci := strconv.FormatFloat(f, 'e', -1, 64)
	exp, _ := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if exp < -4 || exp >= 16 {
		return sci
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}
