// Package rubric turns rubric documents of any known shape into one editable
// list of scoring points, and writes edits back into the shape they came
// from without touching anything else in the document.
package rubric

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Variant is the location a document keeps its scoring points in. It is
// resolved once when a document is opened and never changes afterwards.
type Variant string

const (
	VariantNone          Variant = "none"
	VariantAnswerPoints  Variant = "answerPoints"
	VariantContentPoints Variant = "content.points"
	VariantContentSteps  Variant = "content.steps"
	VariantSegments      Variant = "content.segments"
)

// Path is the JSON path of the point array.
func (v Variant) Path() string {
	switch v {
	case VariantAnswerPoints, VariantContentPoints, VariantContentSteps, VariantSegments:
		return string(v)
	default:
		return ""
	}
}

// Editable reports whether edits can be written back into this variant.
func (v Variant) Editable() bool {
	return v != VariantSegments
}

const segmentedReadOnlyReason = "This rubric is split into segments; structured editing would lose the segment layout, so it is shown read-only."

type Point struct {
	ID              string   `json:"id"`
	QuestionSegment string   `json:"questionSegment,omitempty"`
	Content         string   `json:"content"`
	Score           float64  `json:"score"`
	Keywords        []string `json:"keywords"`
}

type Metadata struct {
	QuestionID string  `json:"questionId,omitempty"`
	Title      string  `json:"title,omitempty"`
	Subject    string  `json:"subject,omitempty"`
	Type       string  `json:"type,omitempty"`
	Strategy   string  `json:"strategy,omitempty"`
	TotalScore float64 `json:"totalScore,omitempty"`
}

// Defaults are caller-supplied values used when the document is unreadable
// or does not declare them.
type Defaults struct {
	QuestionID string
	Subject    string
	Type       string
	TotalScore float64
}

// probe looks for a non-empty point array at one location.
type probe struct {
	variant Variant
	path    string
}

// Detection order; the first non-empty location wins.
var probes = []probe{
	{VariantSegments, "content.segments"},
	{VariantAnswerPoints, "answerPoints"},
	{VariantContentPoints, "content.points"},
	{VariantContentSteps, "content.steps"},
}

func nonEmptyArray(doc gjson.Result, path string) ([]gjson.Result, bool) {
	r := doc.Get(path)
	if !r.IsArray() {
		return nil, false
	}
	items := r.Array()
	return items, len(items) > 0
}

// Detect returns the variant of a parsed document.
func Detect(doc gjson.Result) (Variant, []gjson.Result) {
	for _, p := range probes {
		if items, ok := nonEmptyArray(doc, p.path); ok {
			return p.variant, items
		}
	}
	return VariantNone, nil
}

var contentKeys = []string{"content", "text", "description", "point"}

func firstString(obj gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(obj.Get(k).String()); v != "" {
			return v
		}
	}
	return ""
}

// contentKey is the key a point object keeps its text under: the one
// firstString reads from, else the first one present.
func contentKey(obj gjson.Result) string {
	for _, k := range contentKeys {
		if strings.TrimSpace(obj.Get(k).String()) != "" {
			return k
		}
	}
	for _, k := range contentKeys {
		if obj.Get(k).Exists() {
			return k
		}
	}
	return "content"
}

func explicitID(item gjson.Result) string {
	if !item.IsObject() {
		return ""
	}
	return strings.TrimSpace(item.Get("id").String())
}

// assignIDs resolves the id of every item of one point array. Items without
// an id get p<position>, moved past any id already used in the array.
func assignIDs(items []gjson.Result) []string {
	taken := make(map[string]bool, len(items))
	for _, item := range items {
		if id := explicitID(item); id != "" {
			taken[id] = true
		}
	}

	ids := make([]string, len(items))
	for i, item := range items {
		if id := explicitID(item); id != "" {
			ids[i] = id
			continue
		}
		n := i + 1
		id := fmt.Sprintf("p%d", n)
		for taken[id] {
			n++
			id = fmt.Sprintf("p%d", n)
		}
		taken[id] = true
		ids[i] = id
	}
	return ids
}

// normalizePoint reads one point of any shape under the id assignIDs gave
// it. Points without content are rejected.
func normalizePoint(raw gjson.Result, id string) (Point, bool) {
	p := Point{ID: id}
	switch {
	case raw.Type == gjson.String:
		p.Content = strings.TrimSpace(raw.String())
	case raw.IsObject():
		p.QuestionSegment = strings.TrimSpace(raw.Get("questionSegment").String())
		p.Content = firstString(raw, contentKeys...)
		p.Score = raw.Get("score").Float()
		p.Keywords = keywords(raw.Get("keywords"))
	default:
		return p, false
	}

	if p.Content == "" {
		return p, false
	}
	if p.Keywords == nil {
		p.Keywords = []string{}
	}
	return p, true
}

func keywords(r gjson.Result) []string {
	var out []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}

	switch {
	case r.IsArray():
		for _, k := range r.Array() {
			add(k.String())
		}
	case r.Type == gjson.String:
		fields := strings.FieldsFunc(r.String(), func(c rune) bool {
			return c == ',' || c == ';' || c == '，' || c == '、'
		})
		for _, f := range fields {
			add(f)
		}
	}
	return out
}

func segmentLabel(seg gjson.Result, index int) string {
	if label := firstString(seg, "label", "title", "name", "segment"); label != "" {
		return label
	}
	if id := strings.TrimSpace(seg.Get("id").String()); id != "" {
		return id
	}
	return fmt.Sprintf("Segment %d", index+1)
}
