package rubric

import (
	"fmt"
	"strings"

	"grading-assistant-core/pkg/errors"

	"github.com/tidwall/gjson"
)

// Result is the canonical view of a rubric document.
type Result struct {
	Points         []Point  `json:"points"`
	Variant        Variant  `json:"sourceVariant"`
	ReadOnlyReason string   `json:"readOnlyReason,omitempty"`
	Metadata       Metadata `json:"metadata"`
	TotalScore     float64  `json:"totalScore"`

	// Raw is the input text, kept so an unreadable document can still be
	// saved verbatim.
	Raw        string `json:"-"`
	ParseError error  `json:"-"`
}

func (r Result) ParseFailed() bool {
	return r.ParseError != nil
}

// Normalize reads a rubric document of unknown shape. It never fails:
// unreadable text yields no points and a preview built from defaults.
func Normalize(raw string, defaults Defaults) Result {
	res := Result{
		Points:  []Point{},
		Variant: VariantNone,
		Raw:     raw,
	}

	doc, err := parseDocument(raw)
	if err != nil {
		res.ParseError = err
		res.Metadata = Metadata{
			QuestionID: defaults.QuestionID,
			Subject:    defaults.Subject,
			Type:       defaults.Type,
			TotalScore: defaults.TotalScore,
		}
		res.TotalScore = positiveOr(defaults.TotalScore, 0)
		return res
	}

	variant, items := Detect(doc)
	res.Variant = variant

	switch variant {
	case VariantSegments:
		res.Points = flattenSegments(items)
		res.ReadOnlyReason = segmentedReadOnlyReason
	case VariantNone:
	default:
		res.Points = normalizePoints(items)
	}

	res.Metadata = readMetadata(doc, defaults)
	res.TotalScore = resolveTotal(res.Points, res.Metadata.TotalScore, defaults.TotalScore)
	return res
}

func parseDocument(raw string) (gjson.Result, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return gjson.Result{}, errors.ParseError{Err: fmt.Errorf("empty document")}
	}
	if !gjson.Valid(trimmed) {
		return gjson.Result{}, errors.ParseError{Err: fmt.Errorf("invalid JSON")}
	}
	doc := gjson.Parse(trimmed)
	if !doc.IsObject() {
		return gjson.Result{}, errors.ParseError{Err: fmt.Errorf("document is not a JSON object")}
	}
	return doc, nil
}

func normalizePoints(items []gjson.Result) []Point {
	points := make([]Point, 0, len(items))
	ids := assignIDs(items)
	for i, item := range items {
		if p, ok := normalizePoint(item, ids[i]); ok {
			points = append(points, p)
		}
	}
	return points
}

// flattenSegments lists the points of every segment in order. Ids are
// unique across the whole document, not per segment.
func flattenSegments(segments []gjson.Result) []Point {
	var (
		items  []gjson.Result
		labels []string
	)
	for si, seg := range segments {
		segItems, ok := nonEmptyArray(seg, "points")
		if !ok {
			segItems, _ = nonEmptyArray(seg, "steps")
		}
		label := segmentLabel(seg, si)
		for _, item := range segItems {
			items = append(items, item)
			labels = append(labels, label)
		}
	}

	points := []Point{}
	ids := assignIDs(items)
	for i, item := range items {
		p, ok := normalizePoint(item, ids[i])
		if !ok {
			continue
		}
		p.QuestionSegment = labels[i]
		points = append(points, p)
	}
	return points
}

func readMetadata(doc gjson.Result, defaults Defaults) Metadata {
	meta := doc.Get("metadata")
	pick := func(key string) string {
		if v := strings.TrimSpace(meta.Get(key).String()); v != "" {
			return v
		}
		return strings.TrimSpace(doc.Get(key).String())
	}

	m := Metadata{
		QuestionID: pick("questionId"),
		Title:      pick("title"),
		Subject:    pick("subject"),
		Type:       pick("type"),
		Strategy:   pick("strategy"),
		TotalScore: meta.Get("totalScore").Float(),
	}
	if m.TotalScore <= 0 {
		m.TotalScore = doc.Get("totalScore").Float()
	}
	if m.QuestionID == "" {
		m.QuestionID = defaults.QuestionID
	}
	if m.Subject == "" {
		m.Subject = defaults.Subject
	}
	if m.Type == "" {
		m.Type = defaults.Type
	}
	return m
}

// resolveTotal prefers the point sum, then the declared total, then the
// caller's fallback.
func resolveTotal(points []Point, declared, fallback float64) float64 {
	if sum := SumScores(points); sum > 0 {
		return sum
	}
	if declared > 0 {
		return declared
	}
	return positiveOr(fallback, 0)
}

func SumScores(points []Point) float64 {
	var sum float64
	for _, p := range points {
		sum += p.Score
	}
	return sum
}

func positiveOr(v, fallback float64) float64 {
	if v > 0 {
		return v
	}
	return fallback
}
