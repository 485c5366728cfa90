package rubric

import (
	"encoding/json"
	"fmt"
	"strings"

	"grading-assistant-core/pkg/errors"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Reserialize writes edited points back into the location named by variant
// and returns the new document. Only the point array and the totals are
// rewritten; every other byte of the original is kept. A point whose id
// matches an original point keeps that point's extra fields. The segmented
// variant is rejected with the original document.
func Reserialize(original string, points []Point, variant Variant) (string, error) {
	if _, err := parseDocument(original); err != nil {
		return original, err
	}
	if !variant.Editable() {
		return original, errors.ErrReadOnlyVariant
	}

	path := variant.Path()
	if path == "" {
		path = VariantAnswerPoints.Path()
	}

	existing := originalPoints(gjson.Get(original, path))

	items := make([]string, 0, len(points))
	for _, p := range points {
		item, err := writePoint(existing[p.ID], p)
		if err != nil {
			return original, fmt.Errorf("write point %s: %w", p.ID, err)
		}
		items = append(items, item)
	}

	doc, err := sjson.SetRaw(original, path, "["+strings.Join(items, ",")+"]")
	if err != nil {
		return original, fmt.Errorf("write %s: %w", path, err)
	}

	if total := SumScores(points); total > 0 {
		if doc, err = sjson.Set(doc, "metadata.totalScore", total); err != nil {
			return original, fmt.Errorf("write metadata.totalScore: %w", err)
		}
		if doc, err = sjson.Set(doc, "totalScore", total); err != nil {
			return original, fmt.Errorf("write totalScore: %w", err)
		}
	}
	return doc, nil
}

// originalPoints indexes the original point objects by the id the
// normalizer gives them.
func originalPoints(arr gjson.Result) map[string]gjson.Result {
	out := make(map[string]gjson.Result)
	if !arr.IsArray() {
		return out
	}
	items := arr.Array()
	ids := assignIDs(items)
	for i, item := range items {
		if item.IsObject() {
			out[ids[i]] = item
		}
	}
	return out
}

// writePoint patches only the fields that changed, so untouched values keep
// their original encoding.
func writePoint(orig gjson.Result, p Point) (string, error) {
	if p.Keywords == nil {
		p.Keywords = []string{}
	}
	if !orig.IsObject() {
		b, err := json.Marshal(p)
		return string(b), err
	}

	raw := orig.Raw
	var err error
	set := func(path string, value interface{}) {
		if err == nil {
			raw, err = sjson.Set(raw, path, value)
		}
	}

	if strings.TrimSpace(orig.Get("id").String()) != p.ID {
		set("id", p.ID)
	}
	if key := contentKey(orig); strings.TrimSpace(orig.Get(key).String()) != p.Content {
		set(key, p.Content)
	}
	if orig.Get("score").Float() != p.Score || !orig.Get("score").Exists() {
		set("score", p.Score)
	}
	if kw := orig.Get("keywords"); !sameStrings(keywords(kw), p.Keywords) || !kw.Exists() {
		if kw.Type == gjson.String {
			set("keywords", strings.Join(p.Keywords, ", "))
		} else {
			set("keywords", p.Keywords)
		}
	}

	seg := orig.Get("questionSegment")
	switch {
	case p.QuestionSegment != "" && strings.TrimSpace(seg.String()) != p.QuestionSegment:
		set("questionSegment", p.QuestionSegment)
	case p.QuestionSegment == "" && seg.Exists():
		if err == nil {
			raw, err = sjson.Delete(raw, "questionSegment")
		}
	}
	return raw, err
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
