package model

import (
	"strconv"
	"strings"
)

// OriginRemote marks a record that was first seen on the remote store.
const OriginRemote = "remote"

type BreakdownItem struct {
	Label   string  `json:"label"`
	Score   float64 `json:"score"`
	Max     float64 `json:"max"`
	Comment string  `json:"comment,omitempty"`
}

// GradingRecord is one grading event. ID never changes once assigned.
type GradingRecord struct {
	ID          string          `json:"id"`
	QuestionKey string          `json:"questionKey,omitempty"`
	QuestionNo  string          `json:"questionNo,omitempty"`
	StudentName string          `json:"studentName"`
	Score       float64         `json:"score"`
	MaxScore    float64         `json:"maxScore"`
	Comment     string          `json:"comment,omitempty"`
	Breakdown   []BreakdownItem `json:"breakdown,omitempty"`
	Timestamp   int64           `json:"timestamp"`
	IsHidden    bool            `json:"isHidden"`

	Origin   string `json:"origin,omitempty"`
	RemoteID string `json:"remoteId,omitempty"`
	SyncedAt int64  `json:"syncedAt,omitempty"`
}

// IsUncategorized reports a record with neither questionKey nor questionNo.
func (r GradingRecord) IsUncategorized() bool {
	return strings.TrimSpace(r.QuestionKey) == "" && strings.TrimSpace(r.QuestionNo) == ""
}

// GroupKey identifies the question a record belongs to. Empty for
// uncategorized records.
func (r GradingRecord) GroupKey() string {
	if k := strings.TrimSpace(r.QuestionKey); k != "" {
		return "key:" + k
	}
	if n := strings.TrimSpace(r.QuestionNo); n != "" {
		return "no:" + n
	}
	return ""
}

// SecondBucket is the whole-second bucket of the timestamp.
func (r GradingRecord) SecondBucket() int64 {
	if r.Timestamp < 0 {
		return (r.Timestamp - 999) / 1000
	}
	return r.Timestamp / 1000
}

// BucketKey combines the group key and the second bucket. Empty when the
// record is uncategorized.
func (r GradingRecord) BucketKey() string {
	g := r.GroupKey()
	if g == "" {
		return ""
	}
	return g + "|" + strconv.FormatInt(r.SecondBucket(), 10)
}

// IsSynced reports whether the record is known to exist remotely.
func (r GradingRecord) IsSynced() bool {
	return r.Origin == OriginRemote || r.RemoteID != "" || r.SyncedAt != 0
}

// MatchesQuestion reports whether the record belongs to the filter.
func (r GradingRecord) MatchesQuestion(f QuestionFilter) bool {
	if f.QuestionKey != "" && r.QuestionKey == f.QuestionKey {
		return true
	}
	if f.QuestionNo != "" && r.QuestionNo == f.QuestionNo {
		return true
	}
	return false
}

func (r GradingRecord) ToInput() RecordInput {
	return RecordInput{
		ID:          r.ID,
		QuestionKey: r.QuestionKey,
		QuestionNo:  r.QuestionNo,
		StudentName: r.StudentName,
		Score:       r.Score,
		MaxScore:    r.MaxScore,
		Comment:     r.Comment,
		Breakdown:   r.Breakdown,
		Timestamp:   r.Timestamp,
	}
}

// RecordInput is the wire shape of a record in a batch-create call.
type RecordInput struct {
	ID          string          `json:"id" validate:"required,max=128"`
	QuestionKey string          `json:"questionKey,omitempty" validate:"max=512"`
	QuestionNo  string          `json:"questionNo,omitempty" validate:"max=64"`
	StudentName string          `json:"studentName" validate:"max=256"`
	Score       float64         `json:"score"`
	MaxScore    float64         `json:"maxScore" validate:"gte=0"`
	Comment     string          `json:"comment,omitempty"`
	Breakdown   []BreakdownItem `json:"breakdown,omitempty"`
	Timestamp   int64           `json:"timestamp" validate:"gt=0"`
}

func (in RecordInput) ToRecord() GradingRecord {
	return GradingRecord{
		ID:          in.ID,
		QuestionKey: in.QuestionKey,
		QuestionNo:  in.QuestionNo,
		StudentName: in.StudentName,
		Score:       in.Score,
		MaxScore:    in.MaxScore,
		Comment:     in.Comment,
		Breakdown:   in.Breakdown,
		Timestamp:   in.Timestamp,
	}
}

// QuestionFilter selects records of one question by key or number.
type QuestionFilter struct {
	QuestionKey string `json:"questionKey,omitempty" form:"questionKey"`
	QuestionNo  string `json:"questionNo,omitempty" form:"questionNo"`
}

func (f QuestionFilter) IsEmpty() bool {
	return f.QuestionKey == "" && f.QuestionNo == ""
}
