package sync

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"grading-assistant-core/internal/model"
)

type MergeStats struct {
	Matched          int
	Linked           int
	Imported         int
	DuplicatesHidden int
}

// Unsynced returns the visible records not yet known to the remote store.
func Unsynced(records []model.GradingRecord) []model.GradingRecord {
	var out []model.GradingRecord
	for _, r := range records {
		if !r.IsHidden && !r.IsSynced() {
			out = append(out, r)
		}
	}
	return out
}

// Merge folds the remote record set into the local one. Records match by id
// (or a remembered remote id) first. A remote record with a server-assigned
// id that is otherwise identical to an unlinked local record is linked to
// it. Everything else is imported, after which same-bucket duplicates are
// hidden. Nothing is ever removed.
func Merge(local, remote []model.GradingRecord, now int64) ([]model.GradingRecord, MergeStats) {
	var stats MergeStats

	out := make([]model.GradingRecord, len(local), len(local)+len(remote))
	copy(out, local)

	byID := make(map[string]int, len(out))
	echoes := make(map[string][]int)
	for i, r := range out {
		byID[r.ID] = i
		if r.RemoteID != "" {
			byID[r.RemoteID] = i
			continue
		}
		if r.Origin != model.OriginRemote {
			if bk := r.BucketKey(); bk != "" {
				echoes[bk] = append(echoes[bk], i)
			}
		}
	}

	for _, r := range remote {
		if r.ID == "" {
			continue
		}

		if i, ok := byID[r.ID]; ok {
			if out[i].SyncedAt == 0 && out[i].Origin != model.OriginRemote {
				out[i].SyncedAt = now
			}
			stats.Matched++
			continue
		}

		if i, ok := takeEcho(out, echoes, r); ok {
			out[i].RemoteID = r.ID
			if out[i].SyncedAt == 0 {
				out[i].SyncedAt = now
			}
			byID[r.ID] = i
			stats.Linked++
			continue
		}

		rec := r
		rec.Origin = model.OriginRemote
		rec.RemoteID = ""
		rec.SyncedAt = now
		out = append(out, rec)
		byID[rec.ID] = len(out) - 1
		stats.Imported++
	}

	stats.DuplicatesHidden = HideDuplicates(out)
	return out, stats
}

func takeEcho(out []model.GradingRecord, echoes map[string][]int, r model.GradingRecord) (int, bool) {
	bk := r.BucketKey()
	candidates := echoes[bk]
	for n, i := range candidates {
		l := out[i]
		if l.RemoteID == "" && l.Timestamp == r.Timestamp &&
			l.StudentName == r.StudentName && l.Score == r.Score {
			echoes[bk] = append(candidates[:n:n], candidates[n+1:]...)
			return i, true
		}
	}
	return 0, false
}

// HideDuplicates keeps one visible record per (question, whole second)
// bucket: the one with the larger timestamp, or the earlier one on a tie.
// Losers are marked hidden in place. Uncategorized records are never
// bucketed. It returns how many records it hid.
func HideDuplicates(records []model.GradingRecord) int {
	winners := make(map[string]int)
	hidden := 0
	for i := range records {
		if records[i].IsHidden {
			continue
		}
		bk := records[i].BucketKey()
		if bk == "" {
			continue
		}
		w, ok := winners[bk]
		if !ok {
			winners[bk] = i
			continue
		}
		if records[i].Timestamp > records[w].Timestamp {
			records[w].IsHidden = true
			winners[bk] = i
		} else {
			records[i].IsHidden = true
		}
		hidden++
	}
	return hidden
}

// fingerprint identifies a set of record ids independent of order.
func fingerprint(records []model.GradingRecord) string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(strings.Join(ids, "\n")))
	return hex.EncodeToString(sum[:])
}
