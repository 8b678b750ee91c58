package state

import (
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

// Snapshot captures every position at a point in time.
type Snapshot struct {
	Timestamp int64           `json:"timestamp"`
	LastSeq   uint64          `json:"lastSeq"`
	Positions []PositionEntry `json:"positions"`
}

// PositionEntry is a single position entry.
type PositionEntry struct {
	AccountID       string          `json:"accountId"`
	PositionID      string          `json:"positionId"`
	Volume          int64           `json:"volume"`
	TodayVolume     int64           `json:"todayVolume"`
	YesterdayVolume int64           `json:"yesterdayVolume"`
	Frozen          int64           `json:"frozen"`
	Price           decimal.Decimal `json:"price"`
}

// Snapshot builds a snapshot from current positions.
func (r *Reconciler) Snapshot() Snapshot {
	return r.SnapshotWithMeta(0)
}

// SnapshotWithMeta builds a snapshot tagged with the last applied event sequence.
func (r *Reconciler) SnapshotWithMeta(lastSeq uint64) Snapshot {
	positions := r.Positions()
	entries := make([]PositionEntry, 0, len(positions))
	for _, pos := range positions {
		entries = append(entries, PositionEntry{
			AccountID:       pos.AccountID,
			PositionID:      pos.LocalPositionID(),
			Volume:          pos.Volume,
			TodayVolume:     pos.TodayVolume,
			YesterdayVolume: pos.YesterdayVolume,
			Frozen:          pos.Frozen,
			Price:           pos.Price,
		})
	}
	return Snapshot{
		Timestamp: time.Now().UTC().UnixNano(),
		LastSeq:   lastSeq,
		Positions: entries,
	}
}

// WriteSnapshot writes a snapshot to disk as indented JSON.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := sonic.ConfigStd.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create dir %s", dir)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, errors.Wrapf(err, "read snapshot %s", path)
	}
	var snap Snapshot
	if err := sonic.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, errors.Wrapf(err, "unmarshal snapshot %s", path)
	}
	return snap, nil
}

// CompareSnapshots checks that two snapshots hold the same positions.
// Timestamps and sequences are ignored.
func CompareSnapshots(expected, actual Snapshot) error {
	if len(expected.Positions) != len(actual.Positions) {
		return errors.Errorf("snapshot length mismatch: expected=%d actual=%d", len(expected.Positions), len(actual.Positions))
	}
	type id struct{ account, position string }
	expectedMap := make(map[id]PositionEntry, len(expected.Positions))
	for _, entry := range expected.Positions {
		expectedMap[id{entry.AccountID, entry.PositionID}] = entry
	}
	for _, entry := range actual.Positions {
		want, ok := expectedMap[id{entry.AccountID, entry.PositionID}]
		if !ok {
			return errors.Errorf("snapshot missing position: %s/%s", entry.AccountID, entry.PositionID)
		}
		if want.Volume != entry.Volume || want.TodayVolume != entry.TodayVolume ||
			want.YesterdayVolume != entry.YesterdayVolume || want.Frozen != entry.Frozen {
			return errors.Errorf("snapshot volume mismatch: position=%s expected=%d/%d/%d frozen=%d actual=%d/%d/%d frozen=%d",
				entry.PositionID,
				want.Volume, want.TodayVolume, want.YesterdayVolume, want.Frozen,
				entry.Volume, entry.TodayVolume, entry.YesterdayVolume, entry.Frozen)
		}
		if !want.Price.Equal(entry.Price) {
			return errors.Errorf("snapshot price mismatch: position=%s expected=%s actual=%s", entry.PositionID, want.Price, entry.Price)
		}
	}
	return nil
}
