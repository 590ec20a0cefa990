package catalog

import "github.com/xyonico/BeatSaberSongLoader/internal/domain/song"

// Delta is the difference between the loaded song set and a fresh scan,
// matched by canonical ID. Unchanged holds the previously loaded records and
// Current the freshly scanned record for each of them, index for index.
type Delta struct {
	Added     []*song.Record
	Removed   []*song.Record
	Unchanged []*song.Record
	Current   []*song.Record
}

// Empty reports whether nothing was added or removed.
func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// Reconcile diffs prev against fresh. Order within each set follows the input
// order.
func Reconcile(prev, fresh []*song.Record) Delta {
	freshIDs := make(map[string]*song.Record, len(fresh))
	for _, r := range fresh {
		if _, dup := freshIDs[r.ID]; !dup {
			freshIDs[r.ID] = r
		}
	}
	prevIDs := make(map[string]struct{}, len(prev))

	var d Delta
	for _, r := range prev {
		if _, dup := prevIDs[r.ID]; dup {
			continue
		}
		prevIDs[r.ID] = struct{}{}
		if cur, ok := freshIDs[r.ID]; ok {
			d.Unchanged = append(d.Unchanged, r)
			d.Current = append(d.Current, cur)
		} else {
			d.Removed = append(d.Removed, r)
		}
	}
	for _, r := range fresh {
		if _, ok := prevIDs[r.ID]; ok {
			continue
		}
		prevIDs[r.ID] = struct{}{}
		d.Added = append(d.Added, r)
	}
	return d
}
