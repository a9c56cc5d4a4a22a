// Package selection picks the assessment records that feed a consolidation:
// the most recent observation, the most recent self-assessment and the N
// most recent peer ratings.
package selection

import (
	"errors"
	"sort"
	"time"

	"github.com/okian/skillpulse/internal/domain/consolidation"
	"github.com/okian/skillpulse/internal/domain/model"
)

// ErrNoAnchor means neither an observation nor a self-assessment exists, so
// the skill is NOT_APPLICABLE and no consolidation can be made.
var ErrNoAnchor = errors.New("no observation or self-assessment for skill")

// newer orders records by time, then by id so equal timestamps still give a
// deterministic pick.
func newer(a, b model.Assessment) bool {
	if !a.At.Equal(b.At) {
		return a.At.After(b.At)
	}
	return a.ID > b.ID
}

// Latest returns the most recent record of source.
func Latest(records []model.Assessment, source model.Source) (model.Assessment, bool) {
	var (
		best  model.Assessment
		found bool
	)
	for _, r := range records {
		if r.Source != source {
			continue
		}
		if !found || newer(r, best) {
			best, found = r, true
		}
	}
	return best, found
}

// RecentPeers returns up to n peer records, most recent first.
func RecentPeers(records []model.Assessment, n int) []model.Assessment {
	if n <= 0 {
		return nil
	}
	peers := make([]model.Assessment, 0, len(records))
	for _, r := range records {
		if r.Source == model.SourcePeer {
			peers = append(peers, r)
		}
	}
	sort.SliceStable(peers, func(i, j int) bool { return newer(peers[i], peers[j]) })
	if len(peers) > n {
		peers = peers[:n]
	}
	return peers
}

// Chronological returns a copy of results sorted by time, oldest first.
// Equal timestamps keep their input order.
func Chronological(results []model.ConsolidatedResult) []model.ConsolidatedResult {
	out := make([]model.ConsolidatedResult, len(results))
	copy(out, results)
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// SortRecords sorts records in place, oldest first.
func SortRecords(records []model.Assessment) {
	sort.SliceStable(records, func(i, j int) bool { return newer(records[j], records[i]) })
}

// Selection is the data chosen for one consolidation.
type Selection struct {
	Input       consolidation.Input
	Observation *model.Assessment
	Self        *model.Assessment
	Peers       []model.Assessment
	// Count is the number of records considered, LastAt the newest timestamp.
	Count  int
	LastAt time.Time
}

// Build selects from records, taking at most peerLimit peer ratings (the
// reliability target when peerLimit < 1).
func Build(records []model.Assessment, peerLimit int) (Selection, error) {
	if peerLimit < 1 {
		peerLimit = consolidation.DefaultTargetPeerCount
	}

	var obs, self *model.Assessment
	if a, ok := Latest(records, model.SourceObservation); ok {
		obs = &a
	}
	if a, ok := Latest(records, model.SourceSelfAssessment); ok {
		self = &a
	}
	sel, err := From(obs, self, RecentPeers(records, peerLimit))
	if err != nil {
		return Selection{}, err
	}

	sel.Count = len(records)
	for _, r := range records {
		if r.At.After(sel.LastAt) {
			sel.LastAt = r.At
		}
	}
	return sel, nil
}

// From assembles a selection from records already picked, for instance by
// a store query. When one of observation and self-assessment is missing,
// the other fills its slot so the blend stays anchored on what the student
// actually has. Count and LastAt are left for the caller.
func From(observation, self *model.Assessment, peers []model.Assessment) (Selection, error) {
	if observation == nil && self == nil {
		return Selection{}, ErrNoAnchor
	}

	sel := Selection{Observation: observation, Self: self, Peers: peers}
	switch {
	case observation == nil:
		sel.Input.Observation = self.Score()
		sel.Input.Self = self.Score()
	case self == nil:
		sel.Input.Observation = observation.Score()
		sel.Input.Self = observation.Score()
	default:
		sel.Input.Observation = observation.Score()
		sel.Input.Self = self.Score()
	}

	sel.Input.Peers = make([]float64, len(peers))
	for i, p := range peers {
		sel.Input.Peers[i] = p.Score()
	}
	return sel, nil
}

// Replay rebuilds the selection as it stood at every distinct record
// timestamp, using only the records at or before it. Timestamps where
// neither an observation nor a self-assessment exists yet are skipped.
// The result is oldest first and depends on records alone, not on their
// order or on when earlier consolidations ran.
func Replay(records []model.Assessment, peerLimit int) []Selection {
	sorted := make([]model.Assessment, len(records))
	copy(sorted, records)
	SortRecords(sorted)

	var out []Selection
	for i := range sorted {
		if i+1 < len(sorted) && sorted[i+1].At.Equal(sorted[i].At) {
			continue
		}
		sel, err := Build(sorted[:i+1], peerLimit)
		if err != nil {
			continue
		}
		out = append(out, sel)
	}
	return out
}
