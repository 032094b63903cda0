// README: Matching candidates and ranking order.
package matching

import (
	"errors"
	"sort"

	"fixit/internal/modules/worker"
)

// ErrNoWorkersAvailable is a result state, not a failure: no eligible worker was found
// within the widest search radius.
var ErrNoWorkersAvailable = errors.New("no workers available")

type Candidate struct {
	Worker     *worker.Worker `json:"worker"`
	DistanceKm float64        `json:"distance_km"`
	EtaMinutes float64        `json:"eta_minutes"`
}

// rank orders candidates by distance ascending, then rating descending, then ETA
// ascending, then worker id so equal candidates keep a stable order.
func rank(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.DistanceKm != b.DistanceKm {
			return a.DistanceKm < b.DistanceKm
		}
		if a.Worker.Rating != b.Worker.Rating {
			return a.Worker.Rating > b.Worker.Rating
		}
		if a.EtaMinutes != b.EtaMinutes {
			return a.EtaMinutes < b.EtaMinutes
		}
		return a.Worker.ID < b.Worker.ID
	})
}
