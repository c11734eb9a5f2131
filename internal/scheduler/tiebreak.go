package scheduler

import (
	"sort"

	"github.com/oltfleet/pollerd/internal/domain"
)

// sortCandidates orders ready jobs by ascending next_run_at, then
// ascending operation_type lexicographically, then ascending job_id.
// A queue_hint priority-override expression (see priority.go) breaks ties
// between the operation_type and job_id comparisons (higher score first),
// so it only ever reorders jobs that were already tied on the primary two
// keys, never violating the documented contract.
func sortCandidates(jobs []domain.Job, pri *priorityOverride) []domain.Job {
	out := make([]domain.Job, len(jobs))
	copy(out, jobs)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.NextRunAt.Equal(b.NextRunAt) {
			return a.NextRunAt.Before(b.NextRunAt)
		}
		if a.OperationType != b.OperationType {
			return a.OperationType < b.OperationType
		}
		if pri != nil {
			sa, sb := pri.score(a), pri.score(b)
			if sa != sb {
				return sa > sb
			}
		}
		return a.ID < b.ID
	})
	return out
}
