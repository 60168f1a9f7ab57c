package extract

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/traceroam/tracereplay/script"
)

// Validate checks that sum(req_counts) == len(client_packets) and
// sum(rep_counts) == len(server_packets), that the two burst-count lists
// differ in length by at most one, and that no zero-delay packet carries a
// parallel snapshot. It does not check burst alternation or direction,
// nor the snapshot entries themselves. It returns an aggregated error
// naming every violation found, so a single
// extraction run reports everything wrong at once rather than stopping at
// the first broken connection.
func Validate(scripts []script.Script) error {
	var result *multierror.Error

	for _, s := range scripts {
		if got, want := sum(s.ReqCounts), len(s.ClientPackets); got != want {
			result = multierror.Append(result, errors.Errorf(
				"connection %s: sum(req_counts)=%d, want len(client_packets)=%d", s.ID, got, want))
		}
		if got, want := sum(s.RepCounts), len(s.ServerPackets); got != want {
			result = multierror.Append(result, errors.Errorf(
				"connection %s: sum(rep_counts)=%d, want len(server_packets)=%d", s.ID, got, want))
		}

		diff := len(s.ReqCounts) - len(s.RepCounts)
		if diff > 1 || diff < -1 {
			result = multierror.Append(result, errors.Errorf(
				"connection %s: req_counts has %d bursts, rep_counts has %d, burst counts must differ by at most one",
				s.ID, len(s.ReqCounts), len(s.RepCounts)))
		}

		for i, p := range s.ClientPackets {
			if p.Delay == 0 && len(p.Preconditions()) != 0 {
				result = multierror.Append(result, errors.Errorf(
					"connection %s: client packet %d has delay=0 but a non-empty parallel snapshot", s.ID, i))
			}
		}
		for i, p := range s.ServerPackets {
			if p.Delay == 0 && len(p.Preconditions()) != 0 {
				result = multierror.Append(result, errors.Errorf(
					"connection %s: server packet %d has delay=0 but a non-empty parallel snapshot", s.ID, i))
			}
		}
	}

	return result.ErrorOrNil()
}

func sum(vals []int) int {
	total := 0
	for _, v := range vals {
		total += v
	}
	return total
}
