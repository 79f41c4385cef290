package linker

import (
	"github.com/starford/crosslink/internal/models"
	"github.com/starford/crosslink/internal/relevance"
)

// DefaultMaxDistance is the relevance radius used when none is configured.
const DefaultMaxDistance = 2

// Filter splits candidates into those whose source and target lie within
// (0, maxDistance] on g and those that do not. Every returned candidate has
// Distance set, models.DistanceUnreachable when no path exists; rejected
// ones also carry a Reason.
func Filter(cands []models.Candidate, g *relevance.Graph, maxDistance int) (accepted, rejected []models.Candidate) {
	for _, c := range cands {
		d, known := g.PathDistance(c.Source, c.Target)
		c.Distance = d
		if !known || d == relevance.Unreachable {
			c.Distance = models.DistanceUnreachable
		}
		switch {
		case !known:
			c.Reason = models.ReasonUnknownTarget
		case d == 0:
			c.Reason = models.ReasonSelf
		case d == relevance.Unreachable:
			c.Reason = models.ReasonUnreachable
		case d > maxDistance:
			c.Reason = models.ReasonTooFar
		default:
			c.Reason = models.ReasonAccepted
			accepted = append(accepted, c)
			continue
		}
		rejected = append(rejected, c)
	}
	return accepted, rejected
}
