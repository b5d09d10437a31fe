package matching

import (
	"sort"

	"github.com/gdugdh24/pairprep-backend/internal/domain"
)

type Options struct {
	// CrossModeSameDifficulty requires a strict-mode candidate picked by a flexible
	// anchor to share the anchor's difficulty even if the anchor relaxed it.
	CrossModeSameDifficulty bool
}

func DefaultOptions() Options {
	return Options{CrossModeSameDifficulty: true}
}

// Engine decides whether two tickets may be paired and which candidate wins.
// It holds no state and never touches storage.
type Engine struct {
	opts Options
}

func NewEngine(opts Options) *Engine {
	return &Engine{opts: opts}
}

// Decision is the engine's pick for an anchor.
type Decision struct {
	Candidate *domain.Ticket
	Mode      domain.MatchMode
	// Score is only meaningful in flexible mode; lower is better.
	Score float64
}

// ModeOrder returns the modes an anchor should try, in order. Relaxed topics mean
// the subset-based strict rule is no longer wanted, so flexible goes first. Strict
// anchors never run flexible mode.
func ModeOrder(anchor *domain.Ticket) []domain.MatchMode {
	if anchor.StrictMode {
		return []domain.MatchMode{domain.MatchModeStrict}
	}
	if anchor.Relax.Topics {
		return []domain.MatchMode{domain.MatchModeFlexible, domain.MatchModeStrict}
	}
	return []domain.MatchMode{domain.MatchModeStrict, domain.MatchModeFlexible}
}

// Select runs the given mode over candidates and returns nil when nobody fits.
func (e *Engine) Select(anchor *domain.Ticket, candidates []*domain.Ticket, mode domain.MatchMode) *Decision {
	switch mode {
	case domain.MatchModeStrict:
		return e.Strict(anchor, candidates)
	case domain.MatchModeFlexible:
		return e.Flexible(anchor, candidates)
	}
	return nil
}

// Strict picks the oldest acceptable candidate.
func (e *Engine) Strict(anchor *domain.Ticket, candidates []*domain.Ticket) *Decision {
	var best *domain.Ticket
	for _, candidate := range candidates {
		if !e.AcceptStrict(anchor, candidate) {
			continue
		}
		if best == nil || olderThan(candidate, best) {
			best = candidate
		}
	}
	if best == nil {
		return nil
	}
	return &Decision{Candidate: best, Mode: domain.MatchModeStrict}
}

// AcceptStrict applies the strict-mode gate for a single candidate.
func (e *Engine) AcceptStrict(anchor, candidate *domain.Ticket) bool {
	if !basicEligible(anchor, candidate) {
		return false
	}
	if candidate.StrictMode != anchor.StrictMode {
		return false
	}
	if !criteriaCompatible(anchor, candidate) {
		return false
	}
	if anchor.Relax.Topics {
		return true
	}
	if !SubsetEitherWay(anchor.Topics, candidate.Topics) {
		return false
	}
	return Jaccard(anchor.Topics, candidate.Topics) >= MinOverlap(len(anchor.Topics), anchor.StrictMode)
}

// Flexible picks the best-scoring admissible candidate. Strict anchors get nil.
func (e *Engine) Flexible(anchor *domain.Ticket, candidates []*domain.Ticket) *Decision {
	ranked := e.RankFlexible(anchor, candidates)
	if len(ranked) == 0 {
		return nil
	}
	return &ranked[0]
}

// RankFlexible returns every admissible candidate ordered by score, then by
// enqueue time, then by id.
func (e *Engine) RankFlexible(anchor *domain.Ticket, candidates []*domain.Ticket) []Decision {
	if anchor.StrictMode {
		return nil
	}

	ranked := make([]Decision, 0, len(candidates))
	for _, candidate := range candidates {
		if !basicEligible(anchor, candidate) || !criteriaCompatible(anchor, candidate) {
			continue
		}
		if candidate.StrictMode && !e.crossModeAdmissible(anchor, candidate) {
			continue
		}
		ranked = append(ranked, Decision{
			Candidate: candidate,
			Mode:      domain.MatchModeFlexible,
			Score:     FlexibleScore(anchor, candidate),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score < ranked[j].Score
		}
		return olderThan(ranked[i].Candidate, ranked[j].Candidate)
	})
	return ranked
}

// FlexibleScore computes the flexible-mode score of candidate for anchor.
func FlexibleScore(anchor, candidate *domain.Ticket) float64 {
	var score float64
	if anchor.Relax.Topics {
		score = ignoredTopicsScore
	} else {
		score = 1 - Coverage(anchor.Topics, candidate.Topics)
	}
	if anchor.Relax.Difficulty && anchor.Difficulty != candidate.Difficulty {
		score += difficultyPenalty
	}
	if anchor.Relax.Skill && anchor.SkillLevel != candidate.SkillLevel {
		score += skillLevelPenalty
	}
	return score
}

func (e *Engine) crossModeAdmissible(anchor, candidate *domain.Ticket) bool {
	if !SubsetEitherWay(anchor.Topics, candidate.Topics) {
		return false
	}
	if e.opts.CrossModeSameDifficulty && anchor.Difficulty != candidate.Difficulty {
		return false
	}
	return true
}

func basicEligible(anchor, candidate *domain.Ticket) bool {
	if candidate == nil || candidate.ID == anchor.ID {
		return false
	}
	if candidate.UserID == anchor.UserID {
		return false
	}
	return candidate.IsQueued()
}

func criteriaCompatible(anchor, candidate *domain.Ticket) bool {
	if !anchor.Relax.Difficulty && anchor.Difficulty != candidate.Difficulty {
		return false
	}
	if !anchor.Relax.Skill && anchor.SkillLevel != candidate.SkillLevel {
		return false
	}
	return true
}

func olderThan(a, b *domain.Ticket) bool {
	if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
		return a.EnqueuedAt.Before(b.EnqueuedAt)
	}
	return a.ID < b.ID
}
