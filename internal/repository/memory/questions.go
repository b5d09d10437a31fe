package memory

import (
	"context"
	"hash/fnv"
	"sort"

	"github.com/gdugdh24/pairprep-backend/internal/domain"
)

type question struct {
	id         string
	difficulty domain.Difficulty
	topics     []string
}

// AddQuestion registers a question for SelectQuestion.
func (s *Store) AddQuestion(id string, difficulty domain.Difficulty, topics ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.questions = append(s.questions, question{
		id:         id,
		difficulty: difficulty,
		topics:     domain.NormalizeTopics(topics),
	})
}

// SelectQuestion picks one question of the given difficulty sharing at least one
// topic (any topic when none are given). The choice is stable per requester key.
func (s *Store) SelectQuestion(ctx context.Context, difficulty domain.Difficulty, topics []string, requesterKey string) (*string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for _, q := range s.questions {
		if difficulty != "" && q.difficulty != difficulty {
			continue
		}
		if len(topics) > 0 && !overlaps(q.topics, topics) {
			continue
		}
		ids = append(ids, q.id)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids)

	h := fnv.New32a()
	_, _ = h.Write([]byte(requesterKey))
	id := ids[int(h.Sum32()%uint32(len(ids)))]
	return &id, nil
}

func overlaps(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, item := range a {
		set[item] = struct{}{}
	}
	for _, item := range b {
		if _, ok := set[item]; ok {
			return true
		}
	}
	return false
}
