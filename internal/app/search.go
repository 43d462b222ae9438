package app

import (
	"sort"
	"strings"

	"campus-sync-service/internal/domain"
)

// maxSuggestions caps inline suggestion lists; full search views are uncapped.
const maxSuggestions = 12

// SearchIndex answers ranked queries over the synchronizer's current
// mappings. It holds no state of its own: every call scans fresh, so results
// can never lag the mappings.
type SearchIndex struct {
	sync *Synchronizer
}

func NewSearchIndex(sync *Synchronizer) *SearchIndex {
	return &SearchIndex{sync: sync}
}

type candidate struct {
	label   string
	text    string
	section string
	route   string
	id      string
}

// Query returns every candidate matching all tokens, ranked best-first.
// Matching is AND over substrings: each whitespace token must appear in the
// lower-cased label or secondary text. Score is the token count, plus one
// when the label itself contains the first token; ties keep enumeration
// order.
func (s *SearchIndex) Query(text string) []domain.SearchHit {
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 {
		return nil
	}

	var hits []domain.SearchHit
	for _, c := range s.candidates() {
		label := strings.ToLower(c.label)
		body := strings.ToLower(c.text)
		matched := true
		for _, tok := range tokens {
			if !strings.Contains(label, tok) && !strings.Contains(body, tok) {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		score := len(tokens)
		if strings.Contains(label, tokens[0]) {
			score++
		}
		hits = append(hits, domain.SearchHit{
			Label:      c.label,
			Section:    c.section,
			Route:      c.route,
			ID:         c.id,
			MatchScore: score,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].MatchScore > hits[j].MatchScore
	})
	return hits
}

// Suggest is Query truncated for inline suggestion dropdowns.
func (s *SearchIndex) Suggest(text string) []domain.SearchHit {
	hits := s.Query(text)
	if len(hits) > maxSuggestions {
		hits = hits[:maxSuggestions]
	}
	return hits
}

// candidates enumerates courses, then quizzes, then profiles, each in ID
// order so tie-breaking is deterministic.
func (s *SearchIndex) candidates() []candidate {
	m := s.sync.Snapshot()
	out := make([]candidate, 0, len(m.Courses)+len(m.Quizzes)+len(m.Profiles))

	for _, id := range sortedKeys(m.Courses) {
		c := m.Courses[id]
		out = append(out, candidate{
			label:   c.Title,
			text:    c.Category + " " + c.Short,
			section: "Courses",
			route:   domain.RouteCourses,
			id:      c.ID,
		})
	}
	for _, id := range sortedKeys(m.Quizzes) {
		q := m.Quizzes[id]
		out = append(out, candidate{
			label:   q.Title,
			text:    q.CourseTitleSnapshot,
			section: "Assessments",
			route:   domain.RouteAssessments,
			id:      q.ID,
		})
	}
	for _, id := range sortedKeys(m.Profiles) {
		p := m.Profiles[id]
		out = append(out, candidate{
			label:   p.Name,
			text:    p.Bio,
			section: "People",
			route:   domain.RoutePeople,
			id:      p.ID,
		})
	}
	return out
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
