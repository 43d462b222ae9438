package app

import (
	"log"
	"sort"

	"campus-sync-service/internal/domain"
)

// TranscriptAggregator derives per-learner academic standing from the
// attempts, quizzes, and courses mappings. It is a pure function of those
// mappings: recomputed on every read, never cached.
type TranscriptAggregator struct {
	sync *Synchronizer
}

func NewTranscriptAggregator(sync *Synchronizer) *TranscriptAggregator {
	return &TranscriptAggregator{sync: sync}
}

// BuildTranscript returns one row per course the user has attempted, sorted
// by course title (byte order). BestScore is the maximum attempt score for
// the course; Completed requires a final-designated quiz whose pass score the
// best attempt meets. No final quiz means never completed.
func (t *TranscriptAggregator) BuildTranscript(userID string) []domain.TranscriptRow {
	m := t.sync.Snapshot()

	best := map[string]int{}
	for _, attempt := range m.Attempts {
		if attempt.UserID != userID {
			continue
		}
		if score, ok := best[attempt.CourseID]; !ok || attempt.Score > score {
			best[attempt.CourseID] = attempt.Score
		}
	}

	rows := make([]domain.TranscriptRow, 0, len(best))
	for courseID, score := range best {
		final, ok := finalQuizFor(m, courseID)
		completed := ok && score >= final.PassScore
		rows = append(rows, domain.TranscriptRow{
			CourseID:    courseID,
			CourseTitle: courseTitle(m, courseID, final, ok),
			BestScore:   score,
			Completed:   completed,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].CourseTitle < rows[j].CourseTitle
	})
	return rows
}

// finalQuizFor locates the course's completion gate. The domain models at
// most one final quiz per course; a violation is logged and the first quiz in
// ID order wins.
func finalQuizFor(m Mappings, courseID string) (domain.Quiz, bool) {
	var finals []domain.Quiz
	for _, id := range sortedKeys(m.Quizzes) {
		q := m.Quizzes[id]
		if q.CourseID == courseID && q.IsFinal {
			finals = append(finals, q)
		}
	}
	if len(finals) == 0 {
		return domain.Quiz{}, false
	}
	if len(finals) > 1 {
		log.Printf("course %s has %d quizzes marked final; using %s", courseID, len(finals), finals[0].ID)
	}
	return finals[0], true
}

func courseTitle(m Mappings, courseID string, final domain.Quiz, hasFinal bool) string {
	if course, ok := m.Courses[courseID]; ok {
		return course.Title
	}
	if hasFinal && final.CourseTitleSnapshot != "" {
		return final.CourseTitleSnapshot
	}
	return courseID
}
