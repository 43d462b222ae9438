package domain

import "time"

// Role is the coarse authorization tier for an identity.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// NormalizeRole maps unknown role strings to the least-privilege default.
func NormalizeRole(raw string) Role {
	switch Role(raw) {
	case RoleStudent, RoleInstructor, RoleAdmin:
		return Role(raw)
	default:
		return RoleStudent
	}
}

// Identity is the authenticated principal supplied by the auth collaborator.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// RoleRecord stores the role assigned to an identity; its ID equals the identity ID.
type RoleRecord struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// Profile is the public face of an identity; created lazily on first sign-in.
type Profile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Bio          string `json:"bio"`
	PortfolioURL string `json:"portfolioUrl"`
	AvatarURL    string `json:"avatarUrl"`
	SignatureURL string `json:"signatureUrl"`
	Role         string `json:"role"`
}

// Course is authored by an instructor or admin.
type Course struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Category      string    `json:"category"`
	Short         string    `json:"short"`
	Goals         []string  `json:"goals"`
	Credits       int       `json:"credits"`
	Price         float64   `json:"price"`
	CoverImageURL string    `json:"coverImageUrl"`
	OutlineURL    string    `json:"outlineUrl"`
	QuizzesURL    string    `json:"quizzesUrl"`
	OwnerID       string    `json:"ownerId"`
	OwnerEmail    string    `json:"ownerEmail"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Enrollment is a denormalized join row; one conceptual enrollment per
// (userId, courseId), though the store does not enforce uniqueness.
type Enrollment struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	CourseID       string    `json:"courseId"`
	CreatedAt      time.Time `json:"createdAt"`
	CourseSnapshot Course    `json:"courseSnapshot"`
}

// QuizItem is a single multiple-choice question.
type QuizItem struct {
	QuestionText        string   `json:"questionText"`
	Choices             []string `json:"choices"`
	CorrectIndex        int      `json:"correctIndex"`
	FeedbackOnCorrect   string   `json:"feedbackOnCorrect,omitempty"`
	FeedbackOnIncorrect string   `json:"feedbackOnIncorrect,omitempty"`
}

// Quiz is an ordered sequence of items attached to a course. A quiz flagged
// IsFinal is the course's completion gate.
type Quiz struct {
	ID                  string     `json:"id"`
	Title               string     `json:"title"`
	CourseID            string     `json:"courseId"`
	CourseTitleSnapshot string     `json:"courseTitleSnapshot"`
	PassScore           int        `json:"passScore"`
	Items               []QuizItem `json:"items"`
	IsFinal             bool       `json:"isFinal"`
	OwnerID             string     `json:"ownerId"`
	CreatedAt           time.Time  `json:"createdAt"`
}

// Attempt records one quiz submission. Immutable once created; Score is
// always derived from choice matches, never user-supplied.
type Attempt struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	QuizID            string    `json:"quizId"`
	QuizTitleSnapshot string    `json:"quizTitleSnapshot"`
	CourseID          string    `json:"courseId"`
	Score             int       `json:"score"`
	CreatedAt         time.Time `json:"createdAt"`
}

// TaskStatus enumerates the kanban-style states of a task.
type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "inprogress"
	TaskDone       TaskStatus = "done"
)

// Task is owned exclusively by its creator.
type Task struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Title     string     `json:"title"`
	Status    TaskStatus `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Announcement is a site-wide notice authored by teaching staff.
type Announcement struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
	AuthorID  string    `json:"authorId"`
}

// TranscriptRow summarizes a learner's standing in one course.
type TranscriptRow struct {
	CourseID    string `json:"courseId"`
	CourseTitle string `json:"courseTitle"`
	BestScore   int    `json:"bestScore"`
	Completed   bool   `json:"completed"`
}

// SearchHit is one ranked result from the search index.
type SearchHit struct {
	Label      string `json:"label"`
	Section    string `json:"section"`
	Route      string `json:"route"`
	ID         string `json:"id"`
	MatchScore int    `json:"matchScore"`
}
