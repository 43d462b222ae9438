package domain

// Collection names tracked by the synchronizer.
const (
	ColRoles         = "roles"
	ColProfiles      = "profiles"
	ColCourses       = "courses"
	ColEnrollments   = "enrollments"
	ColQuizzes       = "quizzes"
	ColAttempts      = "attempts"
	ColTasks         = "tasks"
	ColAnnouncements = "announcements"
)

// TrackedCollections lists every collection a session subscribes to, in
// subscription order.
var TrackedCollections = []string{
	ColProfiles,
	ColCourses,
	ColEnrollments,
	ColQuizzes,
	ColAttempts,
	ColTasks,
	ColAnnouncements,
}

// Route names for the client views.
const (
	RouteDashboard   = "dashboard"
	RouteCourses     = "courses"
	RouteAssessments = "assessments"
	RouteTasks       = "tasks"
	RouteProfile     = "profile"
	RouteSearch      = "search"
	RoutePeople      = "people"
	RouteBoard       = "board"
)
