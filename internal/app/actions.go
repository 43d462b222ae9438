package app

import (
	"context"
	"fmt"

	"campus-sync-service/internal/domain"
)

// User actions issued against the document store. Capability checks here are
// advisory gating only; writes are fire-and-await with no retry, and a
// rejected write surfaces as a notification rather than a crash.

// Enroll adds the signed-in user to a course, defending against
// duplicate-enroll races via the derived enrollment set. Aggregation is by
// course, so a duplicate row that slips through stays harmless.
func (s *Session) Enroll(ctx context.Context, courseID string) error {
	identity := s.Identity()
	if identity == nil {
		return domain.ErrNotSignedIn
	}
	if s.sync.IsEnrolled(courseID) {
		return domain.ErrAlreadyEnrolled
	}
	course, ok := s.sync.Snapshot().Courses[courseID]
	if !ok {
		return domain.ErrNotFound
	}

	enrollment := domain.Enrollment{
		UserID:         identity.ID,
		CourseID:       courseID,
		CreatedAt:      s.now(),
		CourseSnapshot: course,
	}
	if _, err := s.store.Add(ctx, domain.ColEnrollments, enrollment); err != nil {
		s.notify("error", "enrollment failed")
		return err
	}
	s.notify("info", "enrolled in "+course.Title)
	return nil
}

// SubmitAttempt grades the answers locally and records an immutable attempt.
// The score is derived, never taken from the caller.
func (s *Session) SubmitAttempt(ctx context.Context, quizID string, answers []int) (int, error) {
	identity := s.Identity()
	if identity == nil {
		return 0, domain.ErrNotSignedIn
	}
	quiz, ok := s.sync.Snapshot().Quizzes[quizID]
	if !ok {
		return 0, domain.ErrNotFound
	}

	score := GradeAttempt(quiz, answers)
	attempt := domain.Attempt{
		UserID:            identity.ID,
		QuizID:            quizID,
		QuizTitleSnapshot: quiz.Title,
		CourseID:          quiz.CourseID,
		Score:             score,
		CreatedAt:         s.now(),
	}
	if _, err := s.store.Add(ctx, domain.ColAttempts, attempt); err != nil {
		s.notify("error", "could not record attempt")
		return 0, err
	}
	return score, nil
}

// CreateTask adds a personal task in the todo column.
func (s *Session) CreateTask(ctx context.Context, title string) error {
	identity := s.Identity()
	if identity == nil {
		return domain.ErrNotSignedIn
	}
	now := s.now()
	task := domain.Task{
		UserID:    identity.ID,
		Title:     title,
		Status:    domain.TaskTodo,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.store.Add(ctx, domain.ColTasks, task); err != nil {
		s.notify("error", "could not create task")
		return err
	}
	return nil
}

// MoveTask changes a task's status. Tasks are owned exclusively by their
// creator.
func (s *Session) MoveTask(ctx context.Context, taskID string, status domain.TaskStatus) error {
	identity := s.Identity()
	if identity == nil {
		return domain.ErrNotSignedIn
	}
	task, ok := s.sync.Snapshot().Tasks[taskID]
	if !ok {
		return domain.ErrNotFound
	}
	if task.UserID != identity.ID {
		return domain.ErrForbidden
	}
	patch := map[string]any{"status": string(status), "updatedAt": s.now()}
	if err := s.store.Set(ctx, domain.ColTasks, taskID, patch, true); err != nil {
		s.notify("error", "could not update task")
		return err
	}
	return nil
}

// DeleteTask removes one of the user's own tasks.
func (s *Session) DeleteTask(ctx context.Context, taskID string) error {
	identity := s.Identity()
	if identity == nil {
		return domain.ErrNotSignedIn
	}
	task, ok := s.sync.Snapshot().Tasks[taskID]
	if !ok {
		return domain.ErrNotFound
	}
	if task.UserID != identity.ID {
		return domain.ErrForbidden
	}
	if err := s.store.Delete(ctx, domain.ColTasks, taskID); err != nil {
		s.notify("error", "could not delete task")
		return err
	}
	return nil
}

// CreateCourse publishes a new course. Requires teaching capability.
func (s *Session) CreateCourse(ctx context.Context, course domain.Course) (string, error) {
	identity := s.Identity()
	if identity == nil {
		return "", domain.ErrNotSignedIn
	}
	if !s.Capabilities().CanTeach() {
		return "", domain.ErrForbidden
	}
	course.OwnerID = identity.ID
	course.OwnerEmail = identity.Email
	course.CreatedAt = s.now()
	id, err := s.store.Add(ctx, domain.ColCourses, course)
	if err != nil {
		s.notify("error", "could not save course")
		return "", err
	}
	return id, nil
}

// UpdateCourse edits a course owned by the caller (admins may edit any).
func (s *Session) UpdateCourse(ctx context.Context, courseID string, patch map[string]any) error {
	if err := s.requireCourseOwnership(courseID); err != nil {
		return err
	}
	if err := s.store.Set(ctx, domain.ColCourses, courseID, patch, true); err != nil {
		s.notify("error", "could not save course")
		return err
	}
	return nil
}

// DeleteCourse removes a course owned by the caller (admins may delete any).
func (s *Session) DeleteCourse(ctx context.Context, courseID string) error {
	if err := s.requireCourseOwnership(courseID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, domain.ColCourses, courseID); err != nil {
		s.notify("error", "could not delete course")
		return err
	}
	return nil
}

func (s *Session) requireCourseOwnership(courseID string) error {
	identity := s.Identity()
	if identity == nil {
		return domain.ErrNotSignedIn
	}
	course, ok := s.sync.Snapshot().Courses[courseID]
	if !ok {
		return domain.ErrNotFound
	}
	if course.OwnerID != identity.ID && !s.Capabilities().CanManageUsers() {
		return domain.ErrForbidden
	}
	return nil
}

// CreateQuiz validates author-supplied items before any write reaches the
// store. Requires teaching capability.
func (s *Session) CreateQuiz(ctx context.Context, quiz domain.Quiz) (string, error) {
	identity := s.Identity()
	if identity == nil {
		return "", domain.ErrNotSignedIn
	}
	if !s.Capabilities().CanTeach() {
		return "", domain.ErrForbidden
	}
	if err := ValidateQuizItems(quiz.Items); err != nil {
		s.notify("error", "invalid quiz format")
		return "", err
	}
	if course, ok := s.sync.Snapshot().Courses[quiz.CourseID]; ok {
		quiz.CourseTitleSnapshot = course.Title
	}
	quiz.OwnerID = identity.ID
	quiz.CreatedAt = s.now()
	id, err := s.store.Add(ctx, domain.ColQuizzes, quiz)
	if err != nil {
		s.notify("error", "could not save quiz")
		return "", err
	}
	return id, nil
}

// UpdateProfile edits the caller's own profile; admins may edit anyone's.
func (s *Session) UpdateProfile(ctx context.Context, profileID string, patch map[string]any) error {
	identity := s.Identity()
	if identity == nil {
		return domain.ErrNotSignedIn
	}
	if profileID != identity.ID && !s.Capabilities().CanManageUsers() {
		return domain.ErrForbidden
	}
	if err := s.store.Set(ctx, domain.ColProfiles, profileID, patch, true); err != nil {
		s.notify("error", "could not save profile")
		return err
	}
	return nil
}

// UploadAvatar stores the image bytes and records the returned URL on the
// caller's profile.
func (s *Session) UploadAvatar(ctx context.Context, data []byte) error {
	return s.uploadAsset(ctx, "avatars", "avatarUrl", data)
}

// UploadSignature stores the signature image used on certificates.
func (s *Session) UploadSignature(ctx context.Context, data []byte) error {
	return s.uploadAsset(ctx, "signatures", "signatureUrl", data)
}

func (s *Session) uploadAsset(ctx context.Context, dir, field string, data []byte) error {
	identity := s.Identity()
	if identity == nil {
		return domain.ErrNotSignedIn
	}
	url, err := s.blobs.Put(ctx, fmt.Sprintf("%s/%s", dir, identity.ID), data)
	if err != nil {
		s.notify("error", "upload failed")
		return err
	}
	return s.UpdateProfile(ctx, identity.ID, map[string]any{field: url})
}

// PostAnnouncement publishes a site-wide notice. Requires teaching
// capability.
func (s *Session) PostAnnouncement(ctx context.Context, title, body string) error {
	identity := s.Identity()
	if identity == nil {
		return domain.ErrNotSignedIn
	}
	if !s.Capabilities().CanTeach() {
		return domain.ErrForbidden
	}
	announcement := domain.Announcement{
		Title:     title,
		Body:      body,
		CreatedAt: s.now(),
		AuthorID:  identity.ID,
	}
	if _, err := s.store.Add(ctx, domain.ColAnnouncements, announcement); err != nil {
		s.notify("error", "could not post announcement")
		return err
	}
	return nil
}

// SetUserRole writes another user's role record. Admin only; the affected
// user's open session keeps its old capabilities until the next identity
// transition.
func (s *Session) SetUserRole(ctx context.Context, userID string, role domain.Role) error {
	identity := s.Identity()
	if identity == nil {
		return domain.ErrNotSignedIn
	}
	if !s.Capabilities().CanManageUsers() {
		return domain.ErrForbidden
	}
	record := domain.RoleRecord{ID: userID, Role: string(domain.NormalizeRole(string(role)))}
	if err := s.store.Set(ctx, domain.ColRoles, userID, record, false); err != nil {
		s.notify("error", "could not update role")
		return err
	}
	return nil
}
