package app_test

import (
	"context"
	"errors"
	"testing"

	"campus-sync-service/internal/app"
	"campus-sync-service/internal/domain"
	"campus-sync-service/internal/infra/memory"
)

type sessionFixture struct {
	session  *app.Session
	store    *memory.DocumentStore
	registry *memory.Registry
	auth     *memory.AuthService
	renders  []string
	notices  []string
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		store:    memory.NewDocumentStore(),
		registry: memory.NewRegistry(),
	}
	f.auth = memory.NewAuthService(f.registry)
	f.session = app.NewSession(f.auth, f.store, memory.NewBlobStore(),
		func(level, message string) { f.notices = append(f.notices, level+": "+message) },
		func(route string) { f.renders = append(f.renders, route) },
	)
	return f
}

func (f *sessionFixture) addUser(t *testing.T, email, secret, role string) domain.Identity {
	t.Helper()
	identity := f.registry.AddUser(email, secret)
	record := domain.RoleRecord{ID: identity.ID, Role: role}
	if err := f.store.Set(context.Background(), domain.ColRoles, identity.ID, record, false); err != nil {
		t.Fatalf("seed role: %v", err)
	}
	return identity
}

func (f *sessionFixture) signIn(t *testing.T, email, secret string) {
	t.Helper()
	if err := f.session.SignIn(context.Background(), email, secret); err != nil {
		t.Fatalf("sign in: %v", err)
	}
}

func TestSignInResolvesRoleAndCreatesProfile(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)
	identity := f.addUser(t, "ada@campus.local", "pw", "instructor")

	f.signIn(t, "ada@campus.local", "pw")

	if got := f.session.Capabilities().Role; got != domain.RoleInstructor {
		t.Fatalf("expected instructor, got %s", got)
	}
	if !f.session.Capabilities().CanTeach() {
		t.Fatalf("expected teaching capability")
	}

	// Profile was created lazily on first sign-in.
	rec, err := f.store.Get(ctx, domain.ColProfiles, identity.ID)
	if err != nil {
		t.Fatalf("expected profile, got %v", err)
	}
	if rec.ID != identity.ID {
		t.Fatalf("profile keyed by %s, want %s", rec.ID, identity.ID)
	}
}

func TestSignInFailureLeavesStateUnchanged(t *testing.T) {
	f := newSessionFixture(t)
	f.addUser(t, "ada@campus.local", "pw", "student")

	err := f.session.SignIn(context.Background(), "ada@campus.local", "wrong")
	if !errors.Is(err, domain.ErrAuthFailed) {
		t.Fatalf("expected auth failure, got %v", err)
	}
	if f.session.Identity() != nil {
		t.Fatalf("expected no identity after failed sign-in")
	}
	if len(f.notices) == 0 {
		t.Fatalf("expected a transient notice")
	}
}

func TestMissingRoleRecordDefaultsToStudent(t *testing.T) {
	f := newSessionFixture(t)
	f.registry.AddUser("new@campus.local", "pw")

	f.signIn(t, "new@campus.local", "pw")

	caps := f.session.Capabilities()
	if caps.Role != domain.RoleStudent || caps.CanTeach() {
		t.Fatalf("expected least-privilege default, got %+v", caps)
	}
}

func TestEnrollAndDuplicateDefense(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)
	f.addUser(t, "sam@campus.local", "pw", "student")
	mustSet(t, f.store, domain.ColCourses, "c1", domain.Course{Title: "Go Basics"})

	f.signIn(t, "sam@campus.local", "pw")

	if err := f.session.Enroll(ctx, "c1"); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if !f.session.IsEnrolledIn("c1") {
		t.Fatalf("expected derived enrollment after snapshot")
	}
	if err := f.session.Enroll(ctx, "c1"); !errors.Is(err, domain.ErrAlreadyEnrolled) {
		t.Fatalf("expected duplicate defense, got %v", err)
	}
	if err := f.session.Enroll(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSubmitAttemptDerivesScore(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)
	f.addUser(t, "sam@campus.local", "pw", "student")
	mustSet(t, f.store, domain.ColQuizzes, "q1", domain.Quiz{
		Title:    "Final",
		CourseID: "c1",
		Items: []domain.QuizItem{
			{Choices: []string{"a", "b"}, CorrectIndex: 1},
			{Choices: []string{"a", "b"}, CorrectIndex: 0},
		},
	})

	f.signIn(t, "sam@campus.local", "pw")

	score, err := f.session.SubmitAttempt(ctx, "q1", []int{1, 1})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if score != 50 {
		t.Fatalf("expected derived score 50, got %d", score)
	}

	attempts := f.session.Sync().Snapshot().Attempts
	if len(attempts) != 1 {
		t.Fatalf("expected attempt in mapping, got %d", len(attempts))
	}
	for _, attempt := range attempts {
		if attempt.Score != 50 || attempt.CourseID != "c1" {
			t.Fatalf("unexpected attempt %+v", attempt)
		}
	}
}

func TestTaskOwnership(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)
	f.addUser(t, "sam@campus.local", "pw", "student")
	f.signIn(t, "sam@campus.local", "pw")

	if err := f.session.CreateTask(ctx, "read chapter 3"); err != nil {
		t.Fatalf("create task: %v", err)
	}
	var taskID string
	for id := range f.session.Sync().Snapshot().Tasks {
		taskID = id
	}
	if taskID == "" {
		t.Fatalf("expected task in mapping")
	}

	if err := f.session.MoveTask(ctx, taskID, domain.TaskDone); err != nil {
		t.Fatalf("move task: %v", err)
	}
	if got := f.session.Sync().Snapshot().Tasks[taskID].Status; got != domain.TaskDone {
		t.Fatalf("expected done, got %s", got)
	}

	if err := f.session.DeleteTask(ctx, taskID); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	if len(f.session.Sync().Snapshot().Tasks) != 0 {
		t.Fatalf("expected empty tasks mapping")
	}
}

func TestCapabilityGatedActions(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)
	f.addUser(t, "sam@campus.local", "pw", "student")
	f.signIn(t, "sam@campus.local", "pw")

	if _, err := f.session.CreateCourse(ctx, domain.Course{Title: "Nope"}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden course create, got %v", err)
	}
	if err := f.session.PostAnnouncement(ctx, "hi", "all"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden announcement, got %v", err)
	}
	if err := f.session.SetUserRole(ctx, "someone", domain.RoleAdmin); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden role change, got %v", err)
	}
}

func TestInstructorAuthoring(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)
	ada := f.addUser(t, "ada@campus.local", "pw", "instructor")
	f.signIn(t, "ada@campus.local", "pw")

	courseID, err := f.session.CreateCourse(ctx, domain.Course{Title: "Compilers"})
	if err != nil {
		t.Fatalf("create course: %v", err)
	}
	course := f.session.Sync().Snapshot().Courses[courseID]
	if course.OwnerID != ada.ID {
		t.Fatalf("expected owner %s, got %s", ada.ID, course.OwnerID)
	}

	quizID, err := f.session.CreateQuiz(ctx, domain.Quiz{
		Title:    "Parsing Final",
		CourseID: courseID,
		IsFinal:  true,
		Items:    []domain.QuizItem{{QuestionText: "LL?", Choices: []string{"yes", "no"}, CorrectIndex: 0}},
	})
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	quiz := f.session.Sync().Snapshot().Quizzes[quizID]
	if quiz.CourseTitleSnapshot != "Compilers" {
		t.Fatalf("expected course title snapshot, got %q", quiz.CourseTitleSnapshot)
	}

	_, err = f.session.CreateQuiz(ctx, domain.Quiz{Title: "Bad", CourseID: courseID})
	if !errors.Is(err, domain.ErrInvalidQuizFormat) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSignOutTearsDownAndSecondIdentityIsIsolated(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)
	f.addUser(t, "sam@campus.local", "pw", "student")
	f.addUser(t, "kim@campus.local", "pw", "student")

	f.signIn(t, "sam@campus.local", "pw")
	if err := f.session.CreateTask(ctx, "sam's task"); err != nil {
		t.Fatalf("create task: %v", err)
	}

	if err := f.session.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if f.session.Identity() != nil {
		t.Fatalf("expected cleared identity")
	}
	if f.store.SubscriberCount(domain.ColTasks) != 0 {
		t.Fatalf("expected subscriptions released on sign-out")
	}

	f.signIn(t, "kim@campus.local", "pw")
	tasks := f.session.Sync().Snapshot().Tasks
	if len(tasks) != 0 {
		t.Fatalf("first identity's tasks leaked into second session: %+v", tasks)
	}
}

func TestRoleChangeNotLiveUntilNextSignIn(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)
	sam := f.addUser(t, "sam@campus.local", "pw", "student")
	f.signIn(t, "sam@campus.local", "pw")

	// Promotion lands in the store while the session is open.
	record := domain.RoleRecord{ID: sam.ID, Role: "instructor"}
	if err := f.store.Set(ctx, domain.ColRoles, sam.ID, record, false); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if f.session.Capabilities().CanTeach() {
		t.Fatalf("capabilities must stay frozen until next identity transition")
	}

	if err := f.session.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	f.signIn(t, "sam@campus.local", "pw")
	if !f.session.Capabilities().CanTeach() {
		t.Fatalf("expected promotion after re-sign-in")
	}
}

func TestUploadAvatarRecordsURL(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)
	sam := f.addUser(t, "sam@campus.local", "pw", "student")
	f.signIn(t, "sam@campus.local", "pw")

	if err := f.session.UploadAvatar(ctx, []byte{0xff, 0xd8}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	profile := f.session.Sync().Snapshot().Profiles[sam.ID]
	if profile.AvatarURL != "memblob://avatars/"+sam.ID {
		t.Fatalf("unexpected avatar url %q", profile.AvatarURL)
	}
}
