package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"sync"

	"campus-sync-service/internal/app"
	"campus-sync-service/internal/domain"
	"campus-sync-service/internal/infra/memory"
	"github.com/gorilla/websocket"
)

// WSHandler drives one session per websocket connection: sign-in, live
// mapping synchronization, and render pushes produced by the invalidation
// router.
type WSHandler struct {
	store    app.DocumentStore
	blobs    app.BlobStore
	registry *memory.Registry
	upgrader websocket.Upgrader
}

func NewWSHandler(store app.DocumentStore, blobs app.BlobStore, registry *memory.Registry) *WSHandler {
	return &WSHandler{
		store:    store,
		blobs:    blobs,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type noticePayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

type sessionPayload struct {
	Identity domain.Identity `json:"identity"`
	Role     string          `json:"role"`
	CanTeach bool            `json:"canTeach"`
	CanAdmin bool            `json:"canAdmin"`
}

type viewPayload struct {
	Route string `json:"route"`
	Data  any    `json:"data"`
}

type attemptResultPayload struct {
	QuizID string `json:"quizId"`
	Score  int    `json:"score"`
}

// clientConn is the per-connection state: the owned session plus the derived
// view components reading its mappings.
type clientConn struct {
	session    *app.Session
	search     *app.SearchIndex
	transcript *app.TranscriptAggregator
	send       chan outboundMessage[any]

	sendMu sync.Mutex
	closed bool

	mu        sync.Mutex
	lastQuery string
}

// push never blocks: a full buffer drops the oldest pending message, and if
// the buffer refilled in between, the new message is dropped instead. Pushes
// after closeSend are discarded.
func (c *clientConn) push(msg outboundMessage[any]) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
		return
	default:
	}
	select {
	case <-c.send:
	default:
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *clientConn) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *clientConn) notify(level, message string) {
	c.push(outboundMessage[any]{Type: "notice", Payload: noticePayload{Level: level, Message: message}})
}

// ServeWS upgrades the request and runs the session protocol until the
// client disconnects or signs out.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	secret := r.URL.Query().Get("secret")
	register := r.URL.Query().Get("register") == "1"
	if email == "" || secret == "" {
		http.Error(w, "missing email or secret", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	client := &clientConn{send: make(chan outboundMessage[any], 32)}
	auth := memory.NewAuthService(h.registry)
	client.session = app.NewSession(auth, h.store, h.blobs, client.notify, client.render)
	client.search = app.NewSearchIndex(client.session.Sync())
	client.transcript = app.NewTranscriptAggregator(client.session.Sync())

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range client.send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	ctx := r.Context()
	if register {
		err = client.session.Register(ctx, email, secret)
	} else {
		err = client.session.SignIn(ctx, email, secret)
	}
	if err != nil {
		client.push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		client.session.Close()
		client.closeSend()
		<-writerDone
		return
	}

	identity := client.session.Identity()
	caps := client.session.Capabilities()
	client.push(outboundMessage[any]{Type: "session", Payload: sessionPayload{
		Identity: *identity,
		Role:     string(caps.Role),
		CanTeach: caps.CanTeach(),
		CanAdmin: caps.CanManageUsers(),
	}})
	client.session.Router().SetActiveRoute(domain.RouteDashboard)

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if done := client.handle(ctx, inbound); done {
			break
		}
	}

	// Release the subscriptions before the send channel closes, so a render
	// triggered by an in-flight snapshot can never hit a closed channel.
	_ = client.session.SignOut(ctx)
	client.session.Close()
	client.closeSend()
	<-writerDone
}

// handle dispatches one inbound message; returning true ends the connection.
func (c *clientConn) handle(ctx context.Context, inbound inboundMessage) bool {
	switch inbound.Type {
	case "route":
		var p struct {
			Route string `json:"route"`
		}
		if err := json.Unmarshal(inbound.Payload, &p); err != nil || p.Route == "" {
			c.notify("error", "invalid route payload")
			return false
		}
		c.session.Router().SetActiveRoute(p.Route)

	case "search":
		var p struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			c.notify("error", "invalid search payload")
			return false
		}
		c.mu.Lock()
		c.lastQuery = p.Text
		c.mu.Unlock()
		c.push(outboundMessage[any]{Type: "suggestions", Payload: c.search.Suggest(p.Text)})

	case "enroll":
		var p struct {
			CourseID string `json:"courseId"`
		}
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			c.notify("error", "invalid enroll payload")
			return false
		}
		if err := c.session.Enroll(ctx, p.CourseID); err != nil {
			c.notify("error", err.Error())
		}

	case "submitAttempt":
		var p struct {
			QuizID  string `json:"quizId"`
			Answers []int  `json:"answers"`
		}
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			c.notify("error", "invalid attempt payload")
			return false
		}
		score, err := c.session.SubmitAttempt(ctx, p.QuizID, p.Answers)
		if err != nil {
			c.notify("error", err.Error())
			return false
		}
		c.push(outboundMessage[any]{Type: "attemptResult", Payload: attemptResultPayload{QuizID: p.QuizID, Score: score}})

	case "createTask":
		var p struct {
			Title string `json:"title"`
		}
		if err := json.Unmarshal(inbound.Payload, &p); err != nil || p.Title == "" {
			c.notify("error", "invalid task payload")
			return false
		}
		if err := c.session.CreateTask(ctx, p.Title); err != nil {
			c.notify("error", err.Error())
		}

	case "moveTask":
		var p struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			c.notify("error", "invalid task payload")
			return false
		}
		if err := c.session.MoveTask(ctx, p.ID, domain.TaskStatus(p.Status)); err != nil {
			c.notify("error", err.Error())
		}

	case "deleteTask":
		var p struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			c.notify("error", "invalid task payload")
			return false
		}
		if err := c.session.DeleteTask(ctx, p.ID); err != nil {
			c.notify("error", err.Error())
		}

	case "updateProfile":
		var p map[string]any
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			c.notify("error", "invalid profile payload")
			return false
		}
		identity := c.session.Identity()
		if identity == nil {
			c.notify("error", domain.ErrNotSignedIn.Error())
			return false
		}
		if err := c.session.UpdateProfile(ctx, identity.ID, p); err != nil {
			c.notify("error", err.Error())
		}

	case "createQuiz":
		var p struct {
			Title     string          `json:"title"`
			CourseID  string          `json:"courseId"`
			PassScore int             `json:"passScore"`
			IsFinal   bool            `json:"isFinal"`
			Items     json.RawMessage `json:"items"`
		}
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			c.notify("error", "invalid quiz payload")
			return false
		}
		// Author-supplied item JSON is validated before any write.
		items, err := app.ParseQuizItems(p.Items)
		if err != nil {
			c.notify("error", err.Error())
			return false
		}
		if _, err := c.session.CreateQuiz(ctx, domain.Quiz{
			Title:     p.Title,
			CourseID:  p.CourseID,
			PassScore: p.PassScore,
			IsFinal:   p.IsFinal,
			Items:     items,
		}); err != nil {
			c.notify("error", err.Error())
		}

	case "announce":
		var p struct {
			Title string `json:"title"`
			Body  string `json:"body"`
		}
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			c.notify("error", "invalid announcement payload")
			return false
		}
		if err := c.session.PostAnnouncement(ctx, p.Title, p.Body); err != nil {
			c.notify("error", err.Error())
		}

	case "signOut":
		return true

	default:
		c.push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
	}
	return false
}

// render recomputes the named view from current mappings and pushes it. It is
// invoked by the invalidation router, so it only runs when the active view
// depends on a changed collection.
func (c *clientConn) render(route string) {
	c.push(outboundMessage[any]{Type: "view", Payload: viewPayload{Route: route, Data: c.buildView(route)}})
}

type courseView struct {
	domain.Course
	Enrolled bool `json:"enrolled"`
}

type quizItemView struct {
	QuestionText string   `json:"questionText"`
	Choices      []string `json:"choices"`
}

type quizView struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	CourseID    string         `json:"courseId"`
	CourseTitle string         `json:"courseTitle"`
	PassScore   int            `json:"passScore"`
	IsFinal     bool           `json:"isFinal"`
	Items       []quizItemView `json:"items"`
}

func (c *clientConn) buildView(route string) any {
	m := c.session.Sync().Snapshot()
	identity := c.session.Identity()
	userID := ""
	if identity != nil {
		userID = identity.ID
	}

	switch route {
	case domain.RouteDashboard:
		openTasks := 0
		for _, t := range m.Tasks {
			if t.Status != domain.TaskDone {
				openTasks++
			}
		}
		return map[string]any{
			"courseCount":   len(m.Courses),
			"enrolledCount": len(m.EnrolledCourseIDs),
			"openTasks":     openTasks,
			"announcements": sortedAnnouncements(m),
			"transcript":    c.transcript.BuildTranscript(userID),
		}

	case domain.RouteCourses:
		courses := make([]courseView, 0, len(m.Courses))
		for _, course := range m.Courses {
			_, enrolled := m.EnrolledCourseIDs[course.ID]
			courses = append(courses, courseView{Course: course, Enrolled: enrolled})
		}
		sort.Slice(courses, func(i, j int) bool { return courses[i].Title < courses[j].Title })
		return courses

	case domain.RouteAssessments:
		quizzes := make([]quizView, 0, len(m.Quizzes))
		for _, quiz := range m.Quizzes {
			// Correct indices stay server-side; grading happens on submit.
			items := make([]quizItemView, 0, len(quiz.Items))
			for _, item := range quiz.Items {
				items = append(items, quizItemView{QuestionText: item.QuestionText, Choices: item.Choices})
			}
			quizzes = append(quizzes, quizView{
				ID:          quiz.ID,
				Title:       quiz.Title,
				CourseID:    quiz.CourseID,
				CourseTitle: quiz.CourseTitleSnapshot,
				PassScore:   quiz.PassScore,
				IsFinal:     quiz.IsFinal,
				Items:       items,
			})
		}
		sort.Slice(quizzes, func(i, j int) bool { return quizzes[i].Title < quizzes[j].Title })
		attempts := make([]domain.Attempt, 0, len(m.Attempts))
		for _, a := range m.Attempts {
			attempts = append(attempts, a)
		}
		sort.Slice(attempts, func(i, j int) bool { return attempts[i].CreatedAt.After(attempts[j].CreatedAt) })
		return map[string]any{"quizzes": quizzes, "attempts": attempts}

	case domain.RouteTasks:
		tasks := make([]domain.Task, 0, len(m.Tasks))
		for _, t := range m.Tasks {
			tasks = append(tasks, t)
		}
		sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })
		return tasks

	case domain.RouteProfile:
		profile := m.Profiles[userID]
		return map[string]any{
			"profile":    profile,
			"transcript": c.transcript.BuildTranscript(userID),
		}

	case domain.RoutePeople:
		profiles := make([]domain.Profile, 0, len(m.Profiles))
		for _, p := range m.Profiles {
			profiles = append(profiles, p)
		}
		sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
		return profiles

	case domain.RouteBoard:
		return sortedAnnouncements(m)

	case domain.RouteSearch:
		c.mu.Lock()
		query := c.lastQuery
		c.mu.Unlock()
		return c.search.Query(query)

	default:
		return nil
	}
}

func sortedAnnouncements(m app.Mappings) []domain.Announcement {
	out := make([]domain.Announcement, 0, len(m.Announcements))
	for _, a := range m.Announcements {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
