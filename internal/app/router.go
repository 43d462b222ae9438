package app

import (
	"sync"

	"campus-sync-service/internal/domain"
)

// Renderer re-renders the named route from current mappings.
type Renderer func(route string)

// viewDeps maps each collection to the routes whose rendering depends on it.
// A change to a collection outside the active route's dependencies causes no
// render work beyond the mapping update itself.
var viewDeps = map[string][]string{
	domain.ColProfiles:      {domain.RoutePeople, domain.RouteProfile, domain.RouteSearch, domain.RouteDashboard},
	domain.ColCourses:       {domain.RouteCourses, domain.RouteAssessments, domain.RouteProfile, domain.RouteSearch, domain.RouteDashboard},
	domain.ColEnrollments:   {domain.RouteCourses, domain.RouteProfile, domain.RouteDashboard},
	domain.ColQuizzes:       {domain.RouteAssessments, domain.RouteProfile, domain.RouteSearch, domain.RouteDashboard},
	domain.ColAttempts:      {domain.RouteAssessments, domain.RouteProfile, domain.RouteDashboard},
	domain.ColTasks:         {domain.RouteTasks, domain.RouteDashboard},
	domain.ColAnnouncements: {domain.RouteBoard, domain.RouteDashboard},
}

// Router decides, per collection change, whether the active view must be
// recomputed.
type Router struct {
	mu     sync.Mutex
	active string
	render Renderer
}

func NewRouter(render Renderer) *Router {
	return &Router{render: render}
}

// SetActiveRoute records the navigation target and renders it once.
func (r *Router) SetActiveRoute(route string) {
	r.mu.Lock()
	r.active = route
	render := r.render
	r.mu.Unlock()
	if render != nil {
		render(route)
	}
}

// ActiveRoute returns the route currently on screen.
func (r *Router) ActiveRoute() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// OnCollectionChanged triggers a re-render only when the active route depends
// on the changed collection.
func (r *Router) OnCollectionChanged(collection string) {
	r.mu.Lock()
	active := r.active
	render := r.render
	r.mu.Unlock()

	if active == "" || render == nil {
		return
	}
	for _, route := range viewDeps[collection] {
		if route == active {
			render(active)
			return
		}
	}
}
