package app_test

import (
	"testing"

	"campus-sync-service/internal/app"
	"campus-sync-service/internal/domain"
)

func TestInvalidationScoping(t *testing.T) {
	renders := 0
	router := app.NewRouter(func(route string) { renders++ })

	router.SetActiveRoute(domain.RouteCourses)
	if renders != 1 {
		t.Fatalf("expected navigation render, got %d", renders)
	}

	// Tasks do not affect the courses view.
	router.OnCollectionChanged(domain.ColTasks)
	if renders != 1 {
		t.Fatalf("expected no render for unrelated collection, got %d", renders)
	}

	router.OnCollectionChanged(domain.ColCourses)
	if renders != 2 {
		t.Fatalf("expected render for dependent collection, got %d", renders)
	}
}

func TestDashboardDependsOnEverything(t *testing.T) {
	renders := 0
	router := app.NewRouter(func(route string) { renders++ })
	router.SetActiveRoute(domain.RouteDashboard)
	renders = 0

	for _, collection := range domain.TrackedCollections {
		router.OnCollectionChanged(collection)
	}
	if renders != len(domain.TrackedCollections) {
		t.Fatalf("expected dashboard to re-render on every collection, got %d/%d", renders, len(domain.TrackedCollections))
	}
}

func TestNoRenderWithoutActiveRoute(t *testing.T) {
	renders := 0
	router := app.NewRouter(func(route string) { renders++ })

	router.OnCollectionChanged(domain.ColCourses)
	if renders != 0 {
		t.Fatalf("expected no render before navigation, got %d", renders)
	}
}

func TestActiveRouteTracksNavigation(t *testing.T) {
	router := app.NewRouter(nil)
	router.SetActiveRoute(domain.RouteTasks)
	if got := router.ActiveRoute(); got != domain.RouteTasks {
		t.Fatalf("expected tasks, got %s", got)
	}
}
