package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/classmark/internal/attendance"
	"github.com/kozaktomas/classmark/internal/config"
	"github.com/kozaktomas/classmark/internal/database"
	"github.com/kozaktomas/classmark/internal/database/mock"
	"github.com/kozaktomas/classmark/internal/roster"
	"github.com/kozaktomas/classmark/internal/session"
	"github.com/kozaktomas/classmark/internal/timetable"
)

const serverTestTimetable = `
default:
  Monday:
    - time: "09:00"
      subject: "Maths"
`

func newTestServer(t *testing.T) (*Server, *mock.Store) {
	t.Helper()

	store := mock.NewStore()
	store.AddTeacher(database.Teacher{ID: "T001", Name: "Prof. Sharma", Password: "password123"})

	tt, err := timetable.Parse([]byte(serverTestTimetable))
	if err != nil {
		t.Fatalf("failed to parse timetable: %v", err)
	}

	cfg := &config.Config{
		Server:    config.ServerConfig{Port: 0, CookieSecret: "test-secret"},
		Session:   config.SessionConfig{DefaultDurationMinutes: 60},
		Timetable: tt,
	}

	manager := session.NewManager(store, store, store)
	pipeline := attendance.NewPipeline(manager, store, store, store, nil)

	srv := NewServer(cfg, Services{
		Students: store,
		Teachers: store,
		Branches: store,
		Marks:    store,
		Audit:    store,
		Sessions: manager,
		Pipeline: pipeline,
	})
	return srv, store
}

func TestHealthEndpointUnauthenticated(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	paths := []string{
		"/api/v1/students?branch=CSA&year=2021",
		"/api/v1/sessions/active?branch=CSA&year=2021",
		"/api/v1/attendance/stats?branch=CSA&year=2021",
		"/api/v1/timetable/today?branch=CSA&year=2021",
	}
	for _, path := range paths {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401 for %s, got %d", path, rec.Code)
		}
	}
}

func login(t *testing.T, srv *Server) []*http.Cookie {
	t.Helper()
	body := strings.NewReader(`{"teacher_id": "T001", "password": "password123"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/teacher/login", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed with status %d: %s", rec.Code, rec.Body.String())
	}
	return rec.Result().Cookies()
}

func TestTeacherCanOpenAndCloseSession(t *testing.T) {
	srv, store := newTestServer(t)
	cookies := login(t, srv)

	if err := store.Register(context.Background(), database.Student{
		Roll: "BT21CSA001", Name: "Asha",
		Cohort: roster.Cohort{Branch: "CSA", Year: "2021"},
	}); err != nil {
		t.Fatalf("failed to seed student: %v", err)
	}

	openReq := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/open",
		strings.NewReader(`{"branch": "CSA", "year": "2021"}`))
	openReq.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		openReq.AddCookie(c)
	}
	openRec := httptest.NewRecorder()
	srv.Router().ServeHTTP(openRec, openReq)
	if openRec.Code != http.StatusCreated {
		t.Fatalf("expected 201 opening session, got %d: %s", openRec.Code, openRec.Body.String())
	}

	var opened database.SessionRecord
	if err := json.NewDecoder(openRec.Body).Decode(&opened); err != nil {
		t.Fatalf("failed to decode session: %v", err)
	}
	if got := opened.Deadline.Sub(opened.StartTime); got != time.Hour {
		t.Errorf("expected default 1h window, got %v", got)
	}

	closeReq := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/close",
		strings.NewReader(`{"session_id": "`+opened.ID+`"}`))
	closeReq.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		closeReq.AddCookie(c)
	}
	closeRec := httptest.NewRecorder()
	srv.Router().ServeHTTP(closeRec, closeReq)
	if closeRec.Code != http.StatusOK {
		t.Fatalf("expected 200 closing session, got %d: %s", closeRec.Code, closeRec.Body.String())
	}
}

func TestStudentCannotOpenSession(t *testing.T) {
	srv, store := newTestServer(t)

	if err := store.Register(context.Background(), database.Student{
		Roll: "BT21CSA001", Name: "Asha", Password: "secret",
		Cohort: roster.Cohort{Branch: "CSA", Year: "2021"},
	}); err != nil {
		t.Fatalf("failed to seed student: %v", err)
	}

	loginReq := httptest.NewRequest(http.MethodPost, "/api/v1/auth/student/login",
		strings.NewReader(`{"roll_no": "BT21CSA001", "password": "secret"}`))
	loginReq.Header.Set("Content-Type", "application/json")
	loginRec := httptest.NewRecorder()
	srv.Router().ServeHTTP(loginRec, loginReq)
	if loginRec.Code != http.StatusOK {
		t.Fatalf("student login failed with status %d", loginRec.Code)
	}

	openReq := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/open",
		strings.NewReader(`{"branch": "CSA", "year": "2021"}`))
	openReq.Header.Set("Content-Type", "application/json")
	for _, c := range loginRec.Result().Cookies() {
		openReq.AddCookie(c)
	}
	openRec := httptest.NewRecorder()
	srv.Router().ServeHTTP(openRec, openReq)
	if openRec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for student opening session, got %d", openRec.Code)
	}
}
