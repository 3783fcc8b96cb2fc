package handlers

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/classmark/internal/database"
	"github.com/kozaktomas/classmark/internal/database/mock"
	"github.com/kozaktomas/classmark/internal/qrtoken"
	"github.com/kozaktomas/classmark/internal/roster"
)

type errEmbedder struct{}

func (errEmbedder) Embed(_ context.Context, _ []byte) ([]float32, error) {
	return nil, context.DeadlineExceeded
}

// testFacePNG renders a small gradient so the sample survives normalization.
func testFacePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func registerForm(roll string) map[string]string {
	return map[string]string{
		"roll_no":  roll,
		"name":     "Asha",
		"branch":   "CSA",
		"year":     "2021",
		"password": "secret",
	}
}

func TestRegisterStudent(t *testing.T) {
	store := mock.NewStore()
	handler := NewStudentsHandler(store, store, nil, nil)

	req := multipartRequest(t, "/api/v1/students/register", registerForm("BT21CSA001"), "face", testFacePNG(t))
	rec := httptest.NewRecorder()
	handler.Register(rec, req)

	assertStatusCode(t, rec, http.StatusCreated)

	student, err := store.Get(context.Background(), roster.Cohort{Branch: "CSA", Year: "2021"}, "BT21CSA001")
	if err != nil {
		t.Fatalf("registered student not found: %v", err)
	}
	if student.Name != "Asha" || student.QRToken != "BT21CSA001" {
		t.Errorf("unexpected stored student: %+v", student)
	}
	if len(student.FaceSample) == 0 {
		t.Error("expected a stored face sample")
	}
	if card, err := qrtoken.Encode(student.QRToken); err != nil || len(card) == 0 {
		t.Errorf("stored token is not encodable: %v", err)
	}
}

func TestRegisterStudentDuplicate(t *testing.T) {
	store := mock.NewStore()
	handler := NewStudentsHandler(store, store, nil, nil)

	face := testFacePNG(t)
	first := httptest.NewRecorder()
	handler.Register(first, multipartRequest(t, "/api/v1/students/register", registerForm("BT21CSA001"), "face", face))
	assertStatusCode(t, first, http.StatusCreated)

	second := httptest.NewRecorder()
	handler.Register(second, multipartRequest(t, "/api/v1/students/register", registerForm("BT21CSA001"), "face", face))
	assertStatusCode(t, second, http.StatusConflict)
	assertJSONError(t, second, "student already registered")
}

func TestRegisterStudentCohortMismatch(t *testing.T) {
	store := mock.NewStore()
	handler := NewStudentsHandler(store, store, nil, nil)

	form := registerForm("BT22CSD001") // roll encodes CSD/2022, form says CSA/2021
	req := multipartRequest(t, "/api/v1/students/register", form, "face", testFacePNG(t))
	rec := httptest.NewRecorder()
	handler.Register(rec, req)

	assertStatusCode(t, rec, http.StatusBadRequest)
}

func TestRegisterStudentBadImage(t *testing.T) {
	store := mock.NewStore()
	handler := NewStudentsHandler(store, store, nil, nil)

	req := multipartRequest(t, "/api/v1/students/register", registerForm("BT21CSA001"), "face", []byte("not-an-image"))
	rec := httptest.NewRecorder()
	handler.Register(rec, req)

	assertStatusCode(t, rec, http.StatusBadRequest)
	assertJSONError(t, rec, "face image could not be decoded")
}

func TestRegisterStudentEmbedderDownStillRegisters(t *testing.T) {
	store := mock.NewStore()
	handler := NewStudentsHandler(store, store, errEmbedder{}, nil)

	req := multipartRequest(t, "/api/v1/students/register", registerForm("BT21CSA001"), "face", testFacePNG(t))
	rec := httptest.NewRecorder()
	handler.Register(rec, req)

	assertStatusCode(t, rec, http.StatusCreated)
	student, err := store.Get(context.Background(), roster.Cohort{Branch: "CSA", Year: "2021"}, "BT21CSA001")
	if err != nil {
		t.Fatalf("registered student not found: %v", err)
	}
	if len(student.Embedding) != 0 {
		t.Error("expected no embedding when the embedder is unreachable")
	}
}

func TestListStudents(t *testing.T) {
	store := mock.NewStore()
	handler := NewStudentsHandler(store, store, nil, nil)
	cohort := roster.Cohort{Branch: "CSA", Year: "2021"}
	for _, roll := range []string{"BT21CSA002", "BT21CSA001"} {
		if err := store.Register(context.Background(), database.Student{Roll: roll, Name: roll, Cohort: cohort}); err != nil {
			t.Fatalf("failed to seed student: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/students?branch=CSA&year=2021", nil)
	rec := httptest.NewRecorder()
	handler.List(rec, req)

	assertStatusCode(t, rec, http.StatusOK)
	var body struct {
		Count    int                `json:"count"`
		Students []database.Student `json:"students"`
	}
	parseJSONResponse(t, rec, &body)
	if body.Count != 2 || body.Students[0].Roll != "BT21CSA001" {
		t.Errorf("unexpected student list: %+v", body)
	}
}

func TestListStudentsNameFilter(t *testing.T) {
	store := mock.NewStore()
	handler := NewStudentsHandler(store, store, nil, nil)
	cohort := roster.Cohort{Branch: "CSA", Year: "2021"}
	for roll, name := range map[string]string{
		"BT21CSA001": "José García",
		"BT21CSA002": "Priya Nair",
	} {
		if err := store.Register(context.Background(), database.Student{Roll: roll, Name: name, Cohort: cohort}); err != nil {
			t.Fatalf("failed to seed student: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/students?branch=CSA&year=2021&q=jose", nil)
	rec := httptest.NewRecorder()
	handler.List(rec, req)

	assertStatusCode(t, rec, http.StatusOK)
	var body struct {
		Count    int                `json:"count"`
		Students []database.Student `json:"students"`
	}
	parseJSONResponse(t, rec, &body)
	if body.Count != 1 || body.Students[0].Roll != "BT21CSA001" {
		t.Errorf("unexpected filtered list: %+v", body)
	}
}

func TestQRCard(t *testing.T) {
	store := mock.NewStore()
	handler := NewStudentsHandler(store, store, nil, nil)
	if err := store.Register(context.Background(), database.Student{
		Roll:    "BT21CSA001",
		Name:    "Asha",
		Cohort:  roster.Cohort{Branch: "CSA", Year: "2021"},
		QRToken: "BT21CSA001",
	}); err != nil {
		t.Fatalf("failed to seed student: %v", err)
	}

	router := chi.NewRouter()
	router.Get("/api/v1/students/{roll}/card", handler.QRCard)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/students/BT21CSA001/card", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assertStatusCode(t, rec, http.StatusOK)
	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Errorf("expected image/png, got %q", got)
	}
	roll, err := qrtoken.Decode(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("served card is not decodable: %v", err)
	}
	if roll != "BT21CSA001" {
		t.Errorf("expected card payload BT21CSA001, got %q", roll)
	}
}

func TestQRCardUnknownStudent(t *testing.T) {
	store := mock.NewStore()
	handler := NewStudentsHandler(store, store, nil, nil)

	router := chi.NewRouter()
	router.Get("/api/v1/students/{roll}/card", handler.QRCard)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/students/BT21CSA099/card", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assertStatusCode(t, rec, http.StatusNotFound)
}

func TestBranches(t *testing.T) {
	store := mock.NewStore()
	handler := NewStudentsHandler(store, store, nil, nil)
	store.AddBranch(database.Branch{Code: "CSA", Name: "CSE (AI & ML)"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/branches", nil)
	rec := httptest.NewRecorder()
	handler.Branches(rec, req)

	assertStatusCode(t, rec, http.StatusOK)
	var body struct {
		Branches []database.Branch `json:"branches"`
	}
	parseJSONResponse(t, rec, &body)
	if len(body.Branches) != 1 || body.Branches[0].Code != "CSA" {
		t.Errorf("unexpected branches: %+v", body.Branches)
	}
}
