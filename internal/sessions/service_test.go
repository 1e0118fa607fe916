package sessions

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acadlive/backend/internal/conference"
	"github.com/acadlive/backend/internal/courses"
	"github.com/acadlive/backend/internal/models"
)

type fakeStore struct {
	sessions map[uuid.UUID]*models.LiveSession
	creates  int
	updates  int

	// raceWinner simulates losing a create race: the first Create fails
	// with a duplicate even though ByCourse saw nothing, and the winner's
	// session becomes visible afterwards.
	raceWinner *models.LiveSession
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[uuid.UUID]*models.LiveSession)}
}

func (f *fakeStore) add(s *models.LiveSession) {
	cp := *s
	f.sessions[s.ID] = &cp
}

func (f *fakeStore) Create(_ context.Context, s *models.LiveSession, finalize FinalizeRoom) error {
	if f.raceWinner != nil {
		winner := f.raceWinner
		f.raceWinner = nil
		f.add(winner)
		return ErrDuplicateSession
	}
	for _, existing := range f.sessions {
		if existing.CourseID == s.CourseID {
			return ErrDuplicateSession
		}
	}
	s.ID = uuid.New()
	name, err := finalize(s.ID)
	if err != nil {
		return err
	}
	s.RoomName = name
	f.creates++
	f.add(s)
	return nil
}

func (f *fakeStore) ByID(_ context.Context, id uuid.UUID) (*models.LiveSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) ByCourse(_ context.Context, courseID uuid.UUID) (*models.LiveSession, error) {
	for _, s := range f.sessions {
		if s.CourseID == courseID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrSessionNotFound
}

func (f *fakeStore) ListByCourse(_ context.Context, courseID uuid.UUID, page, limit int) ([]SessionWithCount, int, error) {
	var out []SessionWithCount
	for _, s := range f.sessions {
		if s.CourseID == courseID {
			out = append(out, SessionWithCount{LiveSession: *s})
		}
	}
	return out, len(out), nil
}

func (f *fakeStore) ListForCourses(_ context.Context, courseIDs []uuid.UUID) ([]models.LiveSession, error) {
	var out []models.LiveSession
	for _, s := range f.sessions {
		for _, id := range courseIDs {
			if s.CourseID == id {
				out = append(out, *s)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) Update(_ context.Context, s *models.LiveSession) error {
	if _, ok := f.sessions[s.ID]; !ok {
		return ErrSessionNotFound
	}
	f.updates++
	f.add(s)
	return nil
}

func (f *fakeStore) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(f.sessions, id)
	return nil
}

type fakeDirectory struct {
	courses     map[uuid.UUID]*models.Course
	enrollments map[uuid.UUID]map[uuid.UUID]*models.Enrollment
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		courses:     make(map[uuid.UUID]*models.Course),
		enrollments: make(map[uuid.UUID]map[uuid.UUID]*models.Enrollment),
	}
}

func (f *fakeDirectory) addCourse(c *models.Course) { f.courses[c.ID] = c }

func (f *fakeDirectory) enroll(courseID, userID uuid.UUID) {
	if f.enrollments[courseID] == nil {
		f.enrollments[courseID] = make(map[uuid.UUID]*models.Enrollment)
	}
	f.enrollments[courseID][userID] = &models.Enrollment{ID: uuid.New(), CourseID: courseID, UserID: userID}
}

func (f *fakeDirectory) CourseByID(_ context.Context, id uuid.UUID) (*models.Course, error) {
	c, ok := f.courses[id]
	if !ok {
		return nil, courses.ErrCourseNotFound
	}
	return c, nil
}

func (f *fakeDirectory) EnrollmentFor(_ context.Context, courseID, userID uuid.UUID) (*models.Enrollment, error) {
	e, ok := f.enrollments[courseID][userID]
	if !ok {
		return nil, courses.ErrNotEnrolled
	}
	return e, nil
}

func (f *fakeDirectory) CourseIDsFor(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for courseID, users := range f.enrollments {
		if _, ok := users[userID]; ok {
			ids = append(ids, courseID)
		}
	}
	return ids, nil
}

type fakeRoster struct {
	list []models.Participant
}

func (f *fakeRoster) Roster(_ context.Context, _ uuid.UUID) ([]models.Participant, error) {
	return f.list, nil
}

type sweepCall struct {
	sessionID uuid.UUID
	endedAt   time.Time
}

type fakeSweeps struct {
	calls []sweepCall
	err   error
}

func (f *fakeSweeps) EnqueuePresenceSweep(_ context.Context, sessionID uuid.UUID, endedAt time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, sweepCall{sessionID: sessionID, endedAt: endedAt})
	return nil
}

type fixture struct {
	svc        *Service
	store      *fakeStore
	dir        *fakeDirectory
	roster     *fakeRoster
	sweeps     *fakeSweeps
	issuer     *conference.TokenIssuer
	instructor models.Caller
	course     *models.Course
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	issuer, err := conference.NewTokenIssuer("acadlive", "conference", "test-secret")
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	fx := &fixture{
		store:  newFakeStore(),
		dir:    newFakeDirectory(),
		roster: &fakeRoster{},
		sweeps: &fakeSweeps{},
		issuer: issuer,
		now:    time.Now().Truncate(time.Second),
	}
	fx.instructor = models.Caller{ID: uuid.New(), Name: "Instructor", Email: "i@example.com", Role: models.UserRoleInstructor}
	fx.course = &models.Course{ID: uuid.New(), Title: "Distributed Systems", InstructorID: fx.instructor.ID}
	fx.dir.addCourse(fx.course)

	fx.svc = NewService(fx.store, fx.dir, conference.NewRoomNamer("acad"), issuer, fx.roster, fx.sweeps, "https://meet.example.com", nil)
	fx.svc.SetClock(func() time.Time { return fx.now })
	return fx
}

func (fx *fixture) createInput() CreateInput {
	return CreateInput{
		CourseID:         fx.course.ID,
		Title:            "Week 3 lecture",
		ScheduledStartAt: fx.now.Add(-time.Hour),
		ScheduledEndAt:   fx.now.Add(time.Hour),
		MaxParticipants:  50,
	}
}

// seed persists a session directly in the store in the given status.
func (fx *fixture) seed(status models.SessionStatus) *models.LiveSession {
	s := &models.LiveSession{
		ID:               uuid.New(),
		CourseID:         fx.course.ID,
		InstructorID:     fx.instructor.ID,
		Title:            "Week 3 lecture",
		ScheduledStartAt: fx.now.Add(-time.Hour),
		ScheduledEndAt:   fx.now.Add(time.Hour),
		Status:           status,
		RoomName:         "acad-11111111-22222222-abcdef0123",
		RoomPassword:     "room-pass",
		ServerURL:        "https://meet.example.com",
		MaxParticipants:  50,
	}
	fx.store.add(s)
	return s
}

func TestCreate(t *testing.T) {
	fx := newFixture(t)

	session, existed, err := fx.svc.Create(context.Background(), fx.instructor, fx.createInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if existed {
		t.Error("fresh create reported as pre-existing")
	}
	if session.Status != models.StatusScheduled {
		t.Errorf("status = %s, want scheduled", session.Status)
	}
	if session.ID == uuid.Nil {
		t.Error("session has no ID")
	}
	// The provisional name never leaks out of the store.
	if session.RoomName == "" || strings.Contains(session.RoomName, "pending") {
		t.Errorf("room name = %q", session.RoomName)
	}
	if !strings.HasPrefix(session.RoomName, "acad-") {
		t.Errorf("room name %q lacks the configured prefix", session.RoomName)
	}
	if session.RoomPassword == "" {
		t.Error("room password not generated")
	}
	if session.InstructorID != fx.instructor.ID {
		t.Errorf("instructor = %s, want %s", session.InstructorID, fx.instructor.ID)
	}
}

func TestCreateReturnsExistingSession(t *testing.T) {
	fx := newFixture(t)
	existing := fx.seed(models.StatusScheduled)

	session, existed, err := fx.svc.Create(context.Background(), fx.instructor, fx.createInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !existed {
		t.Error("existing session not reported as pre-existing")
	}
	if session.ID != existing.ID {
		t.Errorf("returned session %s, want existing %s", session.ID, existing.ID)
	}
	if fx.store.creates != 0 {
		t.Errorf("store.Create called %d times", fx.store.creates)
	}
}

func TestCreateLosesRace(t *testing.T) {
	fx := newFixture(t)
	winner := fx.seed(models.StatusScheduled)
	delete(fx.store.sessions, winner.ID)
	fx.store.raceWinner = winner

	session, existed, err := fx.svc.Create(context.Background(), fx.instructor, fx.createInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !existed {
		t.Error("race loser did not report the session as pre-existing")
	}
	if session.ID != winner.ID {
		t.Errorf("returned session %s, want race winner %s", session.ID, winner.ID)
	}
}

func TestCreateInvalidSchedule(t *testing.T) {
	fx := newFixture(t)
	in := fx.createInput()
	in.ScheduledEndAt = in.ScheduledStartAt

	_, _, err := fx.svc.Create(context.Background(), fx.instructor, in)
	if !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule, got %v", err)
	}
	if fx.store.creates != 0 {
		t.Error("invalid schedule reached the store")
	}
}

func TestCreateInvalidCapacity(t *testing.T) {
	fx := newFixture(t)
	in := fx.createInput()
	in.MaxParticipants = 0

	if _, _, err := fx.svc.Create(context.Background(), fx.instructor, in); !errors.Is(err, ErrInvalidCapacity) {
		t.Fatalf("expected ErrInvalidCapacity, got %v", err)
	}
}

func TestCreatePermissionDenied(t *testing.T) {
	fx := newFixture(t)
	other := models.Caller{ID: uuid.New(), Role: models.UserRoleInstructor}

	if _, _, err := fx.svc.Create(context.Background(), other, fx.createInput()); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestCreateAdminBypassesOwnership(t *testing.T) {
	fx := newFixture(t)
	admin := models.Caller{ID: uuid.New(), Role: models.UserRoleAdmin}

	session, _, err := fx.svc.Create(context.Background(), admin, fx.createInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	// Ownership stays with the course's instructor, not the admin.
	if session.InstructorID != fx.instructor.ID {
		t.Errorf("instructor = %s, want %s", session.InstructorID, fx.instructor.ID)
	}
}

func TestStartIssuesModeratorJoinURL(t *testing.T) {
	fx := newFixture(t)
	seeded := fx.seed(models.StatusScheduled)

	session, joinURL, err := fx.svc.Start(context.Background(), fx.instructor, seeded.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if session.Status != models.StatusLive {
		t.Errorf("status = %s, want live", session.Status)
	}
	if session.ActualStartAt == nil || !session.ActualStartAt.Equal(fx.now) {
		t.Errorf("actual start = %v, want %v", session.ActualStartAt, fx.now)
	}
	stored, _ := fx.store.ByID(context.Background(), seeded.ID)
	if stored.Status != models.StatusLive {
		t.Error("live transition not persisted")
	}

	u, err := url.Parse(joinURL)
	if err != nil {
		t.Fatalf("parse join url: %v", err)
	}
	claims, err := fx.issuer.Parse(u.Query().Get("token"))
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if !claims.Moderator {
		t.Error("starter's token is not a moderator token")
	}
	if claims.Room != seeded.RoomName {
		t.Errorf("token room = %q, want %q", claims.Room, seeded.RoomName)
	}
}

func TestStartOnEndedRejected(t *testing.T) {
	fx := newFixture(t)
	seeded := fx.seed(models.StatusEnded)

	_, _, err := fx.svc.Start(context.Background(), fx.instructor, seeded.ID)
	var stateErr *models.InvalidStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
	if stateErr.Current != models.StatusEnded {
		t.Errorf("disclosed status = %s, want ended", stateErr.Current)
	}
	if fx.store.updates != 0 {
		t.Error("rejected transition reached the store")
	}
}

func TestStartPermissionDenied(t *testing.T) {
	fx := newFixture(t)
	seeded := fx.seed(models.StatusScheduled)
	other := models.Caller{ID: uuid.New(), Role: models.UserRoleInstructor}

	if _, _, err := fx.svc.Start(context.Background(), other, seeded.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestEnd(t *testing.T) {
	fx := newFixture(t)
	seeded := fx.seed(models.StatusLive)
	rec := "https://cdn.example.com/rec.mp4"

	session, err := fx.svc.End(context.Background(), fx.instructor, seeded.ID, &rec)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if session.Status != models.StatusEnded {
		t.Errorf("status = %s, want ended", session.Status)
	}
	if session.ActualEndAt == nil || !session.ActualEndAt.Equal(fx.now) {
		t.Errorf("actual end = %v, want %v", session.ActualEndAt, fx.now)
	}
	if session.RecordingURL == nil || *session.RecordingURL != rec {
		t.Errorf("recording url = %v, want %q", session.RecordingURL, rec)
	}
	if len(fx.sweeps.calls) != 1 {
		t.Fatalf("sweeps enqueued = %d, want 1", len(fx.sweeps.calls))
	}
	if call := fx.sweeps.calls[0]; call.sessionID != seeded.ID || !call.endedAt.Equal(fx.now) {
		t.Errorf("sweep call = %+v", call)
	}
}

func TestEndOnScheduledRejected(t *testing.T) {
	fx := newFixture(t)
	seeded := fx.seed(models.StatusScheduled)

	_, err := fx.svc.End(context.Background(), fx.instructor, seeded.ID, nil)
	var stateErr *models.InvalidStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
	if len(fx.sweeps.calls) != 0 {
		t.Error("rejected end enqueued a sweep")
	}
}

func TestEndSurvivesSweepFailure(t *testing.T) {
	fx := newFixture(t)
	seeded := fx.seed(models.StatusLive)
	fx.sweeps.err = errors.New("redis down")

	session, err := fx.svc.End(context.Background(), fx.instructor, seeded.ID, nil)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if session.Status != models.StatusEnded {
		t.Errorf("status = %s, want ended", session.Status)
	}
}

func TestUpdateAppliesFields(t *testing.T) {
	fx := newFixture(t)
	seeded := fx.seed(models.StatusScheduled)
	title := "Rescheduled lecture"
	capacity := 80

	session, err := fx.svc.Update(context.Background(), fx.instructor, seeded.ID, UpdateInput{
		Title:           &title,
		MaxParticipants: &capacity,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if session.Title != title || session.MaxParticipants != capacity {
		t.Errorf("update not applied: %+v", session)
	}
	// Untouched fields survive.
	if session.RoomName != seeded.RoomName {
		t.Errorf("room name changed to %q", session.RoomName)
	}
}

func TestUpdateFrozenOnceLive(t *testing.T) {
	fx := newFixture(t)
	seeded := fx.seed(models.StatusLive)
	title := "too late"

	_, err := fx.svc.Update(context.Background(), fx.instructor, seeded.ID, UpdateInput{Title: &title})
	var stateErr *models.InvalidStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
	if stateErr.Current != models.StatusLive {
		t.Errorf("disclosed status = %s, want live", stateErr.Current)
	}
}

func TestUpdateRejectsInvertedSchedule(t *testing.T) {
	fx := newFixture(t)
	seeded := fx.seed(models.StatusScheduled)
	badStart := fx.now.Add(2 * time.Hour)

	_, err := fx.svc.Update(context.Background(), fx.instructor, seeded.ID, UpdateInput{ScheduledStartAt: &badStart})
	if !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule, got %v", err)
	}
	if fx.store.updates != 0 {
		t.Error("invalid update reached the store")
	}
}

func TestDeleteLiveRejected(t *testing.T) {
	fx := newFixture(t)
	seeded := fx.seed(models.StatusLive)

	if err := fx.svc.Delete(context.Background(), fx.instructor, seeded.ID); !errors.Is(err, ErrDeleteLive) {
		t.Fatalf("expected ErrDeleteLive, got %v", err)
	}
	if _, err := fx.store.ByID(context.Background(), seeded.ID); err != nil {
		t.Error("live session was deleted anyway")
	}
}

func TestDeleteScheduled(t *testing.T) {
	fx := newFixture(t)
	seeded := fx.seed(models.StatusScheduled)

	if err := fx.svc.Delete(context.Background(), fx.instructor, seeded.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := fx.store.ByID(context.Background(), seeded.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("session still present: %v", err)
	}
}

func TestGetDetailRequiresEnrollment(t *testing.T) {
	fx := newFixture(t)
	seeded := fx.seed(models.StatusLive)
	student := models.Caller{ID: uuid.New(), Role: models.UserRoleStudent}

	if _, err := fx.svc.GetDetail(context.Background(), student, seeded.ID); !errors.Is(err, courses.ErrNotEnrolled) {
		t.Fatalf("expected ErrNotEnrolled, got %v", err)
	}

	fx.dir.enroll(fx.course.ID, student.ID)
	detail, err := fx.svc.GetDetail(context.Background(), student, seeded.ID)
	if err != nil {
		t.Fatalf("GetDetail: %v", err)
	}
	if detail.Session.ID != seeded.ID {
		t.Errorf("detail session = %s, want %s", detail.Session.ID, seeded.ID)
	}
}

func TestForStudentGroupsByPhase(t *testing.T) {
	fx := newFixture(t)
	student := models.Caller{ID: uuid.New(), Role: models.UserRoleStudent}

	statuses := []models.SessionStatus{models.StatusScheduled, models.StatusLive, models.StatusEnded}
	for _, status := range statuses {
		course := &models.Course{ID: uuid.New(), InstructorID: fx.instructor.ID}
		fx.dir.addCourse(course)
		fx.dir.enroll(course.ID, student.ID)
		s := fx.seed(status)
		s.CourseID = course.ID
		fx.store.add(s)
	}

	got, err := fx.svc.ForStudent(context.Background(), student.ID)
	if err != nil {
		t.Fatalf("ForStudent: %v", err)
	}
	if len(got.Live) != 1 || len(got.Upcoming) != 1 || len(got.Past) != 1 {
		t.Errorf("grouping = live:%d upcoming:%d past:%d, want 1 each",
			len(got.Live), len(got.Upcoming), len(got.Past))
	}
}

func TestForStudentNoEnrollments(t *testing.T) {
	fx := newFixture(t)

	got, err := fx.svc.ForStudent(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("ForStudent: %v", err)
	}
	if len(got.Live)+len(got.Upcoming)+len(got.Past) != 0 {
		t.Errorf("expected empty groups, got %+v", got)
	}
}
