package portal

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusportal/internal/audit"
	"campusportal/internal/model"
	"campusportal/internal/store"
)

var testNow = time.Date(2025, 5, 12, 9, 30, 0, 0, time.UTC)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	s := store.New(store.NewMemory(), store.DefaultNamespace)
	n := 0
	ids := func() string { n++; return fmt.Sprintf("gen-%d", n) }
	clock := func() time.Time { return testNow }
	a := audit.NewLogger(s, audit.WithClock(clock), audit.WithIDFunc(ids))
	db := Open(s, WithAuditLogger(a), WithIDFunc(ids), WithClock(clock))
	require.NoError(t, db.Initialize(context.Background()))
	return db
}

func auditActions(t *testing.T, db *DB) []string {
	t.Helper()
	logs, err := db.GetAuditLogs(context.Background())
	require.NoError(t, err)
	out := make([]string, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.Action)
	}
	return out
}

func TestInitialize_SeedsOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	users, err := db.GetUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "ADMIN001", users[0].RollNo)
	assert.Equal(t, "T001", users[1].RollNo)
	assert.Equal(t, "S001", users[2].RollNo)

	classes, err := db.GetClasses(ctx)
	require.NoError(t, err)
	assert.Len(t, classes, 3)
	slots, err := db.GetSlots(ctx)
	require.NoError(t, err)
	assert.Equal(t, "9:00–9:50 AM", slots[0].Time)
	complaints, err := db.GetComplaints(ctx)
	require.NoError(t, err)
	assert.Empty(t, complaints)

	logs, err := db.GetAuditLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "Database Initialization", logs[0].Action)
	assert.Equal(t, "2025-05-12T09:30:00.000Z", logs[0].Timestamp)

	ok, err := db.Initialized(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	// a second call leaves edits alone
	_, err = db.AddCourse(ctx, model.Course{Name: "Operating Systems", Code: "CS201"})
	require.NoError(t, err)
	require.NoError(t, db.Initialize(ctx))
	courses, err := db.GetCourses(ctx)
	require.NoError(t, err)
	assert.Len(t, courses, 3)
}

func TestAddClass_AssignsIDAndAudits(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	added, err := db.AddClass(ctx, model.Class{Name: "CSE-C", Semester: "3-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, added.ClassID)
	assert.Equal(t, "CSE-C", added.Name)

	classes, err := db.GetClasses(ctx)
	require.NoError(t, err)
	assert.Len(t, classes, 4)

	logs, err := db.GetAuditLogs(ctx)
	require.NoError(t, err)
	last := logs[len(logs)-1]
	assert.Equal(t, "Added Classes", last.Action)
	assert.Contains(t, last.Details, added.ClassID)
}

func TestUpdateSlot_PreservesOtherFields(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	slot, err := db.AddSlot(ctx, model.Slot{Name: "Period 4", Time: "11:40–12:30 PM"})
	require.NoError(t, err)

	updated, err := db.UpdateSlot(ctx, slot.SlotID, model.SlotPatch{Time: model.Ptr("11:00–11:50 AM")})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "Period 4", updated.Name)
	assert.Equal(t, "11:00–11:50 AM", updated.Time)

	missing, err := db.UpdateSlot(ctx, "nope", model.SlotPatch{Time: model.Ptr("x")})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDeleteComplaint_MissingIsNoop(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	before := auditActions(t, db)

	ok, err := db.DeleteComplaint(ctx, "does-not-exist")
	require.NoError(t, err)
	assert.False(t, ok)

	complaints, err := db.GetComplaints(ctx)
	require.NoError(t, err)
	assert.Empty(t, complaints)
	assert.Equal(t, before, auditActions(t, db))
}

func TestDelete_RefusesReferencedRecords(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	tests := []struct {
		name string
		del  func() (bool, error)
	}{
		{"class with schedules", func() (bool, error) { return db.DeleteClass(ctx, "1") }},
		{"slot with schedules", func() (bool, error) { return db.DeleteSlot(ctx, "1") }},
		{"teacher with schedules", func() (bool, error) { return db.DeleteUser(ctx, "2") }},
		{"student with attendance", func() (bool, error) { return db.DeleteUser(ctx, "3") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := tt.del()
			assert.ErrorIs(t, err, ErrHasDependents)
			assert.False(t, ok)
		})
	}

	// unreferenced records go
	ok, err := db.DeleteClass(ctx, "2")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = db.DeleteSlot(ctx, "3")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = db.DeleteUser(ctx, "1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDeleteUser_DropsCredential(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SetCredential(ctx, "1", "hash-a"))
	require.NoError(t, db.SetCredential(ctx, "1", "hash-b"))
	cred, err := db.CredentialFor(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "hash-b", cred.Hash)

	logs, err := db.GetAuditLogs(ctx)
	require.NoError(t, err)
	for _, l := range logs {
		assert.NotContains(t, l.Details, "hash-")
	}

	before := auditActions(t, db)
	ok, err := db.DeleteUser(ctx, "1")
	require.NoError(t, err)
	require.True(t, ok)
	cred, err = db.CredentialFor(ctx, "1")
	require.NoError(t, err)
	assert.Nil(t, cred)

	after := auditActions(t, db)
	require.Len(t, after, len(before)+1, "one entry per user removal")
	assert.Equal(t, "Deleted Users", after[len(after)-1])
}

func TestMarkAttendance_RejectsRepeatedStudent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	before, err := db.GetAttendance(ctx)
	require.NoError(t, err)

	_, err = db.MarkAttendance(ctx, Roll{
		ClassID: "2", SlotID: "2", Date: "2025-05-12",
		Students: []RollEntry{{StudentID: "3", Present: true}, {StudentID: "3", Present: false}},
	})
	assert.ErrorIs(t, err, model.ErrInvalid)

	after, err := db.GetAttendance(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSchedules_OnePerClassAndSlot(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.AddSchedule(ctx, model.Schedule{ClassID: "1", SlotID: "1", TeacherID: "2", Subject: "Chemistry"})
	assert.ErrorIs(t, err, ErrScheduleConflict)

	s, err := db.AddSchedule(ctx, model.Schedule{ClassID: "1", SlotID: "3", TeacherID: "2", Subject: "Chemistry"})
	require.NoError(t, err)

	_, err = db.UpdateSchedule(ctx, s.ScheduleID, model.SchedulePatch{SlotID: model.Ptr("2")})
	assert.ErrorIs(t, err, ErrScheduleConflict)

	// rewriting its own pair is fine
	updated, err := db.UpdateSchedule(ctx, s.ScheduleID, model.SchedulePatch{SlotID: model.Ptr("3"), Subject: model.Ptr("Biology")})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "Biology", updated.Subject)

	missing, err := db.UpdateSchedule(ctx, "nope", model.SchedulePatch{Subject: model.Ptr("x")})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAddComplaint_Defaults(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	c, err := db.AddComplaint(ctx, model.Complaint{StudentID: "3", Subject: "Projector", Message: "Broken in room 12"})
	require.NoError(t, err)
	assert.Equal(t, model.ComplaintPending, c.Status)
	assert.Equal(t, "2025-05-12", c.Date)

	resolved, err := db.SetComplaintStatus(ctx, c.ID, model.ComplaintResolved)
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, model.ComplaintResolved, resolved.Status)
	assert.Equal(t, "Projector", resolved.Subject)

	_, err = db.SetComplaintStatus(ctx, c.ID, "lost")
	assert.ErrorIs(t, err, model.ErrInvalid)
}

func TestAdd_RejectsInvalidRecords(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	before := auditActions(t, db)

	_, err := db.AddUser(ctx, model.User{RollNo: "S002", Name: "New Student", Type: "guest"})
	assert.ErrorIs(t, err, model.ErrInvalid)
	_, err = db.AddAttendance(ctx, model.Attendance{StudentID: "3", ClassID: "1", SlotID: "1", Date: "2025-05-13", Status: "late"})
	assert.ErrorIs(t, err, model.ErrInvalid)

	assert.Equal(t, before, auditActions(t, db))
}

func TestMarkAttendance(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	s2, err := db.AddUser(ctx, model.User{RollNo: "S002", Name: "Second Student", Type: model.UserStudent})
	require.NoError(t, err)

	roll := Roll{
		ClassID: "1", SlotID: "1", Date: "2025-05-12",
		Students: []RollEntry{{StudentID: "3", Present: false}, {StudentID: s2.ID, Present: true}},
	}
	sum, err := db.MarkAttendance(ctx, roll)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Present)
	assert.Equal(t, 1, sum.Absent)
	assert.Equal(t, 1, sum.Created, "second student is new")
	assert.Equal(t, 1, sum.Updated, "seeded record is reused")
	assert.Equal(t, "1", sum.Records[0].AttendanceID)
	assert.Equal(t, model.Absent, sum.Records[0].Status)

	// marking again does not duplicate
	sum, err = db.MarkAttendance(ctx, roll)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Created)
	assert.Equal(t, 2, sum.Updated)

	marks, err := db.AttendanceFor(ctx, AttendanceQuery{ClassID: "1", Date: "2025-05-12"})
	require.NoError(t, err)
	assert.Len(t, marks, 2)

	_, err = db.MarkAttendance(ctx, Roll{ClassID: "1", SlotID: "1", Date: "12/05/2025", Students: roll.Students})
	assert.ErrorIs(t, err, model.ErrInvalid)
	_, err = db.MarkAttendance(ctx, Roll{ClassID: "1", SlotID: "1", Date: "2025-05-12"})
	assert.ErrorIs(t, err, model.ErrInvalid)
}

func TestStudentAttendanceStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.AddAttendance(ctx, model.Attendance{StudentID: "3", ClassID: "1", SlotID: "2", Date: "2025-05-12", Status: model.Absent})
	require.NoError(t, err)
	_, err = db.AddAttendance(ctx, model.Attendance{StudentID: "3", ClassID: "1", SlotID: "1", Date: "2025-05-13", Status: model.Present})
	require.NoError(t, err)

	st, err := db.StudentAttendanceStats(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 2, st.Present)
	assert.Equal(t, 1, st.Absent)
	assert.InDelta(t, 66.67, st.Percentage, 0.01)

	none, err := db.StudentAttendanceStats(ctx, "999")
	require.NoError(t, err)
	assert.Zero(t, none.Percentage)
}

func TestUsersByTypeAndRollNo(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	students, err := db.UsersByType(ctx, model.UserStudent)
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "S001", students[0].RollNo)

	u, err := db.UserByRollNo(ctx, "T001")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "2", u.ID)

	u, err = db.UserByRollNo(ctx, "X999")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestReset_RestoresSeed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.AddNotice(ctx, model.Notice{Text: "Library closed", Date: "2025-05-12"})
	require.NoError(t, err)
	require.NoError(t, db.Store().Set(ctx, SessionKey, []byte(`{"id":"1"}`)))

	require.NoError(t, db.Reset(ctx))

	notices, err := db.GetNotices(ctx)
	require.NoError(t, err)
	require.Len(t, notices, 1)
	assert.Equal(t, "exam", notices[0].Category)
	_, ok, err := db.Store().Get(ctx, SessionKey)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"Database Initialization"}, auditActions(t, db))
}

func TestReset_KeepsCredentialsOfSeededUsers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	added, err := db.AddUser(ctx, model.User{RollNo: "S077", Name: "Temp Student", Type: model.UserStudent})
	require.NoError(t, err)
	require.NoError(t, db.SetCredential(ctx, "1", "hash-admin"))
	require.NoError(t, db.SetCredential(ctx, added.ID, "hash-temp"))

	require.NoError(t, db.Reset(ctx))

	cred, err := db.CredentialFor(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "hash-admin", cred.Hash)

	cred, err = db.CredentialFor(ctx, added.ID)
	require.NoError(t, err)
	assert.Nil(t, cred)
	assert.Equal(t, []string{"Database Initialization"}, auditActions(t, db))
}

func TestPersistsAcrossHandles(t *testing.T) {
	kv := store.NewMemory()
	ctx := context.Background()

	first := Open(store.New(kv, "campus"))
	require.NoError(t, first.Initialize(ctx))
	added, err := first.AddEvent(ctx, model.Event{Text: "Hackathon", Date: "2025-06-01"})
	require.NoError(t, err)

	second := Open(store.New(kv, "campus"))
	require.NoError(t, second.Initialize(ctx))
	got, err := second.GetEventByID(ctx, added.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Hackathon", got.Text)

	other := Open(store.New(kv, "other"))
	events, err := other.GetEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)
}
