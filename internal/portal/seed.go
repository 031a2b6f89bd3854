package portal

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"campusportal/internal/audit"
	"campusportal/internal/model"
)

// DateLayout is the calendar date format used by every dated record.
const DateLayout = "2006-01-02"

// Initialized reports whether the bootstrap marker is set.
func (db *DB) Initialized(ctx context.Context) (bool, error) {
	v, ok, err := db.store.Get(ctx, InitializedKey)
	if err != nil {
		return false, err
	}
	return ok && string(v) == "true", nil
}

// Initialize seeds every collection on first use. Once the marker is set it
// does nothing, so calling it on every start is safe.
func (db *DB) Initialize(ctx context.Context) error {
	done, err := db.Initialized(ctx)
	if err != nil {
		return fmt.Errorf("check initialization: %w", err)
	}
	if done {
		return nil
	}
	if err := db.seed(ctx); err != nil {
		return fmt.Errorf("seed database: %w", err)
	}
	if err := db.store.Set(ctx, InitializedKey, []byte("true")); err != nil {
		return fmt.Errorf("set initialization marker: %w", err)
	}
	db.log.Info("database initialized", zap.String("namespace", db.store.Namespace()))
	return nil
}

// Reset drops every collection, the session and the marker, then seeds again.
// Password hashes survive for users that exist again after seeding, so the
// seeded accounts keep their credentials.
func (db *DB) Reset(ctx context.Context) error {
	db.guard.Lock()
	defer db.guard.Unlock()

	clears := []func(context.Context) error{
		db.users.Clear, db.classes.Clear, db.slots.Clear, db.schedules.Clear,
		db.attendance.Clear, db.notices.Clear, db.events.Clear, db.alerts.Clear,
		db.faculty.Clear, db.calendar.Clear, db.complaints.Clear, db.courses.Clear,
		db.audit.Clear,
	}
	for _, clearFn := range clears {
		if err := clearFn(ctx); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	for _, key := range []string{SessionKey, InitializedKey} {
		if err := db.store.Remove(ctx, key); err != nil {
			return fmt.Errorf("reset: remove %s: %w", key, err)
		}
	}
	db.log.Warn("database reset", zap.String("namespace", db.store.Namespace()))
	if err := db.Initialize(ctx); err != nil {
		return err
	}
	return db.pruneCredentials(ctx)
}

// pruneCredentials drops hashes whose user no longer exists.
func (db *DB) pruneCredentials(ctx context.Context) error {
	users, err := db.users.GetAll(ctx)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(users))
	for _, u := range users {
		known[u.ID] = true
	}
	creds, err := db.credentials.GetAll(ctx)
	if err != nil {
		return err
	}
	kept := creds[:0:0]
	for _, c := range creds {
		if known[c.UserID] {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(creds) {
		return nil
	}
	if err := db.credentials.Replace(ctx, kept); err != nil {
		return fmt.Errorf("reset: prune credentials: %w", err)
	}
	db.log.Info("dropped orphaned credentials", zap.Int("count", len(creds)-len(kept)))
	return nil
}

func (db *DB) seed(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{UsersCollection, func(ctx context.Context) error { return db.users.Replace(ctx, seedUsers) }},
		{ClassesCollection, func(ctx context.Context) error { return db.classes.Replace(ctx, seedClasses) }},
		{SlotsCollection, func(ctx context.Context) error { return db.slots.Replace(ctx, seedSlots) }},
		{SchedulesCollection, func(ctx context.Context) error { return db.schedules.Replace(ctx, seedSchedules) }},
		{AttendanceCollection, func(ctx context.Context) error { return db.attendance.Replace(ctx, seedAttendance) }},
		{NoticesCollection, func(ctx context.Context) error { return db.notices.Replace(ctx, seedNotices) }},
		{EventsCollection, func(ctx context.Context) error { return db.events.Replace(ctx, seedEvents) }},
		{AlertsCollection, func(ctx context.Context) error { return db.alerts.Replace(ctx, seedAlerts) }},
		{FacultyCollection, func(ctx context.Context) error { return db.faculty.Replace(ctx, seedFaculty) }},
		{CalendarCollection, func(ctx context.Context) error { return db.calendar.Replace(ctx, seedCalendar) }},
		{ComplaintsCollection, func(ctx context.Context) error { return db.complaints.Replace(ctx, nil) }},
		{CoursesCollection, func(ctx context.Context) error { return db.courses.Replace(ctx, seedCourses) }},
		{audit.CollectionName, func(ctx context.Context) error {
			return db.audit.Seed(ctx, []model.AuditLog{{
				ID:        "1",
				Action:    "Database Initialization",
				Details:   "Initial database setup",
				Timestamp: db.audit.Now(),
			}})
		}},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}
	return nil
}

var seedUsers = []model.User{
	{
		ID: "1", RollNo: "ADMIN001", Name: "Admin User", Email: "admin@nriit.edu",
		Phone: "9876543210", Type: model.UserAdmin, Photo: "https://i.pravatar.cc/150?img=1",
	},
	{
		ID: "2", RollNo: "T001", Name: "Teacher User", Email: "teacher@nriit.edu",
		Phone: "9876543211", Type: model.UserTeacher, Photo: "https://i.pravatar.cc/150?img=2",
	},
	{
		ID: "3", RollNo: "S001", Name: "Student User", Email: "student@nriit.edu",
		Phone: "9876543212", Type: model.UserStudent, Branch: model.BranchCSE, Year: 2,
		Photo: "https://i.pravatar.cc/150?img=3",
	},
}

var seedClasses = []model.Class{
	{ClassID: "1", Name: "CSE-A", Semester: "1-1"},
	{ClassID: "2", Name: "ECE-A", Semester: "1-1"},
	{ClassID: "3", Name: "CSE-B", Semester: "2-1"},
}

var seedSlots = []model.Slot{
	{SlotID: "1", Name: "Period 1", Time: "9:00–9:50 AM"},
	{SlotID: "2", Name: "Period 2", Time: "9:50–10:40 AM"},
	{SlotID: "3", Name: "Period 3", Time: "10:50–11:40 AM"},
}

var seedSchedules = []model.Schedule{
	{ScheduleID: "1", ClassID: "1", SlotID: "1", TeacherID: "2", Subject: "Mathematics"},
	{ScheduleID: "2", ClassID: "1", SlotID: "2", TeacherID: "2", Subject: "Physics"},
}

var seedAttendance = []model.Attendance{
	{AttendanceID: "1", StudentID: "3", ClassID: "1", SlotID: "1", Date: "2025-05-12", Status: model.Present},
}

var seedNotices = []model.Notice{{
	ID:       "1",
	Title:    "Mid-semester exams starting from 15th May",
	Content:  "Please prepare for the upcoming examinations. The schedule is available on the notice board.",
	Category: "exam",
	Date:     "2025-05-05",
}}

var seedEvents = []model.Event{
	{ID: "1", Text: "Annual Cultural Fest on 25th May", Date: "2025-05-05"},
}

var seedAlerts = []model.Alert{
	{ID: "1", Text: "Campus will be closed on 14th May due to elections", Date: "2025-05-05"},
}

var seedFaculty = []model.Faculty{{
	ID:          "2",
	Name:        "Teacher User",
	Designation: "Assistant Professor",
	Bio:         "Specializes in Computer Science and Mathematics",
	Photo:       "https://i.pravatar.cc/150?img=2",
}}

var seedCalendar = []model.CalendarEntry{
	{ID: "1", Entry: "First Semester Begins", Date: "2025-07-01"},
	{ID: "2", Entry: "Mid-term Examinations", Date: "2025-09-15"},
}

var seedCourses = []model.Course{
	{ID: "1", Name: "Introduction to Computer Science", Code: "CS101", Description: "Basic concepts of programming and computer science"},
	{ID: "2", Name: "Data Structures", Code: "CS102", Description: "Implementation and analysis of data structures"},
}
