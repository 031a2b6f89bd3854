// Package portal is the database service used by every page of the campus
// portal: one typed CRUD surface per entity, bootstrap seeding and reset.
package portal

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"campusportal/internal/audit"
	"campusportal/internal/collection"
	"campusportal/internal/model"
	"campusportal/internal/store"
)

// Stored collection and value names, prefixed with the store namespace.
const (
	UsersCollection       = "users"
	ClassesCollection     = "classes"
	SlotsCollection       = "slots"
	SchedulesCollection   = "schedules"
	AttendanceCollection  = "attendance"
	NoticesCollection     = "notices"
	EventsCollection      = "events"
	AlertsCollection      = "alerts"
	FacultyCollection     = "faculty"
	CalendarCollection    = "calendar"
	ComplaintsCollection  = "complaints"
	CoursesCollection     = "courses"
	CredentialsCollection = "credentials"

	InitializedKey = "db_initialized"
	SessionKey     = "user"
)

var (
	// ErrHasDependents is returned when deleting a record other records still reference.
	ErrHasDependents = errors.New("record has dependents")
	// ErrScheduleConflict is returned when a class already has a schedule in a slot.
	ErrScheduleConflict = errors.New("class already scheduled in this slot")
)

// DB is the domain façade over a store.Store.
type DB struct {
	store *store.Store
	audit *audit.Logger
	log   *zap.Logger
	now   func() time.Time
	newID func() string

	// guards check-then-write sequences (schedule uniqueness, guarded deletes)
	guard sync.Mutex

	users       *collection.Collection[model.User]
	classes     *collection.Collection[model.Class]
	slots       *collection.Collection[model.Slot]
	schedules   *collection.Collection[model.Schedule]
	attendance  *collection.Collection[model.Attendance]
	notices     *collection.Collection[model.Notice]
	events      *collection.Collection[model.Event]
	alerts      *collection.Collection[model.Alert]
	faculty     *collection.Collection[model.Faculty]
	calendar    *collection.Collection[model.CalendarEntry]
	complaints  *collection.Collection[model.Complaint]
	courses     *collection.Collection[model.Course]
	credentials *collection.Collection[model.Credential]
}

// Option customises a DB.
type Option func(*DB)

// WithLogger sets the zap logger.
func WithLogger(l *zap.Logger) Option { return func(db *DB) { db.log = l } }

// WithAuditLogger shares an existing audit logger, e.g. one with a queue sink.
func WithAuditLogger(a *audit.Logger) Option { return func(db *DB) { db.audit = a } }

// WithIDFunc replaces the identifier generator for every collection.
func WithIDFunc(f func() string) Option { return func(db *DB) { db.newID = f } }

// WithClock replaces time.Now for defaults such as complaint dates.
func WithClock(now func() time.Time) Option { return func(db *DB) { db.now = now } }

// Open builds the façade over s. It does not seed; call Initialize.
func Open(s *store.Store, opts ...Option) *DB {
	db := &DB{store: s, log: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(db)
	}
	if db.audit == nil {
		db.audit = audit.NewLogger(s, audit.WithLogger(db.log), audit.WithClock(db.now))
	}

	db.users = newCollection(db, UsersCollection, "Users", "id",
		func(v model.User) string { return v.ID }, func(v *model.User, id string) { v.ID = id })
	db.classes = newCollection(db, ClassesCollection, "Classes", "class_id",
		func(v model.Class) string { return v.ClassID }, func(v *model.Class, id string) { v.ClassID = id })
	db.slots = newCollection(db, SlotsCollection, "Slots", "slot_id",
		func(v model.Slot) string { return v.SlotID }, func(v *model.Slot, id string) { v.SlotID = id })
	db.schedules = newCollection(db, SchedulesCollection, "Schedules", "schedule_id",
		func(v model.Schedule) string { return v.ScheduleID }, func(v *model.Schedule, id string) { v.ScheduleID = id })
	db.attendance = newCollection(db, AttendanceCollection, "Attendance", "attendance_id",
		func(v model.Attendance) string { return v.AttendanceID }, func(v *model.Attendance, id string) { v.AttendanceID = id })
	db.notices = newCollection(db, NoticesCollection, "Notices", "id",
		func(v model.Notice) string { return v.ID }, func(v *model.Notice, id string) { v.ID = id })
	db.events = newCollection(db, EventsCollection, "Events", "id",
		func(v model.Event) string { return v.ID }, func(v *model.Event, id string) { v.ID = id })
	db.alerts = newCollection(db, AlertsCollection, "Alerts", "id",
		func(v model.Alert) string { return v.ID }, func(v *model.Alert, id string) { v.ID = id })
	db.faculty = newCollection(db, FacultyCollection, "Faculty", "id",
		func(v model.Faculty) string { return v.ID }, func(v *model.Faculty, id string) { v.ID = id })
	db.calendar = newCollection(db, CalendarCollection, "Calendar", "id",
		func(v model.CalendarEntry) string { return v.ID }, func(v *model.CalendarEntry, id string) { v.ID = id })
	db.complaints = newCollection(db, ComplaintsCollection, "Complaints", "id",
		func(v model.Complaint) string { return v.ID }, func(v *model.Complaint, id string) { v.ID = id })
	db.courses = newCollection(db, CoursesCollection, "Courses", "id",
		func(v model.Course) string { return v.ID }, func(v *model.Course, id string) { v.ID = id })
	db.credentials = newCollection(db, CredentialsCollection, "Credentials", "user_id",
		func(v model.Credential) string { return v.UserID }, func(v *model.Credential, id string) { v.UserID = id })
	return db
}

func newCollection[T any](db *DB, name, label, idField string, id func(T) string, setID func(*T, string)) *collection.Collection[T] {
	opts := []collection.Option{collection.WithAuditor(db.audit), collection.WithLogger(db.log)}
	if db.newID != nil {
		opts = append(opts, collection.WithIDFunc(db.newID))
	}
	return collection.New(db.store, collection.Config[T]{
		Name:     name,
		Label:    label,
		IDField:  idField,
		ID:       id,
		SetID:    setID,
		Validate: func(v T) error { return model.Validate(v) },
	}, opts...)
}

// Store returns the underlying store handle.
func (db *DB) Store() *store.Store { return db.store }

// Audit returns the audit logger.
func (db *DB) Audit() *audit.Logger { return db.audit }

// Close closes the underlying store.
func (db *DB) Close() error { return db.store.Close() }

// Users

func (db *DB) GetUsers(ctx context.Context) ([]model.User, error) { return db.users.GetAll(ctx) }
func (db *DB) AddUser(ctx context.Context, u model.User) (model.User, error) {
	return db.users.Add(ctx, u)
}
func (db *DB) UpdateUser(ctx context.Context, id string, p model.UserPatch) (*model.User, error) {
	return db.users.Update(ctx, id, p)
}
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.users.GetByID(ctx, id)
}

// DeleteUser refuses to remove a user still referenced by schedules,
// attendance or complaints. A removed user's credential goes with it; only
// the user removal is audited.
func (db *DB) DeleteUser(ctx context.Context, id string) (bool, error) {
	db.guard.Lock()
	defer db.guard.Unlock()
	if err := db.checkUserDependents(ctx, id); err != nil {
		return false, err
	}
	ok, err := db.users.Delete(ctx, id)
	if err != nil || !ok {
		return ok, err
	}
	if _, err := db.credentials.RawRemove(ctx, id); err != nil {
		return true, err
	}
	return true, nil
}

// Classes

func (db *DB) GetClasses(ctx context.Context) ([]model.Class, error) { return db.classes.GetAll(ctx) }
func (db *DB) AddClass(ctx context.Context, c model.Class) (model.Class, error) {
	return db.classes.Add(ctx, c)
}
func (db *DB) UpdateClass(ctx context.Context, id string, p model.ClassPatch) (*model.Class, error) {
	return db.classes.Update(ctx, id, p)
}
func (db *DB) GetClassByID(ctx context.Context, id string) (*model.Class, error) {
	return db.classes.GetByID(ctx, id)
}

// DeleteClass refuses to remove a class with schedules or attendance.
func (db *DB) DeleteClass(ctx context.Context, id string) (bool, error) {
	db.guard.Lock()
	defer db.guard.Unlock()
	if err := db.checkClassDependents(ctx, id); err != nil {
		return false, err
	}
	return db.classes.Delete(ctx, id)
}

// Slots

func (db *DB) GetSlots(ctx context.Context) ([]model.Slot, error) { return db.slots.GetAll(ctx) }
func (db *DB) AddSlot(ctx context.Context, s model.Slot) (model.Slot, error) {
	return db.slots.Add(ctx, s)
}
func (db *DB) UpdateSlot(ctx context.Context, id string, p model.SlotPatch) (*model.Slot, error) {
	return db.slots.Update(ctx, id, p)
}
func (db *DB) GetSlotByID(ctx context.Context, id string) (*model.Slot, error) {
	return db.slots.GetByID(ctx, id)
}

// DeleteSlot refuses to remove a slot with schedules or attendance.
func (db *DB) DeleteSlot(ctx context.Context, id string) (bool, error) {
	db.guard.Lock()
	defer db.guard.Unlock()
	if err := db.checkSlotDependents(ctx, id); err != nil {
		return false, err
	}
	return db.slots.Delete(ctx, id)
}

// Schedules

func (db *DB) GetSchedules(ctx context.Context) ([]model.Schedule, error) {
	return db.schedules.GetAll(ctx)
}
func (db *DB) GetScheduleByID(ctx context.Context, id string) (*model.Schedule, error) {
	return db.schedules.GetByID(ctx, id)
}
func (db *DB) DeleteSchedule(ctx context.Context, id string) (bool, error) {
	return db.schedules.Delete(ctx, id)
}

// AddSchedule adds s unless its class already has a schedule in its slot.
func (db *DB) AddSchedule(ctx context.Context, s model.Schedule) (model.Schedule, error) {
	db.guard.Lock()
	defer db.guard.Unlock()
	if err := db.checkScheduleFree(ctx, s.ClassID, s.SlotID, ""); err != nil {
		return model.Schedule{}, err
	}
	return db.schedules.Add(ctx, s)
}

// UpdateSchedule applies p unless the resulting (class, slot) pair is taken by
// another schedule.
func (db *DB) UpdateSchedule(ctx context.Context, id string, p model.SchedulePatch) (*model.Schedule, error) {
	db.guard.Lock()
	defer db.guard.Unlock()
	current, err := db.schedules.GetByID(ctx, id)
	if err != nil || current == nil {
		return nil, err
	}
	classID, slotID := current.ClassID, current.SlotID
	if p.ClassID != nil {
		classID = *p.ClassID
	}
	if p.SlotID != nil {
		slotID = *p.SlotID
	}
	if err := db.checkScheduleFree(ctx, classID, slotID, id); err != nil {
		return nil, err
	}
	return db.schedules.Update(ctx, id, p)
}

// Attendance

func (db *DB) GetAttendance(ctx context.Context) ([]model.Attendance, error) {
	return db.attendance.GetAll(ctx)
}
func (db *DB) AddAttendance(ctx context.Context, a model.Attendance) (model.Attendance, error) {
	return db.attendance.Add(ctx, a)
}
func (db *DB) UpdateAttendance(ctx context.Context, id string, p model.AttendancePatch) (*model.Attendance, error) {
	return db.attendance.Update(ctx, id, p)
}
func (db *DB) DeleteAttendance(ctx context.Context, id string) (bool, error) {
	return db.attendance.Delete(ctx, id)
}
func (db *DB) GetAttendanceByID(ctx context.Context, id string) (*model.Attendance, error) {
	return db.attendance.GetByID(ctx, id)
}

// Notices

func (db *DB) GetNotices(ctx context.Context) ([]model.Notice, error) { return db.notices.GetAll(ctx) }
func (db *DB) AddNotice(ctx context.Context, n model.Notice) (model.Notice, error) {
	return db.notices.Add(ctx, n)
}
func (db *DB) UpdateNotice(ctx context.Context, id string, p model.NoticePatch) (*model.Notice, error) {
	return db.notices.Update(ctx, id, p)
}
func (db *DB) DeleteNotice(ctx context.Context, id string) (bool, error) {
	return db.notices.Delete(ctx, id)
}
func (db *DB) GetNoticeByID(ctx context.Context, id string) (*model.Notice, error) {
	return db.notices.GetByID(ctx, id)
}

// Events

func (db *DB) GetEvents(ctx context.Context) ([]model.Event, error) { return db.events.GetAll(ctx) }
func (db *DB) AddEvent(ctx context.Context, e model.Event) (model.Event, error) {
	return db.events.Add(ctx, e)
}
func (db *DB) UpdateEvent(ctx context.Context, id string, p model.AnnouncementPatch) (*model.Event, error) {
	return db.events.Update(ctx, id, p)
}
func (db *DB) DeleteEvent(ctx context.Context, id string) (bool, error) {
	return db.events.Delete(ctx, id)
}
func (db *DB) GetEventByID(ctx context.Context, id string) (*model.Event, error) {
	return db.events.GetByID(ctx, id)
}

// Alerts

func (db *DB) GetAlerts(ctx context.Context) ([]model.Alert, error) { return db.alerts.GetAll(ctx) }
func (db *DB) AddAlert(ctx context.Context, a model.Alert) (model.Alert, error) {
	return db.alerts.Add(ctx, a)
}
func (db *DB) UpdateAlert(ctx context.Context, id string, p model.AnnouncementPatch) (*model.Alert, error) {
	return db.alerts.Update(ctx, id, p)
}
func (db *DB) DeleteAlert(ctx context.Context, id string) (bool, error) {
	return db.alerts.Delete(ctx, id)
}
func (db *DB) GetAlertByID(ctx context.Context, id string) (*model.Alert, error) {
	return db.alerts.GetByID(ctx, id)
}

// Faculty

func (db *DB) GetFaculty(ctx context.Context) ([]model.Faculty, error) { return db.faculty.GetAll(ctx) }
func (db *DB) AddFaculty(ctx context.Context, f model.Faculty) (model.Faculty, error) {
	return db.faculty.Add(ctx, f)
}
func (db *DB) UpdateFaculty(ctx context.Context, id string, p model.FacultyPatch) (*model.Faculty, error) {
	return db.faculty.Update(ctx, id, p)
}
func (db *DB) DeleteFaculty(ctx context.Context, id string) (bool, error) {
	return db.faculty.Delete(ctx, id)
}
func (db *DB) GetFacultyByID(ctx context.Context, id string) (*model.Faculty, error) {
	return db.faculty.GetByID(ctx, id)
}

// Calendar

func (db *DB) GetCalendarEntries(ctx context.Context) ([]model.CalendarEntry, error) {
	return db.calendar.GetAll(ctx)
}
func (db *DB) AddCalendarEntry(ctx context.Context, e model.CalendarEntry) (model.CalendarEntry, error) {
	return db.calendar.Add(ctx, e)
}
func (db *DB) UpdateCalendarEntry(ctx context.Context, id string, p model.CalendarEntryPatch) (*model.CalendarEntry, error) {
	return db.calendar.Update(ctx, id, p)
}
func (db *DB) DeleteCalendarEntry(ctx context.Context, id string) (bool, error) {
	return db.calendar.Delete(ctx, id)
}
func (db *DB) GetCalendarEntryByID(ctx context.Context, id string) (*model.CalendarEntry, error) {
	return db.calendar.GetByID(ctx, id)
}

// Complaints

func (db *DB) GetComplaints(ctx context.Context) ([]model.Complaint, error) {
	return db.complaints.GetAll(ctx)
}

// AddComplaint files c as pending, dated today unless a date is given.
func (db *DB) AddComplaint(ctx context.Context, c model.Complaint) (model.Complaint, error) {
	if c.Status == "" {
		c.Status = model.ComplaintPending
	}
	if c.Date == "" {
		c.Date = db.now().Format(DateLayout)
	}
	return db.complaints.Add(ctx, c)
}
func (db *DB) UpdateComplaint(ctx context.Context, id string, p model.ComplaintPatch) (*model.Complaint, error) {
	return db.complaints.Update(ctx, id, p)
}
func (db *DB) DeleteComplaint(ctx context.Context, id string) (bool, error) {
	return db.complaints.Delete(ctx, id)
}
func (db *DB) GetComplaintByID(ctx context.Context, id string) (*model.Complaint, error) {
	return db.complaints.GetByID(ctx, id)
}

// SetComplaintStatus moves a complaint to status. Nil when the complaint is unknown.
func (db *DB) SetComplaintStatus(ctx context.Context, id string, status model.ComplaintStatus) (*model.Complaint, error) {
	return db.complaints.Update(ctx, id, model.ComplaintPatch{Status: &status})
}

// Courses

func (db *DB) GetCourses(ctx context.Context) ([]model.Course, error) { return db.courses.GetAll(ctx) }
func (db *DB) AddCourse(ctx context.Context, c model.Course) (model.Course, error) {
	return db.courses.Add(ctx, c)
}
func (db *DB) UpdateCourse(ctx context.Context, id string, p model.CoursePatch) (*model.Course, error) {
	return db.courses.Update(ctx, id, p)
}
func (db *DB) DeleteCourse(ctx context.Context, id string) (bool, error) {
	return db.courses.Delete(ctx, id)
}
func (db *DB) GetCourseByID(ctx context.Context, id string) (*model.Course, error) {
	return db.courses.GetByID(ctx, id)
}

// Audit log

// GetAuditLogs returns every audit entry, oldest first.
func (db *DB) GetAuditLogs(ctx context.Context) ([]model.AuditLog, error) {
	return db.audit.List(ctx)
}

// RecordAudit appends an entry for actions outside the collections, such as sign-in.
func (db *DB) RecordAudit(ctx context.Context, action, details string) error {
	return db.audit.Record(ctx, action, details)
}

// FilterAuditLogs narrows the audit log.
func (db *DB) FilterAuditLogs(ctx context.Context, q audit.Query) ([]model.AuditLog, error) {
	return db.audit.Filter(ctx, q)
}

// Credentials

// CredentialFor returns the stored password hash of a user, nil when none is set.
func (db *DB) CredentialFor(ctx context.Context, userID string) (*model.Credential, error) {
	return db.credentials.GetByID(ctx, userID)
}

// SetCredential stores hash as userID's password hash, replacing any previous one.
// The audit entry never carries the hash.
func (db *DB) SetCredential(ctx context.Context, userID, hash string) error {
	db.guard.Lock()
	defer db.guard.Unlock()
	updated, err := db.credentials.Update(ctx, userID, model.Credential{Hash: hash})
	if err != nil || updated != nil {
		return err
	}
	if err := db.credentials.RawAppend(ctx, model.Credential{UserID: userID, Hash: hash}); err != nil {
		return err
	}
	return db.audit.Record(ctx, "Added Credentials", "Added credentials with ID "+userID)
}
