// Package model defines the records persisted by the portal. Field names in the
// json tags are the stored names and must not change without a data reset.
package model

// UserType is the role a user signs in with.
type UserType string

const (
	UserStudent UserType = "student"
	UserTeacher UserType = "teacher"
	UserAdmin   UserType = "admin"
)

// Branch is a student's department.
type Branch string

const (
	BranchCSE   Branch = "CSE"
	BranchECE   Branch = "ECE"
	BranchEEE   Branch = "EEE"
	BranchMECH  Branch = "MECH"
	BranchCIVIL Branch = "CIVIL"
)

// AttendanceStatus is the outcome of a roll call for one student.
type AttendanceStatus string

const (
	Present AttendanceStatus = "present"
	Absent  AttendanceStatus = "absent"
)

// ComplaintStatus tracks how the administration handled a complaint.
type ComplaintStatus string

const (
	ComplaintPending  ComplaintStatus = "pending"
	ComplaintResolved ComplaintStatus = "resolved"
	ComplaintRejected ComplaintStatus = "rejected"
)

// User is a student, teacher or administrator. RollNo is the sign-in key.
type User struct {
	ID     string   `json:"id"`
	RollNo string   `json:"roll_no" validate:"required"`
	Name   string   `json:"name" validate:"required"`
	Email  string   `json:"email" validate:"omitempty,email"`
	Phone  string   `json:"phone"`
	Type   UserType `json:"type" validate:"required,oneof=student teacher admin"`
	Branch Branch   `json:"branch,omitempty" validate:"omitempty,oneof=CSE ECE EEE MECH CIVIL"`
	Year   int      `json:"year,omitempty" validate:"omitempty,min=1,max=4"`
	Photo  string   `json:"photo,omitempty"`
}

// Class is a section of students for one semester, e.g. CSE-A in 1-1.
type Class struct {
	ClassID  string `json:"class_id"`
	Name     string `json:"name" validate:"required"`
	Semester string `json:"semester"`
}

// Slot is a teaching period.
type Slot struct {
	SlotID string `json:"slot_id"`
	Name   string `json:"name" validate:"required"`
	Time   string `json:"time"`
}

// Schedule assigns a teacher and subject to a class in a slot.
type Schedule struct {
	ScheduleID string `json:"schedule_id"`
	ClassID    string `json:"class_id" validate:"required"`
	SlotID     string `json:"slot_id" validate:"required"`
	TeacherID  string `json:"teacher_id" validate:"required"`
	Subject    string `json:"subject" validate:"required"`
}

// Attendance is one student's presence for a class, slot and date.
type Attendance struct {
	AttendanceID string           `json:"attendance_id"`
	StudentID    string           `json:"student_id" validate:"required"`
	ClassID      string           `json:"class_id" validate:"required"`
	SlotID       string           `json:"slot_id" validate:"required"`
	Date         string           `json:"date" validate:"required"`
	Status       AttendanceStatus `json:"status" validate:"required,oneof=present absent"`
}

// Notice is a bulletin board item. Title, content and category are only set
// by newer admin screens; older records carry text alone.
type Notice struct {
	ID       string `json:"id"`
	Text     string `json:"text,omitempty"`
	Title    string `json:"title,omitempty"`
	Content  string `json:"content,omitempty"`
	Category string `json:"category,omitempty"`
	Image    string `json:"image,omitempty"`
	Date     string `json:"date"`
}

// Event is an upcoming campus event.
type Event struct {
	ID    string `json:"id"`
	Text  string `json:"text" validate:"required"`
	Image string `json:"image,omitempty"`
	Date  string `json:"date"`
}

// Alert is an urgent announcement shown in the ticker.
type Alert struct {
	ID    string `json:"id"`
	Text  string `json:"text" validate:"required"`
	Image string `json:"image,omitempty"`
	Date  string `json:"date"`
}

// Faculty is a public profile. Teachers conventionally share their user id.
type Faculty struct {
	ID          string `json:"id"`
	Name        string `json:"name" validate:"required"`
	Designation string `json:"designation"`
	Bio         string `json:"bio"`
	Photo       string `json:"photo,omitempty"`
}

// CalendarEntry is an academic calendar line.
type CalendarEntry struct {
	ID    string `json:"id"`
	Entry string `json:"entry" validate:"required"`
	Date  string `json:"date" validate:"required"`
}

// Complaint is raised by a student and resolved by an administrator.
type Complaint struct {
	ID        string          `json:"id"`
	StudentID string          `json:"student_id" validate:"required"`
	Subject   string          `json:"subject" validate:"required"`
	Message   string          `json:"message"`
	Date      string          `json:"date"`
	Status    ComplaintStatus `json:"status,omitempty" validate:"omitempty,oneof=pending resolved rejected"`
}

// Course is a catalogue entry.
type Course struct {
	ID          string `json:"id"`
	Name        string `json:"name" validate:"required"`
	Code        string `json:"code" validate:"required"`
	Description string `json:"description"`
}

// AuditLog records one state change. Timestamp is ISO-8601 in UTC.
type AuditLog struct {
	ID        string `json:"id"`
	Action    string `json:"action"`
	Details   string `json:"details"`
	Timestamp string `json:"timestamp"`
}

// Credential holds a bcrypt hash for a user. It is kept in its own collection
// so user listings never carry secrets.
type Credential struct {
	UserID string `json:"user_id"`
	Hash   string `json:"hash"`
}
