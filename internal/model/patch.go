package model

// Patch types carry the fields a caller wants to overwrite. A nil field is left
// untouched by an update.

type UserPatch struct {
	RollNo *string   `json:"roll_no,omitempty"`
	Name   *string   `json:"name,omitempty"`
	Email  *string   `json:"email,omitempty"`
	Phone  *string   `json:"phone,omitempty"`
	Type   *UserType `json:"type,omitempty"`
	Branch *Branch   `json:"branch,omitempty"`
	Year   *int      `json:"year,omitempty"`
	Photo  *string   `json:"photo,omitempty"`
}

type ClassPatch struct {
	Name     *string `json:"name,omitempty"`
	Semester *string `json:"semester,omitempty"`
}

type SlotPatch struct {
	Name *string `json:"name,omitempty"`
	Time *string `json:"time,omitempty"`
}

type SchedulePatch struct {
	ClassID   *string `json:"class_id,omitempty"`
	SlotID    *string `json:"slot_id,omitempty"`
	TeacherID *string `json:"teacher_id,omitempty"`
	Subject   *string `json:"subject,omitempty"`
}

type AttendancePatch struct {
	StudentID *string           `json:"student_id,omitempty"`
	ClassID   *string           `json:"class_id,omitempty"`
	SlotID    *string           `json:"slot_id,omitempty"`
	Date      *string           `json:"date,omitempty"`
	Status    *AttendanceStatus `json:"status,omitempty"`
}

type NoticePatch struct {
	Text     *string `json:"text,omitempty"`
	Title    *string `json:"title,omitempty"`
	Content  *string `json:"content,omitempty"`
	Category *string `json:"category,omitempty"`
	Image    *string `json:"image,omitempty"`
	Date     *string `json:"date,omitempty"`
}

// AnnouncementPatch updates an Event or an Alert; both share one shape.
type AnnouncementPatch struct {
	Text  *string `json:"text,omitempty"`
	Image *string `json:"image,omitempty"`
	Date  *string `json:"date,omitempty"`
}

type FacultyPatch struct {
	Name        *string `json:"name,omitempty"`
	Designation *string `json:"designation,omitempty"`
	Bio         *string `json:"bio,omitempty"`
	Photo       *string `json:"photo,omitempty"`
}

type CalendarEntryPatch struct {
	Entry *string `json:"entry,omitempty"`
	Date  *string `json:"date,omitempty"`
}

type ComplaintPatch struct {
	StudentID *string          `json:"student_id,omitempty"`
	Subject   *string          `json:"subject,omitempty"`
	Message   *string          `json:"message,omitempty"`
	Date      *string          `json:"date,omitempty"`
	Status    *ComplaintStatus `json:"status,omitempty"`
}

type CoursePatch struct {
	Name        *string `json:"name,omitempty"`
	Code        *string `json:"code,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Ptr returns a pointer to v. It keeps patch literals short.
func Ptr[T any](v T) *T { return &v }
