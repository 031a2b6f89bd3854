package portal

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"campusportal/internal/model"
)

// RollEntry is one student's mark in a roll call.
type RollEntry struct {
	StudentID string `json:"student_id" validate:"required"`
	Present   bool   `json:"present"`
}

// Roll is a teacher's roll call for a class in a slot on a date. Each student
// appears at most once.
type Roll struct {
	ClassID  string      `json:"class_id" validate:"required"`
	SlotID   string      `json:"slot_id" validate:"required"`
	Date     string      `json:"date" validate:"required,datetime=2006-01-02"`
	Students []RollEntry `json:"students" validate:"required,min=1,unique=StudentID,dive"`
}

// RollSummary reports what MarkAttendance did.
type RollSummary struct {
	Present int                `json:"present"`
	Absent  int                `json:"absent"`
	Created int                `json:"created"`
	Updated int                `json:"updated"`
	Records []model.Attendance `json:"records"`
}

// MarkAttendance stores one record per student for the roll's class, slot and
// date. Marking the same roll again updates the existing records in place.
func (db *DB) MarkAttendance(ctx context.Context, roll Roll) (RollSummary, error) {
	if err := model.Validate(roll); err != nil {
		return RollSummary{}, err
	}
	db.guard.Lock()
	defer db.guard.Unlock()

	existing, err := db.attendance.Find(ctx, func(a model.Attendance) bool {
		return a.ClassID == roll.ClassID && a.SlotID == roll.SlotID && a.Date == roll.Date
	})
	if err != nil {
		return RollSummary{}, err
	}
	byStudent := make(map[string]model.Attendance, len(existing))
	for _, a := range existing {
		byStudent[a.StudentID] = a
	}

	sum := RollSummary{Records: make([]model.Attendance, 0, len(roll.Students))}
	for _, entry := range roll.Students {
		status := model.Absent
		if entry.Present {
			status = model.Present
			sum.Present++
		} else {
			sum.Absent++
		}

		if prev, ok := byStudent[entry.StudentID]; ok {
			rec := prev
			if prev.Status != status {
				updated, err := db.attendance.Update(ctx, prev.AttendanceID, model.AttendancePatch{Status: &status})
				if err != nil {
					return sum, fmt.Errorf("update attendance for %s: %w", entry.StudentID, err)
				}
				if updated != nil {
					rec = *updated
				}
			}
			sum.Updated++
			sum.Records = append(sum.Records, rec)
			continue
		}

		rec, err := db.attendance.Add(ctx, model.Attendance{
			StudentID: entry.StudentID,
			ClassID:   roll.ClassID,
			SlotID:    roll.SlotID,
			Date:      roll.Date,
			Status:    status,
		})
		if err != nil {
			return sum, fmt.Errorf("add attendance for %s: %w", entry.StudentID, err)
		}
		byStudent[entry.StudentID] = rec
		sum.Created++
		sum.Records = append(sum.Records, rec)
	}

	db.log.Info("attendance marked",
		zap.String("class_id", roll.ClassID),
		zap.String("slot_id", roll.SlotID),
		zap.String("date", roll.Date),
		zap.Int("present", sum.Present),
		zap.Int("absent", sum.Absent))
	return sum, nil
}

// AttendanceQuery selects attendance records. Empty fields match everything.
type AttendanceQuery struct {
	StudentID string
	ClassID   string
	SlotID    string
	Date      string
}

// AttendanceFor returns the records matching q in stored order.
func (db *DB) AttendanceFor(ctx context.Context, q AttendanceQuery) ([]model.Attendance, error) {
	return db.attendance.Find(ctx, func(a model.Attendance) bool {
		return (q.StudentID == "" || a.StudentID == q.StudentID) &&
			(q.ClassID == "" || a.ClassID == q.ClassID) &&
			(q.SlotID == "" || a.SlotID == q.SlotID) &&
			(q.Date == "" || a.Date == q.Date)
	})
}

// AttendanceStats summarises a student's attendance.
type AttendanceStats struct {
	Total      int     `json:"total"`
	Present    int     `json:"present"`
	Absent     int     `json:"absent"`
	Percentage float64 `json:"percentage"`
}

// StudentAttendanceStats counts a student's marks. Percentage is 0 without records.
func (db *DB) StudentAttendanceStats(ctx context.Context, studentID string) (AttendanceStats, error) {
	marks, err := db.AttendanceFor(ctx, AttendanceQuery{StudentID: studentID})
	if err != nil {
		return AttendanceStats{}, err
	}
	var st AttendanceStats
	for _, m := range marks {
		st.Total++
		if m.Status == model.Present {
			st.Present++
		} else {
			st.Absent++
		}
	}
	if st.Total > 0 {
		st.Percentage = float64(st.Present) * 100 / float64(st.Total)
	}
	return st, nil
}

// UsersByType lists the users with role t.
func (db *DB) UsersByType(ctx context.Context, t model.UserType) ([]model.User, error) {
	return db.users.Find(ctx, func(u model.User) bool { return u.Type == t })
}

// UserByRollNo finds the user signing in with rollNo.
func (db *DB) UserByRollNo(ctx context.Context, rollNo string) (*model.User, error) {
	found, err := db.users.Find(ctx, func(u model.User) bool { return u.RollNo == rollNo })
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return &found[0], nil
}
