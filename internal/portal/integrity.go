package portal

import (
	"context"
	"fmt"
	"strings"

	"campusportal/internal/model"
)

// refs counts references by collection name, skipping zero counts in String.
type refs []struct {
	what string
	n    int
}

func (r refs) total() int {
	sum := 0
	for _, c := range r {
		sum += c.n
	}
	return sum
}

func (r refs) String() string {
	parts := make([]string, 0, len(r))
	for _, c := range r {
		if c.n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", c.n, c.what))
		}
	}
	return strings.Join(parts, ", ")
}

func dependentsErr(kind, id string, r refs) error {
	if r.total() == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s %s is referenced by %s", ErrHasDependents, kind, id, r)
}

func (db *DB) checkClassDependents(ctx context.Context, id string) error {
	schedules, err := db.schedules.Find(ctx, func(s model.Schedule) bool { return s.ClassID == id })
	if err != nil {
		return err
	}
	marks, err := db.attendance.Find(ctx, func(a model.Attendance) bool { return a.ClassID == id })
	if err != nil {
		return err
	}
	return dependentsErr("class", id, refs{{"schedules", len(schedules)}, {"attendance records", len(marks)}})
}

func (db *DB) checkSlotDependents(ctx context.Context, id string) error {
	schedules, err := db.schedules.Find(ctx, func(s model.Schedule) bool { return s.SlotID == id })
	if err != nil {
		return err
	}
	marks, err := db.attendance.Find(ctx, func(a model.Attendance) bool { return a.SlotID == id })
	if err != nil {
		return err
	}
	return dependentsErr("slot", id, refs{{"schedules", len(schedules)}, {"attendance records", len(marks)}})
}

func (db *DB) checkUserDependents(ctx context.Context, id string) error {
	schedules, err := db.schedules.Find(ctx, func(s model.Schedule) bool { return s.TeacherID == id })
	if err != nil {
		return err
	}
	marks, err := db.attendance.Find(ctx, func(a model.Attendance) bool { return a.StudentID == id })
	if err != nil {
		return err
	}
	complaints, err := db.complaints.Find(ctx, func(c model.Complaint) bool { return c.StudentID == id })
	if err != nil {
		return err
	}
	return dependentsErr("user", id, refs{
		{"schedules", len(schedules)},
		{"attendance records", len(marks)},
		{"complaints", len(complaints)},
	})
}

// checkScheduleFree fails when another schedule than self occupies (classID, slotID).
func (db *DB) checkScheduleFree(ctx context.Context, classID, slotID, self string) error {
	taken, err := db.schedules.Find(ctx, func(s model.Schedule) bool {
		return s.ClassID == classID && s.SlotID == slotID && s.ScheduleID != self
	})
	if err != nil {
		return err
	}
	if len(taken) > 0 {
		return fmt.Errorf("%w: class %s, slot %s (schedule %s)", ErrScheduleConflict, classID, slotID, taken[0].ScheduleID)
	}
	return nil
}
