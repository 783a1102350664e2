package domain

import (
	"time"

	msgdomain "github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/domain"
)

// JobSchedule says when a reminder job fires: any of Hours (local wall-clock
// hours in the scheduler's location), optionally restricted to one weekday.
type JobSchedule struct {
	Job      msgdomain.ReminderJob
	Hours    []int
	Weekday  *time.Weekday // nil means every day
	Cooldown time.Duration // minimum gap between sends of this job's template to one user
}

// DueAt reports whether the schedule matches the given local time's day+hour slot.
func (s JobSchedule) DueAt(local time.Time) bool {
	if s.Weekday != nil && local.Weekday() != *s.Weekday {
		return false
	}
	for _, h := range s.Hours {
		if local.Hour() == h {
			return true
		}
	}
	return false
}

// Schedule is the full reminder timetable for one deployment.
type Schedule struct {
	Location *time.Location
	Jobs     []JobSchedule
	Throttle time.Duration // delay between consecutive sends within a batch
}
