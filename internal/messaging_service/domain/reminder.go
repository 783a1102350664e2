package domain

// ReminderJob names a scheduled reminder kind. The value doubles as the
// template-key prefix and the delivery-log cooldown discriminator.
type ReminderJob string

const (
	ReminderJobWater    ReminderJob = "water"
	ReminderJobWeighing ReminderJob = "weighing"
	ReminderJobGreeting ReminderJob = "greeting"
	ReminderJobCheckin  ReminderJob = "checkin"
	ReminderJobSummary  ReminderJob = "summary"
)

// ReminderCandidate is one user due for a reminder, pre-joined with the data
// the job's template needs so the scheduler avoids per-user follow-up queries.
type ReminderCandidate struct {
	User              User
	CurrentWaterML    int
	LastWeightKg      float64 // 0 when never weighed
	DaysSinceWeighing int     // -1 when never weighed
	CaloriesToday     int
}
