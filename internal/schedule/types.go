package schedule

import "time"

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyCustom  Frequency = "custom"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Config is the durable recurrence contract for one schedule. Run bookkeeping
// fields are only mutated by the executor after a run; everything else belongs
// to the owning user.
type Config struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`

	Frequency  Frequency `json:"frequency"`
	Time       string    `json:"time"` // local hh:mm
	Timezone   string    `json:"timezone,omitempty"`
	DaysOfWeek []int     `json:"days_of_week,omitempty"` // 0=Sunday..6=Saturday, weekly only
	DayOfMonth int       `json:"day_of_month,omitempty"` // 1..31, monthly only
	CronExpr   string    `json:"cron_expr,omitempty"`    // 5-field cron, custom only

	IsActive bool           `json:"is_active"`
	Summary  SummaryOptions `json:"summary_options"`
	Delivery DeliveryConfig `json:"delivery"`

	RunCount   int       `json:"run_count"`
	ErrorCount int       `json:"error_count"`
	LastRun    time.Time `json:"last_run,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	NextRun    time.Time `json:"next_run,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type SummaryOptions struct {
	Style              string   `json:"style,omitempty"`  // concise|detailed|bullets
	Length             string   `json:"length,omitempty"` // short|medium|long
	Focus              []string `json:"focus,omitempty"`
	ContentDays        int      `json:"content_days,omitempty"`
	IncludeActionItems bool     `json:"include_action_items,omitempty"`
	IncludePriority    bool     `json:"include_priority,omitempty"`
}

type DeliveryConfig struct {
	Email    EmailDelivery    `json:"email"`
	Telegram TelegramDelivery `json:"telegram"`
}

type EmailDelivery struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address,omitempty"`
}

type TelegramDelivery struct {
	Enabled bool   `json:"enabled"`
	ChatID  string `json:"chat_id,omitempty"`
}

// EnabledChannels reports the channels this schedule delivers to, in a stable
// order.
func (d DeliveryConfig) EnabledChannels() []string {
	out := make([]string, 0, 2)
	if d.Email.Enabled {
		out = append(out, "email")
	}
	if d.Telegram.Enabled {
		out = append(out, "telegram")
	}
	return out
}

// Execution is an immutable audit record of one run attempt.
type Execution struct {
	ID         string    `json:"id"`
	ScheduleID string    `json:"schedule_id"`
	UserID     string    `json:"user_id"`
	ExecutedAt time.Time `json:"executed_at"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`

	Deliveries []DeliveryOutcome `json:"deliveries,omitempty"`

	WordCount   int `json:"word_count,omitempty"`
	ActionItems int `json:"action_items,omitempty"`
}

type DeliveryOutcome struct {
	Channel string `json:"channel"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}
