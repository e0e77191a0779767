package models

// Send modes for a segment channel
const (
	SendModeImmediate = "immediate"
	SendModeScheduled = "scheduled"
	SendModeDelayed   = "delayed"
)

// Age bounds used when a segment does not store its own
const (
	DefaultMinAge = 18
	DefaultMaxAge = 99
)

// Segment is a targeting rule with per-channel message templates.
// Stored at accounts/{uid}/target_segments/{id}.
type Segment struct {
	ID         string     `json:"-"`
	Title      string     `json:"title"`
	Enabled    bool       `json:"enabled"`
	Priority   int        `json:"priority"`
	Conditions Conditions `json:"conditions"`
	Actions    Actions    `json:"actions"`
	CreatedAt  int64      `json:"createdAt,omitempty"` // epoch ms
	UpdatedAt  int64      `json:"updatedAt,omitempty"` // epoch ms
}

type Conditions struct {
	NameTypes NameTypes `json:"nameTypes"`
	Genders   Genders   `json:"genders"`
	AgeRanges AgeRanges `json:"ageRanges"`
}

type NameTypes struct {
	Kanji    bool `json:"kanji"`
	Katakana bool `json:"katakana"`
	Hiragana bool `json:"hiragana"`
	Alpha    bool `json:"alpha"`
}

type Genders struct {
	Male   bool `json:"male"`
	Female bool `json:"female"`
}

type AgeRanges struct {
	MaleMin   int `json:"maleMin"`
	MaleMax   int `json:"maleMax"`
	FemaleMin int `json:"femaleMin"`
	FemaleMax int `json:"femaleMax"`
}

type Actions struct {
	SMS  SMSAction  `json:"sms"`
	Mail MailAction `json:"mail"`
}

type SMSAction struct {
	Enabled       bool   `json:"enabled"`
	Text          string `json:"text"`
	SendMode      string `json:"sendMode"`
	ScheduledTime string `json:"scheduledTime,omitempty"` // HH:mm
	DelayMinutes  int    `json:"delayMinutes,omitempty"`
}

type MailAction struct {
	Enabled       bool   `json:"enabled"`
	Subject       string `json:"subject"`
	Body          string `json:"body"`
	SendMode      string `json:"sendMode"`
	ScheduledTime string `json:"scheduledTime,omitempty"`
	DelayMinutes  int    `json:"delayMinutes,omitempty"`
}
