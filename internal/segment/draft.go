// Package segment implements the segment editor: drafts, validation,
// persistence, toggling, reordering and deletion of targeting rules.
package segment

import (
	"strconv"

	"github.com/foxzi/outreach/internal/web/models"
)

// Editor defaults
const (
	DefaultMinAge        = models.DefaultMinAge
	DefaultMaxAge        = models.DefaultMaxAge
	DefaultDelayMinutes  = 60
	DefaultScheduledTime = "09:00"
	MinDelayMinutes      = 1
	MaxDelayMinutes      = 1440
)

// Draft is the editable form of a segment. Numeric channel fields are
// kept as entered so they can be validated.
type Draft struct {
	ID         string // empty for a new segment
	Title      string
	Enabled    bool
	Conditions models.Conditions
	SMS        ChannelDraft
	Mail       ChannelDraft
}

// ChannelDraft holds one channel's settings. Subject is used by mail only;
// Body is the SMS text or the mail body.
type ChannelDraft struct {
	Enabled       bool
	Subject       string
	Body          string
	SendMode      string
	ScheduledTime string
	DelayMinutes  string
}

// DefaultDraft is the empty editor
func DefaultDraft() Draft {
	return Draft{
		Enabled: true,
		Conditions: models.Conditions{
			NameTypes: models.NameTypes{Kanji: true, Katakana: true, Hiragana: true, Alpha: true},
			Genders:   models.Genders{Male: true, Female: true},
			AgeRanges: models.AgeRanges{
				MaleMin:   DefaultMinAge,
				MaleMax:   DefaultMaxAge,
				FemaleMin: DefaultMinAge,
				FemaleMax: DefaultMaxAge,
			},
		},
		SMS:  defaultChannel(true),
		Mail: defaultChannel(false),
	}
}

func defaultChannel(enabled bool) ChannelDraft {
	return ChannelDraft{
		Enabled:       enabled,
		SendMode:      models.SendModeImmediate,
		ScheduledTime: DefaultScheduledTime,
		DelayMinutes:  strconv.Itoa(DefaultDelayMinutes),
	}
}

// FromSegment loads a stored segment into a draft bound to its id
func FromSegment(seg models.Segment) Draft {
	d := Draft{
		ID:         seg.ID,
		Title:      seg.Title,
		Enabled:    seg.Enabled,
		Conditions: seg.Conditions,
		SMS: ChannelDraft{
			Enabled:       seg.Actions.SMS.Enabled,
			Body:          seg.Actions.SMS.Text,
			SendMode:      seg.Actions.SMS.SendMode,
			ScheduledTime: seg.Actions.SMS.ScheduledTime,
			DelayMinutes:  delayString(seg.Actions.SMS.DelayMinutes),
		},
		Mail: ChannelDraft{
			Enabled:       seg.Actions.Mail.Enabled,
			Subject:       seg.Actions.Mail.Subject,
			Body:          seg.Actions.Mail.Body,
			SendMode:      seg.Actions.Mail.SendMode,
			ScheduledTime: seg.Actions.Mail.ScheduledTime,
			DelayMinutes:  delayString(seg.Actions.Mail.DelayMinutes),
		},
	}
	for _, ch := range []*ChannelDraft{&d.SMS, &d.Mail} {
		if ch.SendMode == "" {
			ch.SendMode = models.SendModeImmediate
		}
		if ch.ScheduledTime == "" {
			ch.ScheduledTime = DefaultScheduledTime
		}
	}
	return d
}

func delayString(n int) string {
	if n <= 0 {
		return strconv.Itoa(DefaultDelayMinutes)
	}
	return strconv.Itoa(n)
}

// IsNew reports whether saving the draft creates a segment
func (d Draft) IsNew() bool {
	return d.ID == ""
}
