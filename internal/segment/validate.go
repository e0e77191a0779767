package segment

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/foxzi/outreach/internal/web/models"
)

var (
	ErrTitleRequired = errors.New("title is required")
	// ErrNoChannel rejects a segment that would send nothing
	ErrNoChannel     = errors.New("insufficient conditions: enable SMS or mail")
	ErrDelayMinutes  = errors.New("delay minutes out of range")
	ErrScheduledTime = errors.New("invalid scheduled time")
	ErrSendMode      = errors.New("invalid send mode")
	ErrAgeRange      = errors.New("minimum age exceeds maximum age")
)

// ValidationError is a rejected draft field with a user-facing message
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field string, err error, message string) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

// Validate checks a draft and converts it into a segment. Checks run in a
// fixed order and the first failure is returned.
func Validate(d Draft) (models.Segment, error) {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return models.Segment{}, invalid("title", ErrTitleRequired, "タイトルを入力してください")
	}

	if !d.SMS.Enabled && !d.Mail.Enabled {
		return models.Segment{}, invalid("actions", ErrNoChannel,
			"条件が不足しています。SMSまたはメールのいずれかを有効にしてください")
	}

	channels := []struct {
		name string
		ch   ChannelDraft
	}{
		{"sms", d.SMS},
		{"mail", d.Mail},
	}

	for _, c := range channels {
		if !c.ch.Enabled || mode(c.ch) != models.SendModeDelayed {
			continue
		}
		if _, err := parseDelay(c.ch.DelayMinutes); err != nil {
			return models.Segment{}, invalid(c.name+".delayMinutes", ErrDelayMinutes,
				"遅延時間は1〜1440分の整数で入力してください")
		}
	}

	for _, c := range channels {
		if !c.ch.Enabled {
			continue
		}
		switch mode(c.ch) {
		case models.SendModeImmediate, models.SendModeDelayed:
		case models.SendModeScheduled:
			if _, err := time.Parse("15:04", c.ch.ScheduledTime); err != nil {
				return models.Segment{}, invalid(c.name+".scheduledTime", ErrScheduledTime,
					"送信時刻はHH:mm形式で入力してください")
			}
		default:
			return models.Segment{}, invalid(c.name+".sendMode", ErrSendMode, "送信タイミングが不正です")
		}
	}

	ages := d.Conditions.AgeRanges
	if d.Conditions.Genders.Male && ages.MaleMin > ages.MaleMax {
		return models.Segment{}, invalid("ageRanges.male", ErrAgeRange, "男性の年齢範囲が不正です")
	}
	if d.Conditions.Genders.Female && ages.FemaleMin > ages.FemaleMax {
		return models.Segment{}, invalid("ageRanges.female", ErrAgeRange, "女性の年齢範囲が不正です")
	}

	seg := models.Segment{
		ID:         d.ID,
		Title:      title,
		Enabled:    d.Enabled,
		Conditions: d.Conditions,
		Actions: models.Actions{
			SMS: models.SMSAction{
				Enabled:       d.SMS.Enabled,
				Text:          d.SMS.Body,
				SendMode:      mode(d.SMS),
				ScheduledTime: d.SMS.ScheduledTime,
				DelayMinutes:  lenientDelay(d.SMS.DelayMinutes),
			},
			Mail: models.MailAction{
				Enabled:       d.Mail.Enabled,
				Subject:       d.Mail.Subject,
				Body:          d.Mail.Body,
				SendMode:      mode(d.Mail),
				ScheduledTime: d.Mail.ScheduledTime,
				DelayMinutes:  lenientDelay(d.Mail.DelayMinutes),
			},
		},
	}
	return seg, nil
}

func mode(ch ChannelDraft) string {
	if ch.SendMode == "" {
		return models.SendModeImmediate
	}
	return ch.SendMode
}

// parseDelay accepts only a whole number of minutes within range
func parseDelay(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n < MinDelayMinutes || n > MaxDelayMinutes {
		return 0, ErrDelayMinutes
	}
	return n, nil
}

// lenientDelay keeps a usable value for channels whose delay is not in use
func lenientDelay(s string) int {
	n, err := parseDelay(s)
	if err != nil {
		return DefaultDelayMinutes
	}
	return n
}
