package segment

import (
	"regexp"
	"strings"

	"github.com/foxzi/outreach/internal/web/models"
)

var (
	kanjiPattern    = regexp.MustCompile(`[\x{4E00}-\x{9FFF}]`)
	katakanaPattern = regexp.MustCompile(`[\x{30A0}-\x{30FF}\x{31F0}-\x{31FF}]`)
	hiraganaPattern = regexp.MustCompile(`[\x{3040}-\x{309F}]`)
	alphaPattern    = regexp.MustCompile(`[A-Za-z]`)
)

// DetectNameTypes reports which scripts appear in name
func DetectNameTypes(name string) models.NameTypes {
	return models.NameTypes{
		Kanji:    kanjiPattern.MatchString(name),
		Katakana: katakanaPattern.MatchString(name),
		Hiragana: hiraganaPattern.MatchString(name),
		Alpha:    alphaPattern.MatchString(name),
	}
}

// Applicant is what a segment is matched against
type Applicant struct {
	Name   string
	Gender string // 男性/女性/male/female, anything else is unknown
	Age    int    // 0 when unknown
}

// NormalizeGender maps the scraped gender text to "male", "female" or ""
func NormalizeGender(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "male" || s == "m" || strings.HasPrefix(s, "男"):
		return "male"
	case s == "female" || s == "f" || strings.HasPrefix(s, "女"):
		return "female"
	}
	return ""
}

// Matches reports whether an enabled segment's conditions accept a
func Matches(seg models.Segment, a Applicant) bool {
	if !seg.Enabled {
		return false
	}

	got := DetectNameTypes(a.Name)
	want := seg.Conditions.NameTypes
	if !(got.Kanji && want.Kanji || got.Katakana && want.Katakana ||
		got.Hiragana && want.Hiragana || got.Alpha && want.Alpha) {
		return false
	}

	genders := seg.Conditions.Genders
	ages := seg.Conditions.AgeRanges
	switch NormalizeGender(a.Gender) {
	case "male":
		return genders.Male && inRange(a.Age, ages.MaleMin, ages.MaleMax)
	case "female":
		return genders.Female && inRange(a.Age, ages.FemaleMin, ages.FemaleMax)
	default:
		return genders.Male && genders.Female
	}
}

func inRange(age, min, max int) bool {
	if age <= 0 {
		return true
	}
	return age >= min && age <= max
}

// Select returns the first matching segment in priority order
func Select(segs []models.Segment, a Applicant) (models.Segment, bool) {
	ordered := make([]models.Segment, len(segs))
	copy(ordered, segs)
	Sort(ordered)

	for _, s := range ordered {
		if Matches(s, a) {
			return s, true
		}
	}
	return models.Segment{}, false
}
