package processor

import (
	"regexp"
	"strings"
)

// ProfileFields is what opportunistic extraction pulled out of one message.
type ProfileFields struct {
	Name     string
	Phone    string
	Email    string
	Location string
}

func (f ProfileFields) Empty() bool {
	return f.Name == "" && f.Phone == "" && f.Email == "" && f.Location == ""
}

// Name and location continuations require capitalized words so that a
// trailing clause ("Jane Doe and I ...") never bleeds into the capture.
var (
	namePattern     = regexp.MustCompile(`\b[Mm]y name is ([A-Z][A-Za-z'\-]*(?: [A-Z][A-Za-z'\-]*){0,3})`)
	altNamePattern  = regexp.MustCompile(`\bI am ([A-Z][A-Za-z'\-]*(?: [A-Z][A-Za-z'\-]*){0,3})`)
	phonePattern    = regexp.MustCompile(`\+?\d[\d\-\s().]{6,}\d`)
	emailPattern    = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	locationPattern = regexp.MustCompile(`\bI (?:live|am based) in ([A-Z][A-Za-z'\-]*(?: [A-Z][A-Za-z'\-]*){0,3})`)
)

// ExtractProfileFields scans message text for self-reported contact details.
// Matching is deliberately conservative; a miss is always safe because the
// participant record is only ever enriched, never overwritten with blanks.
func ExtractProfileFields(text string) ProfileFields {
	var fields ProfileFields
	if text == "" {
		return fields
	}

	if m := namePattern.FindStringSubmatch(text); m != nil {
		fields.Name = strings.TrimSpace(m[1])
	} else if m := altNamePattern.FindStringSubmatch(text); m != nil {
		fields.Name = strings.TrimSpace(m[1])
	}

	if m := phonePattern.FindString(text); m != "" {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, m)
		if len(digits) >= 7 && len(digits) <= 15 {
			fields.Phone = strings.TrimSpace(m)
		}
	}

	if m := emailPattern.FindString(text); m != "" {
		fields.Email = m
	}

	if m := locationPattern.FindStringSubmatch(text); m != nil {
		fields.Location = strings.TrimSpace(m[1])
	}

	return fields
}
