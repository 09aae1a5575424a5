package importer

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"taskrank/internal/domain"
	"taskrank/internal/priority"
)

const (
	DefaultName     = "Untitled Task"
	defaultDueAfter = 24 * time.Hour
)

// Vocabulary maps card labels to effort values. Matching is case-insensitive.
type Vocabulary struct {
	// Prefix marks a label as an effort label, e.g. "EFFORT: HARD".
	Prefix string   `yaml:"prefix"`
	Short  []string `yaml:"short"`
	Medium []string `yaml:"medium"`
	Long   []string `yaml:"long"`
	// ChecklistLongAbove forces LONG when a card has more checklists; 0 disables it.
	ChecklistLongAbove int `yaml:"checklist_long_above"`
}

func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Prefix:             "EFFORT:",
		Short:              []string{"EASY", "SHORT"},
		Medium:             []string{"MEDIUM"},
		Long:               []string{"HARD", "LONG"},
		ChecklistLongAbove: 2,
	}
}

// InferEffort picks the first effort label, then lets checklist count override it.
// Words are matched as whole tokens of the text after the prefix.
func (v Vocabulary) InferEffort(card domain.ExternalCard) domain.Effort {
	effort := domain.EffortMedium
	for _, label := range card.Labels {
		name := strings.ToUpper(strings.TrimSpace(label))
		value, ok := v.effortValue(name)
		if !ok {
			continue
		}
		switch {
		case hasWord(value, v.Short):
			effort = domain.EffortShort
		case hasWord(value, v.Long):
			effort = domain.EffortLong
		}
		break
	}
	if v.ChecklistLongAbove > 0 && card.ChecklistCount > v.ChecklistLongAbove {
		effort = domain.EffortLong
	}
	return effort
}

// effortValue reports whether name is an effort label and returns the part
// holding the effort word: the text after the prefix, or the whole label.
func (v Vocabulary) effortValue(name string) (string, bool) {
	if p := strings.ToUpper(v.Prefix); p != "" {
		if i := strings.Index(name, p); i >= 0 {
			return name[i+len(p):], true
		}
	}
	for _, words := range [][]string{v.Short, v.Medium, v.Long} {
		for _, w := range words {
			if name == strings.ToUpper(w) {
				return name, true
			}
		}
	}
	return "", false
}

func tokens(s string) string {
	f := strings.FieldsFunc(strings.ToUpper(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return " " + strings.Join(f, " ") + " "
}

func hasWord(value string, words []string) bool {
	padded := tokens(value)
	for _, w := range words {
		if t := tokens(w); t != "  " && strings.Contains(padded, t) {
			return true
		}
	}
	return false
}

var dueLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04Z07:00",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDue accepts ISO 8601 timestamps with a T or space separator, optional
// seconds and fraction, extended or basic offsets, and plain dates.
// Zone-less values are read as UTC.
func ParseDue(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dueLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable due date %q", s)
}

type normalizer struct {
	ownerID string
	source  string
	now     time.Time
	vocab   Vocabulary
	scorer  priority.Scorer
}

func (n normalizer) normalize(card domain.ExternalCard) (domain.Task, error) {
	due := n.now.Add(defaultDueAfter)
	if card.Due != nil && strings.TrimSpace(*card.Due) != "" {
		parsed, err := ParseDue(*card.Due)
		if err != nil {
			return domain.Task{}, err
		}
		due = parsed
	}
	effort := n.vocab.InferEffort(card)
	status := domain.StatusPending
	if card.Completed {
		status = domain.StatusCompleted
	}
	rank := n.scorer.Score(priority.Input{DueDate: due, Effort: effort, Status: status}, n.now)

	name := card.Title
	if strings.TrimSpace(name) == "" {
		name = DefaultName
	}
	return domain.Task{
		Name:          name,
		Description:   card.Description,
		DueDate:       due.UTC(),
		Effort:        effort,
		Priority:      rank.Priority,
		PriorityScore: rank.Score,
		Status:        status,
		OwnerID:       n.ownerID,
		Source:        n.source,
		ExternalID:    card.ID,
	}, nil
}
