// Package schedule evaluates the time-of-day rule table against the door
// actuator once per wall-clock minute.
package schedule

import (
	"encoding/json"
	"fmt"
	"time"

	"vestiar/audit"
)

// Action is what a rule does to the door when it fires.
type Action int

const (
	ActionLock Action = iota
	ActionUnlock
)

func (a Action) String() string {
	if a == ActionUnlock {
		return "UNLOCK"
	}
	return "LOCK"
}

// Rule fires its action at a given minute of the day on the given days.
// Days is a bitmask with Monday in bit 0 through Sunday in bit 6; a rule
// with no days set is permanently dormant.
type Rule struct {
	Days   uint8
	Minute int // 0..1439
	Action Action
	Note   string
}

// MaxRules bounds the rule table.
const MaxRules = 32

// Weekdays is the Monday-Friday day mask applied when a rule omits days.
const Weekdays uint8 = 0x1F

// Door receives schedule-driven actuation. Schedule actions use explicit
// hold semantics, never auto-relock.
type Door interface {
	Lock(now time.Time)
	Unlock(now time.Time)
}

// Recorder receives one audit event per rule firing.
type Recorder interface {
	Record(ev audit.Event)
}

// Engine holds the rule table and the per-minute evaluation state.
type Engine struct {
	rules      []Rule
	door       Door
	recorder   Recorder
	lastMinute int // minute-of-hour last evaluated
}

// New creates an engine with an empty rule table.
func New(door Door, recorder Recorder) *Engine {
	return &Engine{door: door, recorder: recorder, lastMinute: -1}
}

// Replace swaps in a whole new rule table. The previous table is kept
// unchanged on error. Minutes are normalized into 0..1439.
func (e *Engine) Replace(rules []Rule) error {
	if len(rules) > MaxRules {
		return fmt.Errorf("%d rules exceeds table capacity %d", len(rules), MaxRules)
	}
	next := make([]Rule, len(rules))
	for i, r := range rules {
		r.Minute = ((r.Minute % 1440) + 1440) % 1440
		next[i] = r
	}
	e.rules = next
	return nil
}

// Rules returns a copy of the current table.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Tick evaluates the table if the wall clock has crossed into a new minute.
// Comparing the minute-of-hour rather than using a timer tolerates loop
// jitter. An unsynchronized clock skips evaluation entirely; missed
// firings are not replayed once the clock syncs.
func (e *Engine) Tick(now time.Time) {
	if !audit.ClockSynced(now) {
		return
	}

	minute := now.Minute()
	if minute == e.lastMinute {
		return
	}
	e.lastMinute = minute

	day := (int(now.Weekday()) + 6) % 7 // Monday=0 .. Sunday=6
	minuteOfDay := now.Hour()*60 + minute

	for _, r := range e.rules {
		if r.Days&(1<<uint(day)) == 0 || r.Minute != minuteOfDay {
			continue
		}

		switch r.Action {
		case ActionUnlock:
			e.door.Unlock(now)
		default:
			e.door.Lock(now)
		}

		if e.recorder != nil {
			e.recorder.Record(audit.Event{
				Timestamp: now,
				Kind:      "schedule",
				Source:    "rule",
				Outcome:   true,
				Detail: map[string]interface{}{
					"action": r.Action.String(),
					"minute": r.Minute,
					"note":   r.Note,
				},
			})
		}
	}
}

// Wire shapes for the rule-set document.

type ruleJSON struct {
	Days   *[]int `json:"days,omitempty"`
	Time   string `json:"time"`
	Action string `json:"action"`
	Note   string `json:"note,omitempty"`
}

type docJSON struct {
	Rules []ruleJSON `json:"rules"`
}

// ParseRules decodes a rule-set document. A rule that omits "days" defaults
// to Monday-Friday; an explicitly empty list leaves the rule dormant. Any
// malformed rule rejects the whole document.
func ParseRules(data []byte) ([]Rule, error) {
	var doc docJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode rule set: %w", err)
	}
	if len(doc.Rules) > MaxRules {
		return nil, fmt.Errorf("%d rules exceeds table capacity %d", len(doc.Rules), MaxRules)
	}

	rules := make([]Rule, 0, len(doc.Rules))
	for i, rj := range doc.Rules {
		var r Rule

		if rj.Days == nil {
			r.Days = Weekdays
		} else {
			for _, d := range *rj.Days {
				if d < 0 || d > 6 {
					return nil, fmt.Errorf("rule %d: day %d out of range", i, d)
				}
				r.Days |= 1 << uint(d)
			}
		}

		var hh, mm int
		if _, err := fmt.Sscanf(rj.Time, "%d:%d", &hh, &mm); err != nil {
			return nil, fmt.Errorf("rule %d: bad time %q", i, rj.Time)
		}
		if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
			return nil, fmt.Errorf("rule %d: time %q out of range", i, rj.Time)
		}
		r.Minute = hh*60 + mm

		switch rj.Action {
		case "LOCK":
			r.Action = ActionLock
		case "UNLOCK":
			r.Action = ActionUnlock
		default:
			return nil, fmt.Errorf("rule %d: unknown action %q", i, rj.Action)
		}

		r.Note = rj.Note
		rules = append(rules, r)
	}
	return rules, nil
}

// MarshalRules encodes a rule table back into the wire shape.
func MarshalRules(rules []Rule) ([]byte, error) {
	doc := docJSON{Rules: make([]ruleJSON, 0, len(rules))}
	for _, r := range rules {
		days := make([]int, 0, 7)
		for d := 0; d < 7; d++ {
			if r.Days&(1<<uint(d)) != 0 {
				days = append(days, d)
			}
		}
		doc.Rules = append(doc.Rules, ruleJSON{
			Days:   &days,
			Time:   fmt.Sprintf("%02d:%02d", r.Minute/60, r.Minute%60),
			Action: r.Action.String(),
			Note:   r.Note,
		})
	}
	return json.MarshalIndent(doc, "", "  ")
}
