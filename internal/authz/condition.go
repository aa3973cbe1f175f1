package authz

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"
)

// Condition is the optional predicate attached to a grant. All present
// clauses must hold for the grant to apply. A malformed condition is an
// evaluation error, never a silent allow.
type Condition struct {
	// TimeWindow restricts the grant to a daily window, e.g. 09:00-18:00.
	TimeWindow *TimeWindow `json:"time_window,omitempty"`
	// Weekdays restricts the grant to the named days, e.g. ["mon","tue"].
	Weekdays []string `json:"weekdays,omitempty"`
	// IPCIDR restricts the grant to callers inside one of the CIDR blocks.
	IPCIDR []string `json:"ip_cidr,omitempty"`
}

type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// EvalContext carries request-time facts the conditions test against.
type EvalContext struct {
	IP  string
	Now time.Time
}

func parseCondition(raw []byte) (*Condition, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var c Condition
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("malformed condition: %w", err)
	}
	return &c, nil
}

// Satisfied evaluates every clause against evalCtx. It returns an error for
// malformed clauses so the caller can deny with an evaluation error.
func (c *Condition) Satisfied(evalCtx EvalContext) (bool, error) {
	if c == nil {
		return true, nil
	}

	now := evalCtx.Now
	if now.IsZero() {
		now = time.Now()
	}

	if c.TimeWindow != nil {
		ok, err := c.TimeWindow.contains(now)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	if len(c.Weekdays) > 0 {
		if err := validateWeekdays(c.Weekdays); err != nil {
			return false, err
		}
		if !weekdayIn(now.Weekday(), c.Weekdays) {
			return false, nil
		}
	}

	if len(c.IPCIDR) > 0 {
		ok, err := ipInCIDRs(evalCtx.IP, c.IPCIDR)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	return true, nil
}

func (w *TimeWindow) contains(now time.Time) (bool, error) {
	start, err := time.Parse("15:04", w.Start)
	if err != nil {
		return false, fmt.Errorf("malformed condition: time_window start %q: %w", w.Start, err)
	}
	end, err := time.Parse("15:04", w.End)
	if err != nil {
		return false, fmt.Errorf("malformed condition: time_window end %q: %w", w.End, err)
	}

	minutes := now.Hour()*60 + now.Minute()
	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()

	if startMin <= endMin {
		return minutes >= startMin && minutes < endMin, nil
	}
	// Window crosses midnight, e.g. 22:00-06:00.
	return minutes >= startMin || minutes < endMin, nil
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

func validateWeekdays(days []string) error {
	for _, d := range days {
		if _, ok := weekdayNames[strings.ToLower(d)]; !ok {
			return fmt.Errorf("malformed condition: unknown weekday %q", d)
		}
	}
	return nil
}

func weekdayIn(day time.Weekday, days []string) bool {
	for _, d := range days {
		if weekdayNames[strings.ToLower(d)] == day {
			return true
		}
	}
	return false
}

func ipInCIDRs(ipStr string, cidrs []string) (bool, error) {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		// Callers without a resolvable address never satisfy an IP clause.
		return false, nil
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return false, fmt.Errorf("malformed condition: ip_cidr %q: %w", cidr, err)
		}
		if network.Contains(ip) {
			return true, nil
		}
	}
	return false, nil
}
