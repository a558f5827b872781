package session

type TickOutcome int

const (
	TickNone TickOutcome = iota
	TickWarning
	TickExpired
)

// Deadline counts down the remaining seconds of a timed session. It owns no
// timer; whoever holds it calls Tick once per second.
type Deadline struct {
	timed     bool
	remaining int
	total     int
	warnAt    int
	warned    bool
	expired   bool
}

// NewDeadline builds a countdown of timeLimitMinutes. A limit of zero or
// less yields an inert deadline. warningSeconds of zero disables the warning.
func NewDeadline(timeLimitMinutes, warningSeconds int) Deadline {
	if timeLimitMinutes <= 0 {
		return Deadline{}
	}
	total := timeLimitMinutes * 60
	return Deadline{
		timed:     true,
		remaining: total,
		total:     total,
		warnAt:    warningSeconds,
		warned:    warningSeconds <= 0 || warningSeconds >= total,
	}
}

// Tick consumes one second. TickExpired is returned exactly once.
func (d *Deadline) Tick() TickOutcome {
	if !d.timed || d.expired {
		return TickNone
	}

	d.remaining--
	if d.remaining <= 0 {
		d.remaining = 0
		d.expired = true
		return TickExpired
	}
	if !d.warned && d.remaining <= d.warnAt {
		d.warned = true
		return TickWarning
	}
	return TickNone
}

// Remaining returns the seconds left and whether the deadline is timed.
func (d Deadline) Remaining() (int, bool) {
	return d.remaining, d.timed
}

// RemainingPtr is Remaining as a nullable value for read models.
func (d Deadline) RemainingPtr() *int {
	if !d.timed {
		return nil
	}
	v := d.remaining
	return &v
}

func (d Deadline) Total() int {
	return d.total
}

func (d Deadline) Expired() bool {
	return d.expired
}

func (d Deadline) Timed() bool {
	return d.timed
}
