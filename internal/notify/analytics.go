package notify

import (
	"sync"
	"time"
)

// dayLayout keys the per-day counters.
const dayLayout = "2006-01-02"

// Counters is one analytics bucket.
type Counters struct {
	Sent      int64 `json:"sent"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Read      int64 `json:"read"`

	// AvgDeliveryMs is updated as (previous + sample) / 2 on every sample,
	// starting from zero.
	AvgDeliveryMs float64 `json:"avgDeliveryMs"`
}

// DeliveryRate is delivered/sent*100, or 0 before anything was sent.
func (c Counters) DeliveryRate() float64 {
	if c.Sent == 0 {
		return 0
	}
	return float64(c.Delivered) / float64(c.Sent) * 100
}

// ReadRate is read/delivered*100, or 0 before anything was delivered.
func (c Counters) ReadRate() float64 {
	if c.Delivered == 0 {
		return 0
	}
	return float64(c.Read) / float64(c.Delivered) * 100
}

func (c *Counters) record(ok bool, d time.Duration) {
	c.Sent++
	if ok {
		c.Delivered++
	} else {
		c.Failed++
	}
	c.AvgDeliveryMs = (c.AvgDeliveryMs + float64(d.Milliseconds())) / 2
}

// Summary is Counters plus its derived rates.
type Summary struct {
	Counters
	DeliveryRate float64 `json:"deliveryRate"`
	ReadRate     float64 `json:"readRate"`
}

func summarize(c Counters) Summary {
	return Summary{Counters: c, DeliveryRate: c.DeliveryRate(), ReadRate: c.ReadRate()}
}

// Report is a point-in-time copy of the analytics.
type Report struct {
	Total      Summary            `json:"total"`
	ByChannel  map[string]Summary `json:"byChannel"`
	ByCategory map[string]Summary `json:"byCategory"`
	ByPriority map[string]Summary `json:"byPriority"`
	ByDay      map[string]Summary `json:"byDay"`
}

// Analytics keeps running notification counters for this process.
type Analytics struct {
	mu         sync.Mutex
	total      Counters
	byChannel  map[string]*Counters
	byCategory map[string]*Counters
	byPriority map[string]*Counters
	byDay      map[string]*Counters
}

// NewAnalytics creates empty analytics.
func NewAnalytics() *Analytics {
	return &Analytics{
		byChannel:  make(map[string]*Counters),
		byCategory: make(map[string]*Counters),
		byPriority: make(map[string]*Counters),
		byDay:      make(map[string]*Counters),
	}
}

func bucket(m map[string]*Counters, key string) *Counters {
	c, ok := m[key]
	if !ok {
		c = &Counters{}
		m[key] = c
	}
	return c
}

// RecordEvent folds a completed notification into the counters. The event
// counts once in total, category, priority and day buckets; each channel
// attempt counts in its channel bucket.
func (a *Analytics) RecordEvent(ev *Event) {
	var elapsed time.Duration
	if ev.CompletedAt != nil {
		elapsed = ev.CompletedAt.Sub(ev.CreatedAt)
	}
	ok := ev.Status == StatusDelivered

	a.mu.Lock()
	defer a.mu.Unlock()

	a.total.record(ok, elapsed)
	bucket(a.byCategory, ev.Category).record(ok, elapsed)
	bucket(a.byPriority, string(ev.Priority)).record(ok, elapsed)
	bucket(a.byDay, ev.CreatedAt.UTC().Format(dayLayout)).record(ok, elapsed)
	for _, r := range ev.Results {
		bucket(a.byChannel, string(r.Channel)).record(r.Status.Succeeded(), r.Duration)
	}
}

// RecordRead counts a first read of ev.
func (a *Analytics) RecordRead(ev *Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total.Read++
	bucket(a.byCategory, ev.Category).Read++
	bucket(a.byPriority, string(ev.Priority)).Read++
	bucket(a.byDay, ev.CreatedAt.UTC().Format(dayLayout)).Read++
	bucket(a.byChannel, string(ChannelInApp)).Read++
}

// Report returns a copy of the counters with derived rates.
func (a *Analytics) Report() Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	copyAll := func(m map[string]*Counters) map[string]Summary {
		out := make(map[string]Summary, len(m))
		for k, c := range m {
			out[k] = summarize(*c)
		}
		return out
	}
	return Report{
		Total:      summarize(a.total),
		ByChannel:  copyAll(a.byChannel),
		ByCategory: copyAll(a.byCategory),
		ByPriority: copyAll(a.byPriority),
		ByDay:      copyAll(a.byDay),
	}
}
