package clock

import (
	"testing"
	"time"
)

func TestManual_FiresInDeadlineOrder(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewManual(start)
	var got []string
	var seenAt []time.Time

	m.AfterFunc(2*time.Second, func() { got = append(got, "b"); seenAt = append(seenAt, m.Now()) })
	m.AfterFunc(time.Second, func() {
		got = append(got, "a")
		seenAt = append(seenAt, m.Now())
		// Scheduled from a callback and still inside the window.
		m.AfterFunc(500*time.Millisecond, func() { got = append(got, "a2") })
	})
	m.AfterFunc(2*time.Second, func() { got = append(got, "c") })
	late := m.AfterFunc(time.Hour, func() { got = append(got, "late") })

	m.Advance(3 * time.Second)
	if want := "a,a2,b,c"; join(got) != want {
		t.Fatalf("order %q want %q", join(got), want)
	}
	if !seenAt[0].Equal(start.Add(time.Second)) || !seenAt[1].Equal(start.Add(2*time.Second)) {
		t.Fatalf("callbacks should observe their deadline: %v", seenAt)
	}
	if !m.Now().Equal(start.Add(3 * time.Second)) {
		t.Fatalf("now=%v", m.Now())
	}
	if m.Pending() != 1 {
		t.Fatalf("pending=%d", m.Pending())
	}
	if !late.Stop() || late.Stop() {
		t.Fatalf("Stop should succeed once")
	}
	m.Advance(2 * time.Hour)
	if join(got) != "a,a2,b,c" {
		t.Fatalf("stopped timer fired")
	}
}

func TestReal(t *testing.T) {
	if (Real{}).Now().Location() != time.UTC {
		t.Fatalf("Real clock should report UTC")
	}
	done := make(chan struct{})
	Real{}.AfterFunc(time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timer did not fire")
	}
}

func join(s []string) string {
	out := ""
	for i, v := range s {
		if i > 0 {
			out += ","
		}
		out += v
	}
	return out
}
