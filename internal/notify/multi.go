package notify

import "context"

// MultiBus fans each event out to several buses (e.g. the Redis relay
// plus the webhook dispatcher).
type MultiBus []Bus

// NewMultiBus combines buses into one. Nil entries are skipped.
func NewMultiBus(buses ...Bus) MultiBus {
	var out MultiBus
	for _, b := range buses {
		if b != nil {
			out = append(out, b)
		}
	}
	return out
}

// Publish implements Bus.
func (m MultiBus) Publish(ctx context.Context, event string, payload map[string]string) {
	for _, b := range m {
		b.Publish(ctx, event, payload)
	}
}
