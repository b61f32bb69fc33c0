package coap

import "sort"

// AddOption inserts value under number, updating the existing option in
// place if number is already present. It mirrors the original Rust
// implementation's find-or-insert behaviour: callers repeatedly call
// AddOption while building a message and get last-write-wins semantics
// for a given option number.
func AddOption(opts []Option, number uint16, value []byte) []Option {
	for i := range opts {
		if opts[i].Number == number {
			opts[i].Value = value
			return opts
		}
	}
	return append(opts, Option{Number: number, Value: value})
}

// NormalizeOptions sorts opts by option number and rewrites each Delta to
// be relative to the previous option's number, as required by the wire
// format's delta encoding (RFC 7252 §3.1). It is idempotent: normalizing
// an already-normalized list is a no-op other than recomputing deltas.
func NormalizeOptions(opts []Option) []Option {
	sorted := make([]Option, len(opts))
	copy(sorted, opts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	var prev uint16
	for i := range sorted {
		sorted[i].Delta = sorted[i].Number - prev
		prev = sorted[i].Number
	}
	return sorted
}

// FindOption returns the first option matching number, if any.
func FindOption(opts []Option, number uint16) ([]byte, bool) {
	for _, o := range opts {
		if o.Number == number {
			return o.Value, true
		}
	}
	return nil, false
}
