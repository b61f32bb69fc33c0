// Package peerstate tracks the per-peer Id and Token history the engine
// needs to allocate fresh, non-colliding values, grounded in the original
// core's msg_ids/msg_tokens buffers and next_id/next_token/hash_token
// methods.
package peerstate

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"github.com/simeonmiteff/go-coap/pkg/buffer"
	"github.com/simeonmiteff/go-coap/pkg/clock"
	"github.com/simeonmiteff/go-coap/pkg/coap"
	"github.com/simeonmiteff/go-coap/pkg/stamp"
)

// DefaultHistoryCapacity is the default per-peer Id/Token buffer size.
// The original ships a platform-parameterized constant around 16; this
// is the same order of magnitude for a hosted Go process.
const DefaultHistoryCapacity = 16

// History is one peer's outstanding Id and Token bookkeeping.
type History struct {
	ids      *buffer.Bounded[stamp.Stamped[coap.Id]]
	counters *buffer.Bounded[stamp.Stamped[uint32]]
}

func newHistory(capacity int) *History {
	return &History{
		ids:      buffer.NewBounded[stamp.Stamped[coap.Id]](capacity),
		counters: buffer.NewBounded[stamp.Stamped[uint32]](capacity),
	}
}

// Store owns one History per peer address the engine has talked to.
type Store struct {
	capacity int
	peers    map[coap.Addr]*History
}

// NewStore builds a Store whose per-peer histories hold up to capacity
// entries each.
func NewStore(capacity int) *Store {
	return &Store{capacity: capacity, peers: make(map[coap.Addr]*History)}
}

func (s *Store) history(addr coap.Addr) *History {
	h, ok := s.peers[addr]
	if !ok {
		h = newHistory(s.capacity)
		s.peers[addr] = h
	}
	return h
}

// evictOldest makes room in a full history buffer by taking its
// least-recently-stamped entry, the bounded-size LRU policy spec.md's
// "Per-peer history growth" design note calls for: the original design
// never evicted per-peer entries at all, which is fine for a short-lived
// client but grows without bound against a long-lived server talking to
// the same peer past its history capacity. See DESIGN.md for the
// specific call-out.
func evictOldest[T comparable](b *buffer.Bounded[stamp.Stamped[T]]) {
	if b.Len() < b.Cap() {
		return
	}
	oldest, ok := stamp.FindOldest(b.Present())
	if !ok {
		return
	}
	b.TakeIf(func(s stamp.Stamped[T]) bool {
		return s.At == oldest.At && s.Value == oldest.Value
	})
}

// NextID allocates the next Id for addr: one greater than the latest Id
// on record for that peer (0 if none), wrapping at 16 bits like any fixed
// counter. The allocated Id is recorded into the peer's history, evicting
// the oldest entry first if the history is already at capacity.
func (s *Store) NextID(clk clock.Clock, addr coap.Addr) (coap.Id, error) {
	now, err := clk.TryNow()
	if err != nil {
		return 0, err
	}
	h := s.history(addr)

	var id coap.Id
	if latest, ok := stamp.FindLatest(h.ids.Present()); ok {
		id = latest.Value + 1
	}

	evictOldest(h.ids)
	if _, ok := h.ids.Push(stamp.New(id, now)); !ok {
		panic("peerstate: id history full after compaction and eviction")
	}
	return id, nil
}

// NextToken allocates the next Token for addr. Tokens are derived from a
// monotonically increasing per-peer counter by hashing it with Blake2b to
// an 8-byte digest, matching the original core's Blake2b<U8> token
// derivation: the counter itself never leaves this package, only its
// hash does, so tokens don't leak the request ordering to an observer.
// As with NextID, the oldest counter entry is evicted first if the
// history is already at capacity.
func (s *Store) NextToken(clk clock.Clock, addr coap.Addr) (coap.Token, error) {
	now, err := clk.TryNow()
	if err != nil {
		return nil, err
	}
	h := s.history(addr)

	var counter uint32
	if latest, ok := stamp.FindLatest(h.counters.Present()); ok {
		counter = latest.Value + 1
	}

	evictOldest(h.counters)
	if _, ok := h.counters.Push(stamp.New(counter, now)); !ok {
		panic("peerstate: token history full after compaction and eviction")
	}
	return hashToken(counter), nil
}

func hashToken(counter uint32) coap.Token {
	h, err := blake2b.New(8, nil)
	if err != nil {
		// blake2b.New only errors for an out-of-range size or a key
		// longer than 64 bytes; 8 and nil never trigger that.
		panic(err)
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], counter)
	h.Write(buf[:])
	return coap.Token(h.Sum(nil))
}
