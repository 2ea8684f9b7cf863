package session

import (
	"math"
	"sort"
	"time"
)

// Direction of a pairwise queue swap.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// SendQueue holds speaker candidates in grant order. The head of the queue is
// the current CTS holder whenever one exists. SendQueue is not safe for
// concurrent use; the owning Handler serializes access.
type SendQueue struct {
	conns []Conn
}

// NewSendQueue returns an empty queue.
func NewSendQueue() *SendQueue {
	return &SendQueue{}
}

// Register appends c to the queue if it is not already a member. Registering
// twice is the same as registering once.
func (q *SendQueue) Register(c Conn) {
	if q.indexOf(c) == -1 {
		q.conns = append(q.conns, c)
	}
}

// Remove deletes c from the queue. When c was the head and another candidate
// remains, the new head is returned as a grant hint. Removing a non-member is
// a no-op.
func (q *SendQueue) Remove(c Conn) (Conn, bool) {
	i := q.indexOf(c)
	if i == -1 {
		return nil, false
	}
	q.conns = append(q.conns[:i], q.conns[i+1:]...)
	if i == 0 && len(q.conns) > 0 {
		return q.conns[0], true
	}
	return nil, false
}

// HasPriority reports whether c is the head of the queue.
func (q *SendQueue) HasPriority(c Conn) bool {
	return len(q.conns) > 0 && q.conns[0] == c
}

// Peek returns the head of the queue.
func (q *SendQueue) Peek() (Conn, bool) {
	if len(q.conns) == 0 {
		return nil, false
	}
	return q.conns[0], true
}

// Prepend removes any existing occurrence of c and inserts it at the head.
// Used to restore an interrupted speaker's priority.
func (q *SendQueue) Prepend(c Conn) {
	q.Remove(c)
	q.conns = append([]Conn{c}, q.conns...)
}

// Contains reports queue membership.
func (q *SendQueue) Contains(c Conn) bool {
	return q.indexOf(c) != -1
}

// Size returns the number of queued candidates.
func (q *SendQueue) Size() int {
	return len(q.conns)
}

// All returns a snapshot copy of the queue in order.
func (q *SendQueue) All() []Conn {
	out := make([]Conn, len(q.conns))
	copy(out, q.conns)
	return out
}

// Swap exchanges c with its neighbor in the given direction. Returns false if
// c is absent or already at the boundary.
func (q *SendQueue) Swap(c Conn, dir Direction) bool {
	i := q.indexOf(c)
	if i == -1 {
		return false
	}
	j := i + 1
	if dir == DirectionUp {
		j = i - 1
	}
	if j < 0 || j >= len(q.conns) {
		return false
	}
	q.conns[i], q.conns[j] = q.conns[j], q.conns[i]
	return true
}

// MoveToPosition repositions c to index, preserving the relative order of the
// other members. Returns false if c is absent, index is out of range, or c is
// already at index.
func (q *SendQueue) MoveToPosition(c Conn, index int) bool {
	i := q.indexOf(c)
	if i == -1 || index < 0 || index >= len(q.conns) || i == index {
		return false
	}
	q.conns = append(q.conns[:i], q.conns[i+1:]...)
	rest := make([]Conn, 0, len(q.conns)+1)
	rest = append(rest, q.conns[:index]...)
	rest = append(rest, c)
	rest = append(rest, q.conns[index:]...)
	q.conns = rest
	return true
}

// SortByPriority stably sorts the queue by (priority desc, manual order,
// join time). When excludeHead is a current member it is pinned at index 0
// and only the remainder is sorted.
func (q *SendQueue) SortByPriority(
	priority func(Conn) int,
	joinTime func(Conn) time.Time,
	manualOrder func(Conn) (int, bool),
	excludeHead Conn,
) {
	q.sortExcluding(excludeHead, func(a, b Conn) bool {
		pa, pb := priority(a), priority(b)
		if pa != pb {
			return pa > pb
		}
		ma, mb := manualOrDefault(a, manualOrder), manualOrDefault(b, manualOrder)
		if ma != mb {
			return ma < mb
		}
		return joinTime(a).Before(joinTime(b))
	})
}

// SortByFifo stably sorts the queue so that members with an explicit manual
// order precede those without, ordered by manual order then join time. This
// preserves hand-crafted order across sort-mode toggles.
func (q *SendQueue) SortByFifo(
	joinTime func(Conn) time.Time,
	manualOrder func(Conn) (int, bool),
	excludeHead Conn,
) {
	q.sortExcluding(excludeHead, func(a, b Conn) bool {
		_, aManual := manualOrder(a)
		_, bManual := manualOrder(b)
		if aManual != bManual {
			return aManual
		}
		ma, mb := manualOrDefault(a, manualOrder), manualOrDefault(b, manualOrder)
		if ma != mb {
			return ma < mb
		}
		return joinTime(a).Before(joinTime(b))
	})
}

func (q *SendQueue) sortExcluding(excludeHead Conn, less func(a, b Conn) bool) {
	pinned := excludeHead != nil && q.Contains(excludeHead)
	if pinned {
		q.Remove(excludeHead)
	}
	sort.SliceStable(q.conns, func(i, j int) bool {
		return less(q.conns[i], q.conns[j])
	})
	if pinned {
		q.conns = append([]Conn{excludeHead}, q.conns...)
	}
}

func (q *SendQueue) indexOf(c Conn) int {
	for i, member := range q.conns {
		if member == c {
			return i
		}
	}
	return -1
}

func manualOrDefault(c Conn, manualOrder func(Conn) (int, bool)) int {
	if m, ok := manualOrder(c); ok {
		return m
	}
	return math.MaxInt
}
