// Package pending implements the pending-ARP-request list: one entry
// per unresolved next-hop IPv4 address, each holding a bounded FIFO of
// IPv4 datagrams withheld until the next hop's MAC is known or
// resolution is abandoned.
package pending

import (
	"net"
	"net/netip"
	"sync"
	"time"
)

// DefaultRetryInterval is the time between ARP retries.
const DefaultRetryInterval = 1 * time.Second

// DefaultMaxRetries is the retry budget before an entry is abandoned:
// five retries after the initial ARP request, one per retry interval; the
// entry is abandoned by the first due sweep after the fifth retry.
const DefaultMaxRetries = 5

// MaxQueue caps the number of datagrams withheld per pending entry. A
// datagram that would overflow the queue is immediately answered with
// Host Unreachable instead of being queued.
const MaxQueue = 16

type withheldDatagram struct {
	datagram     []byte
	ingressIface int
	decrementTTL bool
}

type key struct {
	targetIP    netip.Addr
	egressIface int
}

type entry struct {
	attemptsRemaining int
	deadline          time.Time
	withheld          []withheldDatagram
}

// List is the mutex-guarded pending ARP request table for one router.
// The lock is held only across in-memory bookkeeping; callers execute
// the returned Actions after releasing it.
type List struct {
	mu            sync.Mutex
	entries       map[key]*entry
	maxRetries    int
	retryInterval time.Duration
	maxQueue      int
}

// New creates a pending list with the given retry budget, retry interval
// and per-entry withheld-queue cap.
func New(maxRetries int, retryInterval time.Duration, maxQueue int) *List {
	return &List{
		entries:       make(map[key]*entry),
		maxRetries:    maxRetries,
		retryInterval: retryInterval,
		maxQueue:      maxQueue,
	}
}

// Enqueue withholds datagram (which arrived on ingressIface) pending
// resolution of targetIP on egressIface. decrementTTL records whether
// datagram is in transit (its TTL must be decremented before it is
// eventually forwarded) or was built by the router itself (its TTL must
// be left alone). If a pending entry already exists for (targetIP,
// egressIface), the datagram is appended to its FIFO and nothing is
// emitted. Otherwise a new entry is created and one ActionSendARPRequest
// is returned. If the entry's queue is already at capacity, the new
// datagram is answered immediately with ActionHostUnreachable instead of
// being queued.
func (l *List) Enqueue(targetIP netip.Addr, egressIface int, datagram []byte, ingressIface int, decrementTTL bool) []Action {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{targetIP, egressIface}
	e, ok := l.entries[k]
	if !ok {
		e = &entry{attemptsRemaining: l.maxRetries, deadline: time.Now().Add(l.retryInterval)}
		l.entries[k] = e
		e.withheld = append(e.withheld, withheldDatagram{datagram, ingressIface, decrementTTL})
		return []Action{{Kind: ActionSendARPRequest, TargetIP: targetIP, EgressIface: egressIface}}
	}

	if len(e.withheld) >= l.maxQueue {
		return []Action{{Kind: ActionHostUnreachable, Datagram: datagram, IngressIface: ingressIface}}
	}
	e.withheld = append(e.withheld, withheldDatagram{datagram, ingressIface, decrementTTL})
	return nil
}

// Resolve removes every pending entry keyed on targetIP, across all
// egress interfaces, and returns one ActionForward per withheld
// datagram, in FIFO order.
func (l *List) Resolve(targetIP netip.Addr, mac net.HardwareAddr) []Action {
	l.mu.Lock()
	defer l.mu.Unlock()

	var actions []Action
	for k, e := range l.entries {
		if k.targetIP != targetIP {
			continue
		}
		for _, w := range e.withheld {
			actions = append(actions, Action{
				Kind:         ActionForward,
				TargetIP:     targetIP,
				EgressIface:  k.egressIface,
				IngressIface: w.ingressIface,
				Datagram:     w.datagram,
				ResolvedMAC:  mac,
				DecrementTTL: w.decrementTTL,
			})
		}
		delete(l.entries, k)
	}
	return actions
}

// Sweep walks every pending entry whose deadline has passed. Entries
// with attempts remaining are retried (one ActionSendARPRequest each,
// deadline pushed back by the retry interval); entries that have
// exhausted their attempts are abandoned, yielding one
// ActionHostUnreachable per withheld datagram, in FIFO order.
func (l *List) Sweep(now time.Time) []Action {
	l.mu.Lock()
	defer l.mu.Unlock()

	var actions []Action
	for k, e := range l.entries {
		if e.deadline.After(now) {
			continue
		}
		if e.attemptsRemaining > 0 {
			e.attemptsRemaining--
			e.deadline = now.Add(l.retryInterval)
			actions = append(actions, Action{Kind: ActionSendARPRequest, TargetIP: k.targetIP, EgressIface: k.egressIface})
			continue
		}
		for _, w := range e.withheld {
			actions = append(actions, Action{
				Kind:         ActionHostUnreachable,
				TargetIP:     k.targetIP,
				EgressIface:  k.egressIface,
				IngressIface: w.ingressIface,
				Datagram:     w.datagram,
			})
		}
		delete(l.entries, k)
	}
	return actions
}
