// Package live keeps UI facing views in step with the document store.
//
// A view owns one or more store subscriptions. Every push replaces the
// view's copy of that result set and re-derives the projection from
// scratch. Derivation is keyed by a blake3 hash of the view's inputs, so a
// push that changes nothing the view depends on is not re-derived, and a
// projection equal to the previous one is not re-broadcast.
package live

import (
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"corruption-report-service/internal/store"

	"github.com/apex/log"
	"github.com/zeebo/blake3"
)

// Projection is the derived state of a view after one push.
type Projection struct {
	View  string    `json:"view"`
	Hash  string    `json:"hash,omitempty"`
	Data  any       `json:"data,omitempty"`
	Error string    `json:"error,omitempty"`
	At    time.Time `json:"at"`
}

type Listener func(Projection)

type source struct {
	name  string
	query store.Query
}

type definition struct {
	name    string
	params  string
	sources []source
	derive  func(map[string][]store.Document) any
}

type View struct {
	def  definition
	subs []store.Subscription

	// pushMu serializes derivation and delivery; mu guards the fields below.
	pushMu      sync.Mutex
	mu          sync.Mutex
	docs        map[string][]store.Document
	lastHash    string
	lastOutput  string
	latest      *Projection
	listeners   map[int]Listener
	nextID      int
	derivations int
	closed      bool
	done        chan struct{}
	onClose     func(*View)
}

func newView(def definition) *View {
	return &View{
		def:       def,
		docs:      make(map[string][]store.Document, len(def.sources)),
		listeners: make(map[int]Listener),
		done:      make(chan struct{}),
	}
}

func (v *View) Name() string { return v.def.name }

// Latest returns the most recent projection, if any push has completed.
func (v *View) Latest() (Projection, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.latest == nil {
		return Projection{}, false
	}
	return *v.latest, true
}

// Listen registers fn for every new projection. fn is called at once with
// the latest projection when there is one. The returned func unregisters.
func (v *View) Listen(fn Listener) func() {
	v.mu.Lock()
	id := v.nextID
	v.nextID++
	v.listeners[id] = fn
	var current *Projection
	if v.latest != nil {
		p := *v.latest
		current = &p
	}
	v.mu.Unlock()

	if current != nil {
		fn(*current)
	}
	return func() {
		v.mu.Lock()
		delete(v.listeners, id)
		v.mu.Unlock()
	}
}

// Derivations counts how many times the projection was recomputed.
func (v *View) Derivations() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.derivations
}

// Done is closed when the view closes.
func (v *View) Done() <-chan struct{} { return v.done }

// Close stops all subscriptions of the view. Writes already issued by the
// caller are unaffected.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	close(v.done)
	subs := v.subs
	v.subs = nil
	v.listeners = make(map[int]Listener)
	onClose := v.onClose
	v.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	if onClose != nil {
		onClose(v)
	}
}

func (v *View) addSubscription(s store.Subscription) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return false
	}
	v.subs = append(v.subs, s)
	return true
}

// push handles one snapshot from the named source.
func (v *View) push(name string, snap store.Snapshot) {
	v.pushMu.Lock()
	defer v.pushMu.Unlock()

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}

	var p Projection
	if snap.Err != nil {
		v.lastHash = ""
		v.lastOutput = ""
		p = Projection{View: v.def.name, Error: snap.Err.Error(), At: time.Now()}
		log.WithError(snap.Err).WithField("view", v.def.name).Warn("live: subscription error")
	} else {
		v.docs[name] = snap.Documents
		if len(v.docs) < len(v.def.sources) {
			v.mu.Unlock()
			return
		}
		hash := v.hashLocked()
		if hash == v.lastHash {
			v.mu.Unlock()
			return
		}
		v.derivations++
		v.lastHash = hash
		data := v.def.derive(v.docs)
		out := digest(data)
		if out == v.lastOutput && v.latest != nil && v.latest.Error == "" {
			v.mu.Unlock()
			return
		}
		v.lastOutput = out
		p = Projection{View: v.def.name, Hash: out, Data: data, At: time.Now()}
		v.latest = &p
	}

	listeners := make([]Listener, 0, len(v.listeners))
	for _, l := range v.listeners {
		listeners = append(listeners, l)
	}
	v.mu.Unlock()

	for _, l := range listeners {
		l(p)
	}
}

type hashedDoc struct {
	ID        string         `json:"id"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// hashLocked digests the view parameters and every source result set.
// encoding/json writes map keys in sorted order, so equal inputs give
// equal digests.
func (v *View) hashLocked() string {
	h := blake3.New()
	enc := json.NewEncoder(h)
	_ = enc.Encode([]string{v.def.name, v.def.params})
	for _, src := range v.def.sources {
		_ = enc.Encode(src.name)
		for _, d := range v.docs[src.name] {
			_ = enc.Encode(hashedDoc{ID: d.ID, Data: d.Data, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// digest is the content hash of a derived projection.
func digest(data any) string {
	h := blake3.New()
	_ = json.NewEncoder(h).Encode(data)
	return hex.EncodeToString(h.Sum(nil))
}
