package engine

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/technosupport/ts-console/internal/metrics"
	"github.com/technosupport/ts-console/internal/normalize"
	"github.com/technosupport/ts-console/internal/registry"
	"github.com/technosupport/ts-console/internal/store"
)

// Snapshotter fetches the periodic pull snapshot.
type Snapshotter interface {
	FetchSnapshot(ctx context.Context) ([]byte, error)
}

// IncidentSink receives every incident newly added to the store.
type IncidentSink interface {
	Publish(normalize.Incident) error
}

type Config struct {
	PullInterval time.Duration
	PullTimeout  time.Duration

	// NoticeTTL bounds re-display of identical degraded messages.
	NoticeTTL time.Duration

	// OnNotice surfaces degraded informational messages for transient
	// display. Optional.
	OnNotice func(normalize.Notice)
}

const (
	DefaultPullInterval = 10 * time.Second
	DefaultPullTimeout  = 8 * time.Second
	DefaultNoticeTTL    = 30 * time.Second
)

type inboundKind int

const (
	kindFrame inboundKind = iota
	kindSnapshot
)

// inbound is the discrete event both asynchronous callbacks reduce to.
// The run loop is the only writer for the push and pull paths, so their
// interleaving is a channel ordering, never shared-state mutation.
type inbound struct {
	kind      inboundKind
	frame     []byte
	incidents []normalize.Incident
}

// Engine owns one IncidentStore and one ActiveAlertRegistry per client
// session and merges the two delivery channels into them.
type Engine struct {
	cfg    Config
	store  *store.Store
	reg    *registry.Registry
	norm   *normalize.Normalizer
	puller Snapshotter
	met    *metrics.Metrics
	sink   IncidentSink

	notices *noticeDedup

	events    chan inbound
	intervals chan time.Duration
	quit      chan struct{}
	alive     atomic.Bool
}

// New wires an engine. puller and sink may be nil (pull disabled, no
// relay); met must not be.
func New(cfg Config, st *store.Store, reg *registry.Registry, norm *normalize.Normalizer, puller Snapshotter, met *metrics.Metrics, sink IncidentSink) *Engine {
	if cfg.PullInterval <= 0 {
		cfg.PullInterval = DefaultPullInterval
	}
	if cfg.PullTimeout <= 0 {
		cfg.PullTimeout = DefaultPullTimeout
	}
	if cfg.NoticeTTL <= 0 {
		cfg.NoticeTTL = DefaultNoticeTTL
	}

	e := &Engine{
		cfg:       cfg,
		store:     st,
		reg:       reg,
		norm:      norm,
		puller:    puller,
		met:       met,
		sink:      sink,
		notices:   newNoticeDedup(128, cfg.NoticeTTL),
		events:    make(chan inbound, 64),
		intervals: make(chan time.Duration),
		quit:      make(chan struct{}),
	}
	st.OnEvict = func(normalize.Incident) { met.Evictions.Inc() }
	return e
}

// Run drives the ingestion loop until ctx is cancelled. After return no
// further mutation of the store or registry occurs; in-flight completions
// are discarded.
func (e *Engine) Run(ctx context.Context) {
	e.alive.Store(true)
	defer e.alive.Store(false)
	defer close(e.quit)

	ticker := time.NewTicker(e.cfg.PullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.reg.Reset()
			return
		case <-ticker.C:
			if e.puller != nil {
				go e.pullOnce(ctx)
			}
		case d := <-e.intervals:
			ticker.Reset(d)
			log.Printf("[DEBUG] Engine: pull interval now %v", d)
		case ev := <-e.events:
			e.dispatch(ev)
		}
	}
}

// HandleFrame is the push channel callback. It only enqueues; all store
// mutation happens on the run loop.
func (e *Engine) HandleFrame(frame []byte) {
	buf := make([]byte, len(frame))
	copy(buf, frame)
	select {
	case e.events <- inbound{kind: kindFrame, frame: buf}:
	case <-e.quit:
	}
}

// SetPullInterval applies a reloaded interval to the running loop.
func (e *Engine) SetPullInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case e.intervals <- d:
	case <-e.quit:
	}
}

func (e *Engine) pullOnce(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.PullTimeout)
	defer cancel()

	body, err := e.puller.FetchSnapshot(fetchCtx)
	if err != nil {
		// Skip this cycle; the next tick tries again.
		log.Printf("[ERROR] Engine: pull failed: %v", err)
		e.met.PullFailures.Inc()
		return
	}

	incidents, err := e.norm.NormalizeSnapshot(body)
	if err != nil {
		log.Printf("[ERROR] Engine: discarding snapshot: %v", err)
		e.met.PullFailures.Inc()
		e.met.DecodeFailures.Inc()
		return
	}

	select {
	case e.events <- inbound{kind: kindSnapshot, incidents: incidents}:
	case <-e.quit:
	}
}

func (e *Engine) dispatch(ev inbound) {
	switch ev.kind {
	case kindFrame:
		e.applyFrame(ev.frame)
	case kindSnapshot:
		added := e.store.Reconcile(ev.incidents)
		if added > 0 {
			e.met.IncidentsIngested.WithLabelValues("pull").Add(float64(added))
		}
		e.met.StoreSize.Set(float64(e.store.Size()))
	}
}

func (e *Engine) applyFrame(frame []byte) {
	res, err := e.norm.Normalize(frame)
	if err != nil {
		log.Printf("[ERROR] Engine: discarding frame: %v", err)
		e.met.DecodeFailures.Inc()
		return
	}

	if res.Notice != nil {
		if e.notices.isDuplicate(res.Notice.Text) {
			return
		}
		e.met.Notices.Inc()
		if e.cfg.OnNotice != nil {
			e.cfg.OnNotice(*res.Notice)
		} else {
			log.Printf("[INFO] Engine: notice: %s", res.Notice.Text)
		}
		return
	}

	inc := *res.Incident
	if e.store.Insert(inc) {
		e.met.IncidentsIngested.WithLabelValues("push").Inc()
		e.met.StoreSize.Set(float64(e.store.Size()))
		if e.sink != nil {
			if err := e.sink.Publish(inc); err != nil {
				log.Printf("[ERROR] Engine: relay publish failed: %v", err)
			}
		}
	}
	if !e.reg.Update(inc) {
		e.met.SuppressedAlerts.Inc()
	}
}

// Read surface for the rendering layer.

func (e *Engine) Incidents() []normalize.Incident {
	return e.store.Entries()
}

func (e *Engine) Alerts() map[string]normalize.Incident {
	return e.reg.Entries()
}

// Commands issued by the rendering layer. All are no-ops after teardown.

func (e *Engine) MarkResolved(id string) bool {
	if !e.alive.Load() {
		return false
	}
	return e.store.MarkResolved(id)
}

func (e *Engine) Remove(id string) bool {
	if !e.alive.Load() {
		return false
	}
	return e.store.Remove(id)
}

func (e *Engine) ClearAlert(sourceID string) bool {
	if !e.alive.Load() {
		return false
	}
	return e.reg.Clear(sourceID)
}
