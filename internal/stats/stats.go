// Package stats exposes process counters for the chat service over expvar.
package stats

import (
	"expvar"
	"io"
	"net/http"
	"time"
)

// Metric names registered by the chat server.
const (
	NumActiveClients = "NumActiveClients"
	NumActiveRooms   = "NumActiveRooms"
	TotalMessages    = "TotalMessages"
	RejectedMessages = "RejectedMessages"
)

type StatsProvider interface {
	Incr(name string)
	Decr(name string)
	RegisterMetric(name string)
	Run()
}

// StatsUpdater applies counter deltas from a single goroutine so callers
// never contend on the expvar map.
type StatsUpdater struct {
	vars   *expvar.Map
	deltas chan statsDelta
}

type statsDelta struct {
	name  string
	delta int64
}

// NewStatsUpdater creates the updater and mounts its snapshot endpoint on mux.
func NewStatsUpdater(mux *http.ServeMux) *StatsUpdater {
	su := &StatsUpdater{
		vars:   expvar.NewMap("parlor-stats"),
		deltas: make(chan statsDelta, 512),
	}
	mux.HandleFunc("GET /debug/vars", su.snapshotHandler)

	startTime := time.Now()
	su.vars.Set("Uptime", expvar.Func(func() any {
		return time.Since(startTime).Milliseconds()
	}))

	return su
}

// snapshotHandler writes the current state of the map. expvar.Map.String
// already renders JSON.
func (su *StatsUpdater) snapshotHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	io.WriteString(w, su.vars.String())
}

func (su *StatsUpdater) RegisterMetric(name string) {
	su.vars.Set(name, expvar.NewInt(name))
}

func (su *StatsUpdater) Incr(name string) {
	su.deltas <- statsDelta{name: name, delta: 1}
}

func (su *StatsUpdater) Decr(name string) {
	su.deltas <- statsDelta{name: name, delta: -1}
}

func (su *StatsUpdater) apply() {
	for d := range su.deltas {
		metric, ok := su.vars.Get(d.name).(*expvar.Int)
		if !ok {
			// unknown names are registered on first use rather than
			// dropped
			su.RegisterMetric(d.name)
			metric = su.vars.Get(d.name).(*expvar.Int)
		}

		metric.Add(d.delta)
	}
}

func (su *StatsUpdater) Run() {
	go su.apply()
}

func (su *StatsUpdater) Stop() {
	close(su.deltas)
}
