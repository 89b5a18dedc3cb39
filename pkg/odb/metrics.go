package odb

import "github.com/prometheus/client_golang/prometheus"

// Collector exports [Store.Stats] as Prometheus metrics.
//
// Values are read from the store on every scrape.
type Collector struct {
	store *Store

	handles        *prometheus.Desc
	stableHandles  *prometheus.Desc
	consolidations *prometheus.Desc
	generation     *prometheus.Desc
	stateID        *prometheus.Desc
	slots          *prometheus.Desc
	listedSlots    *prometheus.Desc
	packsMapped    *prometheus.Desc
	looseDBs       *prometheus.Desc
}

// NewCollector returns a collector for store. Register it with a
// [prometheus.Registerer].
func NewCollector(store *Store) *Collector {
	return &Collector{
		store: store,

		handles: prometheus.NewDesc(
			"odb_handles",
			"Number of live handles",
			nil, nil,
		),
		stableHandles: prometheus.NewDesc(
			"odb_stable_handles",
			"Number of live handles that prevent pack unloading",
			nil, nil,
		),
		consolidations: prometheus.NewDesc(
			"odb_disk_consolidations_total",
			"Total number of disk state consolidations performed",
			nil, nil,
		),
		generation: prometheus.NewDesc(
			"odb_generation",
			"Current slot generation",
			nil, nil,
		),
		stateID: prometheus.NewDesc(
			"odb_state_id",
			"State id of the current view",
			nil, nil,
		),
		slots: prometheus.NewDesc(
			"odb_slots",
			"Number of slots by state",
			[]string{"state"}, nil,
		),
		listedSlots: prometheus.NewDesc(
			"odb_listed_slots",
			"Number of slots in the current view",
			nil, nil,
		),
		packsMapped: prometheus.NewDesc(
			"odb_packs_mapped",
			"Number of pack data files currently mapped",
			nil, nil,
		),
		looseDBs: prometheus.NewDesc(
			"odb_loose_dbs",
			"Number of loose object databases in the current view",
			nil, nil,
		),
	}
}

// Describe implements [prometheus.Collector].
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.handles
	ch <- c.stableHandles
	ch <- c.consolidations
	ch <- c.generation
	ch <- c.stateID
	ch <- c.slots
	ch <- c.listedSlots
	ch <- c.packsMapped
	ch <- c.looseDBs
}

// Collect implements [prometheus.Collector].
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.store.Stats()

	ch <- prometheus.MustNewConstMetric(c.handles, prometheus.GaugeValue, float64(st.Handles))
	ch <- prometheus.MustNewConstMetric(c.stableHandles, prometheus.GaugeValue, float64(st.StableHandles))
	ch <- prometheus.MustNewConstMetric(c.consolidations, prometheus.CounterValue, float64(st.Consolidations))
	ch <- prometheus.MustNewConstMetric(c.generation, prometheus.GaugeValue, float64(st.Generation))
	ch <- prometheus.MustNewConstMetric(c.stateID, prometheus.GaugeValue, float64(st.StateID))
	ch <- prometheus.MustNewConstMetric(c.slots, prometheus.GaugeValue, float64(st.SlotsEmpty), SlotEmpty.String())
	ch <- prometheus.MustNewConstMetric(c.slots, prometheus.GaugeValue, float64(st.SlotsUnloaded), SlotUnloaded.String())
	ch <- prometheus.MustNewConstMetric(c.slots, prometheus.GaugeValue, float64(st.SlotsLoaded), SlotLoaded.String())
	ch <- prometheus.MustNewConstMetric(c.listedSlots, prometheus.GaugeValue, float64(st.ListedSlots))
	ch <- prometheus.MustNewConstMetric(c.packsMapped, prometheus.GaugeValue, float64(st.PacksMapped))
	ch <- prometheus.MustNewConstMetric(c.looseDBs, prometheus.GaugeValue, float64(st.LooseDBs))
}

// Compile-time interface check.
var _ prometheus.Collector = (*Collector)(nil)
