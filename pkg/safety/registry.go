package safety

import (
	"sort"

	"github.com/golang/glog"

	"github.com/robotalks/trdp.go/pkg/sdt"
	"github.com/robotalks/trdp.go/pkg/trdp"
)

// Registry holds one Validator per flow for a sink receiving several
// flows. Sources are mapped to flows with Bind, unbound sources use
// Default. It is not safe for concurrent use.
type Registry struct {
	Kind    Kind
	Sink    sdt.SinkParams
	Default Flow

	validators map[Flow]*Validator
	sources    map[trdp.Addr]Flow
}

// NewRegistry creates a Registry creating validators of kind.
func NewRegistry(kind Kind, sink sdt.SinkParams) *Registry {
	return &Registry{
		Kind:       kind,
		Sink:       sink,
		Default:    DefaultFlow(),
		validators: make(map[Flow]*Validator),
		sources:    make(map[trdp.Addr]Flow),
	}
}

// Bind assigns the flow of frames sent by src.
func (r *Registry) Bind(src trdp.Addr, flow Flow) {
	r.sources[src] = flow
}

// FlowOf returns the flow of frames sent by src.
func (r *Registry) FlowOf(src trdp.Addr) Flow {
	if flow, ok := r.sources[src]; ok {
		return flow
	}
	return r.Default
}

// For returns the Validator of the flow sent by src.
func (r *Registry) For(src trdp.Addr) *Validator {
	return r.Get(r.FlowOf(src))
}

// Get returns the Validator of flow, creating it on first use.
func (r *Registry) Get(flow Flow) *Validator {
	if v, ok := r.validators[flow]; ok {
		return v
	}
	v := NewMDValidator(flow)
	if r.Kind == ProcessData {
		v = NewPDValidator(flow, r.Sink)
	}
	r.validators[flow] = v
	return v
}

// Len returns the number of flows seen.
func (r *Registry) Len() int {
	return len(r.validators)
}

// Flows returns the flows seen, ordered by source id.
func (r *Registry) Flows() []Flow {
	flows := make([]Flow, 0, len(r.validators))
	for flow := range r.validators {
		flows = append(flows, flow)
	}
	sort.Slice(flows, func(i, j int) bool {
		if flows[i].SID1 != flows[j].SID1 {
			return flows[i].SID1 < flows[j].SID1
		}
		return flows[i].SID2 < flows[j].SID2
	})
	return flows
}

// LogCounters prints the counters of every flow seen.
func (r *Registry) LogCounters() {
	for _, flow := range r.Flows() {
		glog.Infof("sdt_counters sid %08x: %s", flow.SID1, r.validators[flow].Counters())
	}
}
