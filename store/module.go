package store

// Module is a named set of functions the store executes atomically against a
// single record. Source is the server-side program for stores that run code
// themselves (Lua for Redis); Funcs is the equivalent Go implementation used
// by in-process stores.
type Module struct {
	Name   string
	Source string
	Funcs  map[string]ProcFunc
}

// ProcFunc is one function of a Module. It receives the record and the call
// arguments and returns the function result.
type ProcFunc func(rec *ProcRecord, args []any) (any, error)

// ProcOp is the write a procedure asked the store to apply.
type ProcOp int

const (
	ProcNone ProcOp = iota
	ProcUpdate
	ProcRemove
)

// ProcRecord is the view of a record handed to a ProcFunc. Changes are
// collected and applied by the store once the function returns.
type ProcRecord struct {
	exists  bool
	bins    Bins
	pending Bins
	ttl     int
	op      ProcOp
}

// NewProcRecord wraps bins for a procedure call. A nil bins map means the
// record does not exist.
func NewProcRecord(bins Bins) *ProcRecord {
	return &ProcRecord{exists: bins != nil, bins: bins.Clone()}
}

// Exists reports whether the record exists.
func (r *ProcRecord) Exists() bool {
	return r.exists
}

// Record returns the current bins, including updates made by the running procedure.
func (r *ProcRecord) Record() *Record {
	return &Record{Bins: r.bins}
}

// Update merges bins into the record and sets its TTL.
func (r *ProcRecord) Update(bins Bins, ttl int) {
	if r.bins == nil {
		r.bins = Bins{}
	}
	if r.pending == nil {
		r.pending = Bins{}
	}
	for name, value := range bins {
		r.bins[name] = value
		r.pending[name] = value
	}
	r.exists = true
	r.ttl = ttl
	r.op = ProcUpdate
}

// Remove deletes the record.
func (r *ProcRecord) Remove() {
	r.exists = false
	r.bins = nil
	r.pending = nil
	r.op = ProcRemove
}

// Result returns the pending operation, the bins written by Update and the TTL.
func (r *ProcRecord) Result() (ProcOp, Bins, int) {
	return r.op, r.pending, r.ttl
}
