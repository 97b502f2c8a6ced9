package bridge

import (
	"sync"
	"sync/atomic"
)

// ProductGroupFrame names the resolvable solver variable keys for one
// product group and their unbounded defaults. Keeping this enumeration here
// rather than hard-coded in Bridge.Apply means adding a new product group
// never requires editing the bridge, per the system's design notes.
type ProductGroupFrame struct {
	ProductGroup string
	Defaults     map[string]float64
}

// FrameRegistry is a copy-on-write table of ProductGroupFrames, published
// atomically on every registration, mirroring the TemplateRegistry's
// snapshot-swap shape.
type FrameRegistry struct {
	cur     atomic.Pointer[map[string]ProductGroupFrame]
	writeMu sync.Mutex
}

// NewFrameRegistry builds a registry seeded with the frames named in the
// system's worked examples (ammonia vessel purchase/sale) plus a generic
// urea frame drawn from the same commercial shape.
func NewFrameRegistry() *FrameRegistry {
	fr := &FrameRegistry{}
	seed := map[string]ProductGroupFrame{
		"ammonia": {
			ProductGroup: "ammonia",
			Defaults: map[string]float64{
				"price":             1200, // unbounded ceiling default; clauses only ever tighten it
				"qty_tolerance_pct": 10,
				"loading_rate":      10000,
				"demurrage_rate":    50000,
				"laytime_days":      30,
				"inv_don":           1e12,
			},
		},
		"urea": {
			ProductGroup: "urea",
			Defaults: map[string]float64{
				"price":             900,
				"qty_tolerance_pct": 10,
				"loading_rate":      8000,
				"demurrage_rate":    40000,
				"laytime_days":      30,
			},
		},
	}
	fr.cur.Store(&seed)
	return fr
}

// Frame returns the frame for productGroup, or ok=false if none is
// registered.
func (fr *FrameRegistry) Frame(productGroup string) (ProductGroupFrame, bool) {
	m := *fr.cur.Load()
	f, ok := m[productGroup]
	return f, ok
}

// RegisterFrame adds or replaces a product group's frame, visible to
// readers atomically on the next lookup.
func (fr *FrameRegistry) RegisterFrame(f ProductGroupFrame) {
	fr.writeMu.Lock()
	defer fr.writeMu.Unlock()
	prev := *fr.cur.Load()
	next := make(map[string]ProductGroupFrame, len(prev)+1)
	for k, v := range prev {
		next[k] = v
	}
	next[f.ProductGroup] = f
	fr.cur.Store(&next)
}
