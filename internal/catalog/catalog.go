// Package catalog holds the static table of Bitcoin Core diagnostics the
// extractor queries. The set of methods and their cadence multipliers are
// compiled in; only the per-method enable switches come from configuration.
package catalog

import (
	"rpcextractor/internal/config"
)

// Method describes one read-only RPC diagnostic.
//
// Cadence is the number of base ticks between fires: 1 means every tick,
// 10 means every tenth. Expensive full-chain scans get a higher cadence so
// they don't load the node on every cycle.
type Method struct {
	Name    string
	Enabled bool
	Cadence uint
}

// Catalog is the ordered, immutable method table built at startup.
type Catalog struct {
	methods []Method
}

// Cadence multiplier for RPCs that scan large parts of the chain state.
const slowCadence = 10

var supported = []Method{
	{Name: "getpeerinfo", Cadence: 1},
	{Name: "getmempoolinfo", Cadence: 1},
	{Name: "uptime", Cadence: 1},
	{Name: "getnettotals", Cadence: 1},
	{Name: "getmemoryinfo", Cadence: 1},
	{Name: "getaddrmaninfo", Cadence: 1},
	{Name: "getchaintxstats", Cadence: slowCadence},
	{Name: "getnetworkinfo", Cadence: 1},
	{Name: "getblockchaininfo", Cadence: slowCadence},
}

// New builds the catalog from the extractor config's disable switches.
func New(cfg config.ExtractorConfig) *Catalog {
	disabled := cfg.Disabled()
	methods := make([]Method, len(supported))
	for i, m := range supported {
		m.Enabled = !disabled[m.Name]
		methods[i] = m
	}
	return &Catalog{methods: methods}
}

// Methods returns the ordered method table. Callers must not mutate it.
func (c *Catalog) Methods() []Method { return c.methods }

// Len returns the number of supported methods, enabled or not.
func (c *Catalog) Len() int { return len(c.methods) }

// EnabledCount returns how many methods will actually fire.
func (c *Catalog) EnabledCount() int {
	n := 0
	for _, m := range c.methods {
		if m.Enabled {
			n++
		}
	}
	return n
}
