package config

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	RPC       RPCConfig       `json:"rpc"`
	Nats      NatsConfig      `json:"nats"`
	Metrics   MetricsConfig   `json:"metrics"`
	Extractor ExtractorConfig `json:"extractor"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// RPCConfig describes the Bitcoin Core RPC endpoint the extractor queries.
//
// Authentication is either a .cookie file written by bitcoind or an explicit
// rpcuser/rpcpassword pair. Setting both is rejected during validation.
type RPCConfig struct {
	Address    string `json:"address"` // host:port
	CookieFile string `json:"cookie_file,omitempty"`
	User       string `json:"user,omitempty"`
	Password   string `json:"password,omitempty"`

	// Timeout is a Go duration string bounding each RPC call (e.g. "10s").
	Timeout string `json:"timeout,omitempty"`
}

// NatsConfig describes the NATS server events are published to.
//
// Password may come from the config directly or from a file holding only
// the password (password_file wins over password when both are set).
type NatsConfig struct {
	Address      string `json:"address"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
	PasswordFile string `json:"password_file,omitempty"`
}

type MetricsConfig struct {
	Address string `json:"address"` // bind address for the /metrics server
}

// ExtractorConfig controls the query scheduler.
//
// Interval is the base tick; methods with a cadence multiplier > 1 fire on
// a multiple of it. Each supported RPC can be switched off individually.
type ExtractorConfig struct {
	Interval string `json:"interval"`

	DisableGetpeerinfo       bool `json:"disable_getpeerinfo,omitempty"`
	DisableGetmempoolinfo    bool `json:"disable_getmempoolinfo,omitempty"`
	DisableUptime            bool `json:"disable_uptime,omitempty"`
	DisableGetnettotals      bool `json:"disable_getnettotals,omitempty"`
	DisableGetmemoryinfo     bool `json:"disable_getmemoryinfo,omitempty"`
	DisableGetaddrmaninfo    bool `json:"disable_getaddrmaninfo,omitempty"`
	DisableGetchaintxstats   bool `json:"disable_getchaintxstats,omitempty"`
	DisableGetnetworkinfo    bool `json:"disable_getnetworkinfo,omitempty"`
	DisableGetblockchaininfo bool `json:"disable_getblockchaininfo,omitempty"`
}

// Disabled returns the per-method disable switches keyed by RPC method name.
func (e ExtractorConfig) Disabled() map[string]bool {
	return map[string]bool{
		"getpeerinfo":       e.DisableGetpeerinfo,
		"getmempoolinfo":    e.DisableGetmempoolinfo,
		"uptime":            e.DisableUptime,
		"getnettotals":      e.DisableGetnettotals,
		"getmemoryinfo":     e.DisableGetmemoryinfo,
		"getaddrmaninfo":    e.DisableGetaddrmaninfo,
		"getchaintxstats":   e.DisableGetchaintxstats,
		"getnetworkinfo":    e.DisableGetnetworkinfo,
		"getblockchaininfo": e.DisableGetblockchaininfo,
	}
}
