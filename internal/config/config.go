// Package config loads the simulator's own YAML configuration and
// implements the typed sysconfig.get_int/get_string oracle of spec.md 6
// over it. Keys may be glob patterns (github.com/gobwas/glob) so one
// override can apply to a whole class of hosts or sockets without
// enumerating them.
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/c2h5oh/datasize"
	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"

	"github.com/netsimio/vnet/internal/logging"
	"github.com/netsimio/vnet/internal/oracle"
	"github.com/netsimio/vnet/internal/vtcp"
)

// Worker is the worker pool's static configuration: how many worker
// goroutines to run, each with its own event tracker and mailbox
// (internal/worker.Pool).
type Worker struct {
	Threads       int    `yaml:"threads"`
	GranularityMs uint64 `yaml:"granularity_ms"`
	LookaheadMs   uint64 `yaml:"lookahead_ms"`
}

// Host is one virtual host's static placement: the (slave, worker, node)
// triple that addr.Scheme packs into its address, and which worker index
// in the pool owns it. WorkerID must match the worker that the host's
// packed address resolves to under the configured scheme, since VCI's
// same-worker/same-host/different-host classification (internal/vci)
// derives destination ownership from the address itself.
type Host struct {
	SlaveID  uint32 `yaml:"slave_id"`
	WorkerID uint32 `yaml:"worker_id"`
	NodeID   uint32 `yaml:"node_id"`
}

// Gateway is the admin/inspect HTTP surface's static configuration
// (internal/gateway).
type Gateway struct {
	Endpoint string   `yaml:"endpoint"`
	Peers    []string `yaml:"peers"`
}

// Topology holds the fallback oracle.Topology/oracle.Resolver values used
// when a run doesn't seed per-pair overrides itself (spec.md 6's "opaque
// oracle" left as a pluggable, config-driven default). Bandwidth fields use
// datasize.ByteSize so a config file reads "10MB" rather than a raw byte
// count; a ByteSize here is interpreted as bytes per second, following
// teacher's own reuse of datasize for dataplane throughput knobs.
type Topology struct {
	DefaultLatencyMs   uint64            `yaml:"default_latency_ms"`
	DefaultReliability float64           `yaml:"default_reliability"`
	BpsDown            datasize.ByteSize `yaml:"bps_down"`
	BpsUp              datasize.ByteSize `yaml:"bps_up"`
}

// Buffers holds the socket/transport sizing knobs shared by every host's
// vtcp.Config, again in datasize.ByteSize rather than raw integers.
type Buffers struct {
	MaxSize     datasize.ByteSize `yaml:"max_size"`
	LoopbackBuf datasize.ByteSize `yaml:"loopback_buf"`
}

// Config is the simulator process's top-level configuration file.
type Config struct {
	Logging  logging.Config    `yaml:"logging"`
	Worker   Worker            `yaml:"worker"`
	Hosts    []Host            `yaml:"hosts"`
	Gateway  Gateway           `yaml:"gateway"`
	Topology Topology          `yaml:"topology"`
	Buffers  Buffers           `yaml:"buffers"`
	Sysctl   map[string]string `yaml:"sysctl"`
}

// bytesToKBps converts a datasize.ByteSize, read as a bytes-per-second
// rate, into the kilobytes-per-second unit internal/oracle.Resolver and
// vtcp autotune (spec.md 4.4.7) work in.
func bytesToKBps(b datasize.ByteSize) uint64 {
	return uint64(b.Bytes()) / 1000
}

// BuildTopology seeds a StaticTopology from the config file's defaults;
// callers add per-network/per-host overrides on top of it.
func (c *Config) BuildTopology() *oracle.StaticTopology {
	return oracle.NewStaticTopology(c.Topology.DefaultLatencyMs, c.Topology.DefaultReliability, 0).
		WithDefaultBandwidth(bytesToKBps(c.Topology.BpsDown), bytesToKBps(c.Topology.BpsUp))
}

// TCPConfig builds the shared vtcp.Config from the config file's buffer
// knobs, layered over vtcp.DefaultConfig for anything left unset.
func (c *Config) TCPConfig() vtcp.Config {
	cfg := vtcp.DefaultConfig()
	if c.Buffers.MaxSize > 0 {
		cfg.MSS = uint32(c.Buffers.MaxSize.Bytes())
	}
	if c.Buffers.LoopbackBuf > 0 {
		cfg.LoopbackBufSize = uint32(c.Buffers.LoopbackBuf.Bytes())
	}
	return cfg
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	cfg := &Config{}
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// patternValue is one compiled glob pattern and the raw string value it
// maps to; pattern entries are tried in sorted key order (NewSysConfig
// sorts the keys, since a YAML map keeps no order of its own), after any
// exact match.
type patternValue struct {
	pattern string
	glob    glob.Glob
	value   string
}

// SysConfig implements internal/oracle.SysConfig over a Config's sysctl
// map, matching keys either exactly or via glob pattern.
type SysConfig struct {
	entries []patternValue
}

// NewSysConfig compiles every sysctl key in cfg as a glob pattern.
func NewSysConfig(cfg *Config) (*SysConfig, error) {
	keys := make([]string, 0, len(cfg.Sysctl))
	for k := range cfg.Sysctl {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sc := &SysConfig{}
	for _, k := range keys {
		g, err := glob.Compile(k)
		if err != nil {
			return nil, fmt.Errorf("failed to compile sysctl pattern %q: %w", k, err)
		}
		sc.entries = append(sc.entries, patternValue{pattern: k, glob: g, value: cfg.Sysctl[k]})
	}
	return sc, nil
}

func (sc *SysConfig) lookup(key string) (string, bool) {
	// Exact matches win over pattern matches regardless of registration
	// order.
	for _, e := range sc.entries {
		if e.pattern == key {
			return e.value, true
		}
	}
	for _, e := range sc.entries {
		if e.glob.Match(key) {
			return e.value, true
		}
	}
	return "", false
}

// GetString implements oracle.SysConfig.
func (sc *SysConfig) GetString(key string) (string, bool) {
	return sc.lookup(key)
}

// GetInt implements oracle.SysConfig.
func (sc *SysConfig) GetInt(key string) (int64, bool) {
	v, ok := sc.lookup(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
