// Command vnet-topoprobe seeds a vnet topology/host config from the
// operator's real local interfaces, grounded on
// controlplane/modules/route/internal/discovery/link and .../neigh's use
// of github.com/vishvananda/netlink for real kernel link/route
// introspection (repurposed here to a one-shot dump instead of a live
// monitor: this tool has no simulation-facing runtime component).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vishvananda/netlink"
	"gopkg.in/yaml.v3"

	"github.com/netsimio/vnet/internal/config"
)

var output string

var rootCmd = &cobra.Command{
	Use:   "vnet-topoprobe",
	Short: "Seed a vnet topology/host config from real local interfaces",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := probe()
		if err != nil {
			return err
		}
		return writeConfig(cfg, output)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&output, "output", "o", "-", "Where to write the seeded config (- for stdout)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

// probe lists every non-loopback, up IPv4 address on the host and turns
// each into a config.Host placed on network 1, worker 0 — a starting
// point an operator edits by hand to reflect the topology they actually
// want to simulate.
func probe() (*config.Config, error) {
	addrs, err := netlink.AddrList(nil, netlink.FAMILY_V4)
	if err != nil {
		return nil, fmt.Errorf("failed to list addresses: %w", err)
	}

	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	linkByIndex := make(map[int]netlink.Link, len(links))
	for _, l := range links {
		linkByIndex[l.Attrs().Index] = l
	}

	cfg := &config.Config{
		Topology: config.Topology{
			DefaultLatencyMs:   1,
			DefaultReliability: 1.0,
		},
	}

	for _, a := range addrs {
		if a.IP.IsLoopback() || a.IP.To4() == nil {
			continue
		}
		l, ok := linkByIndex[a.LinkIndex]
		if ok && l.Attrs().OperState != netlink.OperUp {
			continue
		}

		cfg.Hosts = append(cfg.Hosts, config.Host{
			SlaveID:  1,
			WorkerID: 0,
			NodeID:   uint32(a.IP.To4()[3]),
		})
	}

	return cfg, nil
}

func writeConfig(cfg *config.Config, path string) error {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}

	if path == "-" {
		_, err := os.Stdout.Write(out)
		return err
	}
	return os.WriteFile(path, out, 0o644)
}
