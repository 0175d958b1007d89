// Command vnet-tcpref opens a real TCP connection and samples the kernel's
// own TCP_INFO at an interval, so a developer can eyeball real-world
// cwnd/rtt/unacked figures next to the simulator's own vtcp.Socket
// counters (exposed over internal/gateway's /hosts/{addr}/sockets).
// Grounded on runZeroInc-sockstats/pkg/exporter and runZeroInc-conniver/
// pkg/exporter, both of which resolve a net.Conn's raw fd via
// github.com/higebu/netfd before reading its TCP_INFO.
package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/higebu/netfd"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

var cmd struct {
	Addr     string
	Interval time.Duration
	Count    int
}

var rootCmd = &cobra.Command{
	Use:   "vnet-tcpref",
	Short: "Sample a real TCP connection's kernel TCP_INFO",
	RunE: func(c *cobra.Command, args []string) error {
		return run(cmd.Addr, cmd.Interval, cmd.Count)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cmd.Addr, "addr", "a", "", "Address to dial, host:port (required)")
	rootCmd.Flags().DurationVarP(&cmd.Interval, "interval", "i", time.Second, "Sampling interval")
	rootCmd.Flags().IntVarP(&cmd.Count, "count", "n", 10, "Number of samples to take")
	rootCmd.MarkFlagRequired("addr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(addr string, interval time.Duration, count int) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	defer conn.Close()

	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return fmt.Errorf("%s did not resolve to a TCP connection", addr)
	}
	fd := netfd.GetFdFromConn(tcpConn)

	enc := json.NewEncoder(os.Stdout)
	for i := 0; i < count; i++ {
		info, err := unix.IoctlGetTCPInfo(fd)
		if err != nil {
			return fmt.Errorf("failed to read TCP_INFO: %w", err)
		}
		if err := enc.Encode(info); err != nil {
			return fmt.Errorf("failed to encode TCP_INFO: %w", err)
		}
		time.Sleep(interval)
	}
	return nil
}
