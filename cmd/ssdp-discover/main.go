// Command ssdp-discover runs a short-lived SSDP search and prints the
// devices it finds on the local network.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"runtime"
	"runtime/debug"
	"sort"
	"time"

	"github.com/gesellix/rssdp-go/pkg/config"
	"github.com/gesellix/rssdp-go/pkg/ssdp"
	"github.com/urfave/cli/v2"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func updateBuildInfo() {
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				commit = setting.Value
			case "vcs.time":
				if t, err := time.Parse(time.RFC3339, setting.Value); err == nil {
					date = t.Format("2006-01-02_15:04:05")
				}
			}
		}
	}
}

func main() {
	updateBuildInfo()

	app := &cli.App{
		Name:    "ssdp-discover",
		Usage:   "Discover UPnP devices on the local network via SSDP",
		Version: version,
		Authors: []*cli.Author{
			{Name: "rssdp-go contributors"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "target",
				Usage: "search target passed to the locator (must be non-empty); the M-SEARCH sent always carries ST: ssdp:all and every discovered device is printed",
				Value: "ssdp:all",
			},
			&cli.DurationFlag{
				Name:  "wait",
				Usage: "search wait time, 0 or greater than 1s; the M-SEARCH sent always carries MX: 3",
				Value: 3 * time.Second,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "how long to listen for responses before printing results and exiting",
				Value: 5 * time.Second,
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "print response headers for each discovered device",
			},
		},
		Action: discover,
		Commands: []*cli.Command{
			{
				Name:   "version",
				Usage:  "Show detailed version information",
				Action: showVersionInfo,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func discover(c *cli.Context) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		cfg = config.DefaultConfig()
	}

	fmt.Printf("Searching for %q (timeout %s)...\n", c.String("target"), c.Duration("timeout"))

	transport, err := ssdp.NewMulticastTransport(nil)
	if err != nil {
		return fmt.Errorf("failed to open multicast transport: %w", err)
	}
	defer transport.Close()

	loc, err := ssdp.NewLocator(transport, cfg.OSName, cfg.OSVersion)
	if err != nil {
		return fmt.Errorf("failed to create locator: %w", err)
	}
	defer loc.Dispose()

	loc.Listener.OnDeviceAvailable = func(d *ssdp.DiscoveredDevice, isNew bool, remoteIP net.IP) {
		if isNew {
			fmt.Printf("  found %s\n", d.USN)
		}
	}

	if err := loc.StartListeningForNotifications(); err != nil {
		return fmt.Errorf("failed to listen for notifications: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
	defer cancel()

	if err := loc.SearchAsync(ctx, c.String("target"), c.Duration("wait"), ctx.Done()); err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	<-ctx.Done()

	printResults(loc.Snapshot(), c.Bool("verbose"))
	return nil
}

func printResults(devices []*ssdp.DiscoveredDevice, verbose bool) {
	if len(devices) == 0 {
		printNoDevicesMessage()
		return
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].USN < devices[j].USN })

	fmt.Printf("\nFound %d device(s):\n\n", len(devices))
	for i, d := range devices {
		fmt.Printf("%d. %s\n", i+1, d.USN)
		fmt.Printf("   Notification Type: %s\n", d.NotificationType)
		fmt.Printf("   Location: %s\n", d.DescriptionLocation)
		fmt.Printf("   Cache Lifetime: %s\n", d.CacheLifetime)
		fmt.Printf("   Last Seen: %s\n", d.AsAt.Format("2006-01-02 15:04:05"))

		if verbose {
			for k, v := range d.ResponseHeaders {
				fmt.Printf("     %s: %s\n", k, v)
			}
		}

		if i < len(devices)-1 {
			fmt.Println()
		}
	}
}

func printNoDevicesMessage() {
	fmt.Println("No devices found on the network.")
	fmt.Println()
	fmt.Println("This could mean:")
	fmt.Println("- No UPnP devices advertising the requested search target are powered on")
	fmt.Println("- Devices are on a different network segment")
	fmt.Println("- The network blocks multicast traffic")
	fmt.Println("- A firewall is blocking UDP port 1900")
}

func showVersionInfo(_ *cli.Context) error {
	fmt.Printf("%s version %s\n", os.Args[0], version)
	fmt.Printf("Build commit: %s\n", commit)
	fmt.Printf("Build date: %s\n", date)
	fmt.Printf("Go version: %s\n", runtime.Version())
	fmt.Printf("Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	return nil
}
