// Package main provides the rssdp-go daemon: it advertises configured
// devices over SSDP, maintains a cache of devices discovered from other
// advertisers, and exposes that cache and its events over HTTP. The
// advertised devices are not listed by the HTTP API.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/gesellix/rssdp-go/pkg/config"
	"github.com/gesellix/rssdp-go/pkg/ssdp"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
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
		Name:  "ssdpd",
		Usage: "Advertise and discover UPnP devices over SSDP, with an HTTP status API",
		Description: `ssdpd runs a Publisher (advertising configured devices) and a Locator
   (tracking devices advertised by others) over a shared multicast socket,
   and exposes the Locator's device cache and events through a small HTTP API.`,
		Version: version,
		Authors: []*cli.Author{
			{Name: "rssdp-go contributors"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "http-listen-addr",
				Usage:   "address for the HTTP status API to listen on",
				EnvVars: []string{"SSDP_HTTP_LISTEN_ADDR"},
			},
			&cli.StringFlag{
				Name:    "os-name",
				Usage:   "OS name advertised in the SERVER header",
				EnvVars: []string{"SSDP_OS_NAME"},
			},
			&cli.StringFlag{
				Name:    "os-version",
				Usage:   "OS version advertised in the SERVER header",
				EnvVars: []string{"SSDP_OS_VERSION"},
			},
			&cli.DurationFlag{
				Name:    "alive-interval",
				Usage:   "interval between ssdp:alive heartbeat sweeps",
				EnvVars: []string{"SSDP_ALIVE_INTERVAL"},
			},
			&cli.DurationFlag{
				Name:    "search-interval",
				Usage:   "interval between periodic M-SEARCH broadcasts",
				EnvVars: []string{"SSDP_SEARCH_INTERVAL"},
			},
			&cli.StringFlag{
				Name:    "notification-filter",
				Usage:   "only stream /events for this notification type (the device cache is not filtered)",
				EnvVars: []string{"SSDP_NOTIFICATION_FILTER"},
			},
		},
		Action: run,
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

func run(c *cli.Context) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Printf("failed to load configuration, using defaults: %v", err)
		cfg = config.DefaultConfig()
	}
	applyFlagOverrides(c, cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	transport, err := ssdp.NewSharedMulticastTransport(ssdp.DefaultLogger{})
	if err != nil {
		return fmt.Errorf("failed to open multicast transport: %w", err)
	}
	defer transport.Close()

	pub, err := ssdp.NewPublisher(transport, cfg.OSName, cfg.OSVersion, cfg.SendOnlyMatchedHost)
	if err != nil {
		return fmt.Errorf("failed to create publisher: %w", err)
	}
	defer pub.Dispose()

	if err := registerConfiguredDevices(pub, cfg); err != nil {
		return fmt.Errorf("failed to register advertised devices: %w", err)
	}
	pub.StartSendingAliveNotifications(cfg.AliveInterval)

	loc, err := ssdp.NewLocator(transport, cfg.OSName, cfg.OSVersion)
	if err != nil {
		return fmt.Errorf("failed to create locator: %w", err)
	}
	defer loc.Dispose()
	loc.NotificationFilter = cfg.NotificationFilter

	events := newEventHub()
	loc.Listener.OnDeviceAvailable = func(d *ssdp.DiscoveredDevice, isNew bool, remoteIP net.IP) {
		events.publish(deviceEvent{
			Type:             "available",
			USN:              d.USN,
			NotificationType: d.NotificationType,
			Location:         d.DescriptionLocation,
			RemoteAddr:       remoteAddrString(remoteIP),
			NewlyDiscovered:  isNew,
		})
	}
	loc.Listener.OnDeviceUnavailable = func(d *ssdp.DiscoveredDevice, expired bool) {
		events.publish(deviceEvent{
			Type:             "unavailable",
			USN:              d.USN,
			NotificationType: d.NotificationType,
			Expired:          expired,
		})
	}

	if err := loc.StartListeningForNotifications(); err != nil {
		return fmt.Errorf("failed to listen for notifications: %w", err)
	}
	loc.StartPeriodicSearch(5*time.Second, cfg.SearchInterval)

	server := &statusServer{cfg: cfg, locator: loc, events: events}
	r := setupRouter(server)

	log.Printf("ssdpd listening on %s", cfg.HTTPListenAddr)
	return http.ListenAndServe(cfg.HTTPListenAddr, r)
}

func applyFlagOverrides(c *cli.Context, cfg *config.Config) {
	if c.IsSet("http-listen-addr") {
		cfg.HTTPListenAddr = c.String("http-listen-addr")
	}
	if c.IsSet("os-name") {
		cfg.OSName = c.String("os-name")
	}
	if c.IsSet("os-version") {
		cfg.OSVersion = c.String("os-version")
	}
	if c.IsSet("alive-interval") {
		cfg.AliveInterval = c.Duration("alive-interval")
	}
	if c.IsSet("search-interval") {
		cfg.SearchInterval = c.Duration("search-interval")
	}
	if c.IsSet("notification-filter") {
		cfg.NotificationFilter = c.String("notification-filter")
	}
}

func registerConfiguredDevices(pub *ssdp.Publisher, cfg *config.Config) error {
	for _, dc := range cfg.AdvertisedDevices {
		root := ssdp.NewRootDevice(dc.UUID, dc.DeviceType, "schemas-upnp-org", "1", dc.Location,
			time.Duration(dc.CacheLifetime)*time.Second)
		root.FriendlyName = dc.FriendlyName
		root.SupportPnpRootDevice = cfg.SupportPnpRootDevice
		if err := pub.AddDevice(root); err != nil {
			return fmt.Errorf("device %s: %w", dc.UUID, err)
		}
	}
	return nil
}

func remoteAddrString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

func setupRouter(server *statusServer) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", server.handleHealthz)
	r.Get("/devices", server.handleDevices)
	r.Get("/events", server.handleEvents)

	return r
}

type statusServer struct {
	cfg     *config.Config
	locator *ssdp.Locator
	events  *eventHub
}

func (s *statusServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *statusServer) handleDevices(w http.ResponseWriter, r *http.Request) {
	snapshot := s.locator.Snapshot()
	out := make([]deviceView, 0, len(snapshot))
	for _, d := range snapshot {
		out = append(out, deviceView{
			USN:              d.USN,
			NotificationType: d.NotificationType,
			Location:         d.DescriptionLocation,
			CacheLifetime:    d.CacheLifetime.String(),
			LastSeen:         d.AsAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

type deviceView struct {
	USN              string    `json:"usn"`
	NotificationType string    `json:"notificationType"`
	Location         string    `json:"location"`
	CacheLifetime    string    `json:"cacheLifetime"`
	LastSeen         time.Time `json:"lastSeen"`
}

func (s *statusServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.events.serveWS(w, r)
}

func showVersionInfo(_ *cli.Context) error {
	fmt.Printf("%s version %s\n", os.Args[0], version)
	fmt.Printf("Build commit: %s\n", commit)
	fmt.Printf("Build date: %s\n", date)
	fmt.Printf("Go version: %s\n", runtime.Version())
	fmt.Printf("Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	return nil
}
