// discovery.go
package mmec_fab

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/discovery"
	"go.viam.com/rdk/services/generic"

	"mmec_fab/rosbridge"
	"mmec_fab/rrc"
)

var DiscoveryModel = resource.NewModel("mmec", "fab", "discovery")

const defaultPingTimeout = 2 * time.Second

func init() {
	resource.RegisterService(
		discovery.API,
		DiscoveryModel,
		resource.Registration[discovery.Service, *DiscoveryConfig]{
			Constructor: newDiscovery,
		})
}

// DiscoveryConfig lists where to look for RRC drivers.
type DiscoveryConfig struct {
	URLs        []string `json:"urls,omitempty"`       // rosbridge servers (default: ws://localhost:9090)
	Namespaces  []string `json:"namespaces,omitempty"` // robot namespaces (default: /rob1)
	PingTimeout float64  `json:"ping_timeout_sec,omitempty"`
}

// Validate ensures the config is valid
func (cfg *DiscoveryConfig) Validate(path string) ([]string, []string, error) {
	if cfg.PingTimeout < 0 {
		return nil, nil, resource.NewConfigValidationError(path, errors.New("ping_timeout_sec must not be negative"))
	}
	return nil, nil, nil
}

// rrcDiscovery finds RRC drivers behind rosbridge servers and proposes a pick-place
// service for each one that answers.
type rrcDiscovery struct {
	resource.Named
	resource.AlwaysRebuild
	resource.TriviallyCloseable
	logger logging.Logger
	cfg    *DiscoveryConfig
}

func newDiscovery(
	ctx context.Context,
	deps resource.Dependencies,
	conf resource.Config,
	logger logging.Logger,
) (discovery.Service, error) {
	cfg, err := resource.NativeConfig[*DiscoveryConfig](conf)
	if err != nil {
		return nil, err
	}

	return &rrcDiscovery{
		Named:  conf.ResourceName().AsNamed(),
		logger: logger,
		cfg:    cfg,
	}, nil
}

// DiscoverResources pings every url/namespace pair and returns service configurations.
// extra may carry "urls" and "namespaces" lists that replace the configured ones.
func (dis *rrcDiscovery) DiscoverResources(ctx context.Context, extra map[string]any) ([]resource.Config, error) {
	dis.logger.Info("Starting RRC discovery")

	urls := candidateURLs(stringList(extra, "urls", dis.cfg.URLs))
	namespaces := stringList(extra, "namespaces", dis.cfg.Namespaces)
	if len(namespaces) == 0 {
		namespaces = []string{DefaultNamespace}
	}
	timeout := defaultPingTimeout
	if dis.cfg.PingTimeout > 0 {
		timeout = time.Duration(dis.cfg.PingTimeout * float64(time.Second))
	}

	var allConfigs []resource.Config
	for _, u := range urls {
		select {
		case <-ctx.Done():
			dis.logger.Info("Discovery cancelled")
			return allConfigs, ctx.Err()
		default:
		}

		allConfigs = append(allConfigs, dis.discoverURL(ctx, u, namespaces, timeout)...)
	}

	if len(allConfigs) == 0 {
		dis.logger.Info("No RRC drivers discovered")
	} else {
		dis.logger.Infof("Discovered %d service configurations", len(allConfigs))
	}
	return allConfigs, nil
}

// discoverURL opens one rosbridge connection and pings each namespace on it.
func (dis *rrcDiscovery) discoverURL(ctx context.Context, u string, namespaces []string, timeout time.Duration) []resource.Config {
	dis.logger.Debugf("Checking %s", u)

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	conn, err := rosbridge.Dial(dialCtx, u, dis.logger.Sublogger("rosbridge"))
	cancel()
	if err != nil {
		dis.logger.Debugf("No rosbridge at %s: %v", u, err)
		return nil
	}
	defer conn.Terminate()

	jobFile := findJobFile(moduleDataDir(), dis.logger)

	var configs []resource.Config
	for _, ns := range namespaces {
		key := (&Config{URL: u, Namespace: ns}).controllerKey()
		if entry, held := controllers.Status(key); held {
			dis.logger.Debugf("Skipping %s, in use by %s", key, entry.Owner)
			continue
		}
		if !dis.pingNamespace(ctx, conn, ns, timeout) {
			dis.logger.Debugf("No RRC driver answered in %s on %s", ns, u)
			continue
		}
		dis.logger.Infof("Discovered RRC driver in %s on %s", ns, u)
		configs = append(configs, generateConfig(u, ns, jobFile))
	}
	return configs
}

// pingNamespace sends a single Noop with feedback and reports whether it was answered.
func (dis *rrcDiscovery) pingNamespace(ctx context.Context, conn *rosbridge.Conn, ns string, timeout time.Duration) bool {
	client, err := rrc.NewClient(ctx, conn, ns, dis.logger.Sublogger("rrc"))
	if err != nil {
		dis.logger.Debugf("Failed to set up RRC topics in %s: %v", ns, err)
		return false
	}
	_, err = client.SendAndWait(ctx, rrc.Noop{}, timeout)
	return err == nil
}

func generateConfig(u, ns, jobFile string) resource.Config {
	attrs := map[string]interface{}{
		"url":       u,
		"namespace": ns,
	}
	if jobFile != "" {
		attrs["job_file"] = jobFile
	}
	return resource.Config{
		Name:       "pick-place-" + resourceSuffix(u, ns),
		API:        generic.API,
		Model:      PickPlaceModel,
		Attributes: attrs,
	}
}

// candidateURLs normalizes host[:port] entries to websocket urls, drops anything that is
// not ws or wss and removes duplicates. An empty list means the local default.
func candidateURLs(urls []string) []string {
	if len(urls) == 0 {
		return []string{DefaultURL}
	}
	candidates := []string{}
	seen := map[string]bool{}
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "://") {
			raw = "ws://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			continue
		}
		if u.Port() == "" {
			u.Host += ":9090"
		}
		s := u.String()
		if !seen[s] {
			seen[s] = true
			candidates = append(candidates, s)
		}
	}
	return candidates
}

// resourceSuffix builds a name fragment from url and namespace
// ws://10.0.0.5:9090, /rob1 -> "10-0-0-5-9090-rob1"
func resourceSuffix(u, ns string) string {
	host := u
	if parsed, err := url.Parse(u); err == nil {
		host = parsed.Host
	}
	r := strings.NewReplacer(".", "-", ":", "-", "/", "-", "[", "", "]", "")
	return strings.Trim(r.Replace(host)+"-"+r.Replace(strings.Trim(ns, "/")), "-")
}

func moduleDataDir() string {
	if dir := os.Getenv("VIAM_MODULE_DATA"); dir != "" {
		return dir
	}
	return "/tmp"
}

// findJobFile looks for a frames file in dir and returns its base name, or "".
func findJobFile(dir string, logger logging.Logger) string {
	if _, err := os.Stat(filepath.Join(dir, "pp_frames.json")); err == nil {
		logger.Debug("Found frames file: pp_frames.json")
		return "pp_frames.json"
	}
	logger.Debug("No frames file found")
	return ""
}

func stringList(extra map[string]any, key string, def []string) []string {
	raw, ok := extra[key].([]interface{})
	if !ok {
		return def
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
