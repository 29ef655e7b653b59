package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Penlect/emqxlwm2m/component"
	"github.com/Penlect/emqxlwm2m/endpointstore"
	"github.com/Penlect/emqxlwm2m/history"
	"github.com/Penlect/emqxlwm2m/lwm2m"
	"github.com/Penlect/emqxlwm2m/metric"
	"github.com/Penlect/emqxlwm2m/pkg/worker"
)

// executeShortcuts maps convenience verbs to the device-management
// resources they execute.
var executeShortcuts = map[string]lwm2m.Path{
	"reboot":  "/3/0/4",
	"disable": "/1/0/4",
	"update":  "/1/0/8",
}

// dispatch routes a subcommand to its implementation.
func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	if path, ok := executeShortcuts[cmd]; ok {
		if len(args) != 1 {
			return fmt.Errorf("usage: %s <endpoint>", cmd)
		}
		cmd = "execute"
		args = []string{args[0], string(path), ""}
	}
	switch cmd {
	case "read":
		return a.targetCommand(ctx, cmd, args, 2, a.cmdRead)
	case "discover":
		return a.targetCommand(ctx, cmd, args, 2, a.cmdDiscover)
	case "write":
		return a.targetCommand(ctx, cmd, args, 3, a.cmdWrite)
	case "attr":
		return a.targetCommand(ctx, cmd, args, 3, a.cmdAttr)
	case "execute":
		if len(args) == 2 {
			args = append(args, "")
		}
		return a.targetCommand(ctx, cmd, args, 3, a.cmdExecute)
	case "create":
		if len(args) < 3 {
			return fmt.Errorf("usage: create <endpoint> <path> <key=value ...>")
		}
		return a.fanOut(ctx, args[0], func(ctx context.Context, ep *lwm2m.Endpoint) error {
			return a.cmdCreate(ctx, ep, lwm2m.NewPath(args[1]), args[2:])
		})
	case "delete":
		return a.targetCommand(ctx, cmd, args, 2, a.cmdDelete)
	case "observe":
		return a.targetCommand(ctx, cmd, args, 2, a.cmdObserve)
	case "cancel-observe":
		return a.targetCommand(ctx, cmd, args, 2, a.cmdCancelObserve)
	case "endpoints":
		return a.cmdEndpoints(ctx)
	case "follow":
		return a.cmdFollow(ctx)
	case "shell":
		return a.runShell(ctx, args)
	default:
		return fmt.Errorf("unknown command %q (see --help)", cmd)
	}
}

// targetFunc runs one command against one endpoint. The extra arguments
// after <endpoint> <path> arrive in rest.
type targetFunc func(ctx context.Context, ep *lwm2m.Endpoint, path lwm2m.Path, rest []string) error

// targetCommand handles the common <endpoint> <path> [...] shape,
// including batch fan-out when the endpoint argument is a file.
func (a *app) targetCommand(ctx context.Context, cmd string, args []string, minArgs int, fn targetFunc) error {
	if len(args) < minArgs {
		return fmt.Errorf("usage: %s <endpoint> <path> ...", cmd)
	}
	path := lwm2m.NewPath(args[1])
	return a.fanOut(ctx, args[0], func(ctx context.Context, ep *lwm2m.Endpoint) error {
		return fn(ctx, ep, path, args[2:])
	})
}

// fanOut resolves the endpoint argument (a name, or a file of names)
// and runs fn against each. Multiple endpoints run concurrently on a
// worker pool; output lines carry the endpoint name as prefix.
func (a *app) fanOut(ctx context.Context, endpointArg string, fn func(context.Context, *lwm2m.Endpoint) error) error {
	endpoints, err := history.EndpointsFromArgs([]string{endpointArg})
	if err != nil {
		return err
	}
	if len(endpoints) == 0 {
		return fmt.Errorf("no endpoints given")
	}

	gw, err := a.gateway(ctx)
	if err != nil {
		return err
	}

	if len(endpoints) == 1 {
		ep, err := gw.Endpoint(ctx, endpoints[0], a.timeout)
		if err != nil {
			return err
		}
		return fn(ctx, ep)
	}

	var mu sync.Mutex
	var failed []string
	pool := worker.NewPool(4, len(endpoints), func(ctx context.Context, name string) error {
		ep, err := gw.Endpoint(ctx, name, a.timeout)
		if err == nil {
			err = fn(ctx, ep)
		}
		if err != nil {
			mu.Lock()
			failed = append(failed, name)
			mu.Unlock()
			fmt.Printf("%s: error: %v\n", name, err)
		}
		return err
	})
	if err := pool.Start(ctx); err != nil {
		return err
	}
	for _, name := range endpoints {
		if err := pool.Submit(name); err != nil {
			return err
		}
	}
	drain := time.Duration(len(endpoints))*a.timeout + 5*time.Second
	if err := pool.Stop(drain); err != nil {
		return err
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d endpoints failed", len(failed), len(endpoints))
	}
	return nil
}

func (a *app) cmdRead(ctx context.Context, ep *lwm2m.Endpoint, path lwm2m.Path, _ []string) error {
	content, err := ep.Read(ctx, path)
	if err != nil {
		return err
	}
	a.printContent(ep.Name(), content)
	return nil
}

func (a *app) cmdDiscover(ctx context.Context, ep *lwm2m.Endpoint, path lwm2m.Path, _ []string) error {
	links, err := ep.Discover(ctx, path)
	if err != nil {
		return err
	}
	for _, p := range sortedPaths(links) {
		attrs := links[p]
		var parts []string
		for _, k := range sortedKeys(attrs) {
			parts = append(parts, fmt.Sprintf("%s=%v", k, attrs[k]))
		}
		line := a.objects.Describe(p)
		if len(parts) > 0 {
			line += "  " + strings.Join(parts, " ")
		}
		fmt.Printf("%s: %s\n", ep.Name(), line)
	}
	return nil
}

func (a *app) cmdWrite(ctx context.Context, ep *lwm2m.Endpoint, path lwm2m.Path, rest []string) error {
	if err := ep.Write(ctx, path, parseValue(rest[0])); err != nil {
		return err
	}
	fmt.Printf("%s: %s written\n", ep.Name(), path)
	return nil
}

func (a *app) cmdAttr(ctx context.Context, ep *lwm2m.Endpoint, path lwm2m.Path, rest []string) error {
	attrs, err := lwm2m.ParseAttributes(rest[0])
	if err != nil {
		return err
	}
	if err := ep.WriteAttr(ctx, path, attrs); err != nil {
		return err
	}
	fmt.Printf("%s: %s attributes written\n", ep.Name(), path)
	return nil
}

func (a *app) cmdExecute(ctx context.Context, ep *lwm2m.Endpoint, path lwm2m.Path, rest []string) error {
	if err := ep.Execute(ctx, path, rest[0]); err != nil {
		return err
	}
	fmt.Printf("%s: %s executed\n", ep.Name(), path)
	return nil
}

func (a *app) cmdCreate(ctx context.Context, ep *lwm2m.Endpoint, basePath lwm2m.Path, pairs []string) error {
	values := make(map[lwm2m.Path]any, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("malformed key=value pair %q", pair)
		}
		values[lwm2m.NewPath(k)] = parseValue(v)
	}
	if err := ep.Create(ctx, basePath, values); err != nil {
		return err
	}
	fmt.Printf("%s: created under %s\n", ep.Name(), basePath)
	return nil
}

func (a *app) cmdDelete(ctx context.Context, ep *lwm2m.Endpoint, path lwm2m.Path, _ []string) error {
	if err := ep.Delete(ctx, path); err != nil {
		return err
	}
	fmt.Printf("%s: %s deleted\n", ep.Name(), path)
	return nil
}

// cmdObserve starts an observation and prints notifications until the
// context is cancelled (Ctrl-C).
func (a *app) cmdObserve(ctx context.Context, ep *lwm2m.Endpoint, path lwm2m.Path, _ []string) error {
	content, obs, err := ep.Observe(ctx, path)
	if err != nil {
		return err
	}
	defer obs.Close()

	a.printContent(ep.Name(), content)
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-obs.Notifications():
			if !ok {
				return nil
			}
			a.printNotification(n)
		}
	}
}

func (a *app) cmdCancelObserve(ctx context.Context, ep *lwm2m.Endpoint, path lwm2m.Path, _ []string) error {
	if err := ep.CancelObserve(ctx, path); err != nil {
		return err
	}
	fmt.Printf("%s: %s observation cancelled\n", ep.Name(), path)
	return nil
}

// cmdEndpoints lists the endpoints the follow command has persisted.
func (a *app) cmdEndpoints(ctx context.Context) error {
	store, err := a.endpointStore(ctx)
	if err != nil {
		return err
	}
	records, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no known endpoints (is \"follow\" running?)")
		return nil
	}
	now := time.Now()
	for _, r := range records {
		state := "alive"
		if r.Expired(now) {
			state = "expired"
		}
		fmt.Printf("%s\tlifetime=%ds\tlast=%s\t%s\t%s\n",
			r.Endpoint, r.Lifetime, r.LastEvent,
			r.LastSeen.Format(time.RFC3339), state)
	}
	return nil
}

// cmdFollow runs a long-lived tracker persisting register and update
// events into the KV store until interrupted.
func (a *app) cmdFollow(ctx context.Context) error {
	a.cfg.Gateway.Wildcard = true
	gw, err := a.gateway(ctx)
	if err != nil {
		return err
	}

	if a.cfg.MetricsPort > 0 {
		server := metric.NewServer(a.cfg.MetricsPort, "/metrics", a.registry)
		go func() {
			if err := server.Start(); err != nil {
				a.logger.Warn("Metrics server failed", "error", err)
			}
		}()
		defer func() {
			if err := server.Stop(); err != nil {
				a.logger.Warn("Metrics server stop failed", "error", err)
			}
		}()
	}
	store, err := a.endpointStore(ctx)
	if err != nil {
		return err
	}

	follower := endpointstore.NewFollower(endpointstore.FollowerDeps{
		Store:  store,
		Source: gw.Engine(),
		Logger: a.logger,
	})
	if err := follower.Initialize(); err != nil {
		return err
	}
	if err := follower.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := follower.Stop(5 * time.Second); err != nil {
			a.logger.Warn("Follower stop failed", "error", err)
		}
	}()

	var mirror *component.Logger
	if a.cfg.LogMirror {
		mirror = component.NewLogger(appName, a.client.GetConnection(), a.logger)
	}

	fmt.Println("following endpoint registrations, Ctrl-C to stop")
	events, stop := gw.Engine().Lifecycle("")
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case lc, ok := <-events:
			if !ok {
				return nil
			}
			fmt.Printf("%s\t%s\tlifetime=%ds\tobjects=%s\n",
				lc.Timestamp.Format(time.RFC3339), lc.MsgType,
				lc.Lifetime, strings.Join(lc.ObjectList, ","))
			if mirror != nil {
				mirror.Info(fmt.Sprintf("endpoint %s: %s", lc.Endpoint, lc.MsgType))
			}
		}
	}
}

// printContent prints read/observe content, one path per line, with
// object definition annotations when available.
func (a *app) printContent(endpoint string, content map[lwm2m.Path]any) {
	for _, p := range sortedPaths(content) {
		fmt.Printf("%s: %s = %s\n", endpoint, a.objects.Describe(p), formatValue(content[p]))
	}
}

func (a *app) printNotification(n *lwm2m.Notification) {
	for _, p := range sortedPaths(n.Content) {
		fmt.Printf("%s: [%s seq=%d] %s = %s\n",
			n.Endpoint, n.Timestamp.Format("15:04:05"), n.SeqNum,
			a.objects.Describe(p), formatValue(n.Content[p]))
	}
}

// parseValue guesses the wire type of a command-line value: int, then
// float, then bool, falling back to string.
func parseValue(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return strconv.Quote(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func sortedPaths[V any](m map[lwm2m.Path]V) []lwm2m.Path {
	paths := make([]lwm2m.Path, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })
	return paths
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
