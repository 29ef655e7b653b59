package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/Penlect/emqxlwm2m/history"
	"github.com/Penlect/emqxlwm2m/lwm2m"
)

const shellHelp = `Commands:
  read <path>               Read a resource or object
  discover <path>           Discover paths and attributes
  write <path> <value>      Write a resource value
  attr <path> <attrs>       Write notification attributes
  execute <path> [args]     Execute a resource
  create <path> <k=v ...>   Create an object instance
  delete <path>             Delete an object instance
  observe <path>            Observe; notifications print asynchronously
  cancel-observe <path>     Cancel an observation
  reboot                    Execute /3/0/4 (device reboot)
  disable                   Execute /1/0/4 (disable registration)
  update                    Execute /1/0/8 (trigger registration update)
  endpoint <name>           Switch to another endpoint
  help                      Show this help
  q                         Quit
`

// runShell drives the interactive session against one endpoint.
func (a *app) runShell(ctx context.Context, args []string) error {
	var name string
	var err error
	if len(args) > 0 {
		name = args[0]
	} else {
		name, err = a.selectEndpoint(ctx)
		if err != nil {
			return err
		}
	}

	gw, err := a.gateway(ctx)
	if err != nil {
		return err
	}
	ep, err := gw.Endpoint(ctx, name, a.timeout)
	if err != nil {
		return err
	}

	// Ranked path suggestions carry over between sessions.
	pathCache, err := history.OpenSelection(history.PathsPath(), history.DefaultLimit)
	if err != nil {
		a.logger.Warn("Path history unavailable", "error", err)
	}

	histFile := history.CommandPath()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          ep.Name() + "> ",
		HistoryFile:     histFile,
		AutoComplete:    a.shellCompleter(pathCache),
		InterruptPrompt: "^C",
		EOFPrompt:       "q",
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = rl.Close()
		a.compactHistory(histFile)
		if pathCache != nil {
			if err := pathCache.Close(); err != nil {
				a.logger.Warn("Saving path history failed", "error", err)
			}
		}
	}()

	observations := make(map[lwm2m.Path]lwm2m.Observation)
	defer func() {
		for _, obs := range observations {
			obs.Close()
		}
	}()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				break
			}
			continue
		}
		if err == io.EOF {
			break
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		cmd, rest := fields[0], fields[1:]
		switch cmd {
		case "q", "quit", "exit":
			return nil
		case "help":
			fmt.Print(shellHelp)
			continue
		case "endpoint":
			if len(rest) != 1 {
				fmt.Println("usage: endpoint <name>")
				continue
			}
			next, err := gw.Endpoint(ctx, rest[0], a.timeout)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			ep = next
			rl.SetPrompt(ep.Name() + "> ")
			continue
		}

		if err := a.shellCommand(ctx, ep, cmd, rest, observations, pathCache); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Println("error:", err)
		}
	}
	return nil
}

// shellCommand executes one device command line within the shell.
func (a *app) shellCommand(
	ctx context.Context,
	ep *lwm2m.Endpoint,
	cmd string,
	rest []string,
	observations map[lwm2m.Path]lwm2m.Observation,
	pathCache *history.SelectionCache,
) error {
	if path, ok := executeShortcuts[cmd]; ok {
		return a.cmdExecute(ctx, ep, path, []string{""})
	}
	if len(rest) == 0 {
		return fmt.Errorf("usage: %s <path> ...", cmd)
	}
	path := lwm2m.NewPath(rest[0])
	if pathCache != nil {
		pathCache.Record(string(path))
	}
	tail := rest[1:]

	switch cmd {
	case "read":
		return a.cmdRead(ctx, ep, path, tail)
	case "discover":
		return a.cmdDiscover(ctx, ep, path, tail)
	case "write":
		if len(tail) != 1 {
			return fmt.Errorf("usage: write <path> <value>")
		}
		return a.cmdWrite(ctx, ep, path, tail)
	case "attr":
		if len(tail) != 1 {
			return fmt.Errorf("usage: attr <path> <attributes>")
		}
		return a.cmdAttr(ctx, ep, path, tail)
	case "execute":
		if len(tail) == 0 {
			tail = []string{""}
		}
		return a.cmdExecute(ctx, ep, path, []string{strings.Join(tail, " ")})
	case "create":
		return a.cmdCreate(ctx, ep, path, tail)
	case "delete":
		return a.cmdDelete(ctx, ep, path, tail)
	case "observe":
		return a.shellObserve(ctx, ep, path, observations)
	case "cancel-observe":
		if obs, ok := observations[path]; ok {
			obs.Close()
			delete(observations, path)
		}
		return a.cmdCancelObserve(ctx, ep, path, tail)
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
}

// shellObserve starts an observation and prints notifications in the
// background so the prompt stays responsive.
func (a *app) shellObserve(
	ctx context.Context,
	ep *lwm2m.Endpoint,
	path lwm2m.Path,
	observations map[lwm2m.Path]lwm2m.Observation,
) error {
	content, obs, err := ep.Observe(ctx, path)
	if err != nil {
		return err
	}
	observations[path] = obs
	a.printContent(ep.Name(), content)

	go func() {
		for n := range obs.Notifications() {
			a.printNotification(n)
		}
	}()
	return nil
}

// selectEndpoint offers the known endpoints, most recently used first.
func (a *app) selectEndpoint(ctx context.Context) (string, error) {
	store, err := a.endpointStore(ctx)
	if err != nil {
		return "", err
	}
	records, err := store.List(ctx)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", fmt.Errorf("no known endpoints; pass one explicitly or run \"follow\" first")
	}

	candidates := make([]string, 0, len(records))
	for _, r := range records {
		candidates = append(candidates, r.Endpoint)
	}

	cache, err := history.OpenSelection(history.EndpointsPath(), history.DefaultLimit)
	if err == nil {
		candidates = cache.Rank(candidates)
	}

	for i, name := range candidates {
		fmt.Printf("%3d  %s\n", i+1, name)
	}
	fmt.Print("endpoint [1]: ")
	var answer string
	if _, err := fmt.Scanln(&answer); err != nil {
		answer = ""
	}

	selected := candidates[0]
	if answer != "" {
		if idx, err := strconv.Atoi(answer); err == nil && idx >= 1 && idx <= len(candidates) {
			selected = candidates[idx-1]
		} else {
			selected = answer
		}
	}

	if cache != nil {
		cache.Record(selected)
		if err := cache.Close(); err != nil {
			a.logger.Warn("Saving endpoint history failed", "error", err)
		}
	}
	return selected, nil
}

// shellCompleter completes commands and paths. Path candidates come
// from the loaded object definitions, ordered by recent use.
func (a *app) shellCompleter(pathCache *history.SelectionCache) readline.AutoCompleter {
	paths := func(string) []string {
		var out []string
		for _, obj := range a.objects.Objects() {
			out = append(out, fmt.Sprintf("/%d", obj.ID))
			for _, res := range obj.Resources {
				out = append(out, fmt.Sprintf("/%d/0/%d", obj.ID, res.ID))
			}
		}
		if pathCache != nil {
			out = pathCache.Rank(out)
		}
		return out
	}
	pathItem := readline.PcItemDynamic(paths)

	return readline.NewPrefixCompleter(
		readline.PcItem("read", pathItem),
		readline.PcItem("discover", pathItem),
		readline.PcItem("write", pathItem),
		readline.PcItem("attr", pathItem),
		readline.PcItem("execute", pathItem),
		readline.PcItem("create", pathItem),
		readline.PcItem("delete", pathItem),
		readline.PcItem("observe", pathItem),
		readline.PcItem("cancel-observe", pathItem),
		readline.PcItem("reboot"),
		readline.PcItem("disable"),
		readline.PcItem("update"),
		readline.PcItem("endpoint"),
		readline.PcItem("help"),
		readline.PcItem("q"),
	)
}

// compactHistory deduplicates the readline history file, keeping the
// most recent occurrence of each command.
func (a *app) compactHistory(path string) {
	commands, err := history.LoadCommands(path)
	if err != nil || len(commands) == 0 {
		return
	}
	if err := history.SaveCommands(path, commands); err != nil {
		a.logger.Warn("Compacting command history failed", "error", err)
	}
}
