package console

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell/v2"

	"cosmconsole/internal/renderer"
	"cosmconsole/internal/version"
	"cosmconsole/internal/voice"
)

// restTimeout bounds the console's one-shot REST calls.
const restTimeout = 30 * time.Second

// ProcessInput handles one line from the interactive shell: backslash-prefixed
// input dispatches a console command, anything else is sent to the agent as a
// user message.
func (c *Console) ProcessInput(sh *ishell.Context) {
	if len(sh.RawArgs) == 0 {
		return
	}

	raw := strings.TrimSpace(strings.Join(sh.RawArgs, " "))
	if raw == "" {
		return
	}

	if strings.HasPrefix(raw, "\\") {
		c.dispatch(raw[1:])
		return
	}

	if err := c.Send(raw); err != nil {
		c.printError(err.Error())
	}
}

func (c *Console) dispatch(input string) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return
	}
	name, args := fields[0], fields[1:]

	handler, ok := commandTable[name]
	if !ok {
		c.printError(fmt.Sprintf("unknown command \\%s (try \\help)", name))
		return
	}
	handler.run(c, args)
}

type command struct {
	usage string
	help  string
	run   func(c *Console, args []string)
}

var commandTable map[string]command

func init() {
	commandTable = map[string]command{
		"help": {usage: "\\help", help: "show available commands", run: func(c *Console, _ []string) {
			c.printHelp()
		}},
		"version": {usage: "\\version", help: "show version information", run: func(c *Console, _ []string) {
			fmt.Fprintln(c.out, version.GetFormattedVersion())
		}},
		"apps":     {usage: "\\apps", help: "list apps the backend serves", run: cmdApps},
		"use":      {usage: "\\use <app>", help: "switch to another app", run: cmdUse},
		"sessions": {usage: "\\sessions", help: "list this user's sessions", run: cmdSessions},
		"new": {usage: "\\new", help: "start a fresh session", run: func(c *Console, _ []string) {
			ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
			defer cancel()
			if err := c.NewSession(ctx); err != nil {
				c.printError(err.Error())
			}
		}},
		"switch": {usage: "\\switch <id>", help: "switch to another session", run: cmdSwitch},
		"delete": {usage: "\\delete <id>", help: "delete a session", run: cmdDelete},
		"history": {usage: "\\history", help: "render the whole transcript", run: func(c *Console, _ []string) {
			c.RenderHistory()
		}},
		"voice":          {usage: "\\voice on|off", help: "enable or mute speech output", run: cmdVoice},
		"voices":         {usage: "\\voices", help: "list the synthesis voice catalog", run: cmdVoices},
		"listen":         {usage: "\\listen", help: "capture one spoken message", run: cmdListen},
		"stop":           {usage: "\\stop", help: "stop capture, discard the transcript", run: cmdStop},
		"converse":       {usage: "\\converse on|off", help: "hands-free conversation mode", run: cmdConverse},
		"mute":           {usage: "\\mute", help: "toggle speech output", run: cmdMute},
		"copy":           {usage: "\\copy", help: "copy the last reply to the clipboard", run: cmdCopy},
		"artifacts":      {usage: "\\artifacts", help: "list this session's artifacts", run: cmdArtifacts},
		"artifact":       {usage: "\\artifact <name> [version]", help: "show one artifact", run: cmdArtifact},
		"versions":       {usage: "\\versions <name>", help: "list an artifact's versions", run: cmdVersions},
		"evalsets":       {usage: "\\evalsets", help: "list evaluation sets", run: cmdEvalSets},
		"evalset-new":    {usage: "\\evalset-new <name>", help: "create an evaluation set", run: cmdEvalSetNew},
		"evalset-add":    {usage: "\\evalset-add <set> <eval-id>", help: "record this session as an eval case", run: cmdEvalSetAdd},
		"evals":          {usage: "\\evals <set>", help: "list cases in an evaluation set", run: cmdEvals},
		"run-eval":       {usage: "\\run-eval <set> [id...]", help: "run evaluation cases", run: cmdRunEval},
		"deploy-metrics": {usage: "\\deploy-metrics <site-id>", help: "show a deployed site's metrics", run: cmdDeployMetrics},
		"track":          {usage: "\\track <site-id> <event>", help: "record a visitor event on a deployed site", run: cmdTrack},
		"exit": {usage: "\\exit", help: "leave the console", run: func(c *Console, _ []string) {
			c.Shutdown()
			os.Exit(0)
		}},
	}
}

func (c *Console) printHelp() {
	// Stable order; the map's iteration order is not.
	order := []string{
		"help", "version", "apps", "use", "sessions", "new", "switch", "delete",
		"history", "voice", "voices", "listen", "stop", "converse", "mute", "copy",
		"artifacts", "artifact", "versions", "evalsets", "evalset-new",
		"evalset-add", "evals", "run-eval", "deploy-metrics", "track", "exit",
	}
	fmt.Fprintln(c.out, "Anything without a leading \\ is sent to the agents.")
	for _, name := range order {
		cmd := commandTable[name]
		fmt.Fprintf(c.out, "  %-24s %s\n", cmd.usage, cmd.help)
	}
}

func cmdApps(c *Console, _ []string) {
	ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
	defer cancel()
	apps, err := c.api.ListApps(ctx)
	if err != nil {
		c.printError(err.Error())
		return
	}
	for _, app := range apps {
		fmt.Fprintln(c.out, app)
	}
}

func cmdUse(c *Console, args []string) {
	if len(args) != 1 {
		c.printError("usage: \\use <app>")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
	defer cancel()
	if err := c.UseApp(ctx, args[0]); err != nil {
		c.printError(err.Error())
		return
	}
	fmt.Fprintf(c.out, "using app %s\n", args[0])
}

func cmdMute(c *Console, _ []string) {
	if c.speaker == nil {
		c.printError("voice output is not configured")
		return
	}
	muted := !c.speaker.Muted()
	c.speaker.SetMuted(muted)
	if muted {
		fmt.Fprintln(c.out, "muted")
	} else {
		fmt.Fprintln(c.out, "unmuted")
	}
}

func cmdSessions(c *Console, _ []string) {
	ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
	defer cancel()
	sessions, err := c.api.ListSessions(ctx)
	if err != nil {
		c.printError(err.Error())
		return
	}
	active := ""
	if s := c.Session(); s != nil {
		active = s.ID
	}
	for _, s := range sessions {
		marker := " "
		if s.ID == active {
			marker = "*"
		}
		fmt.Fprintf(c.out, "%s %s  %s  (%d events)\n",
			marker, s.ID, s.CreatedAt().Format(time.RFC3339), len(s.Events))
	}
}

func cmdSwitch(c *Console, args []string) {
	if len(args) != 1 {
		c.printError("usage: \\switch <id>")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
	defer cancel()
	if err := c.SwitchSession(ctx, args[0]); err != nil {
		c.printError(err.Error())
	}
}

func cmdDelete(c *Console, args []string) {
	if len(args) != 1 {
		c.printError("usage: \\delete <id>")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
	defer cancel()
	if err := c.DeleteSession(ctx, args[0]); err != nil {
		c.printError(err.Error())
	}
}

func cmdVoice(c *Console, args []string) {
	if c.speaker == nil {
		c.printError("voice output is not configured")
		return
	}
	switch {
	case len(args) == 1 && args[0] == "on":
		c.speaker.SetMuted(false)
		fmt.Fprintln(c.out, "voice on")
	case len(args) == 1 && args[0] == "off":
		c.speaker.SetMuted(true)
		fmt.Fprintln(c.out, "voice off")
	default:
		c.printError("usage: \\voice on|off")
	}
}

func cmdVoices(c *Console, _ []string) {
	catalog, err := voice.LoadCatalog()
	if err != nil {
		c.printError(err.Error())
		return
	}
	for _, v := range catalog.Voices {
		fmt.Fprintf(c.out, "%-20s %-8s %-6s %s\n", v.Name, v.Provider, v.LanguageCode, v.Gender)
	}
}

func cmdListen(c *Console, _ []string) {
	if c.controller == nil {
		c.printError("voice capture is not configured")
		return
	}
	c.controller.StartListening()
	fmt.Fprintln(c.out, c.styles.progress.Render("listening… (\\stop to cancel)"))
}

func cmdStop(c *Console, _ []string) {
	if c.controller == nil {
		return
	}
	c.controller.StopListening()
}

func cmdConverse(c *Console, args []string) {
	if c.controller == nil {
		c.printError("voice capture is not configured")
		return
	}
	switch {
	case len(args) == 1 && args[0] == "on":
		c.controller.SetConversationMode(true)
		c.controller.StartListening()
		fmt.Fprintln(c.out, "conversation mode on")
	case len(args) == 1 && args[0] == "off":
		c.controller.SetConversationMode(false)
		c.controller.StopListening()
		fmt.Fprintln(c.out, "conversation mode off")
	default:
		c.printError("usage: \\converse on|off")
	}
}

func cmdCopy(c *Console, _ []string) {
	blocks := c.transcript.Blocks()
	var text string
	for i := len(blocks) - 1; i >= 0; i-- {
		if blocks[i].Coordinator != nil {
			text = blocks[i].Coordinator.Text
			break
		}
	}
	if text == "" {
		c.printError("nothing to copy yet")
		return
	}
	if err := copyToClipboard(text); err != nil {
		c.printError(err.Error())
		return
	}
	fmt.Fprintln(c.out, "copied")
}

func cmdArtifacts(c *Console, _ []string) {
	session := c.Session()
	if session == nil {
		c.printError("no active session")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
	defer cancel()
	names, err := c.api.ListArtifacts(ctx, session.ID)
	if err != nil {
		c.printError(err.Error())
		return
	}
	if len(names) == 0 {
		fmt.Fprintln(c.out, "(no artifacts)")
		return
	}
	for _, name := range names {
		fmt.Fprintln(c.out, name)
	}
}

func cmdArtifact(c *Console, args []string) {
	if len(args) < 1 || len(args) > 2 {
		c.printError("usage: \\artifact <name> [version]")
		return
	}
	session := c.Session()
	if session == nil {
		c.printError("no active session")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
	defer cancel()

	var raw json.RawMessage
	var err error
	if len(args) == 2 {
		version, convErr := strconv.Atoi(args[1])
		if convErr != nil {
			c.printError("version must be a number")
			return
		}
		raw, err = c.api.GetArtifactVersion(ctx, session.ID, args[0], version)
	} else {
		raw, err = c.api.GetArtifact(ctx, session.ID, args[0])
	}
	if err != nil {
		c.printError(err.Error())
		return
	}
	fmt.Fprintln(c.out, string(prettyJSON(raw)))
}

func cmdVersions(c *Console, args []string) {
	if len(args) != 1 {
		c.printError("usage: \\versions <name>")
		return
	}
	session := c.Session()
	if session == nil {
		c.printError("no active session")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
	defer cancel()
	versions, err := c.api.ListArtifactVersions(ctx, session.ID, args[0])
	if err != nil {
		c.printError(err.Error())
		return
	}
	for _, v := range versions {
		fmt.Fprintln(c.out, v)
	}
}

func cmdEvalSets(c *Console, _ []string) {
	ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
	defer cancel()
	sets, err := c.api.ListEvalSets(ctx)
	if err != nil {
		c.printError(err.Error())
		return
	}
	for _, set := range sets {
		fmt.Fprintln(c.out, set)
	}
}

func cmdEvalSetNew(c *Console, args []string) {
	if len(args) != 1 {
		c.printError("usage: \\evalset-new <name>")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
	defer cancel()
	if err := c.api.CreateEvalSet(ctx, args[0]); err != nil {
		c.printError(err.Error())
		return
	}
	fmt.Fprintln(c.out, "created")
}

func cmdEvalSetAdd(c *Console, args []string) {
	if len(args) != 2 {
		c.printError("usage: \\evalset-add <set> <eval-id>")
		return
	}
	session := c.Session()
	if session == nil {
		c.printError("no active session")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
	defer cancel()
	if err := c.api.AddSessionToEvalSet(ctx, args[0], args[1], session.ID); err != nil {
		c.printError(err.Error())
		return
	}
	fmt.Fprintln(c.out, "recorded")
}

func cmdEvals(c *Console, args []string) {
	if len(args) != 1 {
		c.printError("usage: \\evals <set>")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
	defer cancel()
	evals, err := c.api.ListEvals(ctx, args[0])
	if err != nil {
		c.printError(err.Error())
		return
	}
	for _, id := range evals {
		fmt.Fprintln(c.out, id)
	}
}

func cmdRunEval(c *Console, args []string) {
	if len(args) < 1 {
		c.printError("usage: \\run-eval <set> [id...]")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	report, err := c.api.RunEval(ctx, args[0], args[1:])
	if err != nil {
		c.printError(err.Error())
		return
	}
	fmt.Fprintln(c.out, string(prettyJSON(report)))
}

func cmdDeployMetrics(c *Console, args []string) {
	if c.renderSvc == nil {
		c.printError("renderer service is not configured")
		return
	}
	if len(args) != 1 {
		c.printError("usage: \\deploy-metrics <site-id>")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
	defer cancel()
	metrics, err := c.renderSvc.SiteMetrics(ctx, args[0])
	if err != nil {
		c.printError(err.Error())
		return
	}
	fmt.Fprintf(c.out, "site %s: %d views, %d visitors, %d conversions\n",
		metrics.SiteID, metrics.Views, metrics.Visitors, metrics.Conversions)
}

func cmdTrack(c *Console, args []string) {
	if c.renderSvc == nil {
		c.printError("renderer service is not configured")
		return
	}
	if len(args) != 2 {
		c.printError("usage: \\track <site-id> <event>")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
	defer cancel()
	event := renderer.TrackEvent{SiteID: args[0], EventType: args[1]}
	if err := c.renderSvc.Track(ctx, event); err != nil {
		c.printError(err.Error())
		return
	}
	fmt.Fprintf(c.out, "recorded %s on %s\n", event.EventType, event.SiteID)
}

func prettyJSON(raw json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return raw
	}
	return buf.Bytes()
}
