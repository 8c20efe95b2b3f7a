package main

import (
	"flag"
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, in io.Reader, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("xdao-nref", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var g globalOptions
	fs.StringVar(&g.dbPath, "db", "", "Settings database path (default $NREF_DB or ~/.xdao/nref/settings.db)")
	fs.BoolVar(&g.verbose, "verbose", false, "Log debug output to stderr")
	fs.DurationVar(&g.timeout, "timeout", 0, "Per-relay timeout (default $NREF_FETCH_TIMEOUT or 5s)")
	fs.Usage = func() { printUsage(errOut) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	args = fs.Args()
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}
	switch args[0] {
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	}
	if _, ok := commands[args[0]]; !ok && args[0] != "shell" {
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}

	a, err := openApp(g, errOut)
	if err != nil {
		fmt.Fprintf(errOut, "xdao-nref: %v\n", err)
		return 1
	}
	defer a.close()

	if args[0] == "shell" {
		return cmdShell(a, in, out, errOut)
	}
	return dispatch(a, args, out, errOut)
}

type command func(a *app, args []string, out io.Writer, errOut io.Writer) int

var commands map[string]command

func init() {
	commands = map[string]command{
		"resolve":  cmdResolve,
		"save":     cmdSave,
		"forget":   cmdForget,
		"list":     cmdList,
		"relays":   cmdRelays,
		"contacts": cmdContacts,
		"config":   cmdConfig,
		"scan":     cmdScan,
		"export":   cmdExport,
		"import":   cmdImport,
	}
}

func dispatch(a *app, args []string, out io.Writer, errOut io.Writer) int {
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(errOut, "unknown command: %s\n", args[0])
		return 2
	}
	return cmd(a, args[1:], out, errOut)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "xdao-nref: resolve, save and browse Nostr event references")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  xdao-nref [--db <path>] [--timeout <d>] [--verbose] <command> ...")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  resolve [--json] <ref> [<ref> ...]")
	fmt.Fprintln(w, "  save [--overwrite] [--json] <ref>")
	fmt.Fprintln(w, "  forget [--json] <ref|id>")
	fmt.Fprintln(w, "  list [--json]")
	fmt.Fprintln(w, "  relays [list|add|remove|enable|disable|up|down] [<url>]")
	fmt.Fprintln(w, "  contacts [list|set <pubkey> <name>|remove <pubkey>|import <file>]")
	fmt.Fprintln(w, "  config [show|set <key> <value>]")
	fmt.Fprintln(w, "  scan [--resolve] [--json] <file|->")
	fmt.Fprintln(w, "  export [--index] <out.tar>")
	fmt.Fprintln(w, "  import [--overwrite] <in.tar>")
	fmt.Fprintln(w, "  shell")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - <ref> is a note1/nevent1 reference, optionally prefixed with nostr:")
	fmt.Fprintln(w, "  - relays are tried in order: reference hints first, then enabled relays")
	fmt.Fprintln(w, "  - relay urls may be ws://, wss:// or grpc://host:port (an xdao-nrefd mirror)")
	fmt.Fprintln(w, "  - shell keeps one process alive, so resolved events stay cached between commands")
	fmt.Fprintln(w, "  - environment: NREF_DB, NREF_SAVE_FOLDER, NREF_RELAYS, NREF_OVERWRITE, NREF_FETCH_TIMEOUT,")
	fmt.Fprintln(w, "    NREF_BACKUP_FOLDERS (comma-separated folders that mirror every save and delete)")
}
