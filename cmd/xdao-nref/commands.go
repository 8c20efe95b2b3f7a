package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"xdao.co/nref/document"
	"xdao.co/nref/event"
	"xdao.co/nref/model"
	"xdao.co/nref/nip19"
	"xdao.co/nref/resolver"
	"xdao.co/nref/storage/bundle"
)

func writeJSON(out io.Writer, v any) int {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(out, "encode json: %v\n", err)
		return 1
	}
	_, _ = out.Write(append(b, '\n'))
	return 0
}

func fail(errOut io.Writer, err error) int {
	fmt.Fprintln(errOut, model.FromError(err).Error())
	return 1
}

func cmdResolve(a *app, args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	fs.SetOutput(errOut)
	asJSON := fs.Bool("json", false, "Print results as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(errOut, "usage: xdao-nref resolve [--json] <ref> [<ref> ...]")
		return 2
	}
	ctx := context.Background()
	rc := 0
	for _, ref := range fs.Args() {
		outcome, err := a.resolver.Resolve(ctx, ref)
		if err != nil {
			rc = fail(errOut, err)
			continue
		}
		if *asJSON {
			resp, err := model.FromOutcome(a.resolver, outcome)
			if err != nil {
				rc = fail(errOut, err)
				continue
			}
			writeJSON(out, resp)
			continue
		}
		a.printOutcome(out, ref, outcome)
	}
	return rc
}

func (a *app) printOutcome(out io.Writer, ref string, o resolver.Outcome) {
	saved := o.Tier == resolver.TierPersisted
	if !saved {
		saved, _ = a.resolver.Saved(o.Event.ID)
	}
	fmt.Fprintf(out, "id:      %s\n", o.Event.ID)
	fmt.Fprintf(out, "author:  %s\n", a.contacts.Label(o.Event.PubKey))
	fmt.Fprintf(out, "kind:    %d\n", o.Event.Kind)
	fmt.Fprintf(out, "source:  %s (%s)\n", o.Source, o.Tier)
	fmt.Fprintf(out, "saved:   %t\n", saved)
	s := a.effective()
	if s.RenderNostrLinks {
		if link := document.Link(s.WebClientURLTemplate, ref); link != "" {
			fmt.Fprintf(out, "link:    %s\n", link)
		}
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, o.Event.Content)
	fmt.Fprintln(out)
}

func cmdSave(a *app, args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("save", flag.ContinueOnError)
	fs.SetOutput(errOut)
	overwrite := fs.Bool("overwrite", a.effective().OverwriteExisting, "Replace an existing saved entry")
	asJSON := fs.Bool("json", false, "Print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: xdao-nref save [--overwrite] [--json] <ref>")
		return 2
	}
	resp, err := model.Persist(context.Background(), a.resolver, model.PersistRequest{Ref: fs.Arg(0), Overwrite: *overwrite})
	if err != nil {
		return fail(errOut, err)
	}
	if *asJSON {
		return writeJSON(out, resp)
	}
	fmt.Fprintln(out, resp.Notice)
	return 0
}

func cmdForget(a *app, args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("forget", flag.ContinueOnError)
	fs.SetOutput(errOut)
	asJSON := fs.Bool("json", false, "Print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: xdao-nref forget [--json] <ref|id>")
		return 2
	}
	resp, err := model.Forget(a.resolver, fs.Arg(0))
	if err != nil {
		return fail(errOut, err)
	}
	if *asJSON {
		return writeJSON(out, resp)
	}
	if resp.Removed {
		fmt.Fprintf(out, "Event deleted: %s\n", resp.ID[:8])
	} else {
		fmt.Fprintf(out, "Event not saved: %s\n", resp.ID[:8])
	}
	return 0
}

func cmdList(a *app, args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(errOut)
	asJSON := fs.Bool("json", false, "Print entries as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	entries, err := a.resolver.List()
	if err != nil {
		return fail(errOut, err)
	}
	views := make([]model.SavedEntry, 0, len(entries))
	for _, e := range entries {
		views = append(views, model.SavedEntryFrom(e))
	}
	if *asJSON {
		return writeJSON(out, views)
	}
	if len(views) == 0 {
		fmt.Fprintf(out, "no saved events in %s\n", a.root)
		return 0
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SAVED\tID\tAUTHOR\tRELAY\tCONTENT")
	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", v.SavedAt, v.ID[:8], a.contacts.Label(v.Author), v.Relay, v.Preview)
	}
	_ = tw.Flush()
	return 0
}

func cmdRelays(a *app, args []string, out io.Writer, errOut io.Writer) int {
	sub := "list"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}
	if sub == "list" {
		for i, r := range a.settings.Relays {
			mark := " "
			if r.Enabled {
				mark = "x"
			}
			fmt.Fprintf(out, "%d. [%s] %s\n", i+1, mark, r.URL)
		}
		if len(a.env.Relays) > 0 {
			fmt.Fprintln(out, "(NREF_RELAYS overrides this list for resolution)")
		}
		return 0
	}
	if len(args) != 1 {
		fmt.Fprintln(errOut, "usage: xdao-nref relays [list|add|remove|enable|disable|up|down] <url>")
		return 2
	}
	u := args[0]
	var err error
	switch sub {
	case "add":
		err = a.settings.AddRelay(u)
	case "remove":
		err = a.settings.RemoveRelay(u)
	case "enable":
		err = a.settings.SetRelayEnabled(u, true)
	case "disable":
		err = a.settings.SetRelayEnabled(u, false)
	case "up":
		err = a.settings.MoveRelay(u, -1)
	case "down":
		err = a.settings.MoveRelay(u, 1)
	default:
		fmt.Fprintf(errOut, "unknown relays subcommand: %s\n", sub)
		return 2
	}
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if err := a.saveSettings(context.Background()); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return cmdRelays(a, nil, out, errOut)
}

func cmdContacts(a *app, args []string, out io.Writer, errOut io.Writer) int {
	sub := "list"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}
	ctx := context.Background()
	switch sub {
	case "list":
		fs := flag.NewFlagSet("contacts list", flag.ContinueOnError)
		fs.SetOutput(errOut)
		asJSON := fs.Bool("json", false, "Print contacts as JSON")
		if err := fs.Parse(args); err != nil {
			return 2
		}
		all := a.contacts.All()
		views := make([]model.Contact, 0, len(all))
		for _, c := range all {
			npub, _ := nip19.EncodePubkey(c.Pubkey)
			views = append(views, model.Contact{Pubkey: c.Pubkey, Npub: npub, Name: c.Name})
		}
		if *asJSON {
			return writeJSON(out, views)
		}
		for _, c := range views {
			fmt.Fprintf(out, "%s  %s\n", c.Npub, c.Name)
		}
		return 0
	case "set":
		if len(args) != 2 {
			fmt.Fprintln(errOut, "usage: xdao-nref contacts set <pubkey|npub> <name>")
			return 2
		}
		if err := a.contacts.Set(args[0], args[1]); err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
	case "remove":
		if len(args) != 1 {
			fmt.Fprintln(errOut, "usage: xdao-nref contacts remove <pubkey|npub>")
			return 2
		}
		removed, err := a.contacts.Remove(args[0])
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		if !removed {
			fmt.Fprintln(out, "no such contact")
			return 0
		}
	case "import":
		if len(args) != 1 {
			fmt.Fprintln(errOut, "usage: xdao-nref contacts import <file>")
			return 2
		}
		n, err := a.importContacts(args[0])
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		fmt.Fprintf(out, "imported %d contacts\n", n)
	default:
		fmt.Fprintf(errOut, "unknown contacts subcommand: %s\n", sub)
		return 2
	}
	if err := a.contacts.Save(ctx, a.db); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}

// importContacts accepts either a kind-3 event or a pubkey to name object.
func (a *app) importContacts(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var probe struct {
		Kind *int `json:"kind"`
	}
	if err := json.Unmarshal(b, &probe); err == nil && probe.Kind != nil {
		var e event.Event
		if err := json.Unmarshal(b, &e); err != nil {
			return 0, fmt.Errorf("decode contact list: %w", err)
		}
		return a.contacts.ImportEvent(e)
	}
	return a.contacts.ImportJSON(bytes.NewReader(b))
}

func cmdConfig(a *app, args []string, out io.Writer, errOut io.Writer) int {
	sub := "show"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}
	switch sub {
	case "show":
		return writeJSON(out, a.settings)
	case "set":
	default:
		fmt.Fprintf(errOut, "unknown config subcommand: %s\n", sub)
		return 2
	}
	if len(args) != 2 {
		fmt.Fprintln(errOut, "usage: xdao-nref config set <saveFolder|overwriteExisting|renderNostrLinks|webClientUrlTemplate|myPubkey> <value>")
		return 2
	}
	key, value := args[0], args[1]
	s := a.settings
	switch key {
	case "saveFolder":
		s.SaveFolder = value
	case "webClientUrlTemplate":
		s.WebClientURLTemplate = value
	case "myPubkey":
		s.MyPubkey = value
	case "overwriteExisting", "renderNostrLinks":
		v, err := strconv.ParseBool(value)
		if err != nil {
			fmt.Fprintf(errOut, "%s: %v\n", key, err)
			return 2
		}
		if key == "overwriteExisting" {
			s.OverwriteExisting = v
		} else {
			s.RenderNostrLinks = v
		}
	default:
		fmt.Fprintf(errOut, "unknown setting: %s\n", key)
		return 2
	}
	if err := s.Validate(); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	a.settings = s
	if err := a.saveSettings(context.Background()); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if key == "saveFolder" {
		if err := a.build(); err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
	}
	return 0
}

func cmdScan(a *app, args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(errOut)
	resolve := fs.Bool("resolve", false, "Resolve every reference found")
	asJSON := fs.Bool("json", false, "Print matches as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: xdao-nref scan [--resolve] [--json] <file|->")
		return 2
	}
	var r io.Reader
	if fs.Arg(0) == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		defer f.Close()
		r = f
	}

	var frags []document.Fragment
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 1; sc.Scan(); n++ {
		frags = append(frags, document.Fragment{ID: "line:" + strconv.Itoa(n), Text: sc.Text()})
	}
	if err := sc.Err(); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	if !*resolve {
		var matches []model.ScanMatch
		for _, f := range frags {
			for _, m := range nip19.FindAll(f.Text) {
				sm := model.ScanMatch{Ref: m.Ref, Start: m.Start, End: m.End}
				if ptr, err := nip19.Decode(m.Ref); err != nil {
					sm.Error = err.Error()
				} else {
					sm.ID = ptr.ID.String()
				}
				matches = append(matches, sm)
			}
		}
		if *asJSON {
			return writeJSON(out, matches)
		}
		for _, m := range matches {
			if m.Error != "" {
				fmt.Fprintf(out, "%s\tinvalid: %s\n", m.Ref, m.Error)
				continue
			}
			fmt.Fprintf(out, "%s\t%s\n", m.Ref, m.ID)
		}
		return 0
	}

	s := a.effective()
	template := ""
	if s.RenderNostrLinks {
		template = s.WebClientURLTemplate
	}
	p := document.NewProcessor(document.Options{Resolver: a.resolver, LinkTemplate: template, Logger: a.logger})
	rc := 0
	for _, b := range p.Process(context.Background(), frags) {
		if b.Err != nil {
			fmt.Fprintf(out, "[%s] Failed to fetch event: %s\n", b.FragmentID, model.FromError(b.Err).Message)
			rc = 1
			continue
		}
		fmt.Fprintf(out, "[%s] %s\n", b.FragmentID, b.Ref)
		a.printOutcome(out, b.Ref, *b.Outcome)
	}
	return rc
}

func cmdExport(a *app, args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(errOut)
	index := fs.Bool("index", false, "Include index.json")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: xdao-nref export [--index] <out.tar>")
		return 2
	}
	f, err := os.Create(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	n, err := bundle.Export(f, a.store, *index)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(errOut, "export: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "exported %d events\n", n)
	return 0
}

func cmdImport(a *app, args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(errOut)
	overwrite := fs.Bool("overwrite", false, "Replace existing entries")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: xdao-nref import [--overwrite] <in.tar>")
		return 2
	}
	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer f.Close()
	stats, err := bundle.Import(f, a.store, bundle.ImportOptions{Overwrite: *overwrite, IgnoreUnknown: true})
	if err != nil {
		fmt.Fprintf(errOut, "import: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "imported %d events, skipped %d\n", stats.Imported, stats.Skipped)
	return 0
}
