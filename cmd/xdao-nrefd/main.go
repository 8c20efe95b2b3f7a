package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"xdao.co/nref/config"
	"xdao.co/nref/relay/grpcrelay"
	"xdao.co/nref/relay/registry"
	"xdao.co/nref/storage"
	"xdao.co/nref/storage/localfs"

	_ "xdao.co/nref/relay/wsrelay"
)

func main() {
	fs := flag.NewFlagSet("xdao-nrefd", flag.ExitOnError)
	listen := fs.String("listen", "127.0.0.1:7700", "listen address")
	dir := fs.String("dir", "", "Comma-separated saved-events folders to serve, searched in order (default $NREF_SAVE_FOLDER or "+config.DefaultSaveFolder+")")
	listTransports := fs.Bool("list-transports", false, "List relay transports known to clients and exit")

	_ = fs.Parse(os.Args[1:])
	if *listTransports {
		for _, t := range registry.List() {
			if t.Description == "" {
				_, _ = fmt.Fprintf(os.Stdout, "%s\n", t.Name)
				continue
			}
			_, _ = fmt.Fprintf(os.Stdout, "%s\t%s\n", t.Name, t.Description)
		}
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	dirs := splitList(*dir)
	if len(dirs) == 0 {
		env, err := config.ParseEnv()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		dirs = []string{env.Apply(config.Defaults()).SaveFolder}
	}
	var stores []storage.Store
	for _, d := range dirs {
		s, err := localfs.New(d, localfs.Options{Logger: logger})
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		stores = append(stores, s)
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer lis.Close()

	s := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	grpcrelay.RegisterMirrorServer(s, &grpcrelay.Server{Source: storage.Fallback{Stores: stores}})

	logger.Info("xdao-nrefd listening", "addr", lis.Addr().String(), "dirs", strings.Join(dirs, ","))
	if err := s.Serve(lis); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
