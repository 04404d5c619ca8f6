// Command sharesrv starts the broker controller, which spawns N
// control-plane workers, and an accept loop that serves the VFS over HTTP
// via the hand-rolled transaction engine in this same process. On-disk
// configuration parsing proper, template asset authoring,
// and TLS termination stay external collaborators (spec §1); this
// entrypoint only turns CLI flags into the typed Config record and an
// initial auth.Snapshot, exactly the boundary spec.md draws around
// "AuthSrv exposes an already-parsed VFS + user table".
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/codemicro/sharesrv/internal/auth"
	"github.com/codemicro/sharesrv/internal/broker"
	"github.com/codemicro/sharesrv/internal/config"
	"github.com/codemicro/sharesrv/internal/httpcli"
	"github.com/codemicro/sharesrv/internal/metrics"
	"github.com/codemicro/sharesrv/internal/vfs"
	"github.com/codemicro/sharesrv/internal/web"
)

var (
	flagListen       []string
	flagWorkers      int
	flagMounts       []string
	flagMetricsAddr  string
	flagQuiet        bool
	flagVerbose      bool
)

func main() {
	root := &cobra.Command{
		Use:   "sharesrv",
		Short: "self-hosted VFS file server",
		RunE:  run,
	}
	flags := root.Flags()
	flags.StringSliceVar(&flagListen, "listen", []string{":3923"}, "address(es) to accept HTTP connections on")
	flags.IntVar(&flagWorkers, "workers", runtime.NumCPU(), "number of worker processes")
	flags.StringSliceVar(&flagMounts, "mount", nil, "name=realpath[:ro|rw] mount, repeatable")
	flags.StringVar(&flagMetricsAddr, "metrics-listen", "", "management surface listen address (empty disables it)")
	flags.BoolVar(&flagQuiet, "quiet", false, "suppress non-error logging")
	flags.BoolVar(&flagVerbose, "verbose", false, "enable debug logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log := logrus.New()
	switch {
	case flagVerbose:
		log.SetLevel(logrus.DebugLevel)
	case flagQuiet:
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}
	entry := logrus.NewEntry(log)

	cfg := &config.Config{
		ListenAddrs:  flagListen,
		MetricsAddr:  flagMetricsAddr,
		Workers:      flagWorkers,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Quiet:        flagQuiet,
		Verbose:      flagVerbose,
	}

	mounts, err := parseMounts(flagMounts)
	if err != nil {
		return err
	}
	if len(mounts) == 0 {
		entry.Warn("no --mount given; VFS is empty")
	}

	store := auth.New(auth.Snapshot{Mount: mounts}, entry)

	tpl, err := web.Load()
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	hashKey := make([]byte, 32)
	if _, err := rand.Read(hashKey); err != nil {
		return fmt.Errorf("generating ip-hash key: %w", err)
	}

	collectors, registry := metrics.NewCollectors()

	engine := &httpcli.Engine{
		Auth:        store,
		Tpl:         tpl,
		Assets:      web.Assets(),
		Hasher:      httpcli.NewIPHasher(hashKey),
		Log:         entry,
		AuditDir:    ".",
		Requests:    collectors,
		UploadBytes: collectors.UploadBytes,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.MetricsAddr != "" {
		go func() {
			srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Router(registry)}
			entry.WithField("addr", cfg.MetricsAddr).Info("management surface listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				entry.WithError(err).Error("management surface stopped")
			}
		}()
	}

	ctrl := broker.NewController(controllerRegistry(), entry)
	ctrl.Restarts = collectors.WorkerRestarts

	g := make(chan error, 1)
	go func() { g <- ctrl.Spawn(ctx, cfg.Workers, store, nil) }()

	if err := acceptLoop(ctx, cfg.ListenAddrs, engine, entry); err != nil {
		return err
	}

	ctrl.Shutdown()
	return <-g
}

// acceptLoop is the TCP accept loop spec §1 treats as an external
// collaborator "assumed to hand off accepted sockets to the transaction
// engine". It is implemented directly on net.Listener here rather than
// dispatched through the broker's work queue, since this entrypoint runs
// the transaction engine in-process rather than across real OS workers.
func acceptLoop(ctx context.Context, addrs []string, engine *httpcli.Engine, log *logrus.Entry) error {
	if len(addrs) == 0 {
		<-ctx.Done()
		return nil
	}
	lns := make([]net.Listener, 0, len(addrs))
	for _, addr := range addrs {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		lns = append(lns, ln)
		log.WithField("addr", addr).Info("listening")
	}

	go func() {
		<-ctx.Done()
		for _, ln := range lns {
			_ = ln.Close()
		}
	}()

	errCh := make(chan error, len(lns))
	for _, ln := range lns {
		go func(ln net.Listener) {
			for {
				nc, err := ln.Accept()
				if err != nil {
					errCh <- err
					return
				}
				go httpcli.ServeNetConn(engine, nc)
			}
		}(ln)
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
}

// controllerRegistry is the set of dotted-path operations workers may
// invoke on the controller via Ask (spec §4.6, §9 "a registry mapping
// string operation names to typed handler functions").
func controllerRegistry() map[string]broker.Handler {
	return map[string]broker.Handler{}
}

// parseMounts turns "name=realpath[:ro|rw]" flags into VFS nodes. This
// stands in for the on-disk config collaborator spec §1 keeps out of
// scope; the anonymous user ("*") is granted read by default and write
// only when ":rw" is given, matching copyparty's permissive
// single-operator default.
func parseMounts(raw []string) ([]*vfs.Node, error) {
	nodes := make([]*vfs.Node, 0, len(raw))
	for _, m := range raw {
		name, rest, ok := strings.Cut(m, "=")
		if !ok {
			return nil, fmt.Errorf("bad --mount %q, want name=realpath[:ro|rw]", m)
		}
		realpath, mode, _ := strings.Cut(rest, ":")
		node := &vfs.Node{
			Name:     name,
			RealPath: realpath,
			ReadACL:  map[string]bool{"*": true},
			WriteACL: map[string]bool{},
		}
		if mode == "rw" {
			node.WriteACL["*"] = true
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}
