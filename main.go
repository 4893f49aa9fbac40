package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kaelbridge/tridb/config"
	"github.com/kaelbridge/tridb/internal/corelog"
	"github.com/kaelbridge/tridb/internal/dispatch"
	"github.com/kaelbridge/tridb/internal/durability"
	"github.com/kaelbridge/tridb/internal/registry"
	"github.com/kaelbridge/tridb/internal/scheduler"
	"github.com/kaelbridge/tridb/internal/session"
	"github.com/kaelbridge/tridb/internal/sqlgrammar"
	"github.com/kaelbridge/tridb/internal/wire"
)

func init() {
	godotenv.Load()
}

func main() {
	cfg := config.Cfg

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		corelog.Logger.Error("creating data dir", "dir", cfg.DataDir, "err", err)
		os.Exit(2)
	}

	reg := registry.New(cfg.DefaultDBName)
	users := session.NewUserStore()
	users.SetUser(session.UserRecord{
		Username:     "default",
		PasswordHash: session.HashPassword(cfg.DefaultPass),
		ACL:          []string{"+@all"},
		DefaultDB:    cfg.DefaultDBName,
	})

	d := dispatch.New(reg, users, cfg.DataDir, cfg.FsyncEveryN)

	if err := bootstrap(d, reg, users, cfg.DataDir); err != nil {
		corelog.Logger.Error("startup replay failed", "err", err)
		os.Exit(1)
	}

	go sweepLoop(reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool := scheduler.New(ctx, cfg.Workers, cfg.Workers*4)

	ln, err := net.Listen("tcp", cfg.Host+":"+cfg.Port)
	if err != nil {
		corelog.Logger.Error("listen failed", "addr", cfg.Host+":"+cfg.Port, "err", err)
		os.Exit(2)
	}

	go acceptLoop(ctx, ln, d, pool)
	corelog.Logger.Info("tridb listening", "addr", cfg.Host+":"+cfg.Port, "workers", cfg.Workers, "data_dir", cfg.DataDir)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	corelog.Logger.Info("shutting down")
	cancel()
	ln.Close()

	done := make(chan struct{})
	go func() {
		pool.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		corelog.Logger.Warn("worker drain timed out")
	}
	corelog.Logger.Info("stopped")
}

// bootstrap loads the consolidated registry snapshot (if any) and replays
// every <db>.db AOF file newer than it, rebuilding in-memory state exactly
// as a crash-recovered process would.
func bootstrap(d *dispatch.Dispatcher, reg *registry.Registry, users *session.UserStore, dataDir string) error {
	snapPath := filepath.Join(dataDir, "registry.snap.json")
	snap, err := durability.Load(snapPath)
	if err != nil {
		return err
	}
	if snap.Version != 0 {
		if err := durability.Apply(snap, reg, users); err != nil {
			return err
		}
	}

	logFiles, err := filepath.Glob(filepath.Join(dataDir, "*.db"))
	if err != nil {
		return err
	}

	d.Replaying = true
	defer func() { d.Replaying = false }()

	replay := session.New()
	if err := replay.Authenticate("default", []string{"+@all"}, reg.Default().Name); err != nil {
		return err
	}

	for _, path := range logFiles {
		dbname := strings.TrimSuffix(filepath.Base(path), ".db")
		frames, err := durability.ReplayFile(path)
		if err != nil {
			return err
		}
		for _, payload := range frames {
			parts, err := durability.DecodeTuple(payload)
			if err != nil {
				corelog.Logger.Warn("skipping corrupt aof record", "db", dbname, "err", err)
				continue
			}
			if len(parts) < 2 {
				continue
			}
			replay.DBName = parts[0]
			reg.Get(replay.DBName)
			reply := d.Dispatch(replay, parts[1:])
			if reply.Kind == wire.KindError {
				corelog.Logger.Warn("aof replay command failed", "db", dbname, "kind", reply.ErrKind, "msg", reply.ErrMsg)
			}
		}
	}
	return nil
}

// sweepLoop periodically reaps expired flexible-store keys across every
// database so idle, never-read TTLs are still reclaimed.
func sweepLoop(reg *registry.Registry) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		for _, name := range reg.Names() {
			reg.Get(name).Flexible.Sweep(1000)
		}
	}
}

// acceptLoop runs the server's TCP accept loop. The design's external
// wire-protocol codec (length-prefixed array-of-bulk-strings framing) is
// named out of scope in §1; this loop implements a minimal reference
// transport -- one request tuple per newline, tokenized the same
// quote/escape-aware way the SQL-ish grammar already is, with replies
// rendered in the design's five RESP-style shapes -- sufficient to drive
// the core end to end without standing in for that external codec.
func acceptLoop(ctx context.Context, ln net.Listener, d *dispatch.Dispatcher, pool *scheduler.Pool) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				corelog.Logger.Warn("accept error", "err", err)
				continue
			}
		}
		go handleConn(ctx, conn, d, pool)
	}
}

func handleConn(ctx context.Context, conn net.Conn, d *dispatch.Dispatcher, pool *scheduler.Pool) {
	addr := conn.RemoteAddr().String()
	defer conn.Close()
	defer d.Unregister(addr)

	sess := session.New()
	d.Register(addr, sess)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), 1<<20)
	w := bufio.NewWriter(conn)

	for scanner.Scan() {
		if sess.IsKilled() {
			return
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		tuple := sqlgrammar.Tokenize(line)
		if len(tuple) == 0 {
			continue
		}

		replyCh := make(chan wire.Reply, 1)
		submitted := pool.Submit(ctx, func() {
			replyCh <- d.Dispatch(sess, tuple)
		})
		if !submitted {
			return
		}
		reply := <-replyCh

		writeReply(w, reply)
		if err := w.Flush(); err != nil {
			return
		}
		if strings.EqualFold(tuple[0], "QUIT") {
			return
		}
	}
}

// writeReply renders a wire.Reply in the design's RESP-style shapes.
func writeReply(w *bufio.Writer, r wire.Reply) {
	switch r.Kind {
	case wire.KindSimple:
		fmt.Fprintf(w, "+%s\r\n", r.Simple)
	case wire.KindError:
		fmt.Fprintf(w, "-ERR %s %s\r\n", r.ErrKind, r.ErrMsg)
	case wire.KindInteger:
		fmt.Fprintf(w, ":%d\r\n", r.Integer)
	case wire.KindBulk:
		if r.BulkNil {
			fmt.Fprint(w, "$-1\r\n")
			return
		}
		fmt.Fprintf(w, "$%d\r\n%s\r\n", len(r.Bulk), r.Bulk)
	case wire.KindArray:
		fmt.Fprintf(w, "*%d\r\n", len(r.Array))
		for _, item := range r.Array {
			writeReply(w, item)
		}
	default:
		fmt.Fprint(w, "-ERR internal unknown reply kind\r\n")
	}
}
