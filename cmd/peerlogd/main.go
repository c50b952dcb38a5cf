// cmd/peerlogd is the main entrypoint for a peerlog node.
//
// Configuration is entirely via flags so a single binary can serve any
// role in a gossip mesh.
//
// Example — single node:
//
//	./peerlogd --id node1 --addr :8080 --data-dir /var/peerlog/node1
//
// Example — 3-node mesh:
//
//	./peerlogd --id node1 --addr :8080 --data-dir /tmp/n1 \
//	           --peers ws://localhost:8081/gossip,ws://localhost:8082/gossip
//	./peerlogd --id node2 --addr :8081 --data-dir /tmp/n2 \
//	           --peers ws://localhost:8080/gossip,ws://localhost:8082/gossip
//	./peerlogd --id node3 --addr :8082 --data-dir /tmp/n3 \
//	           --peers ws://localhost:8080/gossip,ws://localhost:8081/gossip
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/peerlog/peerlog/internal/api"
	"github.com/peerlog/peerlog/internal/cache"
	"github.com/peerlog/peerlog/internal/coordinator"
	"github.com/peerlog/peerlog/internal/gossip"
	"github.com/peerlog/peerlog/internal/keystore"
	"github.com/peerlog/peerlog/internal/objectstore"
)

func main() {
	var (
		nodeID    string
		addr      string
		dataDir   string
		peersFlag string
		remoteTry int
	)

	root := &cobra.Command{
		Use:   "peerlogd",
		Short: "Run a peerlog gossip node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(nodeID, addr, dataDir, peersFlag, remoteTry)
		},
	}

	root.Flags().StringVar(&nodeID, "id", "node1", "unique node identifier")
	root.Flags().StringVar(&addr, "addr", ":8080", "listen address (host:port)")
	root.Flags().StringVar(&dataDir, "data-dir", "/tmp/peerlog", "directory for object store and cache")
	root.Flags().StringVar(&peersFlag, "peers", "", "comma-separated seed peer gossip URLs, e.g. ws://host:port/gossip")
	root.Flags().IntVar(&remoteTry, "remote-tries", 3, "peers to try on an object store miss")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(nodeID, addr, dataDir, peersFlag string, remoteTries int) error {
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	nodeDir := strings.TrimRight(dataDir, "/") + "/" + nodeID
	if err := os.MkdirAll(nodeDir, 0o755); err != nil {
		return err
	}

	// ── Storage ──────────────────────────────────────────────────────────
	local, err := objectstore.NewBoltStore(nodeDir)
	if err != nil {
		return err
	}
	defer local.Close()

	peers := objectstore.NewPeerStore(0)
	store := objectstore.NewRemoteStore(local, peers, http.DefaultClient, remoteTries)

	levelCache, err := cache.Load(nodeDir + "/cache")
	if err != nil {
		return err
	}
	defer levelCache.Close()

	keys := keystore.NewStore()

	// ── Gossip ───────────────────────────────────────────────────────────
	bus := gossip.NewHTTPBus(nodeID, log)

	var seeds []gossip.Peer
	if peersFlag != "" {
		for i, p := range strings.Split(peersFlag, ",") {
			seeds = append(seeds, gossip.Peer{ID: nodeID + "-seed-" + strconv.Itoa(i), Address: p})
			// Object fetches are plain HTTP GETs, so the peer's ws(s) gossip
			// URL is turned into its http(s) base URL.
			base := strings.TrimSuffix(p, "/gossip")
			base = strings.Replace(base, "wss://", "https://", 1)
			base = strings.Replace(base, "ws://", "http://", 1)
			peers.AddPeer(base)
		}
	}
	roster := gossip.NewRoster(seeds)
	for _, dialErr := range roster.ConnectAll(bus) {
		log.Warn("seed peer dial failed", zap.Error(dialErr))
	}

	deps := coordinator.Deps{
		Store:  store,
		Bus:    bus,
		Keys:   keys,
		Cache:  levelCache,
		SelfID: nodeID,
	}

	// ── HTTP server ──────────────────────────────────────────────────────
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(api.Logger(log), api.Recovery(log))

	handler := api.NewHandler(store, bus, deps)
	handler.Register(router)

	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("listening", zap.String("node", nodeID), zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down", zap.String("node", nodeID))
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
