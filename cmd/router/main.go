// Command router runs the eHuB-to-ArtNet lighting control router.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dridi14/p1-router/internal/config"
	"github.com/dridi14/p1-router/internal/controlapi"
	"github.com/dridi14/p1-router/internal/controlplane"
	"github.com/dridi14/p1-router/internal/emitter"
	"github.com/dridi14/p1-router/internal/fileconfig"
	"github.com/dridi14/p1-router/internal/metrics"
	"github.com/dridi14/p1-router/internal/patch"
	"github.com/dridi14/p1-router/internal/routererr"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	printBanner(cfg)

	mappingSnap, err := fileconfig.LoadMapping(cfg.MappingFile)
	if err != nil {
		log.Fatalf("Failed to load mapping file %s: %v", cfg.MappingFile, err)
	}
	patchSnap, patchEnabled, err := fileconfig.LoadPatch(cfg.PatchFile)
	if err != nil {
		log.Printf("No usable patch file at %s (%v); starting with no patch rules", cfg.PatchFile, err)
		patchSnap, patchEnabled = patch.Empty(), false
	}

	cp := controlplane.New()
	if err := cp.Start(mappingSnap, patchSnap, controlplane.Options{
		ListenAddr:     cfg.ListenAddr,
		ListenPort:     cfg.ListenPort,
		FilterUniverse: cfg.FilterUniverse,
		QueueCapacity:  cfg.ObserverQueueCapacity,
		Emit: emitter.Options{
			Interval:               time.Duration(cfg.EmitIntervalMs) * time.Millisecond,
			MaxPPS:                 cfg.MaxPPS,
			PerUniverseMinInterval: time.Duration(cfg.PerUniverseMinIntervalMs) * time.Millisecond,
		},
	}); err != nil {
		log.Fatalf("Failed to start router: %v", err)
	}
	cp.SetPatchEnabled(patchEnabled)

	api := controlapi.New(cp, cfg.CORSOrigin, cfg.RequestLogging)
	api.SetSnapshots(mappingSnap, patchSnap, patchEnabled)

	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      api.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Control-plane API listening on http://localhost:%s\n", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("control API server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range quit {
		if sig == syscall.SIGHUP {
			reload(cp, api, cfg)
			continue
		}
		break
	}

	log.Println("Shutting down router...")
	cp.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("control API shutdown error: %v", err)
	}

	log.Println("Router stopped")
}

// reload re-reads the mapping and patch files and hot-swaps them into the
// running control plane (§4.6 "swap_mapping(new)" / "swap_patch(new)").
// Invalid files leave the previous snapshot active (§7 "ConfigInvalid...
// Does not affect running state").
func reload(cp *controlplane.Controlplane, api *controlapi.Server, cfg *config.Config) {
	mappingSnap, err := fileconfig.LoadMapping(cfg.MappingFile)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues(routererr.ConfigInvalid.String()).Inc()
		log.Printf("SIGHUP: mapping reload rejected: %v", err)
		return
	}
	patchSnap, patchEnabled, err := fileconfig.LoadPatch(cfg.PatchFile)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues(routererr.ConfigInvalid.String()).Inc()
		log.Printf("SIGHUP: patch reload rejected: %v", err)
		return
	}

	cp.SwapMapping(mappingSnap)
	cp.SwapPatch(patchSnap)
	cp.SetPatchEnabled(patchEnabled)
	api.SetSnapshots(mappingSnap, patchSnap, patchEnabled)
	log.Println("SIGHUP: mapping and patch reloaded")
}

func printBanner(cfg *config.Config) {
	fmt.Println("============================================")
	fmt.Println("  eHuB -> ArtNet Router")
	fmt.Printf("  Version: %s\n", Version)
	fmt.Printf("  Build:   %s\n", BuildTime)
	fmt.Printf("  Commit:  %s\n", GitCommit)
	fmt.Println("============================================")
	fmt.Printf("  Environment:  %s\n", cfg.Env)
	fmt.Printf("  HTTP port:    %s\n", cfg.HTTPPort)
	fmt.Printf("  Listen:       %s:%d\n", cfg.ListenAddr, cfg.ListenPort)
	fmt.Printf("  Emit every:   %d ms\n", cfg.EmitIntervalMs)
	fmt.Printf("  Max PPS:      %d\n", cfg.MaxPPS)
	fmt.Println("============================================")
}
