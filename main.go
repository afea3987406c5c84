// Command drawroom runs a shared whiteboard host, or mirrors one.
//
// Host mode (the default) serves the websocket relay and, unless disabled,
// advertises itself over mDNS. Mirror mode (-join or -discover) attaches a
// headless participant to a room, renders everything it receives, and
// exports the board as PNG and PDF on shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"drawroom/internal/board"
	"drawroom/internal/canvas"
	"drawroom/internal/client"
	"drawroom/internal/export"
	"drawroom/internal/lan"
	"drawroom/internal/server"
	"drawroom/internal/session"
)

const (
	defaultPort  = 8001
	mirrorWidth  = 1280
	mirrorHeight = 720
)

func main() {
	var (
		port     = flag.Int("port", envPort(), "listen port in host mode")
		join     = flag.String("join", "", "host address (host:port) to mirror instead of hosting")
		discover = flag.Bool("discover", false, "find a host over mDNS and mirror it")
		room     = flag.String("room", "", "room id for mirror mode (empty generates one)")
		out      = flag.String("out", "board", "output basename for mirror exports")
		announce = flag.Bool("mdns", true, "advertise the host over mDNS")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if *join != "" || *discover {
		runMirror(logger, *join, *room, *out)
		return
	}
	runHost(logger, *port, *announce)
}

// envPort honors the PORT environment variable as the flag default.
func envPort() int {
	if s := os.Getenv("PORT"); s != "" {
		if p, err := strconv.Atoi(s); err == nil {
			return p
		}
	}
	return defaultPort
}

func runHost(logger *slog.Logger, port int, announce bool) {
	registry := session.NewRegistry()
	gw := server.NewGateway(registry, logger)
	defer gw.Close()

	r := mux.NewRouter()
	r.HandleFunc("/ws", gw.Handle)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	}).Methods(http.MethodGet)

	if announce {
		if srv, err := lan.Advertise(port); err != nil {
			logger.Warn("mdns advertise failed", "err", err)
		} else {
			defer srv.Shutdown()
		}
	}
	if ip, err := lan.OutgoingIP(); err == nil {
		logger.Info("share address", "url", fmt.Sprintf("ws://%s:%d/ws", ip, port))
	}

	logger.Info("host listening", "port", port)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), r); err != nil {
		logger.Error("host failed", "err", err)
		os.Exit(1)
	}
}

func runMirror(logger *slog.Logger, addr, room, out string) {
	if addr == "" {
		found := discoverHost(logger)
		if found == "" {
			logger.Error("no host found on the local network")
			os.Exit(1)
		}
		addr = found
	}

	surface := canvas.New(mirrorWidth, mirrorHeight)
	ctrl := client.New(surface, logger)

	// Everything visible since the last clear, for the PDF export.
	var (
		mu  sync.Mutex
		ops []board.Op
	)
	record := func(op board.Op) {
		mu.Lock()
		defer mu.Unlock()
		if _, isClear := op.(board.Clear); isClear {
			ops = nil
			return
		}
		ops = append(ops, op)
	}
	ctrl.OnReplay = func(replay []board.Op) {
		for _, op := range replay {
			record(op)
		}
	}
	ctrl.OnRemote = record
	ctrl.OnDropped = func(err error) {
		logger.Error("connection lost", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	url := fmt.Sprintf("ws://%s/ws", addr)
	if err := ctrl.Connect(ctx, url); err != nil {
		logger.Error("connect failed", "err", err)
		os.Exit(1)
	}
	defer ctrl.Close()

	if room == "" {
		id, err := ctrl.CreateRoom(ctx)
		if err != nil {
			logger.Error("create room failed", "err", err)
			os.Exit(1)
		}
		room = id
	} else if err := ctrl.Join(ctx, room); err != nil {
		logger.Error("join failed", "err", err)
		os.Exit(1)
	}
	logger.Info("mirroring", "host", addr, "room", room)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	mu.Lock()
	defer mu.Unlock()
	if err := export.PNGFile(out+".png", surface.Image()); err != nil {
		logger.Error("png export failed", "err", err)
	} else {
		logger.Info("exported", "file", out+".png")
	}
	if err := export.PDF(out+".pdf", ops); err != nil {
		logger.Error("pdf export failed", "err", err)
	} else {
		logger.Info("exported", "file", out+".pdf")
	}
}

// discoverHost returns the first advertised host heard on the LAN.
func discoverHost(logger *slog.Logger) string {
	var (
		mu    sync.Mutex
		first string
	)
	err := lan.Discover(func(addr string) {
		mu.Lock()
		defer mu.Unlock()
		if first == "" {
			first = addr
			logger.Info("discovered host", "addr", addr)
		}
	})
	if err != nil {
		logger.Warn("mdns lookup failed", "err", err)
	}
	mu.Lock()
	defer mu.Unlock()
	return first
}
