package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"runtime/pprof"
	"strings"
	"syscall"

	"gotibia/world"
)

var (
	doDebug bool

	host          string
	wsURL         string
	clientVersion int
	account       string
	password      string
	character     string
	pcapPaths     string
	fake          bool
	httpAddr      string
	itemsPath     string
)

func main() {
	flag.StringVar(&host, "host", "", "game server address (host:port)")
	flag.StringVar(&wsURL, "ws", "", "connect through a WebSocket bridge at this URL")
	flag.IntVar(&clientVersion, "version", 0, "client version to speak")
	flag.StringVar(&account, "account", "", "account name")
	flag.StringVar(&password, "password", "", "account password")
	flag.StringVar(&character, "character", "", "character to log in")
	flag.StringVar(&pcapPaths, "pcap", "", "replay server frames from .pcap/.pcapng files (comma separated)")
	flag.BoolVar(&fake, "fake", false, "play against a built-in fake server")
	flag.BoolVar(&doDebug, "debug", false, "verbose/debug logging")
	flag.StringVar(&httpAddr, "http", "", "serve the debug HTTP API on this address")
	flag.StringVar(&itemsPath, "items", "", "item type table (.yaml or binary type file)")
	flag.StringVar(&settingsPath, "settings", settingsPath, "settings file")
	cpuProfile := flag.String("cpuprofile", "", "write a CPU profile to this file")
	flag.Parse()

	setupLogging(doDebug)
	defer syncLogs()
	defer func() {
		if r := recover(); r != nil {
			logError("panic: %v\n%s", r, debug.Stack())
			syncLogs()
			os.Exit(2)
		}
	}()

	if !loadSettings() {
		saveSettings()
	}
	applyFlags()

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			logError("create %s: %v", *cpuProfile, err)
			os.Exit(1)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			logError("start CPU profile: %v", err)
			os.Exit(1)
		}
		defer func() {
			pprof.StopCPUProfile()
			f.Close()
		}()
	}

	types, err := loadItemTypes(gs.ItemsFile)
	if err != nil {
		logError("items: %v", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	defer cancel()

	reg := newClientRegistry()
	if gs.HTTPAddr != "" {
		go func() {
			if err := serveDebugHTTP(ctx, gs.HTTPAddr, reg); err != nil {
				logError("debug server: %v", err)
			}
		}()
	}

	if err := run(ctx, types, reg); err != nil && !errors.Is(err, context.Canceled) {
		logError("%v", err)
		syncLogs()
		os.Exit(1)
	}
}

// applyFlags overrides the loaded settings with any flags given on the
// command line.
func applyFlags() {
	if host != "" {
		gs.Host = host
	}
	if wsURL != "" {
		gs.WebSocketURL = wsURL
	}
	if clientVersion != 0 {
		gs.ClientVersion = clientVersion
	}
	if httpAddr != "" {
		gs.HTTPAddr = httpAddr
	}
	if itemsPath != "" {
		gs.ItemsFile = itemsPath
	}
}

func run(ctx context.Context, types world.ThingTypes, reg *clientRegistry) error {
	cred := gs.credentials(account, password, character)
	switch {
	case pcapPaths != "":
		var paths []string
		for _, p := range strings.Split(pcapPaths, ",") {
			if p = strings.TrimSpace(p); p != "" {
				paths = append(paths, p)
			}
		}
		return replayAll(ctx, paths, types, reg.add)
	case fake:
		return runFakeMode(ctx, cred, reg.add)
	}

	if cred.Character == "" {
		return fmt.Errorf("no character given (use -character)")
	}
	opt, err := liveOptions(types, cred)
	if err != nil {
		return err
	}
	conn, err := connect(ctx)
	if err != nil {
		return err
	}
	return runSession(ctx, conn, opt, reg.add)
}
