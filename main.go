// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/pvtools/pvsnap/ca"
	"github.com/pvtools/pvsnap/internal/config"
	"github.com/pvtools/pvsnap/internal/sim"
	"github.com/pvtools/pvsnap/internal/sim/store"
	"github.com/pvtools/pvsnap/pv"
	"github.com/pvtools/pvsnap/req"
	"github.com/pvtools/pvsnap/savefile"
)

func main() {
	flags := pflag.NewFlagSet("pvsnap", pflag.ExitOnError)
	configFile := flags.String("config", "", "path to config file")
	reqFile := flags.String("req", "", "request file path")
	macros := flags.String("macros", "", `request file macros, e.g. "SYS=TST,D=A"`)
	doSave := flags.Bool("save", false, "take one snapshot and exit")
	restoreFile := flags.String("restore", "", "restore PV values from a snapshot file and exit")
	comment := flags.String("comment", "", "snapshot comment")
	labels := flags.StringSlice("labels", nil, "snapshot labels")
	flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, *reqFile, *macros)

	setupLogger(cfg.Log)

	if !cfg.MacrosOK {
		slog.Error("invalid request file macros", "err", cfg.MacroErr)
		os.Exit(1)
	}
	if cfg.ReqFilePath == "" {
		slog.Error("no request file given, use --req or the config file")
		os.Exit(1)
	}

	slog.Info("starting pvsnap", "req", cfg.ReqFilePath, "saveDir", cfg.SaveDir)

	names, err := req.Read(cfg.ReqFilePath, cfg.Macros, nil)
	if err != nil {
		slog.Error("failed to resolve request file", "err", err)
		os.Exit(1)
	}
	slog.Info("request file resolved", "pvs", len(names))

	dev, err := newDevice(cfg.Sim)
	if err != nil {
		slog.Error("failed to open simulated device", "err", err)
		os.Exit(1)
	}
	defer dev.Close()

	workers := pv.NewWorkers()
	updater := pv.NewUpdater(workers, func(vals []ca.Value) {
		slog.Debug("poll cycle complete", "values", len(vals))
	})
	updater.Period = cfg.UpdatePeriod

	entries := make([]*pv.Entry, 0, len(names))
	for _, name := range names {
		ch := sim.NewChannel(name, dev)
		ch.SetLatency(cfg.Sim.Latency)
		ch.Connect()
		entries = append(entries, pv.NewEntry(name, ch))
	}
	updater.SetEntries(entries)
	updater.Start()
	defer updater.Stop()

	ctx := context.Background()
	switch {
	case *doSave:
		if err := saveSnapshot(ctx, cfg, workers, entries, *comment, *labels); err != nil {
			slog.Error("snapshot failed", "err", err)
			os.Exit(1)
		}
	case *restoreFile != "":
		restoreSnapshot(ctx, workers, entries, *restoreFile)
	default:
		monitor(cfg)
	}
	slog.Info("goodbye")
}

func applyFlags(cfg *config.Config, reqFile, macros string) {
	if reqFile != "" {
		if abs, err := filepath.Abs(reqFile); err == nil {
			reqFile = abs
		}
		cfg.ReqFilePath = reqFile
		if cfg.SaveDir == "" {
			cfg.SaveDir = filepath.Dir(reqFile)
		}
	}
	if macros != "" {
		parsed, err := req.ParseMacros(macros)
		if err != nil {
			cfg.MacrosOK = false
			cfg.MacroErr = err.Error()
			return
		}
		cfg.MacrosOK = true
		cfg.Macros = parsed
	}
}

func newDevice(cfg config.SimConfig) (*sim.Device, error) {
	var storage store.Storage
	switch cfg.Persistence.Type {
	case "file":
		storage = store.NewFileStorage(cfg.Persistence.Path)
	case "mmap":
		storage = store.NewMmapStorage(cfg.Persistence.Path)
	case "sql":
		storage = store.NewSQLStorage(cfg.Persistence.Path)
	default:
		storage = store.NewMemoryStorage()
	}
	return sim.NewDevice(storage)
}

// saveSnapshot captures all entries and writes one snapshot file to the save
// dir. Background polling is suspended for the duration so it does not
// compete for the entry guards.
func saveSnapshot(ctx context.Context, cfg *config.Config, workers *pv.Workers, entries []*pv.Entry, comment string, labels []string) error {
	workers.Suspend()
	defer workers.Resume()

	results := pv.SaveAll(ctx, entries)
	var pvs []savefile.SavedEntry
	for _, r := range results {
		if r.Status != pv.StatusOK {
			slog.Warn("pv not captured", "pv", r.Name, "status", r.Status.String())
			if !cfg.Force {
				continue
			}
		}
		pvs = append(pvs, savefile.SavedEntry{Name: r.Name, Value: r.Value})
	}

	prefix := cfg.SaveFilePrefix
	if prefix == "" {
		prefix = strings.SplitN(filepath.Base(cfg.ReqFilePath), ".", 2)[0]
	}
	name := prefix + "_" + time.Now().Format("20060102_150405") + savefile.Suffix
	path := filepath.Join(cfg.SaveDir, name)

	meta := savefile.Meta{
		Comment:     comment,
		Labels:      labels,
		ReqFileName: filepath.Base(cfg.ReqFilePath),
		Macros:      cfg.Macros,
	}
	if err := savefile.Write(path, pvs, meta); err != nil {
		return err
	}
	slog.Info("snapshot written", "file", path, "pvs", len(pvs))
	return nil
}

// restoreSnapshot loads a snapshot file and writes its values back.
func restoreSnapshot(ctx context.Context, workers *pv.Workers, entries []*pv.Entry, path string) {
	pvs, _, errs := savefile.Parse(path, false)
	for _, err := range errs {
		slog.Warn("save file problem", "file", path, "err", err)
	}

	values := make(map[string]ca.Value, len(pvs))
	for name, p := range pvs {
		values[name] = p.Value
	}

	workers.Suspend()
	defer workers.Resume()

	statuses := pv.RestoreAll(ctx, entries, values)
	restored := 0
	for name, st := range statuses {
		switch st {
		case pv.StatusOK, pv.StatusEqual:
			restored++
		default:
			slog.Warn("pv not restored", "pv", name, "status", st.String())
		}
	}
	slog.Info("restore finished", "file", path, "restored", restored, "total", len(entries))
}

// monitor keeps polling until interrupted, reporting snapshot file changes in
// the save dir.
func monitor(cfg *config.Config) {
	if cfg.SaveDir != "" {
		w, err := savefile.NewWatcher(cfg.SaveDir, func(path string) {
			slog.Info("snapshot file changed", "file", path)
		})
		if err != nil {
			slog.Warn("cannot watch save dir", "dir", cfg.SaveDir, "err", err)
		} else {
			defer w.Close()
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	slog.Info("shutting down...")
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Printf("Failed to open log file, falling back to stdout: %v\n", err)
			handler = slog.NewTextHandler(os.Stdout, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
