package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"hdsfetch/internal/api"
	"hdsfetch/internal/filesystem"
	"hdsfetch/internal/hds"
	"hdsfetch/internal/progress"
	"hdsfetch/internal/session"

	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/spf13/cobra"
)

// Exit codes besides 0 and 1.
const exitStopped = 130

func runFetch(cmd *cobra.Command, args []string) error {
	output := lo.Must(cmd.Flags().GetString("output"))
	token := lo.Must(cmd.Flags().GetString("token"))
	parallel := max(lo.Must(cmd.Flags().GetInt("parallel")), 1)
	statusAddr := lo.Must(cmd.Flags().GetString("status-addr"))
	if output != "" && len(args) > 1 {
		return errors.New("--output requires a single media path")
	}
	if cfg.BaseURL == "" {
		return errors.New("no base URL configured; set --base-url or hds.base_url")
	}

	var signer *hds.Signer
	if cfg.PlayerID != "" || len(cfg.PlayerKey) > 0 {
		signer = hds.NewSigner(cfg.PlayerID, cfg.PlayerKey)
	}
	mgr := session.NewManager(hds.NewFetcher(cfg.HTTP, signer, log), log)

	hdnea := mo.None[string]()
	if token != "" {
		hdnea = mo.Some(token)
	}
	useBar := parallel == 1 && progress.IsTerminal(os.Stderr)

	if statusAddr != "" {
		server := &http.Server{Addr: statusAddr, Handler: api.New(mgr, log)}
		go func() {
			log.Infof("Status server starting on %s", statusAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("Could not listen on %s: %v", statusAddr, err)
			}
		}()
		defer shutdown(server)
	}

	var (
		wg      sync.WaitGroup
		slots   = make(chan struct{}, parallel)
		mu      sync.Mutex
		results []session.Event
	)
	for _, mediaPath := range args {
		name := lo.CoalesceOrEmpty(output, filesystem.OutputName(mediaPath))

		select {
		case slots <- struct{}{}:
		case <-cmd.Context().Done():
		}
		if cmd.Context().Err() != nil {
			break
		}

		dest, err := filesystem.CreateOutput(name)
		if err != nil {
			<-slots
			mu.Lock()
			results = append(results, session.Event{ID: name, Kind: session.KindFailed, Err: err})
			mu.Unlock()
			log.Errorf("%v", err)
			continue
		}
		req := hds.Request{BaseURL: cfg.BaseURL, MediaPath: mediaPath, Token: hdnea}
		d, err := mgr.Start(cmd.Context(), name, req, dest)
		if err != nil {
			<-slots
			dest.Close()
			mu.Lock()
			results = append(results, session.Event{ID: name, Kind: session.KindFailed, Err: err})
			mu.Unlock()
			log.Errorf("%v", err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-slots }()
			ev := render(d, useBar)
			mu.Lock()
			results = append(results, ev)
			mu.Unlock()
		}()
	}
	wg.Wait()

	return summarize(results, len(args))
}

func shutdown(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("Status server shutdown failed: %v", err)
	}
}

// render follows the events of d until its final event.
func render(d *session.Download, useBar bool) session.Event {
	var bar *progress.Bar
	if useBar {
		bar = progress.NewBar(os.Stderr, d.ID)
	}
	for ev := range d.Events() {
		switch ev.Kind {
		case session.KindProgress:
			if bar != nil {
				bar.SetFraction(ev.Fraction)
				bar.SetSize(ev.Bytes)
			} else {
				log.Infof("%s: %s", ev.ID, progress.Line(ev.Position, ev.Duration, ev.Bytes))
			}
		case session.KindDone:
			if bar != nil {
				_ = bar.Finish()
			}
		default:
			if bar != nil {
				_ = bar.Abandon()
			}
		}
	}
	return d.Status()
}

func summarize(results []session.Event, requested int) error {
	var failed, stopped int
	for _, ev := range results {
		switch ev.Kind {
		case session.KindFailed:
			failed++
			fmt.Fprintf(os.Stderr, "%s: failed: %v\n", ev.ID, ev.Err)
		case session.KindCancelled:
			stopped++
			fmt.Fprintf(os.Stderr, "%s: stopped\n", ev.ID)
		}
	}
	switch {
	case failed > 0:
		return &exitError{code: 1, err: fmt.Errorf("%d of %d downloads failed", failed, requested)}
	case stopped > 0 || len(results) < requested:
		return &exitError{code: exitStopped, err: errors.New("interrupted")}
	}
	return nil
}
