// Package reconcile implements the Sync Reconciler of spec.md §4.7: it
// compares a local directory against a server's catalog and issues whatever
// uploads/downloads bring the two into agreement, server-wins on mismatch.
package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cshekharsharma/filesync/internal/clientapi"
	"github.com/cshekharsharma/filesync/internal/digest"
	"github.com/cshekharsharma/filesync/internal/protocol"
)

// maxConcurrentTransfers bounds how many files are uploaded/downloaded at
// once — reconciling many independent files is embarrassingly parallel, but
// unbounded concurrency would open one file descriptor and one HTTP
// connection per file.
const maxConcurrentTransfers = 4

// excludedNames are never considered part of the synced file set: hidden
// files (dotfile prefix), build artifacts, and storage directories
// (spec.md §4.7) — matching original_source/src/client/client.cpp's Sync(),
// which checks name == "build" alongside the catalog file and storage root.
var excludedNames = []string{"filesync.db", "storage", "build"}

// Plan describes what reconciliation decided to do with one name.
type Plan struct {
	Name   string
	Action Action
}

// Action is what Run decided for a given file name.
type Action string

const (
	ActionUpload   Action = "upload"
	ActionDownload Action = "download"
	ActionNone     Action = "none"
)

// Reconciler compares a local directory against a server's catalog.
type Reconciler struct {
	client *clientapi.Client
	dir    string
	log    *zap.Logger
}

// New returns a Reconciler that syncs dir against the server client talks to.
func New(client *clientapi.Client, dir string, log *zap.Logger) *Reconciler {
	return &Reconciler{client: client, dir: dir, log: log}
}

// Run scans the local directory, compares it against the server's live
// file list, and performs whatever uploads/downloads are needed so both
// sides converge — server wins when hashes disagree (spec.md §4.7).
func (r *Reconciler) Run(ctx context.Context) ([]Plan, error) {
	local, err := r.localFiles()
	if err != nil {
		return nil, err
	}
	remote, err := r.client.ListFiles()
	if err != nil {
		return nil, err
	}
	remoteByName := make(map[string]protocol.FileInfo, len(remote))
	for _, f := range remote {
		remoteByName[f.Name] = f
	}

	plans := r.decide(local, remoteByName)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentTransfers)

	for _, p := range plans {
		p := p
		if p.Action == ActionNone {
			continue
		}
		g.Go(func() error {
			return r.execute(ctx, p)
		})
	}
	if err := g.Wait(); err != nil {
		return plans, err
	}
	return plans, nil
}

func (r *Reconciler) decide(local map[string]string, remote map[string]protocol.FileInfo) []Plan {
	seen := make(map[string]bool)
	var plans []Plan

	for name, localHash := range local {
		seen[name] = true
		remoteInfo, onServer := remote[name]
		switch {
		case !onServer:
			plans = append(plans, Plan{Name: name, Action: ActionUpload})
		case remoteInfo.Hash != localHash:
			plans = append(plans, Plan{Name: name, Action: ActionDownload})
		default:
			plans = append(plans, Plan{Name: name, Action: ActionNone})
		}
	}
	for name := range remote {
		if !seen[name] {
			plans = append(plans, Plan{Name: name, Action: ActionDownload})
		}
	}
	return plans
}

func (r *Reconciler) execute(ctx context.Context, p Plan) error {
	path := filepath.Join(r.dir, p.Name)
	switch p.Action {
	case ActionUpload:
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r.log.Info("reconciler uploading", zap.String("name", p.Name))
		return r.client.Upload(p.Name, f)
	case ActionDownload:
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r.log.Info("reconciler downloading", zap.String("name", p.Name))
		return r.client.Download(p.Name, f)
	default:
		return nil
	}
}

// localFiles returns name -> content-hash for every regular file directly
// under the reconciler's directory, excluding dotfiles and the names in
// excludedNames (the catalog file, storage, build).
func (r *Reconciler) localFiles() (map[string]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || excluded(e.Name()) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out[e.Name()] = digest.Hex(data)
	}
	return out, nil
}

func excluded(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, n := range excludedNames {
		if name == n {
			return true
		}
	}
	return false
}
