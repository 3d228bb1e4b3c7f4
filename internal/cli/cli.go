// Package cli is the top-level dispatcher for the filesync CLI (spec.md
// §6), matching Polqt/logql's cmd.Run(args []string) error shape — a
// single verb with a short fixed argument list per command does not
// warrant a flag-parsing framework.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cshekharsharma/filesync/internal/clientapi"
	"github.com/cshekharsharma/filesync/internal/config"
	"github.com/cshekharsharma/filesync/internal/reconcile"
)

// Run is the top-level dispatcher. It returns a non-zero-exit error on any
// failure (spec.md §6: "all non-zero exit on failure").
func Run(args []string) error {
	cfg, err := config.LoadClient("")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.SiteID == "" {
		// Each one-shot CLI invocation is its own transient replica
		// identity; there is no persistent client state to reuse one across runs.
		cfg.SiteID = uuid.NewString()
	}
	client := clientapi.New(cfg.ServerAddress)

	if len(args) == 0 {
		printUsage()
		return nil
	}

	switch args[0] {
	case "upload":
		return runUpload(client, args[1:])
	case "download":
		return runDownload(client, args[1:])
	case "edit":
		return runEdit(client, cfg.SiteID, args[1:])
	case "cat":
		return runCat(client, args[1:])
	case "sync":
		return runSync(client, args[1:])
	case "interactive":
		return runInteractive(client, cfg.SiteID)
	case "help", "--help", "-h":
		printUsage()
		return nil
	default:
		return fmt.Errorf("unknown command %q — run 'filesync help'", args[0])
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `filesync — file sync and collaborative text editing client

USAGE:
  filesync upload <path>
  filesync download <name> <dest>
  filesync edit <doc> <visible_index> <char>
  filesync cat <doc>
  filesync sync
  filesync interactive`)
}

func runUpload(client *clientapi.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: filesync upload <path>")
	}
	path := args[0]
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	name := filepathBase(path)
	if err := client.Upload(name, f); err != nil {
		return err
	}
	fmt.Println("uploaded", name)
	return nil
}

func runDownload(client *clientapi.Client, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: filesync download <name> <dest>")
	}
	name, dest := args[0], args[1]
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := client.Download(name, f); err != nil {
		return err
	}
	fmt.Println("downloaded", name, "to", dest)
	return nil
}

func runEdit(client *clientapi.Client, siteID string, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: filesync edit <doc> <visible_index> <char>")
	}
	doc := args[0]
	idx, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid visible_index %q: %w", args[1], err)
	}
	char := args[2]

	session, err := client.DialEdit()
	if err != nil {
		return err
	}
	defer session.Close()

	ack, err := session.InsertAt(doc, siteID, idx, char)
	if err != nil {
		return err
	}
	if !ack.OK {
		return fmt.Errorf("edit rejected: %s", ack.Message)
	}
	return nil
}

func runCat(client *clientapi.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: filesync cat <doc>")
	}
	session, err := client.DialEdit()
	if err != nil {
		return err
	}
	defer session.Close()

	text, err := session.Query(args[0])
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

func runSync(client *clientapi.Client, args []string) error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}
	log := zap.NewNop()
	plans, err := reconcile.New(client, dir, log).Run(context.Background())
	if err != nil {
		return err
	}
	for _, p := range plans {
		if p.Action != reconcile.ActionNone {
			fmt.Printf("%s: %s\n", p.Action, p.Name)
		}
	}
	return nil
}

func runInteractive(client *clientapi.Client, siteID string) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" {
			return nil
		}
		fields := strings.Fields(line)
		if err := dispatchInteractive(client, siteID, fields); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
	return scanner.Err()
}

func dispatchInteractive(client *clientapi.Client, siteID string, fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "upload":
		return runUpload(client, fields[1:])
	case "download":
		return runDownload(client, fields[1:])
	case "edit":
		return runEdit(client, siteID, fields[1:])
	case "cat":
		return runCat(client, fields[1:])
	case "sync":
		return runSync(client, fields[1:])
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

func filepathBase(path string) string {
	idx := strings.LastIndexAny(path, `/\`)
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}
