// cmd/peerlogctl is the CLI entry-point built with Cobra.
//
// Usage:
//
//	peerlogctl object put ./file.bin         --server http://localhost:8080
//	peerlogctl object get <cid>              --server http://localhost:8080
//	peerlogctl db open mydb --create --type eventlog
//	peerlogctl db add <address> "hello world"
//	peerlogctl db log <address> --limit 20
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/peerlog/peerlog/internal/client"
)

var (
	serverAddr string
	timeout    time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "peerlogctl",
		Short: "CLI client for a peerlog node",
	}

	root.PersistentFlags().StringVarP(&serverAddr, "server", "s",
		"http://localhost:8080", "peerlog node address")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"HTTP request timeout")

	root.AddCommand(objectCmd(), dbCmd(), healthCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ─── object ─────────────────────────────────────────────────────────────────

func objectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "object",
		Short: "Content-addressed object store commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "put <file>",
		Short: "Upload a file and print its CID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			c := client.New(serverAddr, timeout)
			id, err := c.PutObject(context.Background(), content)
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <cid>",
		Short: "Download an object by CID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			content, err := c.GetObject(context.Background(), args[0])
			if err == client.ErrNotFound {
				fmt.Fprintf(os.Stderr, "object %q not found\n", args[0])
				os.Exit(1)
			}
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(content)
			return err
		},
	})

	return cmd
}

// ─── db ─────────────────────────────────────────────────────────────────────

func dbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database lifecycle and log commands",
	}

	var (
		create    bool
		dbType    string
		overwrite bool
		localOnly bool
		sync      bool
		writers   []string
	)
	openCmd := &cobra.Command{
		Use:   "open <name-or-address>",
		Short: "Open or create a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			info, err := c.OpenDatabase(context.Background(), args[0], client.OpenDatabaseOptions{
				Create:    create,
				Type:      dbType,
				Overwrite: overwrite,
				LocalOnly: localOnly,
				Sync:      sync,
				Write:     writers,
			})
			if err != nil {
				return err
			}
			prettyPrint(info)
			return nil
		},
	}
	openCmd.Flags().BoolVar(&create, "create", false, "create the database if it doesn't exist")
	openCmd.Flags().StringVar(&dbType, "type", "", "database type: eventlog, feed, keyvalue, counter, docstore")
	openCmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing local database of the same name")
	openCmd.Flags().BoolVar(&localOnly, "local-only", false, "for a bare name, fail unless its manifest is already in the local cache")
	openCmd.Flags().BoolVar(&sync, "sync", false, "don't seed the log from locally cached heads; wait for heads from peers")
	openCmd.Flags().StringSliceVar(&writers, "write", nil, "public keys granted the write role (creator-only if empty)")

	cmd.AddCommand(openCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "add <address> <payload>",
		Short: "Append an entry to a database",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			res, err := c.AddEntry(context.Background(), args[0], []byte(args[1]))
			if err != nil {
				return err
			}
			prettyPrint(res)
			return nil
		},
	})

	var limit int
	logCmd := &cobra.Command{
		Use:   "log <address>",
		Short: "List entries from a database in total order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			entries, err := c.ListEntries(context.Background(), args[0], limit)
			if err != nil {
				return err
			}
			prettyPrint(entries)
			return nil
		},
	}
	logCmd.Flags().IntVar(&limit, "limit", -1, "max entries to return (-1 = unlimited)")
	cmd.AddCommand(logCmd)

	return cmd
}

// ─── health ─────────────────────────────────────────────────────────────────

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check node health",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			resp, err := c.GetRaw(context.Background(), "/healthz")
			if err != nil {
				return err
			}
			fmt.Println(resp)
			return nil
		},
	}
}

// ─── helpers ────────────────────────────────────────────────────────────────

func prettyPrint(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}
