// cmd/client is the CLI entry-point built with Cobra.
//
// Usage:
//
//	dcli create S1 --root /r --home /r/a --server http://localhost:8080
//	dcli put S1 /r/a/x "hello world"        --server http://localhost:8080
//	dcli get S1 /r/a/x                      --server http://localhost:8080
//	dcli dput S1 /r/a/doc '{"k":"v"}'       --server http://localhost:8080
//	dcli remove S1 /r/a/x                   --server http://localhost:8080
//	dcli destroy S1                         --server http://localhost:8080
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"dstore/internal/restclient"

	"github.com/spf13/cobra"
)

var (
	serverAddr string
	timeout    time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "dcli",
		Short: "CLI client for a distributed store node",
	}

	root.PersistentFlags().StringVarP(&serverAddr, "server", "s",
		"http://localhost:8080", "store REST front-end address")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"HTTP request timeout")

	root.AddCommand(createCmd(), destroyCmd(), getCmd(), putCmd(), dputCmd(), removeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func createCmd() *cobra.Command {
	var root, home string
	var cacheSize int

	cmd := &cobra.Command{
		Use:   "create <store-id>",
		Short: "Provision a store under store-id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := restclient.New(serverAddr, timeout)
			return c.Create(context.Background(), args[0], root, home, cacheSize)
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "federation partition prefix (required)")
	cmd.Flags().StringVar(&home, "home", "", "prefix this store owns (required)")
	cmd.Flags().IntVar(&cacheSize, "cache-size", 1024, "maximum cached (non-home) entries")
	return cmd
}

func destroyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "destroy <store-id>",
		Short: "Tear down a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := restclient.New(serverAddr, timeout)
			return c.Destroy(context.Background(), args[0])
		},
	}
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <store-id> <uri>",
		Short: "Retrieve a value; uri containing '*' resolves a wildcard pattern",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := restclient.New(serverAddr, timeout)
			ctx := context.Background()

			if containsWildcard(args[1]) {
				entries, err := c.GetAll(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				prettyPrint(entries)
				return nil
			}

			value, found, err := c.Get(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if !found {
				fmt.Printf("%q not found\n", args[1])
				return nil
			}
			fmt.Println(value)
			return nil
		},
	}
}

func putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <store-id> <uri> <value>",
		Short: "Store a value at uri",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := restclient.New(serverAddr, timeout)
			version, err := c.Put(context.Background(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Printf("version %d\n", version)
			return nil
		},
	}
}

func dputCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dput <store-id> <uri> <patch>",
		Short: "Delta-merge a JSON object or 'k=v&k2=v2' patch into uri",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := restclient.New(serverAddr, timeout)
			version, err := c.DPut(context.Background(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Printf("version %d\n", version)
			return nil
		},
	}
}

func removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <store-id> <uri>",
		Short: "Delete a value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := restclient.New(serverAddr, timeout)
			removed, err := c.Remove(context.Background(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Println(removed)
			return nil
		},
	}
}

func containsWildcard(uri string) bool {
	for _, r := range uri {
		if r == '*' {
			return true
		}
	}
	return false
}

func prettyPrint(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}
