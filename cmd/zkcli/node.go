package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dermesser/zkmux/client"
	"github.com/dermesser/zkmux/proto"
	"github.com/spf13/cobra"
)

func createCmd() *cobra.Command {
	var ephemeral, sequential bool

	cmd := &cobra.Command{
		Use:   "create <path> [data]",
		Short: "Create a node",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			if len(args) > 1 {
				data = []byte(args[1])
			}
			mode := proto.ModePersistent
			switch {
			case ephemeral && sequential:
				mode = proto.ModeEphemeralSequential
			case ephemeral:
				mode = proto.ModeEphemeral
			case sequential:
				mode = proto.ModePersistentSequential
			}
			return withClient(func(ctx context.Context, cl *client.Client, _ <-chan proto.WatchedEvent) error {
				path, err := cl.Create(ctx, args[0], data, proto.OpenACL(), mode)
				if err != nil {
					return err
				}
				fmt.Println(path)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&ephemeral, "ephemeral", "e", false, "Remove the node when the session ends")
	cmd.Flags().BoolVarP(&sequential, "sequential", "q", false, "Append a sequence number to the name")
	return cmd
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "Print a node's data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, cl *client.Client, _ <-chan proto.WatchedEvent) error {
				data, _, err := cl.GetData(ctx, args[0], false)
				if err != nil {
					return err
				}
				os.Stdout.Write(data)
				fmt.Println()
				return nil
			})
		},
	}
}

func setCmd() *cobra.Command {
	var version int32

	cmd := &cobra.Command{
		Use:   "set <path> <data>",
		Short: "Replace a node's data",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, cl *client.Client, _ <-chan proto.WatchedEvent) error {
				stat, err := cl.SetData(ctx, args[0], []byte(args[1]), version)
				if err != nil {
					return err
				}
				printStat(stat)
				return nil
			})
		},
	}
	cmd.Flags().Int32VarP(&version, "version", "v", client.AnyVersion, "Expected version (-1: any)")
	return cmd
}

func rmCmd() *cobra.Command {
	var version int32
	var recursive bool

	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, cl *client.Client, _ <-chan proto.WatchedEvent) error {
				if recursive {
					return cl.DeleteRecursive(ctx, args[0])
				}
				return cl.Delete(ctx, args[0], version)
			})
		},
	}
	cmd.Flags().Int32VarP(&version, "version", "v", client.AnyVersion, "Expected version (-1: any)")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Delete the whole subtree")
	return cmd
}

func lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <path>",
		Short: "List a node's children",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, cl *client.Client, _ <-chan proto.WatchedEvent) error {
				names, err := cl.Children(ctx, args[0], false)
				if err != nil {
					return err
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Println(name)
				}
				return nil
			})
		},
	}
}

func statCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Print a node's metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, cl *client.Client, _ <-chan proto.WatchedEvent) error {
				stat, err := cl.Exists(ctx, args[0], false)
				if err != nil {
					return err
				}
				if stat == nil {
					return fmt.Errorf("%s: %w", args[0], proto.ErrNoNode)
				}
				printStat(stat)
				return nil
			})
		},
	}
}

func printStat(s *proto.Stat) {
	fmt.Printf("czxid = %#x\n", s.Czxid)
	fmt.Printf("mzxid = %#x\n", s.Mzxid)
	fmt.Printf("pzxid = %#x\n", s.Pzxid)
	fmt.Printf("ctime = %s\n", time.UnixMilli(s.Ctime).Format(time.RFC3339Nano))
	fmt.Printf("mtime = %s\n", time.UnixMilli(s.Mtime).Format(time.RFC3339Nano))
	fmt.Printf("version = %d\n", s.Version)
	fmt.Printf("cversion = %d\n", s.Cversion)
	fmt.Printf("aversion = %d\n", s.Aversion)
	fmt.Printf("ephemeralOwner = %#x\n", s.EphemeralOwner)
	fmt.Printf("dataLength = %d\n", s.DataLength)
	fmt.Printf("numChildren = %d\n", s.NumChildren)
}
