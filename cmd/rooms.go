package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newRoomsCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "rooms",
		Short: "Inspect and refresh the room/seat topology",
	}
	c.AddCommand(newRoomsListCmd())
	c.AddCommand(newRoomsUpdateCmd())
	return c
}

func newRoomsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show rooms, floors and seat counts (mirror or cache when fresh)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			topo, err := buildCache(cfg).Get(ctx, false)
			if err != nil {
				return fmt.Errorf("fetch topology: %w", err)
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Room", "Floor", "Seats", "Space ID"})

			rooms := make([]string, 0, len(topo))
			for name := range topo {
				rooms = append(rooms, name)
			}
			sort.Strings(rooms)
			for _, room := range rooms {
				floors := make([]string, 0, len(topo[room]))
				for name := range topo[room] {
					floors = append(floors, name)
				}
				sort.Strings(floors)
				for _, floor := range floors {
					f := topo[room][floor]
					table.Append([]string{
						room, floor,
						strconv.Itoa(len(f.Seats)),
						strconv.FormatInt(f.SpaceID, 10),
					})
				}
			}
			table.Render()
			return nil
		},
	}
}

func newRoomsUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Force a topology refresh and rewrite the JSON mirror",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			topo, err := buildCache(cfg).Get(ctx, true)
			if err != nil {
				return fmt.Errorf("refresh topology: %w", err)
			}

			fmt.Fprintf(os.Stdout, "Topology refreshed: %d room(s), mirror written to %s\n",
				len(topo), cfg.Cache.MirrorPath)
			return nil
		},
	}
}
