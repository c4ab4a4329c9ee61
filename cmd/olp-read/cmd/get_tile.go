package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/heremaps/here-data-sdk-go/pkg/model"
	"github.com/heremaps/here-data-sdk-go/pkg/quadtree"
)

var tileAggregated bool

var getTileCmd = &cobra.Command{
	Use:   "get-tile <quadkey>",
	Short: "Resolve a tile's quadtree entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		qk, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid quadkey %q: %w", args[0], err)
		}
		tile := quadtree.TileKeyFromQuadKey64(qk)

		client, err := newVersionedClient()
		if err != nil {
			return err
		}
		defer client.Close()

		entry, err := client.QuadTreeIndex(context.Background(), model.TileRequest{Tile: tile, Aggregated: tileAggregated})
		if err != nil {
			return err
		}
		fmt.Printf("tile=%s dataHandle=%s version=%d\n", entry.Tile.HereTile(), entry.DataHandle, entry.Version)
		return nil
	},
}

func init() {
	getTileCmd.Flags().BoolVar(&tileAggregated, "aggregated", false, "resolve the nearest covering ancestor if the tile itself has no entry")
	rootCmd.AddCommand(getTileCmd)
}
