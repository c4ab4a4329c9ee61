package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/heremaps/here-data-sdk-go/pkg/model"
	"github.com/heremaps/here-data-sdk-go/pkg/quadtree"
	"github.com/heremaps/here-data-sdk-go/pkg/taskrunner"
)

var (
	prefetchPartitionIDs []string
	prefetchTiles        []string
	prefetchMinLevel     uint32
	prefetchMaxLevel     uint32
	prefetchAggregation  bool
)

var prefetchCmd = &cobra.Command{
	Use:   "prefetch",
	Short: "Prefetch tiles or partitions into the local cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newVersionedClient()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx := context.Background()
		switch {
		case len(prefetchPartitionIDs) > 0:
			_, result, err := client.PrefetchPartitions(ctx, model.PrefetchPartitionsRequest{
				PartitionIDs: prefetchPartitionIDs,
				Progress:     printProgress,
			}, nil, taskrunner.Normal)
			if err != nil {
				return err
			}
			printPrefetchResult(result)
			return nil

		case len(prefetchTiles) > 0:
			tiles := make([]quadtree.TileKey, 0, len(prefetchTiles))
			for _, raw := range prefetchTiles {
				qk, err := strconv.ParseUint(raw, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid quadkey %q: %w", raw, err)
				}
				tiles = append(tiles, quadtree.TileKeyFromQuadKey64(qk))
			}
			maxLevel := prefetchMaxLevel
			if maxLevel == 0 {
				maxLevel = prefetchMinLevel
			}
			_, result, err := client.PrefetchTiles(ctx, model.PrefetchTilesRequest{
				Tiles:           tiles,
				MinLevel:        prefetchMinLevel,
				MaxLevel:        maxLevel,
				DataAggregation: prefetchAggregation,
				Progress:        printProgress,
			}, nil, taskrunner.Normal)
			if err != nil {
				return err
			}
			printPrefetchResult(result)
			return nil

		default:
			return fmt.Errorf("prefetch requires --partition or --tile")
		}
	},
}

func printProgress(ev model.ProgressEvent) {
	fmt.Printf("%d/%d processed, %d bytes\n", ev.Processed, ev.Total, ev.Bytes)
}

func printPrefetchResult(result *model.PrefetchResult) {
	for _, item := range result.Items {
		if item.Err != nil {
			fmt.Printf("%s\tFAILED: %v\n", item.Key, item.Err)
			continue
		}
		fmt.Printf("%s\tOK\n", item.Key)
	}
}

func init() {
	prefetchCmd.Flags().StringSliceVar(&prefetchPartitionIDs, "partition", nil, "partition IDs to prefetch")
	prefetchCmd.Flags().StringSliceVar(&prefetchTiles, "tile", nil, "tile quadkeys to prefetch or anchor")
	prefetchCmd.Flags().Uint32Var(&prefetchMinLevel, "min-level", 0, "minimum tile level (list mode when max-level is unset or equal)")
	prefetchCmd.Flags().Uint32Var(&prefetchMaxLevel, "max-level", 0, "maximum tile level")
	prefetchCmd.Flags().BoolVar(&prefetchAggregation, "aggregation", false, "honour data aggregation in list mode")
	rootCmd.AddCommand(prefetchCmd)
}
