package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/heremaps/here-data-sdk-go/pkg/model"
)

var additionalFields []string

var getPartitionsCmd = &cobra.Command{
	Use:   "get-partitions [partition-id...]",
	Short: "Fetch metadata for one or more partitions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newVersionedClient()
		if err != nil {
			return err
		}
		defer client.Close()

		partitions, err := client.GetPartitions(context.Background(), model.PartitionsRequest{
			PartitionIDs:     args,
			AdditionalFields: additionalFields,
		})
		if err != nil {
			return err
		}
		for _, p := range partitions {
			fmt.Printf("%s\tversion=%d\tdataHandle=%s\n", p.PartitionID, p.Version, p.DataHandle)
		}
		return nil
	},
}

func init() {
	getPartitionsCmd.Flags().StringSliceVar(&additionalFields, "additional-fields", nil, "additional partition fields to request")
	rootCmd.AddCommand(getPartitionsCmd)
}
