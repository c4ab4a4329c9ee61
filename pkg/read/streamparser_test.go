package read_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heremaps/here-data-sdk-go/internal/testtransport"
	"github.com/heremaps/here-data-sdk-go/pkg/model"
)

func TestStreamPartitionsEmitsAllInOrder(t *testing.T) {
	fake := testtransport.New()
	fake.SetFallback(testtransport.JSON(200, `{
		"otherField": {"ignored": true},
		"partitions": [
			{"partition":"p1","dataHandle":"h1","version":1},
			{"partition":"p2","dataHandle":"h2","version":1},
			{"partition":"p3","dataHandle":"h3","version":1,"unknownField":"tolerated"}
		],
		"trailingField": ["ignored", "too"]
	}`))

	repo := newRepo(t, fake)
	var got []model.Partition
	err := repo.StreamPartitions(context.Background(), 1, nil, func(p model.Partition) {
		got = append(got, p)
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "p1", got[0].PartitionID)
	assert.Equal(t, "p2", got[1].PartitionID)
	assert.Equal(t, "p3", got[2].PartitionID)
	assert.Equal(t, "h3", got[2].DataHandle)
}

func TestStreamPartitionsEmptyArray(t *testing.T) {
	fake := testtransport.New()
	fake.SetFallback(testtransport.JSON(200, `{"partitions": []}`))

	repo := newRepo(t, fake)
	var got []model.Partition
	err := repo.StreamPartitions(context.Background(), 1, nil, func(p model.Partition) {
		got = append(got, p)
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStreamPartitionsTransportErrorIsReturned(t *testing.T) {
	fake := testtransport.New()
	fake.SetFallback(testtransport.JSON(503, "backend unavailable"))

	repo := newRepo(t, fake)
	err := repo.StreamPartitions(context.Background(), 1, nil, func(p model.Partition) {})
	require.Error(t, err)
}
