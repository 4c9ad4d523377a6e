package lvmt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, DefaultConfig().validate())
}

func TestValidateRejectsBadDepth(t *testing.T) {
	c := DefaultConfig()
	c.Depth = 10
	require.Error(t, c.validate())
}

func TestValidateRejectsNonPowerOfTwoShards(t *testing.T) {
	c := DefaultConfig()
	c.Shards = 3
	require.Error(t, c.validate())
}

func TestValidateRejectsShardIndexOutOfRange(t *testing.T) {
	c := DefaultConfig()
	c.Shards = 4
	c.ShardIndex = 4
	require.Error(t, c.validate())
}

func TestShardFilterNilWhenUnsharded(t *testing.T) {
	c := DefaultConfig()
	require.Nil(t, c.shardFilter())
}

func TestShardFilterSetWhenSharded(t *testing.T) {
	c := DefaultConfig()
	c.Shards = 4
	c.ShardIndex = 2
	f := c.shardFilter()
	require.NotNil(t, f)
	require.Equal(t, 4, f.Shards)
	require.Equal(t, 2, f.Index)
}
