package rtconfig

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/urfave/cli/v2"
)

func TestFromContextAppliesDefaults(t *testing.T) {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range Flags {
		assert.NoError(t, f.Apply(set))
	}
	c := cli.NewContext(cli.NewApp(), set, nil)

	cfg := FromContext(c)
	assert.Equal(t, 40, cfg.EpochTimeMillis)
	assert.Equal(t, 4, cfg.WorkerNum)
	assert.Equal(t, 2, cfg.LoggerNum)
	assert.Equal(t, uint64(2), cfg.EpochDiff)
	assert.Equal(t, 8443, cfg.Port)
	assert.False(t, cfg.ServerInLoop)
	assert.Equal(t, "./data", cfg.DataDir)
}

func TestFromContextHonorsOverride(t *testing.T) {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range Flags {
		assert.NoError(t, f.Apply(set))
	}
	assert.NoError(t, set.Parse([]string{"-worker-num", "8", "-server-in-loop"}))
	c := cli.NewContext(cli.NewApp(), set, nil)

	cfg := FromContext(c)
	assert.Equal(t, 8, cfg.WorkerNum)
	assert.True(t, cfg.ServerInLoop)
}
