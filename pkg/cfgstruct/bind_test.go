package cfgstruct

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestBindLeafKinds(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)

	var cfg struct {
		Name          string        `default:"group1"`
		UseStorageID  bool          `default:"false"`
		CheckInterval time.Duration `default:"120s"`
		ReservedSpace int64         `default:"0"`
		StorePathCnt  int           `default:"1"`
		Port          uint          `default:"22122"`
		MaxBackups    uint64        `default:"13"`
		Ratio         float64       `default:"0.1"`
		Trunk         struct {
			FileSize int64 `default:"67108864"`
		}
	}
	Bind(fs, &cfg)

	require.Equal(t, "group1", cfg.Name)
	require.Equal(t, 120*time.Second, cfg.CheckInterval)
	require.Equal(t, uint(22122), cfg.Port)
	require.Equal(t, int64(67108864), cfg.Trunk.FileSize)

	require.NoError(t, fs.Parse([]string{
		"--name=group2",
		"--usestorageid=true",
		"--checkinterval=5m",
		"--reservedspace=1024",
		"--storepathcnt=4",
		"--port=23000",
		"--maxbackups=20",
		"--ratio=0.5",
		"--trunk.filesize=1048576",
	}))

	require.Equal(t, "group2", cfg.Name)
	require.True(t, cfg.UseStorageID)
	require.Equal(t, 5*time.Minute, cfg.CheckInterval)
	require.Equal(t, int64(1024), cfg.ReservedSpace)
	require.Equal(t, 4, cfg.StorePathCnt)
	require.Equal(t, uint(23000), cfg.Port)
	require.Equal(t, uint64(20), cfg.MaxBackups)
	require.Equal(t, 0.5, cfg.Ratio)
	require.Equal(t, int64(1048576), cfg.Trunk.FileSize)
}

func TestBindHiddenTag(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	var cfg struct {
		Visible int `default:"1"`
		Secret  int `default:"2" hidden:"true"`
	}
	Bind(fs, &cfg)

	require.False(t, fs.Lookup("visible").Hidden)
	require.True(t, fs.Lookup("secret").Hidden)
}
