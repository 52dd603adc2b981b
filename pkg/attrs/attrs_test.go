package attrs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/iamNilotpal/tdbgo/pkg/hashfn"
)

func TestValidateAcceptsWellFormedList(t *testing.T) {
	list := List{
		Log(zapcore.NewNopCore()),
		Hash(hashfn.Default),
		Seed(1234),
		Flock(nil, time.Second),
		OpenHook(func() error { return nil }),
		TDB1HashSize(1024),
		StatsAttr(&Stats{}),
	}
	require.NoError(t, list.Validate())
}

func TestValidateRejectsNilLogCore(t *testing.T) {
	list := List{{Kind: KindLog}}
	err := list.Validate()
	require.Error(t, err)
}

func TestValidateRejectsNilHashFunc(t *testing.T) {
	list := List{{Kind: KindHash}}
	err := list.Validate()
	require.Error(t, err)
}

func TestValidateRejectsUnknownKind(t *testing.T) {
	list := List{{Kind: Kind(999)}}
	err := list.Validate()
	require.Error(t, err)
}

func TestValidateEmptyListIsFine(t *testing.T) {
	require.NoError(t, List{}.Validate())
}
