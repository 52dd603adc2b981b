package snapname

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateProducesRecognizableScratchFile(t *testing.T) {
	name := Generate("/var/db/main.tdb", 123456789)
	require.True(t, IsScratchFile("/var/db/main.tdb", name))
}

func TestIsScratchFileRejectsUnrelatedPath(t *testing.T) {
	name := Generate("/var/db/main.tdb", 123456789)
	require.False(t, IsScratchFile("/var/db/other.tdb", name))
}

func TestParsePIDRejectsNonScratchFile(t *testing.T) {
	_, err := ParsePID("/var/db/main.tdb", "/var/db/main.tdb")
	require.Error(t, err)
}

func TestParsePIDRoundTripsThisProcessID(t *testing.T) {
	name := Generate("/var/db/main.tdb", 777)
	pid, err := ParsePID("/var/db/main.tdb", name)
	require.NoError(t, err)
	require.Equal(t, os.Getpid(), pid)
}
