package tdb

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/iamNilotpal/tdbgo/pkg/attrs"
	"github.com/iamNilotpal/tdbgo/pkg/errors"
	"github.com/iamNilotpal/tdbgo/pkg/options"
)

func openTestDB(t *testing.T) *Handle {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.tdb")
	h, err := Open(path, true, false, 0o600, nil, options.NewDefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestStoreFetchRoundTrip(t *testing.T) {
	h := openTestDB(t)

	require.NoError(t, h.Store([]byte("k1"), []byte("v1"), StoreReplace))
	got, err := h.Fetch([]byte("k1"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(got))
}

func TestFetchMissingKeyReturnsNoExist(t *testing.T) {
	h := openTestDB(t)
	_, err := h.Fetch([]byte("missing"))
	require.Error(t, err)
	require.Equal(t, errors.ErrorCodeNoExist, errors.GetErrorCode(err))
}

func TestParseInvokesCallbackWithStoredValue(t *testing.T) {
	h := openTestDB(t)
	require.NoError(t, h.Store([]byte("k1"), []byte("v1"), StoreReplace))

	var gotKey, gotData string
	err := h.Parse([]byte("k1"), func(key, data []byte) error {
		gotKey, gotData = string(key), string(data)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "k1", gotKey)
	require.Equal(t, "v1", gotData)
}

func TestParseMissingKeyReturnsNoExist(t *testing.T) {
	h := openTestDB(t)
	err := h.Parse([]byte("missing"), func(key, data []byte) error {
		t.Fatal("callback should not run for a missing key")
		return nil
	})
	require.Error(t, err)
	require.Equal(t, errors.ErrorCodeNoExist, errors.GetErrorCode(err))
}

func TestParsePropagatesCallbackError(t *testing.T) {
	h := openTestDB(t)
	require.NoError(t, h.Store([]byte("k1"), []byte("v1"), StoreReplace))

	sentinel := errors.NewValidationError(nil, errors.ErrorCodeInvalidInput, "bad value").
		WithField("data").WithRule("custom")
	err := h.Parse([]byte("k1"), func(key, data []byte) error {
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
}

func TestStoreInsertRejectsExisting(t *testing.T) {
	h := openTestDB(t)
	require.NoError(t, h.Store([]byte("k1"), []byte("v1"), StoreInsert))
	err := h.Store([]byte("k1"), []byte("v2"), StoreInsert)
	require.Error(t, err)
	require.Equal(t, errors.ErrorCodeExists, errors.GetErrorCode(err))
}

func TestStoreModifyRejectsMissing(t *testing.T) {
	h := openTestDB(t)
	err := h.Store([]byte("k1"), []byte("v1"), StoreModify)
	require.Error(t, err)
	require.Equal(t, errors.ErrorCodeNoExist, errors.GetErrorCode(err))
}

func TestDeleteRemovesKey(t *testing.T) {
	h := openTestDB(t)
	require.NoError(t, h.Store([]byte("k1"), []byte("v1"), StoreReplace))
	require.NoError(t, h.Delete([]byte("k1")))

	_, err := h.Fetch([]byte("k1"))
	require.Equal(t, errors.ErrorCodeNoExist, errors.GetErrorCode(err))
}

func TestAppendConcatenatesValue(t *testing.T) {
	h := openTestDB(t)
	require.NoError(t, h.Append([]byte("k1"), []byte("hello ")))
	require.NoError(t, h.Append([]byte("k1"), []byte("world")))

	got, err := h.Fetch([]byte("k1"))
	require.NoError(t, err)
	require.Equal(t, "hello world", string(got))
}

func TestExistsReflectsStoreAndDelete(t *testing.T) {
	h := openTestDB(t)
	ok, err := h.Exists([]byte("k1"))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, h.Store([]byte("k1"), []byte("v1"), StoreReplace))
	ok, err = h.Exists([]byte("k1"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestTraverseVisitsAllStoredKeys(t *testing.T) {
	h := openTestDB(t)
	want := map[string]string{"a": "1", "b": "2", "c": "3"}
	for k, v := range want {
		require.NoError(t, h.Store([]byte(k), []byte(v), StoreReplace))
	}

	got := map[string]string{}
	err := h.Traverse(func(key, value []byte) error {
		got[string(key)] = string(value)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestReopenRecoversEveryStoredValueAgainstReferenceMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recover.tdb")
	h, err := Open(path, true, false, 0o600, nil, options.NewDefaultOptions())
	require.NoError(t, err)

	reference := map[string][]byte{
		"alpha": []byte("one"),
		"beta":  []byte("two"),
		"gamma": []byte("three"),
	}
	for k, v := range reference {
		require.NoError(t, h.Store([]byte(k), v, StoreReplace))
	}
	require.NoError(t, h.Close())

	reopened, err := Open(path, false, false, 0o600, nil, options.NewDefaultOptions())
	require.NoError(t, err)
	defer reopened.Close()

	got := map[string][]byte{}
	require.NoError(t, reopened.Traverse(func(key, value []byte) error {
		got[string(key)] = append([]byte(nil), value...)
		return nil
	}))

	if diff := cmp.Diff(reference, got); diff != "" {
		t.Fatalf("recovered content diverged from the reference map (-want +got):\n%s", diff)
	}
}

func TestTransactionCommitPersistsWrites(t *testing.T) {
	h := openTestDB(t)

	require.NoError(t, h.TransactionStart())
	require.NoError(t, h.Store([]byte("k1"), []byte("v1"), StoreReplace))
	require.NoError(t, h.TransactionCommit())

	got, err := h.Fetch([]byte("k1"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(got))
}

func TestTransactionCancelDiscardsWrites(t *testing.T) {
	h := openTestDB(t)

	require.NoError(t, h.TransactionStart())
	require.NoError(t, h.Store([]byte("k1"), []byte("v1"), StoreReplace))
	require.NoError(t, h.TransactionCancel())

	_, err := h.Fetch([]byte("k1"))
	require.Equal(t, errors.ErrorCodeNoExist, errors.GetErrorCode(err))
}

func TestNestedTransactionInnerCancelFailsOuterCommit(t *testing.T) {
	h := openTestDB(t)

	require.NoError(t, h.TransactionStart())
	require.NoError(t, h.Store([]byte("k1"), []byte("v1"), StoreReplace))

	require.NoError(t, h.TransactionStart()) // nested, same underlying txn
	require.NoError(t, h.TransactionCancel())

	err := h.TransactionCommit()
	require.NoError(t, err)

	_, err = h.Fetch([]byte("k1"))
	require.Equal(t, errors.ErrorCodeNoExist, errors.GetErrorCode(err),
		"a failed nested transaction must cause the outer commit to discard all writes")
}

func TestCheckReportsHealthyDatabase(t *testing.T) {
	h := openTestDB(t)
	require.NoError(t, h.Store([]byte("k1"), []byte("v1"), StoreReplace))
	require.NoError(t, h.Store([]byte("k2"), []byte("v2"), StoreReplace))

	report, err := h.Check(nil)
	require.NoError(t, err)
	require.True(t, report.OK)
	require.Equal(t, 2, report.RecordsVisited)
}

func TestCheckRunsCallbackPerLiveRecord(t *testing.T) {
	h := openTestDB(t)
	require.NoError(t, h.Store([]byte("k1"), []byte("v1"), StoreReplace))
	require.NoError(t, h.Store([]byte("k2"), []byte("v2"), StoreReplace))

	seen := map[string]string{}
	report, err := h.Check(func(key, data []byte) error {
		seen[string(key)] = string(data)
		return nil
	})
	require.NoError(t, err)
	require.True(t, report.OK)
	require.Equal(t, map[string]string{"k1": "v1", "k2": "v2"}, seen)
}

func TestCheckSurfacesCallbackFailure(t *testing.T) {
	h := openTestDB(t)
	require.NoError(t, h.Store([]byte("k1"), []byte("v1"), StoreReplace))

	_, err := h.Check(func(key, data []byte) error {
		return fmt.Errorf("unexpected value for %q", key)
	})
	require.Error(t, err)
}

func TestCheckDetectsFreeListInvariants(t *testing.T) {
	h := openTestDB(t)
	require.NoError(t, h.Store([]byte("k1"), []byte("v1"), StoreReplace))
	require.NoError(t, h.Delete([]byte("k1")))

	report, err := h.Check(nil)
	require.NoError(t, err)
	require.True(t, report.OK)
	require.GreaterOrEqual(t, report.FreeRecordsVisited, 1)
}

func TestSummaryCountsStoredRecords(t *testing.T) {
	h := openTestDB(t)
	require.NoError(t, h.Store([]byte("k1"), []byte("v1"), StoreReplace))
	require.NoError(t, h.Store([]byte("k2"), []byte("value-two"), StoreReplace))

	s, err := h.computeStats()
	require.NoError(t, err)
	require.Equal(t, 2, s.RecordCount)
	require.EqualValues(t, len("v1")+len("value-two"), s.TotalDataBytes)

	text, err := h.Summary(SummaryBasic)
	require.NoError(t, err)
	require.Contains(t, text, "Number of records: 2")
}

func TestSummaryHistogramIncludesSizeBuckets(t *testing.T) {
	h := openTestDB(t)
	require.NoError(t, h.Store([]byte("k1"), []byte("v1"), StoreReplace))

	text, err := h.Summary(SummaryHistograms)
	require.NoError(t, err)
	require.Contains(t, text, "Record size histogram:")
}

func TestRepackPreservesAllRecords(t *testing.T) {
	h := openTestDB(t)
	want := map[string]string{"a": "1", "b": "2", "c": "3"}
	for k, v := range want {
		require.NoError(t, h.Store([]byte(k), []byte(v), StoreReplace))
	}
	require.NoError(t, h.Delete([]byte("b")))
	delete(want, "b")

	require.NoError(t, h.Repack())

	got := map[string]string{}
	err := h.Traverse(func(key, value []byte) error {
		got[string(key)] = string(value)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestReopenReadOnlyRejectsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readonly.tdb")
	h, err := Open(path, true, false, 0o600, nil, options.NewDefaultOptions())
	require.NoError(t, err)
	require.NoError(t, h.Store([]byte("k1"), []byte("v1"), StoreReplace))
	require.NoError(t, h.Close())

	ro, err := Open(path, false, true, 0o600, nil, options.NewDefaultOptions())
	require.NoError(t, err)
	defer ro.Close()

	got, err := ro.Fetch([]byte("k1"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(got))

	err = ro.Store([]byte("k2"), []byte("v2"), StoreReplace)
	require.Error(t, err)
	require.Equal(t, errors.ErrorCodeReadOnly, errors.GetErrorCode(err))
}

func TestLegacyV1DatabaseRoundTripsAndReportsItsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.tdb")

	h, err := Open(path, true, false, 0o600, attrs.List{attrs.TDB1HashSize(1024)}, options.NewDefaultOptions())
	require.NoError(t, err)

	version, err := h.Version()
	require.NoError(t, err)
	require.EqualValues(t, 1, version)

	require.NoError(t, h.Store([]byte("k1"), []byte("v1"), StoreReplace))
	require.NoError(t, h.Store([]byte("k2"), []byte("v2"), StoreReplace))
	require.NoError(t, h.Close())

	// Reopening without TDB_VERSION1 must still report v1: the format is a
	// property of the file, not of the attribute list used to open it.
	reopened, err := Open(path, false, false, 0o600, nil, options.NewDefaultOptions())
	require.NoError(t, err)
	defer reopened.Close()

	version, err = reopened.Version()
	require.NoError(t, err)
	require.EqualValues(t, 1, version)

	got, err := reopened.Fetch([]byte("k1"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(got))

	require.NoError(t, reopened.Store([]byte("k1"), []byte("updated"), StoreReplace))
	got, err = reopened.Fetch([]byte("k1"))
	require.NoError(t, err)
	require.Equal(t, "updated", string(got))

	require.NoError(t, reopened.Delete([]byte("k2")))
	_, err = reopened.Fetch([]byte("k2"))
	require.Equal(t, errors.ErrorCodeNoExist, errors.GetErrorCode(err))
}

func TestRepackPreservesLegacyV1Format(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy-repack.tdb")
	h, err := Open(path, true, false, 0o600, attrs.List{attrs.TDB1HashSize(512)}, options.NewDefaultOptions())
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.Store([]byte("a"), []byte("1"), StoreReplace))
	require.NoError(t, h.Store([]byte("b"), []byte("2"), StoreReplace))
	require.NoError(t, h.Repack())

	version, err := h.Version()
	require.NoError(t, err)
	require.EqualValues(t, 1, version)

	got, err := h.Fetch([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, "1", string(got))
}

func TestOpenWithAttrsValidatesList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attrs.tdb")
	badList := attrs.List{{Kind: attrs.KindLog}} // missing required LogCore
	_, err := Open(path, true, false, 0o600, badList, options.NewDefaultOptions())
	require.Error(t, err)
}
