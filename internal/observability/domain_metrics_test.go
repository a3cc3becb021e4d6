package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObservePruningCountsFiles(t *testing.T) {
	keptBefore := testutil.ToFloat64(filesKeptTotal)
	prunedBefore := testutil.ToFloat64(filesPrunedTotal)

	ObservePruning(3, 2)
	ObservePruning(0, 0)

	if got := testutil.ToFloat64(filesKeptTotal) - keptBefore; got != 3 {
		t.Fatalf("kept delta = %v", got)
	}
	if got := testutil.ToFloat64(filesPrunedTotal) - prunedBefore; got != 2 {
		t.Fatalf("pruned delta = %v", got)
	}
}

func TestCountersByLabel(t *testing.T) {
	before := testutil.ToFloat64(predicateHintFailuresTotal.WithLabelValues("sql"))
	IncrementHintParseFailure("sql")
	if got := testutil.ToFloat64(predicateHintFailuresTotal.WithLabelValues("sql")) - before; got != 1 {
		t.Fatalf("hint failure delta = %v", got)
	}

	before = testutil.ToFloat64(signedURLsTotal.WithLabelValues("aws"))
	ObserveSignedURL("aws")
	if got := testutil.ToFloat64(signedURLsTotal.WithLabelValues("aws")) - before; got != 1 {
		t.Fatalf("signed url delta = %v", got)
	}

	ObserveSnapshotResolution("latest", "ok", 20*time.Millisecond)
	if got := testutil.CollectAndCount(snapshotResolutionSeconds); got < 1 {
		t.Fatalf("snapshot resolution series = %d", got)
	}
}
