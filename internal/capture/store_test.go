package capture

import (
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/agentconsole/agentconsole/internal/testutil"
)

// TestRecorderRoundTripsStream verifies a fragmented stream replays byte for byte.
func TestRecorderRoundTripsStream(testingHandle *testing.T) {
	// Arrange.
	store := &Store{BaseDir: testingHandle.TempDir()}
	recorder, err := store.NewRecorder("turn-1")
	testutil.RequireNoError(testingHandle, err, "new recorder")
	stream := "data: {\"event\":{\"messageStart\":{}}}\n\nnot json\ndata: {\"event\":{\"messageStop\":{}}}\ndata: {\"tail\""

	// Act.
	copied, err := io.ReadAll(recorder.Tee(testutil.NewChunkedReader([]byte(stream), 5)))
	testutil.RequireNoError(testingHandle, err, "read tee")
	testutil.RequireNoError(testingHandle, recorder.Close(), "close recorder")
	records, err := store.Load("turn-1")
	testutil.RequireNoError(testingHandle, err, "load capture")
	replayed, err := io.ReadAll(Reader(records))

	// Assert.
	testutil.RequireNoError(testingHandle, err, "read replay")
	testutil.RequireEqual(testingHandle, string(copied), stream, "tee passes bytes through")
	testutil.RequireEqual(testingHandle, len(records), 4, "empty lines are not stored")
	testutil.RequireTrue(testingHandle, records[3].Partial, "tail marked partial")
	testutil.RequireEqual(testingHandle, string(replayed), strings.Replace(stream, "\n\n", "\n", 1), "replay")
}

// TestLoadSkipsForeignRecords verifies malformed lines do not break loading.
func TestLoadSkipsForeignRecords(testingHandle *testing.T) {
	store := &Store{BaseDir: testingHandle.TempDir()}
	testutil.RequireNoError(testingHandle, store.Append("c1", Record{Line: "data: {}"}), "append")
	file, err := os.OpenFile(store.Path("c1"), os.O_APPEND|os.O_WRONLY, 0o600)
	testutil.RequireNoError(testingHandle, err, "open")
	_, _ = file.WriteString("{broken\n{\"type\":\"other\",\"line\":\"x\"}\n")
	_ = file.Close()

	records, err := store.Load("c1")

	testutil.RequireNoError(testingHandle, err, "load")
	testutil.RequireEqual(testingHandle, len(records), 1, "only line records")
	testutil.RequireEqual(testingHandle, records[0].Line, "data: {}", "line")
}

// TestLoadAcceptsFilePath verifies replay from an explicit capture file.
func TestLoadAcceptsFilePath(testingHandle *testing.T) {
	store := &Store{BaseDir: testingHandle.TempDir()}
	testutil.RequireNoError(testingHandle, store.Append("c2", Record{Line: "data: {\"a\":1}"}), "append")

	records, err := (&Store{BaseDir: testingHandle.TempDir()}).Load(store.Path("c2"))

	testutil.RequireNoError(testingHandle, err, "load by path")
	testutil.RequireEqual(testingHandle, len(records), 1, "records")
}

// TestStoreRejectsUnsafeIDs verifies ids cannot escape the capture directory.
func TestStoreRejectsUnsafeIDs(testingHandle *testing.T) {
	store := &Store{BaseDir: testingHandle.TempDir()}

	for _, id := range []string{"", "../escape", "a/b"} {
		err := store.Append(id, Record{Line: "x"})
		testutil.RequireErrorIs(testingHandle, err, ErrCaptureID, "id "+id)
	}
}

// TestListOrdersNewestFirst verifies listing order and limit.
func TestListOrdersNewestFirst(testingHandle *testing.T) {
	store := &Store{BaseDir: testingHandle.TempDir()}
	for _, id := range []string{"old", "new"} {
		testutil.RequireNoError(testingHandle, store.Append(id, Record{Line: id}), "append")
	}
	past := time.Now().Add(-time.Hour)
	testutil.RequireNoError(testingHandle, os.Chtimes(store.Path("old"), past, past), "age capture")

	list, err := store.List(1)

	testutil.RequireNoError(testingHandle, err, "list")
	testutil.RequireEqual(testingHandle, len(list), 1, "limit")
	testutil.RequireEqual(testingHandle, list[0].ID, "new", "newest first")
}

// TestListWithoutCaptures verifies a missing directory is not an error.
func TestListWithoutCaptures(testingHandle *testing.T) {
	store := &Store{BaseDir: testingHandle.TempDir()}

	list, err := store.List(0)

	testutil.RequireNoError(testingHandle, err, "list")
	testutil.RequireEqual(testingHandle, len(list), 0, "empty")
}
