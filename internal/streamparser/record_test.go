package streamparser

import (
	"errors"
	"testing"

	"github.com/agentconsole/agentconsole/internal/testutil"
)

// TestParseRecordFiltersNonDataLines verifies only data lines carrying JSON literals pass.
func TestParseRecordFiltersNonDataLines(testingHandle *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"plain text":     "not json at all",
		"comment":        ": keepalive",
		"missing space":  `data:{"event":{}}`,
		"python repr":    `data: '{"event": {}}'`,
		"bare string":    `data: "hello"`,
		"empty payload":  "data: ",
		"other field":    `event: {"x":1}`,
		"number payload": "data: 42",
	}
	for name, line := range cases {
		_, err := ParseRecord(line)
		testutil.RequireErrorIs(testingHandle, err, ErrNotRecord, name)
	}
}

// TestParseRecordDecodesBothBranches verifies event and message may share one record.
func TestParseRecordDecodesBothBranches(testingHandle *testing.T) {
	line := `  data: {"event":{"messageStop":{}},"message":{"role":"assistant","content":[]}}  `

	record, err := ParseRecord(line)

	testutil.RequireNoError(testingHandle, err, "parse record")
	testutil.RequireTrue(testingHandle, record.Event != nil && record.Event.MessageStop != nil, "expected messageStop")
	testutil.RequireTrue(testingHandle, record.Message != nil, "expected message")
	testutil.RequireEqual(testingHandle, record.Message.Role, "assistant", "role")
}

// TestParseRecordReportsMalformedJSON verifies decode failures are errors but not ErrNotRecord.
func TestParseRecordReportsMalformedJSON(testingHandle *testing.T) {
	for _, line := range []string{`data: {"event":`, `data: [1,2`} {
		_, err := ParseRecord(line)
		testutil.RequireTrue(testingHandle, err != nil, "expected decode error for "+line)
		testutil.RequireTrue(testingHandle, !errors.Is(err, ErrNotRecord), "decode error must not be ErrNotRecord")
	}
}

// TestParseRecordAcceptsArrayAsEmpty verifies an array payload is a silent no-op.
func TestParseRecordAcceptsArrayAsEmpty(testingHandle *testing.T) {
	record, err := ParseRecord(`data: [{"event":{"messageStop":{}}}]`)

	testutil.RequireNoError(testingHandle, err, "parse array")
	testutil.RequireTrue(testingHandle, record.Empty(), "array should decode to an empty record")
}

// TestParseRecordDecodesVariantsIndependently verifies one oddly typed field only drops its own variant.
func TestParseRecordDecodesVariantsIndependently(testingHandle *testing.T) {
	line := `data: {"event":{"messageStart":{"role":1},"contentBlockDelta":{"contentBlockIndex":2.0,"delta":{"text":"Hi"}},"contentBlockStop":[]},"message":"note"}`

	record, err := ParseRecord(line)

	testutil.RequireNoError(testingHandle, err, "parse record")
	testutil.RequireTrue(testingHandle, record.Message == nil, "string message is not a message")
	testutil.RequireTrue(testingHandle, record.Event != nil && record.Event.MessageStart != nil, "messageStart kept")
	testutil.RequireTrue(testingHandle, record.Event.ContentBlockStop == nil, "array stop dropped")
	delta := record.Event.ContentBlockDelta
	testutil.RequireTrue(testingHandle, delta != nil && delta.ContentBlockIndex != nil && delta.Delta != nil, "delta kept")
	testutil.RequireEqual(testingHandle, *delta.ContentBlockIndex, 2, "integral float index")
	testutil.RequireEqual(testingHandle, *delta.Delta.Text, "Hi", "delta text")
}
