package mockagent

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Fixture is a scripted agent response, one wire line per entry.
type Fixture struct {
	// Lines are written in order, each followed by a newline.
	Lines []string
}

// Bytes renders the fixture as a wire stream.
func (f Fixture) Bytes() []byte {
	var builder strings.Builder
	for _, line := range f.Lines {
		builder.WriteString(line)
		builder.WriteByte('\n')
	}
	return []byte(builder.String())
}

// LoadFixture reads a fixture file; blank lines are kept so the stream
// matches the file.
func LoadFixture(path string) (Fixture, error) {
	file, err := os.Open(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("open fixture: %w", err)
	}
	defer file.Close()
	return ReadFixture(file)
}

// ReadFixture reads fixture lines from reader.
func ReadFixture(reader io.Reader) (Fixture, error) {
	var fixture Fixture
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		fixture.Lines = append(fixture.Lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return Fixture{}, fmt.Errorf("read fixture: %w", err)
	}
	return fixture, nil
}

// DefaultScript answers a prompt with one tool round trip: streamed text, a
// tool call with fragmented input, the final replay, the tool result, and a
// second message cycle with the answer. It also carries the kind of noise
// real agents emit between records.
func DefaultScript(prompt string) Fixture {
	answer := fmt.Sprintf("You asked: %q. The lookup returned 42.", prompt)
	return Fixture{Lines: []string{
		`data: {"event":{"messageStart":{"role":"assistant"}}}`,
		`data: {"event":{"contentBlockDelta":{"contentBlockIndex":0,"delta":{"text":"Let me "}}}}`,
		`data: {"event":{"contentBlockDelta":{"contentBlockIndex":0,"delta":{"text":"look that up."}}}}`,
		`data: {"event":{"contentBlockStop":{"contentBlockIndex":0}}}`,
		`data: {"event":{"contentBlockStart":{"contentBlockIndex":1,"start":{"toolUse":{"toolUseId":"tooluse_lookup_1","name":"lookup"}}}}}`,
		`data: {"event":{"contentBlockDelta":{"contentBlockIndex":1,"delta":{"toolUse":{"input":"{\"query\":"}}}}}`,
		`data: {"event":{"contentBlockDelta":{"contentBlockIndex":1,"delta":{"toolUse":{"input":"\"answer\"}"}}}}}`,
		`data: {"event":{"contentBlockStop":{"contentBlockIndex":1}}}`,
		`data: {"event":{"messageStop":{"stopReason":"tool_use"}}}`,
		`data: '{"init_event_loop": True}'`,
		`data: {"message":{"role":"assistant","content":[{"text":"Let me look that up."},{"toolUse":{"toolUseId":"tooluse_lookup_1","name":"lookup","input":{"query":"answer"}}}]}}`,
		`data: {"message":{"role":"user","content":[{"toolResult":{"toolUseId":"tooluse_lookup_1","status":"success","content":[{"text":"42"}]}}]}}`,
		``,
		`data: {"event":{"messageStart":{"role":"assistant"}}}`,
		`data: {"event":{"contentBlockDelta":{"contentBlockIndex":0,"delta":{"text":` + quoteJSON(answer) + `}}}}`,
		`data: {"event":{"contentBlockStop":{"contentBlockIndex":0}}}`,
		`data: {"event":{"messageStop":{"stopReason":"end_turn"}}}`,
		`data: {"message":{"role":"assistant","content":[{"text":` + quoteJSON(answer) + `}]}}`,
	}}
}

func quoteJSON(text string) string {
	encoded, _ := json.Marshal(text)
	return string(encoded)
}
