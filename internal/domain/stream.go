package domain

// ToolCallDelta is an incremental fragment of a tool call in a streaming
// response. Index is the protocol's slot index; ID and Name overwrite the
// slot when present, Arguments fragments are concatenated onto it.
type ToolCallDelta struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// StreamDelta is a single incremental chunk from a streaming chat response.
// Err is set on the final delta when the stream terminated with a transport
// failure; the text accumulated so far is truncated, not complete.
type StreamDelta struct {
	Content   string          `json:"content,omitempty"`
	ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`
	Done      bool            `json:"done,omitempty"`
	Usage     *Usage          `json:"usage,omitempty"`
	Err       error           `json:"-"`
}

// ChunkType tags a StreamChunk variant.
type ChunkType string

// Chunk variants surfaced to the caller during a streaming turn.
const (
	ChunkText       ChunkType = "text"
	ChunkToolCall   ChunkType = "tool_call"
	ChunkToolResult ChunkType = "tool_result"
	ChunkError      ChunkType = "error"
	ChunkDone       ChunkType = "done"
)

// StreamChunk is one incremental unit of a streamed agent response. Each
// variant carries only the fields relevant to its tag. Chunks are produced
// transiently during one streaming turn and are not persisted.
type StreamChunk struct {
	Type     ChunkType   `json:"type"`
	Content  string      `json:"content,omitempty"`
	ToolName string      `json:"tool_name,omitempty"`
	Result   *ToolResult `json:"result,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// TextChunk creates a text StreamChunk.
func TextChunk(content string) StreamChunk {
	return StreamChunk{Type: ChunkText, Content: content}
}

// ToolCallChunk announces that the model is invoking a tool.
func ToolCallChunk(toolName string) StreamChunk {
	return StreamChunk{Type: ChunkToolCall, ToolName: toolName}
}

// ToolResultChunk carries the outcome of a dispatched tool call.
func ToolResultChunk(toolName string, result ToolResult) StreamChunk {
	return StreamChunk{Type: ChunkToolResult, ToolName: toolName, Result: &result}
}

// ErrorChunk carries a streaming-turn failure.
func ErrorChunk(err error) StreamChunk {
	return StreamChunk{Type: ChunkError, Error: err.Error()}
}

// DoneChunk signals the end of a streaming turn.
func DoneChunk() StreamChunk {
	return StreamChunk{Type: ChunkDone}
}
