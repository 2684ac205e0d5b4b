package protocol

// Directory and path constants used throughout offload.
const (
	// OffloadDir is the user-level state directory (e.g., ~/.offload).
	OffloadDir = ".offload"

	// ResultsDir holds generated artifacts, relative to the state directory.
	ResultsDir = "results"

	// StatusDir holds one JSON status record per work package.
	StatusDir = "status"

	// CommandsDir holds the markdown command corpus used as protocol text.
	CommandsDir = "commands"

	// FallbackModel is returned by model selection when the generation
	// service reports no models at all.
	FallbackModel = "llama3.2:3b"
)
