package engine

// Tools that only read, or talk to an isolated external API, and can share a
// parallel batch. Two of these never race on the same resource.
var parallelSafeTools = map[string]bool{
	"read_file":       true,
	"read_span":       true,
	"list_files":      true,
	"grep":            true,
	"glob":            true,
	"codebase_search": true,
	"think":           true,
	"web_search":      true,
	"web_fetch":       true,
}

// spawnAgentTool is parallel-safe only when launched in the background.
const spawnAgentTool = "spawn_agent"

// toolEffects maps tools with a side effect to the rollback action they record.
var toolEffects = map[string]ActionType{
	"write_file":     ActionFileWrite,
	"write":          ActionFileWrite,
	"search_replace": ActionFileEdit,
	"edit_file":      ActionFileEdit,
	"delete_file":    ActionFileDelete,
	"run_cmd":        ActionBashCommand,
	"bash":           ActionBashCommand,
}

func isParallelSafe(call ToolCall) bool {
	if call.Name == spawnAgentTool {
		bg, _ := call.Args["background"].(bool)
		return bg
	}
	return parallelSafeTools[call.Name]
}

func effectOf(name string) (ActionType, bool) {
	t, ok := toolEffects[name]
	return t, ok
}

// mutatesFiles reports whether the tool writes, edits or deletes a file.
func mutatesFiles(name string) bool {
	t, ok := toolEffects[name]
	return ok && t != ActionBashCommand
}

// targetPath extracts the file a call operates on.
func targetPath(args map[string]any) string {
	for _, key := range []string{"path", "file_path", "filePath"} {
		if p, ok := args[key].(string); ok && p != "" {
			return p
		}
	}
	return ""
}
