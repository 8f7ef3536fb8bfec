package tools

// CreateDefault builds a Registry populated with the standard tool
// set: filesystem access, grep, bash, memory, canvas, skills, web
// search/fetch, and the MCP bridge. Callers that need a narrower
// surface (e.g. a sandboxed worker) build a Registry by hand instead.
func CreateDefault() *Registry {
	r := NewRegistry()

	r.Register(NewFileReadTool(0))
	r.Register(NewFileWriteTool())
	r.Register(NewFileAppendTool())
	r.Register(NewFileEditTool())
	r.Register(NewLsTool())
	r.Register(NewStatTool())
	r.Register(NewGrepTool())
	r.Register(NewBashTool(0))
	r.Register(NewMemoryStoreTool())
	r.Register(NewMemoryRecallTool())
	r.Register(NewLoadSkillTool())
	r.Register(NewCanvasRenderTool(0))
	r.Register(NewMCPClientTool())
	r.Register(NewWebSearchTool(0))
	r.Register(NewWebFetchTool(nil))

	return r
}
