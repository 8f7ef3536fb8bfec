package tools

import "testing"

func TestCreateDefaultRegistersStandardSet(t *testing.T) {
	r := CreateDefault()
	want := []string{
		"file_read", "file_write", "file_append", "file_edit", "ls", "stat",
		"grep", "bash", "memory_store", "memory_recall", "load_skill",
		"canvas_render", "mcp_client", "web_search", "web_fetch",
	}
	for _, name := range want {
		if _, ok := r.Get(name); !ok {
			t.Errorf("expected %s to be registered", name)
		}
	}
	if len(r.Names()) != len(want) {
		t.Errorf("expected %d tools, got %d", len(want), len(r.Names()))
	}

	heavy := r.HeavyweightNames()
	if len(heavy) != 1 || heavy[0] != "bash" {
		t.Errorf("expected only bash to be heavyweight, got %v", heavy)
	}
}
