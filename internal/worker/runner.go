package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/meridianlabs/agentgateway/internal/security"
	"github.com/meridianlabs/agentgateway/internal/tools"
)

// RunWorkerMode is the entrypoint a re-exec'd worker process calls
// instead of starting the gateway proper. It reads execute frames from
// in, runs them against registry, and writes progress/result frames to
// out, one JSON object per line, until in is closed.
func RunWorkerMode(registry *tools.Registry, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 16<<20)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var msg message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			continue
		}
		if msg.Kind != msgExecute || msg.Task == nil {
			continue
		}
		runOneTask(registry, *msg.Task, out)
	}
	return scanner.Err()
}

func runOneTask(registry *tools.Registry, task Task, out io.Writer) {
	writeFrame := func(m message) {
		data, err := json.Marshal(m)
		if err != nil {
			return
		}
		out.Write(append(data, '\n'))
	}

	tc := &tools.Context{
		SessionID: task.SessionID,
		Cwd:       task.Cwd,
		SecurityPolicy: security.NewPolicy(
			task.WorkspaceRoot,
			task.Autonomy,
			task.BlockedPaths,
			task.AllowedCommands,
		),
		OnProgress: func(p tools.ProgressUpdate) {
			writeFrame(message{
				Kind:    msgProgress,
				TaskID:  task.ID,
				Stage:   p.Stage,
				Text:    p.Message,
				Percent: p.Percent,
			})
		},
	}

	result, err := registry.Execute(context.Background(), task.Tool, task.Args, tc)
	if err != nil {
		writeFrame(message{Kind: msgError, TaskID: task.ID, Error: err.Error()})
		return
	}

	data, err := json.Marshal(Result{
		Success:  result.Success,
		Output:   result.Output,
		Error:    result.Error,
		Metadata: result.Metadata,
	})
	if err != nil {
		writeFrame(message{Kind: msgError, TaskID: task.ID, Error: fmt.Sprintf("marshal result: %v", err)})
		return
	}
	writeFrame(message{Kind: msgResult, TaskID: task.ID, Result: data})
}
