package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/chatlab/chatlab-core/internal/bootstrap"
	"github.com/chatlab/chatlab-core/internal/worker"
)

// wireRequest is one line of stdin: {"id", "op", "payload"}. payload's
// shape depends on op, so it is decoded a second time once op is known
// (§6.4, §4.8a).
type wireRequest struct {
	ID      string          `json:"id"`
	Op      string          `json:"op"`
	Payload json.RawMessage `json:"payload"`
}

// wireFrame is one line of stdout: either a terminal response or a
// progress event, distinguished by which of the two optional fields is
// set (§6.4: "every response is {id, ok, result|error}; progress posts
// {id, progress: {...}}").
type wireFrame struct {
	ID       string            `json:"id"`
	OK       *bool             `json:"ok,omitempty"`
	Result   any               `json:"result,omitempty"`
	Err      any               `json:"error,omitempty"`
	Progress *worker.Progress  `json:"progress,omitempty"`
}

// runLoop reads one JSON request per line until EOF, dispatching each onto
// its own goroutine so a long-running import's progress events interleave
// with other sessions' requests, and writes every frame back out under a
// single mutex so concurrent writers never interleave partial lines.
func runLoop(proc *bootstrap.Process, in *bufio.Reader, out io.Writer, logger *log.Entry) error {
	var writeMu sync.Mutex
	write := func(f wireFrame) {
		writeMu.Lock()
		defer writeMu.Unlock()
		enc := json.NewEncoder(out)
		if err := enc.Encode(f); err != nil {
			logger.Errorf("encode response: %v", err)
		}
	}

	var wg sync.WaitGroup
	for {
		line, err := in.ReadBytes('\n')
		if len(line) > 0 {
			wg.Add(1)
			go func(line []byte) {
				defer wg.Done()
				handleLine(proc, line, write, logger)
			}(append([]byte(nil), line...))
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			wg.Wait()
			return err
		}
	}
	wg.Wait()
	return nil
}

func handleLine(proc *bootstrap.Process, line []byte, write func(wireFrame), logger *log.Entry) {
	var wreq wireRequest
	if err := json.Unmarshal(line, &wreq); err != nil {
		logger.Errorf("decode request: %v", err)
		return
	}
	payload, err := decodePayload(wreq.Op, wreq.Payload)
	if err != nil {
		write(wireFrame{ID: wreq.ID, OK: boolPtr(false), Err: err.Error()})
		return
	}

	req := worker.Request{ID: wreq.ID, Op: wreq.Op, Payload: payload}
	resp := proc.Host.Submit(context.Background(), req, func(p worker.Progress) {
		write(wireFrame{ID: wreq.ID, Progress: &p})
	})
	write(wireFrame{ID: resp.ID, OK: boolPtr(resp.OK), Result: resp.Result, Err: resp.Err})
}

func boolPtr(b bool) *bool { return &b }
