package transaction

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"w24fs/internal/logger"
	"w24fs/internal/metrics"
	"w24fs/internal/protocol"
	"w24fs/internal/query"
	"w24fs/internal/types"
)

// Manager runs commands against the query engine. Connections submit
// requests on Requests; each is handled on its own goroutine and answered on
// the request's RespChan.
type Manager struct {
	Engine   *query.Engine
	Requests chan types.RequestContext
	done     chan struct{}
}

func NewManager(engine *query.Engine) *Manager {
	return &Manager{
		Engine:   engine,
		Requests: make(chan types.RequestContext, 100),
		done:     make(chan struct{}),
	}
}

func (tm *Manager) Start() {
	go tm.dispatch()
}

// Stop ends the dispatch loop. Requests already handed to a goroutine finish.
func (tm *Manager) Stop() {
	close(tm.done)
}

func (tm *Manager) dispatch() {
	for {
		select {
		case req := <-tm.Requests:
			go tm.handle(req)
		case <-tm.done:
			return
		}
	}
}

// Submit queues cmd and waits for its response.
func (tm *Manager) Submit(ctx context.Context, ordinal uint64, cmd types.Command) (types.ResponseContext, error) {
	req := types.RequestContext{
		ReqID:    uuid.NewString(),
		Ordinal:  ordinal,
		Command:  cmd,
		RespChan: make(chan types.ResponseContext, 1),
	}
	select {
	case tm.Requests <- req:
	case <-tm.done:
		return types.ResponseContext{}, fmt.Errorf("manager stopped")
	case <-ctx.Done():
		return types.ResponseContext{}, ctx.Err()
	}
	select {
	case resp := <-req.RespChan:
		return resp, nil
	case <-ctx.Done():
		return types.ResponseContext{}, ctx.Err()
	}
}

func (tm *Manager) handle(req types.RequestContext) {
	start := time.Now()
	cmd := req.Command
	logger.Debug("Transaction Manager: Handling request %s (conn %d, op: %s)", req.ReqID, req.Ordinal, cmd.Op)

	resp := types.ResponseContext{ReqID: req.ReqID}
	var res query.Result
	var err error

	if reason := protocol.Rejection(cmd); reason != "" {
		res = query.Result{Frames: []string{reason}}
		err = fmt.Errorf("rejected %q: %s", cmd.Raw, reason)
	} else {
		res, err = tm.execute(req.ReqID, cmd)
	}

	if err != nil {
		resp.Success = false
		resp.Error = err
		if len(res.Frames) == 0 {
			res.Frames = []string{query.Message(err)}
		}
		res.Frames = protocol.Terminate(cmd, res.Frames)
	} else {
		resp.Success = true
	}
	resp.Frames = res.Frames
	resp.Archive = res.Archive

	outcome := "ok"
	switch {
	case protocol.Rejection(cmd) != "" || query.IsArgumentError(err):
		outcome = "rejected"
	case err != nil:
		outcome = "error"
		logger.Error("Op (%s) Error (ReqID: %s): %v", cmd.Op, req.ReqID, err)
	}
	metrics.RecordCommand(cmd.Op.String(), outcome, time.Since(start))
	if res.Archive != "" {
		metrics.RecordArchive(res.Bytes)
		logger.Info("Op (%s) archived %d files into %s", cmd.Op, res.Files, res.Archive)
	}

	req.RespChan <- resp
}

func (tm *Manager) execute(reqID string, cmd types.Command) (query.Result, error) {
	e := tm.Engine
	switch cmd.Op {
	case types.OpListAlpha:
		return e.ListAlpha()
	case types.OpListByTime:
		return e.ListByTime()
	case types.OpFileInfo:
		return e.FileInfo(cmd.Name)
	case types.OpSizeRange:
		return e.SizeRange(reqID, cmd.Lo, cmd.Hi)
	case types.OpModifiedBefore:
		return e.ModifiedBefore(reqID, cmd.Date)
	case types.OpModifiedAfter:
		return e.ModifiedAfter(reqID, cmd.Date)
	case types.OpExtensionSet:
		return e.ExtensionSet(reqID, cmd.Extensions)
	}
	return query.Result{}, fmt.Errorf("operation not implemented: %s", cmd.Op)
}
