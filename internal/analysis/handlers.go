package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/codefionn/langsock/internal/dispatch"
	"github.com/codefionn/langsock/internal/logger"
	"github.com/codefionn/langsock/internal/protocol"
)

// Register installs a handler for every command into registry. Each handler
// is wrapped in a response cache holding cacheEntries responses.
func Register(registry *dispatch.Registry, language string, cacheEntries int) (*Analyzer, error) {
	a, err := NewAnalyzer(language)
	if err != nil {
		return nil, err
	}
	for cmd, h := range a.Handlers() {
		registry.Register(cmd, dispatch.NewCachingHandler(h, cacheEntries))
	}
	return a, nil
}

// Handlers returns the analyzer's handlers by command.
func (a *Analyzer) Handlers() map[protocol.Command]dispatch.Handler {
	return map[protocol.Command]dispatch.Handler{
		protocol.CommandPrint:      dispatch.HandlerFunc(a.handlePrint),
		protocol.CommandTree:       dispatch.HandlerFunc(a.handleTree),
		protocol.CommandStub:       dispatch.HandlerFunc(a.handleStub),
		protocol.CommandCheck:      dispatch.HandlerFunc(a.handleCheck),
		protocol.CommandWeave:      dispatch.HandlerFunc(a.handleWeave),
		protocol.CommandUsages:     dispatch.HandlerFunc(a.handleUsages),
		protocol.CommandTypeCheck:  dispatch.HandlerFunc(a.handleTypeCheck),
		protocol.CommandObjectInfo: dispatch.HandlerFunc(a.handleObjectInfo),
		protocol.CommandTypedefGen: dispatch.HandlerFunc(a.handleTypedefGen),
	}
}

func (a *Analyzer) handlePrint(_ context.Context, req *protocol.Request) (*protocol.Response, error) {
	typeName := req.TypeName
	if typeName == "" {
		typeName = protocol.DefaultTypeName
	}
	out, err := a.Print(req.Text, typeName)
	if err != nil {
		return nil, err
	}
	return protocol.NewResponse(req.Command, out), nil
}

func (a *Analyzer) handleTree(_ context.Context, req *protocol.Request) (*protocol.Response, error) {
	tree, err := a.Tree(req.Text)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal block tree: %w", err)
	}
	return protocol.NewResponse(req.Command, data), nil
}

func (a *Analyzer) handleStub(_ context.Context, req *protocol.Request) (*protocol.Response, error) {
	out, err := a.Stub(req.Text)
	if err != nil {
		return nil, err
	}
	return protocol.NewResponse(req.Command, out), nil
}

func (a *Analyzer) handleCheck(_ context.Context, req *protocol.Request) (*protocol.Response, error) {
	if req.Original == nil {
		return nil, fmt.Errorf("check requires an original payload")
	}
	result, err := a.Check(req.Original, req.Text)
	if err != nil {
		return nil, err
	}
	resp := protocol.NewResponse(req.Command, []byte(strconv.FormatBool(result.Complete())))
	resp.Problems = result.Problems
	resp.Score = protocol.Int(result.Score)
	return resp, nil
}

func (a *Analyzer) handleWeave(_ context.Context, req *protocol.Request) (*protocol.Response, error) {
	if req.Nettle == nil {
		return nil, fmt.Errorf("weave requires a nettle payload")
	}
	level := req.Level
	if level < 0 {
		level = 0
	}
	out, err := a.Weave(req.Text, req.Nettle, level)
	if err != nil {
		return nil, err
	}
	return protocol.NewResponse(req.Command, out), nil
}

func (a *Analyzer) handleUsages(_ context.Context, req *protocol.Request) (*protocol.Response, error) {
	if req.InnerBlock == nil {
		return nil, fmt.Errorf("usages requires an innerBlock payload")
	}
	result, err := a.Usages(req.Text, req.InnerBlock)
	if err != nil {
		return nil, err
	}
	logger.Debug("analysis: %d usages of %q", result.Count, result.Symbol)
	return protocol.NewResponse(req.Command, result.Text), nil
}

func (a *Analyzer) handleTypeCheck(_ context.Context, req *protocol.Request) (*protocol.Response, error) {
	count, err := a.TypeCheck(req.Text)
	if err != nil {
		return nil, err
	}
	resp := protocol.NewResponse(req.Command, nil)
	resp.Errors = protocol.Int(count)
	return resp, nil
}

func (a *Analyzer) handleObjectInfo(_ context.Context, req *protocol.Request) (*protocol.Response, error) {
	info, err := a.ObjectInfo(req.Text)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal object info: %w", err)
	}
	return protocol.NewResponse(req.Command, data), nil
}

func (a *Analyzer) handleTypedefGen(_ context.Context, req *protocol.Request) (*protocol.Response, error) {
	typeName := req.TypeName
	if typeName == "" {
		typeName = protocol.DefaultTypeName
	}
	out, err := a.TypedefGen(req.Text, typeName)
	if err != nil {
		return nil, err
	}
	return protocol.NewResponse(req.Command, out), nil
}
