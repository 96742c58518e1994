package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// ClientInfo identifies the client in the initialize request
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ServerInfo is what the server reports about itself
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type initializeParams struct {
	ProcessID    int                `json:"processId"`
	ClientInfo   *ClientInfo        `json:"clientInfo,omitempty"`
	RootURI      *string            `json:"rootUri"`
	Capabilities clientCapabilities `json:"capabilities"`
	Trace        string             `json:"trace,omitempty"`
}

type clientCapabilities struct {
	TextDocument textDocumentClientCapabilities `json:"textDocument"`
	Window       windowClientCapabilities       `json:"window"`
}

type textDocumentClientCapabilities struct {
	Synchronization synchronizationCapabilities `json:"synchronization"`
}

type synchronizationCapabilities struct {
	DidSave bool `json:"didSave"`
}

type windowClientCapabilities struct {
	ShowMessage *struct{} `json:"showMessage,omitempty"`
}

type initializeResult struct {
	Capabilities json.RawMessage `json:"capabilities"`
	ServerInfo   *ServerInfo     `json:"serverInfo,omitempty"`
}

// rpcCaller is the part of the connection the handshake needs
type rpcCaller interface {
	Call(ctx context.Context, method string, params interface{}, result interface{}) error
	Notify(ctx context.Context, method string, params interface{}) error
}

// initialize performs the LSP initialize handshake.
func initialize(ctx context.Context, conn rpcCaller, client ClientInfo, rootURI string, debug bool) (*ServerInfo, error) {
	params := initializeParams{
		ProcessID:  os.Getpid(),
		ClientInfo: &client,
		Capabilities: clientCapabilities{
			TextDocument: textDocumentClientCapabilities{
				Synchronization: synchronizationCapabilities{DidSave: true},
			},
			Window: windowClientCapabilities{ShowMessage: &struct{}{}},
		},
		Trace: "off",
	}
	if rootURI != "" {
		params.RootURI = &rootURI
	}
	if debug {
		params.Trace = "verbose"
	}

	var result initializeResult
	if err := conn.Call(ctx, "initialize", params, &result); err != nil {
		return nil, fmt.Errorf("initialize request: %w", err)
	}

	if err := conn.Notify(ctx, "initialized", struct{}{}); err != nil {
		return nil, fmt.Errorf("initialized notification: %w", err)
	}

	return result.ServerInfo, nil
}
