package services

import (
	"context"
	"fmt"

	"gbnf.dev/client/internal/core/domain"
	"gbnf.dev/client/internal/core/ports"
)

type textDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

type textDocumentIdentifier struct {
	URI string `json:"uri"`
}

type versionedTextDocumentIdentifier struct {
	URI     string `json:"uri"`
	Version int    `json:"version"`
}

type contentChange struct {
	Text string `json:"text"`
}

type didOpenParams struct {
	TextDocument textDocumentItem `json:"textDocument"`
}

type didChangeParams struct {
	TextDocument   versionedTextDocumentIdentifier `json:"textDocument"`
	ContentChanges []contentChange                 `json:"contentChanges"`
}

type didSaveParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
	Text         *string                `json:"text,omitempty"`
}

type didCloseParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
}

// ProtocolBridge forwards document events to the language server, but only
// for documents the selector matches. Each method reports whether the event
// was forwarded.
type ProtocolBridge struct {
	selector domain.DocumentSelector
	sender   ports.MessageSender
}

// NewProtocolBridge creates a bridge sending through sender
func NewProtocolBridge(selector domain.DocumentSelector, sender ports.MessageSender) *ProtocolBridge {
	return &ProtocolBridge{selector: selector, sender: sender}
}

func (b *ProtocolBridge) DidOpen(ctx context.Context, doc domain.Document) (bool, error) {
	return b.forward(ctx, doc, "textDocument/didOpen", didOpenParams{
		TextDocument: textDocumentItem{
			URI:        doc.URI,
			LanguageID: doc.LanguageID,
			Version:    doc.Version,
			Text:       doc.Text,
		},
	})
}

// DidChange sends the full document text
func (b *ProtocolBridge) DidChange(ctx context.Context, doc domain.Document) (bool, error) {
	return b.forward(ctx, doc, "textDocument/didChange", didChangeParams{
		TextDocument:   versionedTextDocumentIdentifier{URI: doc.URI, Version: doc.Version},
		ContentChanges: []contentChange{{Text: doc.Text}},
	})
}

func (b *ProtocolBridge) DidSave(ctx context.Context, doc domain.Document) (bool, error) {
	text := doc.Text
	return b.forward(ctx, doc, "textDocument/didSave", didSaveParams{
		TextDocument: textDocumentIdentifier{URI: doc.URI},
		Text:         &text,
	})
}

func (b *ProtocolBridge) DidClose(ctx context.Context, doc domain.Document) (bool, error) {
	return b.forward(ctx, doc, "textDocument/didClose", didCloseParams{
		TextDocument: textDocumentIdentifier{URI: doc.URI},
	})
}

func (b *ProtocolBridge) forward(ctx context.Context, doc domain.Document, method string, params interface{}) (bool, error) {
	if !b.selector.Matches(doc) {
		return false, nil
	}
	if b.sender == nil {
		return false, domain.ErrNotRunning
	}
	if err := b.sender.Notify(ctx, method, params); err != nil {
		return false, fmt.Errorf("%s %s: %w", method, doc.URI, err)
	}
	return true, nil
}

var _ ports.DocumentBridge = (*ProtocolBridge)(nil)
