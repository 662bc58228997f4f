package rpc

import "github.com/odvcencio/diffapply/pkg/model"

// Methods served.
const (
	MethodInitialize = "initialize"
	MethodShutdown   = "shutdown"
	MethodExit       = "exit"
	MethodCancel     = "$/cancelRequest"

	MethodOptimize   = "diffapply/optimize"
	MethodAccept     = "diffapply/accept"
	MethodReject     = "diffapply/cancel"
	MethodStatus     = "diffapply/status"
	MethodClearCache = "diffapply/clearCache"
)

// Notifications sent to the client.
const (
	NotifyShowMessage  = "window/showMessage"
	NotifyShowDiff     = "diffapply/showDiff"
	NotifyCloseDiff    = "diffapply/closeDiff"
	NotifyShowDocument = "diffapply/showDocument"
)

// Requests sent to the client.
const (
	RequestApplyEdit = "diffapply/applyEdit"
)

// MessageType mirrors the LSP window/showMessage severities.
type MessageType int

const (
	MessageError   MessageType = 1
	MessageWarning MessageType = 2
	MessageInfo    MessageType = 3
)

type InitializeResult struct {
	ServerInfo   ServerInfo `json:"serverInfo"`
	Capabilities struct {
		Commands []string `json:"commands"`
	} `json:"capabilities"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// OptimizeParams carries the active document.
type OptimizeParams struct {
	URI        string `json:"uri"`
	Path       string `json:"path"`
	Text       string `json:"text"`
	LanguageID string `json:"languageId"`
}

// AcceptParams optionally carries the document's current text so edits made
// since optimize are detected.
type AcceptParams struct {
	Text *string `json:"text,omitempty"`
}

// ErrorInfo describes a failed step.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OptimizeResult reports where the optimize step ended.
type OptimizeResult struct {
	Outcome     string     `json:"outcome"`
	SessionID   string     `json:"sessionId,omitempty"`
	ScratchPath string     `json:"scratchPath,omitempty"`
	Title       string     `json:"title,omitempty"`
	Edits       int        `json:"edits,omitempty"`
	Added       int        `json:"added,omitempty"`
	Removed     int        `json:"removed,omitempty"`
	Cached      bool       `json:"cached,omitempty"`
	Error       *ErrorInfo `json:"error,omitempty"`
}

// DecisionResult reports the result of accept or cancel.
type DecisionResult struct {
	Outcome string     `json:"outcome"`
	State   string     `json:"state"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

type StatusResult struct {
	State     string         `json:"state"`
	SessionID string         `json:"sessionId,omitempty"`
	URI       string         `json:"uri,omitempty"`
	Services  []model.Health `json:"services,omitempty"`
}

type ClearCacheResult struct {
	Cleared int `json:"cleared"`
}

type ShowMessageParams struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

type ShowDiffParams struct {
	Original string `json:"original"`
	Modified string `json:"modified"`
	Title    string `json:"title"`
}

type CloseDiffParams struct {
	Modified string `json:"modified"`
}

type ShowDocumentParams struct {
	URI string `json:"uri"`
}

type ApplyEditParams struct {
	URI  string `json:"uri"`
	Text string `json:"text"`
	Save bool   `json:"save"`
}

// ApplyEditResult is the client's answer to applyEdit, shaped like the LSP
// workspace/applyEdit response.
type ApplyEditResult struct {
	Applied       bool   `json:"applied"`
	FailureReason string `json:"failureReason,omitempty"`
}
