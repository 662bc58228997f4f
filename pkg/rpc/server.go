// Package rpc exposes the optimization session over JSON-RPC 2.0 on stdio
// with LSP-style Content-Length framing, so editor plugins can drive it.
package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	apperrors "github.com/odvcencio/diffapply/pkg/errors"
	"github.com/odvcencio/diffapply/pkg/host"
	"github.com/odvcencio/diffapply/pkg/logging"
	"github.com/odvcencio/diffapply/pkg/model"
	"github.com/odvcencio/diffapply/pkg/session"
)

// Document is the client's view of a document, updated from request params.
type Document struct {
	mu       sync.Mutex
	uri      string
	path     string
	text     string
	language string
}

func (d *Document) URI() string      { return d.uri }
func (d *Document) Path() string     { return d.path }
func (d *Document) Language() string { return d.language }

func (d *Document) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

func (d *Document) setText(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text = text
}

// HealthReporter reports the state of a remote service.
type HealthReporter interface {
	Health() model.Health
}

// Server dispatches requests to a session.Controller and implements the
// host collaborators by messaging the client. Edits are sent as requests
// and the client's answer decides whether the apply succeeded.
type Server struct {
	out     io.Writer
	writeMu sync.Mutex
	logger  *logging.Logger
	version string

	ctrl     *session.Controller
	health   []HealthReporter
	docMu    sync.Mutex
	doc      *Document
	shutdown bool

	// owned by the Serve goroutine
	reader  *bufio.Reader
	queued  []*Message
	nextID  int64
	exiting bool
}

// NewServer creates a server writing to out.
func NewServer(out io.Writer, version string, logger *logging.Logger) *Server {
	return &Server{out: out, version: version, logger: logger}
}

// Bind attaches the controller. It must be called before Serve.
func (s *Server) Bind(ctrl *session.Controller) {
	s.ctrl = ctrl
}

// Monitor adds services whose health is included in status replies.
func (s *Server) Monitor(reporters ...HealthReporter) {
	s.health = append(s.health, reporters...)
}

// Serve reads messages from r until EOF, an exit notification or ctx is done.
func (s *Server) Serve(ctx context.Context, r io.Reader) error {
	if s.ctrl == nil {
		return errors.New("rpc: server has no controller bound")
	}
	reader, ok := r.(*bufio.Reader)
	if !ok {
		reader = bufio.NewReader(r)
	}
	s.reader = reader

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := s.next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			var rpcErr *Error
			if errors.As(err, &rpcErr) {
				if werr := s.write(&Message{JSONRPC: "2.0", ID: nullID(), Error: rpcErr}); werr != nil {
					return werr
				}
				continue
			}
			return fmt.Errorf("failed to read message: %w", err)
		}

		switch {
		case msg.IsResponse():
			_ = s.logger.Debug(logging.CategorySession, "rpc.unexpected_response", string(*msg.ID), nil)
			continue
		case msg.IsNotification():
			if s.handleNotification(ctx, msg) {
				return nil
			}
			continue
		}

		if err := s.write(s.handleRequest(ctx, msg)); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
		if s.exiting {
			s.stop(ctx)
			return nil
		}
	}
}

// next returns requests deferred while waiting on the client, then reads.
func (s *Server) next() (*Message, error) {
	if len(s.queued) > 0 {
		msg := s.queued[0]
		s.queued = s.queued[1:]
		return msg, nil
	}
	return ReadMessage(s.reader)
}

func nullID() *json.RawMessage {
	id := json.RawMessage("null")
	return &id
}

// handleNotification returns true when the server should stop.
func (s *Server) handleNotification(ctx context.Context, msg *Message) bool {
	switch msg.Method {
	case MethodExit:
		s.stop(ctx)
		return true
	case MethodCancel, "initialized":
	default:
		_ = s.logger.Debug(logging.CategorySession, "rpc.unknown_notification", msg.Method, nil)
	}
	return false
}

func (s *Server) stop(ctx context.Context) {
	if !s.shutdown {
		s.ctrl.Shutdown(ctx)
		s.shutdown = true
	}
}

func (s *Server) handleRequest(ctx context.Context, msg *Message) *Message {
	response := &Message{JSONRPC: "2.0", ID: msg.ID}

	result, rpcErr := s.dispatch(ctx, msg)
	if rpcErr != nil {
		response.Error = rpcErr
		return response
	}

	data, err := json.Marshal(result)
	if err != nil {
		response.Error = &Error{Code: InternalError, Message: err.Error()}
		return response
	}
	response.Result = data
	return response
}

func (s *Server) dispatch(ctx context.Context, msg *Message) (any, *Error) {
	if s.shutdown && msg.Method != MethodShutdown {
		return nil, &Error{Code: InvalidRequest, Message: "server is shutting down"}
	}

	switch msg.Method {
	case MethodInitialize:
		var res InitializeResult
		res.ServerInfo = ServerInfo{Name: "diffapply", Version: s.version}
		res.Capabilities.Commands = []string{MethodOptimize, MethodAccept, MethodReject, MethodStatus, MethodClearCache}
		return res, nil

	case MethodShutdown:
		s.stop(ctx)
		return nil, nil

	case MethodOptimize:
		var params OptimizeParams
		if err := unmarshalParams(msg.Params, &params); err != nil {
			return nil, err
		}
		return s.optimize(ctx, params)

	case MethodAccept:
		var params AcceptParams
		if err := unmarshalParams(msg.Params, &params); err != nil {
			return nil, err
		}
		if params.Text != nil {
			if doc := s.currentDoc(); doc != nil {
				doc.setText(*params.Text)
			}
		}
		outcome, err := s.ctrl.Accept(ctx)
		return s.decision(outcome, err), nil

	case MethodReject:
		outcome, err := s.ctrl.Cancel(ctx)
		return s.decision(outcome, err), nil

	case MethodStatus:
		res := StatusResult{State: s.ctrl.State().String()}
		if sess, ok := s.ctrl.Current(); ok {
			res.SessionID = sess.ID
			res.URI = sess.Document.URI()
		}
		for _, h := range s.health {
			res.Services = append(res.Services, h.Health())
		}
		return res, nil

	case MethodClearCache:
		return ClearCacheResult{Cleared: s.ctrl.ClearCache()}, nil

	default:
		return nil, &Error{Code: MethodNotFound, Message: fmt.Sprintf("method not found: %s", msg.Method)}
	}
}

func unmarshalParams(raw json.RawMessage, v any) *Error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &Error{Code: InvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}

func (s *Server) optimize(ctx context.Context, params OptimizeParams) (any, *Error) {
	path := params.Path
	if path == "" {
		path = pathFromURI(params.URI)
	}
	if path == "" {
		return nil, &Error{Code: InvalidParams, Message: "uri or path is required"}
	}
	uri := params.URI
	if uri == "" {
		uri = fileURI(path)
	}

	doc := &Document{uri: uri, path: path, text: params.Text, language: params.LanguageID}
	s.docMu.Lock()
	s.doc = doc
	s.docMu.Unlock()

	outcome, err := s.ctrl.Optimize(ctx, doc)
	res := OptimizeResult{Outcome: string(outcome), Error: errorInfo(err)}
	if sess, ok := s.ctrl.Current(); ok && outcome == session.OutcomePreviewing {
		res.SessionID = sess.ID
		res.Edits = sess.Edits
		res.Added = sess.Stats.Added
		res.Removed = sess.Stats.Removed
		res.Cached = sess.CacheHit
		if sess.Preview != nil {
			res.ScratchPath = sess.Preview.ScratchPath
			res.Title = sess.Preview.Title
		}
	}
	return res, nil
}

func (s *Server) decision(outcome session.Outcome, err error) DecisionResult {
	return DecisionResult{
		Outcome: string(outcome),
		State:   s.ctrl.State().String(),
		Error:   errorInfo(err),
	}
}

func (s *Server) currentDoc() *Document {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	return s.doc
}

func errorInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	return &ErrorInfo{Code: string(apperrors.GetCode(err)), Message: apperrors.UserMessage(err)}
}

func (s *Server) write(msg *Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return WriteMessage(s.out, msg)
}

func (s *Server) notify(method string, params any) error {
	data, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return s.write(&Message{JSONRPC: "2.0", Method: method, Params: data})
}

func (s *Server) showMessage(kind MessageType, message string) {
	if err := s.notify(NotifyShowMessage, ShowMessageParams{Type: kind, Message: message}); err != nil {
		_ = s.logger.Warn(logging.CategorySession, "rpc.notify_failed", err.Error(), nil)
	}
}

func (s *Server) Info(_ context.Context, message string)  { s.showMessage(MessageInfo, message) }
func (s *Server) Warn(_ context.Context, message string)  { s.showMessage(MessageWarning, message) }
func (s *Server) Error(_ context.Context, message string) { s.showMessage(MessageError, message) }

func (s *Server) ShowDiff(_ context.Context, originalPath, modifiedPath, title string) error {
	return s.notify(NotifyShowDiff, ShowDiffParams{
		Original: fileURI(originalPath),
		Modified: fileURI(modifiedPath),
		Title:    title,
	})
}

func (s *Server) CloseDiff(_ context.Context, modifiedPath string) error {
	return s.notify(NotifyCloseDiff, CloseDiffParams{Modified: fileURI(modifiedPath)})
}

func (s *Server) ShowDocument(_ context.Context, path string) error {
	return s.notify(NotifyShowDocument, ShowDocumentParams{URI: fileURI(path)})
}

// ReplaceAndSave asks the client to replace the document text and save it,
// and waits for its answer. The local snapshot only changes on success.
func (s *Server) ReplaceAndSave(ctx context.Context, doc host.Document, text string) error {
	var res ApplyEditResult
	if err := s.request(ctx, RequestApplyEdit, ApplyEditParams{URI: doc.URI(), Text: text, Save: true}, &res); err != nil {
		return err
	}
	if !res.Applied {
		if res.FailureReason != "" {
			return errors.New(res.FailureReason)
		}
		return errors.New("the editor did not apply the edit")
	}
	if d, ok := doc.(*Document); ok {
		d.setText(text)
	}
	return nil
}

// request sends a request to the client and reads until its response
// arrives. Client requests read meanwhile are queued for Serve.
func (s *Server) request(ctx context.Context, method string, params, result any) error {
	if s.reader == nil {
		return errors.New("rpc: server is not serving")
	}
	data, err := json.Marshal(params)
	if err != nil {
		return err
	}
	s.nextID++
	id := json.RawMessage(strconv.FormatInt(s.nextID, 10))
	if err := s.write(&Message{JSONRPC: "2.0", ID: &id, Method: method, Params: data}); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := ReadMessage(s.reader)
		if err != nil {
			var rpcErr *Error
			if errors.As(err, &rpcErr) {
				if werr := s.write(&Message{JSONRPC: "2.0", ID: nullID(), Error: rpcErr}); werr != nil {
					return werr
				}
				continue
			}
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return fmt.Errorf("waiting for %s response: %w", method, err)
		}

		switch {
		case msg.IsResponse():
			if string(*msg.ID) != string(id) {
				_ = s.logger.Debug(logging.CategorySession, "rpc.unexpected_response", string(*msg.ID), nil)
				continue
			}
			if msg.Error != nil {
				return msg.Error
			}
			if result != nil && len(msg.Result) > 0 {
				if err := json.Unmarshal(msg.Result, result); err != nil {
					return fmt.Errorf("decoding %s response: %w", method, err)
				}
			}
			return nil
		case msg.IsNotification():
			if msg.Method == MethodExit {
				s.exiting = true
				return fmt.Errorf("client exited before answering %s", method)
			}
			s.handleNotification(ctx, msg)
		default:
			s.queued = append(s.queued, msg)
		}
	}
}

func fileURI(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

func pathFromURI(uri string) string {
	if !strings.HasPrefix(uri, "file://") {
		return ""
	}
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	return filepath.FromSlash(u.Path)
}

var (
	_ host.Document   = (*Document)(nil)
	_ host.Notifier   = (*Server)(nil)
	_ host.DiffViewer = (*Server)(nil)
	_ host.Editor     = (*Server)(nil)
)
