package lsp

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/weftlabs/weft/internal/cli/config"
	"github.com/weftlabs/weft/internal/parser"
	"github.com/weftlabs/weft/internal/state"
)

// Server implements the Language Server Protocol for weft projects.
type Server struct {
	// Document management
	documents *DocumentStore

	// Project layout, resolved from weft.yaml at initialize time.
	projectRoot string
	scriptsDir  string
	initialized bool

	// Link state left behind by the last build (nil if none exists).
	store *state.SQLiteStore

	// Memory caches for fast lookups. scriptPaths maps every dotted name
	// found on disk to its file; scriptRecs carries the persisted rows when
	// a state store is attached.
	scriptPaths map[string]string
	scriptRecs  map[string]*state.ScriptRecord
	cacheMu     sync.RWMutex

	// Quick fixes backing published diagnostics.
	fixes *fixCache

	// I/O
	reader  *bufio.Reader
	writer  io.Writer
	writeMu sync.Mutex

	// Logging
	logger *slog.Logger

	// Shutdown state
	shutdown   bool
	shutdownMu sync.RWMutex
}

// NewServer creates a new LSP server instance.
func NewServer(reader io.Reader, writer io.Writer) *Server {
	return NewServerWithLogger(reader, writer, nil)
}

// NewServerWithLogger creates a new LSP server instance with a custom logger.
func NewServerWithLogger(reader io.Reader, writer io.Writer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Server{
		documents:   NewDocumentStore(),
		reader:      bufio.NewReader(reader),
		writer:      writer,
		logger:      logger,
		scriptPaths: make(map[string]string),
		scriptRecs:  make(map[string]*state.ScriptRecord),
		fixes:       newFixCache(),
	}
}

// Run starts the server's main loop, processing JSON-RPC messages.
func (s *Server) Run() error {
	s.logger.Info("weft language server starting...")

	for {
		s.shutdownMu.RLock()
		if s.shutdown {
			s.shutdownMu.RUnlock()
			return nil
		}
		s.shutdownMu.RUnlock()

		msg, err := s.readMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Info("Client disconnected")
				return nil
			}
			s.logger.Error("Error reading message", "error", err)
			continue
		}

		if err := s.handleMessage(msg); err != nil {
			s.logger.Error("Error handling message", "error", err)
		}
	}
}

// JSONRPCMessage represents a JSON-RPC 2.0 message.
type JSONRPCMessage struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string           `json:"method,omitempty"`
	Params  json.RawMessage  `json:"params,omitempty"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *JSONRPCError    `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC error.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// readMessage reads a JSON-RPC message from the input stream.
func (s *Server) readMessage() (*JSONRPCMessage, error) {
	// Read headers
	var contentLength int
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			break // End of headers
		}

		if strings.HasPrefix(line, "Content-Length: ") {
			lengthStr := strings.TrimPrefix(line, "Content-Length: ")
			contentLength, err = strconv.Atoi(lengthStr)
			if err != nil {
				return nil, fmt.Errorf("invalid Content-Length: %w", err)
			}
		}
	}

	if contentLength == 0 {
		return nil, fmt.Errorf("missing Content-Length header")
	}

	// Read body
	body := make([]byte, contentLength)
	_, err := io.ReadFull(s.reader, body)
	if err != nil {
		return nil, fmt.Errorf("error reading body: %w", err)
	}

	var msg JSONRPCMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("error parsing message: %w", err)
	}

	return &msg, nil
}

// sendResponse sends a JSON-RPC response.
func (s *Server) sendResponse(id *json.RawMessage, result any, err *JSONRPCError) {
	msg := JSONRPCMessage{
		JSONRPC: "2.0",
		ID:      id,
	}

	if err != nil {
		msg.Error = err
	} else {
		resultBytes, _ := json.Marshal(result)
		msg.Result = resultBytes
	}

	s.writeMessage(&msg)
}

// sendNotification sends a JSON-RPC notification (no ID).
func (s *Server) sendNotification(method string, params any) {
	msg := JSONRPCMessage{
		JSONRPC: "2.0",
		Method:  method,
	}

	if params != nil {
		paramsBytes, _ := json.Marshal(params)
		msg.Params = paramsBytes
	}

	s.writeMessage(&msg)
}

// writeMessage writes a JSON-RPC message to the output stream.
func (s *Server) writeMessage(msg *JSONRPCMessage) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	body, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("Error marshaling message", "error", err)
		return
	}

	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))
	_, _ = s.writer.Write([]byte(header))
	_, _ = s.writer.Write(body)
}

// handleMessage dispatches a message to the appropriate handler.
func (s *Server) handleMessage(msg *JSONRPCMessage) error {
	s.logger.Info("Received", "method", msg.Method)

	switch msg.Method {
	case "initialize":
		return s.handleInitialize(msg)
	case "initialized":
		return s.handleInitialized(msg)
	case "shutdown":
		return s.handleShutdown(msg)
	case "exit":
		return s.handleExit(msg)
	case "textDocument/didOpen":
		return s.handleDidOpen(msg)
	case "textDocument/didClose":
		return s.handleDidClose(msg)
	case "textDocument/didChange":
		return s.handleDidChange(msg)
	case "textDocument/didSave":
		return s.handleDidSave(msg)
	case "textDocument/completion":
		return s.handleCompletion(msg)
	case "textDocument/hover":
		return s.handleHover(msg)
	case "textDocument/definition":
		return s.handleDefinition(msg)
	case "textDocument/codeAction":
		return s.handleCodeAction(msg)
	default:
		if msg.ID != nil {
			// Unknown method with ID - respond with method not found
			s.sendResponse(msg.ID, nil, &JSONRPCError{
				Code:    -32601,
				Message: "Method not found: " + msg.Method,
			})
		}
		return nil
	}
}

// --- Lifecycle handlers ---

func (s *Server) handleInitialize(msg *JSONRPCMessage) error {
	var params InitializeParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.sendResponse(msg.ID, nil, &JSONRPCError{Code: -32602, Message: err.Error()})
		return err
	}

	s.projectRoot = URIToPath(params.RootURI)
	s.logger.Info("Project root", "path", s.projectRoot)

	scriptsDir, statePath := s.loadProjectLayout()
	s.scriptsDir = scriptsDir

	// Attach the link state left behind by the last build. Stat first:
	// opening a missing path would create an empty database file.
	if _, err := os.Stat(statePath); err == nil {
		store := state.NewSQLiteStore()
		if err := store.Open(statePath); err != nil {
			s.logger.Info("State database not usable", "path", statePath, "error", err)
		} else {
			s.store = store
		}
	} else {
		s.logger.Info("State database not found", "path", statePath)
	}

	s.loadCaches()

	result := InitializeResult{
		Capabilities: ServerCapabilities{
			TextDocumentSync: &TextDocumentSyncOptions{
				OpenClose: true,
				Change:    TextDocumentSyncKindFull,
				Save: &SaveOptions{
					IncludeText: true,
				},
			},
			CompletionProvider: &CompletionOptions{
				TriggerCharacters: []string{"."},
			},
			HoverProvider:      true,
			DefinitionProvider: true,
			CodeActionProvider: &CodeActionOptions{
				CodeActionKinds: []CodeActionKind{CodeActionKindQuickFix},
			},
		},
	}

	s.sendResponse(msg.ID, result, nil)
	return nil
}

func (s *Server) handleInitialized(_ *JSONRPCMessage) error {
	s.initialized = true
	s.logger.Info("Server initialized")

	if s.store == nil {
		s.sendNotification("window/showMessage", &ShowMessageParams{
			Type:    MessageTypeWarning,
			Message: "No link state found. Run 'weft build' to enable link status and richer hovers.",
		})
	}

	return nil
}

func (s *Server) handleShutdown(msg *JSONRPCMessage) error {
	s.shutdownMu.Lock()
	s.shutdown = true
	s.shutdownMu.Unlock()

	if s.store != nil {
		_ = s.store.Close()
	}

	s.sendResponse(msg.ID, nil, nil)
	s.logger.Info("Server shutdown")
	return nil
}

func (s *Server) handleExit(_ *JSONRPCMessage) error {
	s.logger.Info("Server exit")
	os.Exit(0)
	return nil
}

// --- Document handlers ---

func (s *Server) handleDidOpen(msg *JSONRPCMessage) error {
	var params DidOpenTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}

	s.documents.Open(params.TextDocument.URI, params.TextDocument.Text, params.TextDocument.Version)
	s.logger.Info("Opened", "uri", params.TextDocument.URI)

	s.publishDiagnostics(params.TextDocument.URI)

	return nil
}

func (s *Server) handleDidClose(msg *JSONRPCMessage) error {
	var params DidCloseTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}

	s.documents.Close(params.TextDocument.URI)
	s.fixes.clear(params.TextDocument.URI)
	s.logger.Info("Closed", "uri", params.TextDocument.URI)

	// Clear diagnostics
	s.sendNotification("textDocument/publishDiagnostics", &PublishDiagnosticsParams{
		URI:         params.TextDocument.URI,
		Diagnostics: []Diagnostic{},
	})

	return nil
}

func (s *Server) handleDidChange(msg *JSONRPCMessage) error {
	var params DidChangeTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}

	// We use full sync, so take the last change
	if len(params.ContentChanges) > 0 {
		lastChange := params.ContentChanges[len(params.ContentChanges)-1]
		s.documents.Update(params.TextDocument.URI, lastChange.Text, params.TextDocument.Version)
	}

	s.publishDiagnostics(params.TextDocument.URI)

	return nil
}

func (s *Server) handleDidSave(msg *JSONRPCMessage) error {
	var params DidSaveTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return err
	}

	path := URIToPath(params.TextDocument.URI)
	s.logger.Info("Saved", "path", path)

	// A save can add, rename, or remove a script, which shifts the set of
	// resolvable targets for every open document.
	if strings.HasSuffix(path, parser.Ext) {
		s.loadCaches()
		for _, uri := range s.documents.List() {
			s.publishDiagnostics(uri)
		}
	}

	return nil
}

// --- Feature handlers ---

func (s *Server) handleCompletion(msg *JSONRPCMessage) error {
	var params CompletionParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.sendResponse(msg.ID, nil, &JSONRPCError{Code: -32602, Message: err.Error()})
		return err
	}

	items := s.getCompletions(params)
	s.sendResponse(msg.ID, &CompletionList{Items: items}, nil)
	return nil
}

func (s *Server) handleHover(msg *JSONRPCMessage) error {
	var params HoverParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.sendResponse(msg.ID, nil, &JSONRPCError{Code: -32602, Message: err.Error()})
		return err
	}

	hover := s.getHover(params)
	s.sendResponse(msg.ID, hover, nil)
	return nil
}

func (s *Server) handleDefinition(msg *JSONRPCMessage) error {
	var params DefinitionParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.sendResponse(msg.ID, nil, &JSONRPCError{Code: -32602, Message: err.Error()})
		return err
	}

	location := s.getDefinition(params)
	s.sendResponse(msg.ID, location, nil)
	return nil
}

// --- Helper methods ---

// loadProjectLayout reads weft.yaml in the project root for the scripts
// directory and state path, falling back to the standard layout when no
// config file exists.
func (s *Server) loadProjectLayout() (scriptsDir, statePath string) {
	k := koanf.New(".")
	_ = k.Load(confmap.Provider(map[string]interface{}{
		"scripts_dir": config.DefaultScriptsDir,
		"state_path":  config.DefaultStateFile,
	}, "."), nil)

	for _, name := range []string{"weft.yaml", "weft.yml"} {
		candidate := filepath.Join(s.projectRoot, name)
		if _, err := os.Stat(candidate); err == nil {
			if err := k.Load(file.Provider(candidate), yaml.Parser()); err != nil {
				s.logger.Warn("Cannot read project config", "path", candidate, "error", err)
			}
			break
		}
	}

	scriptsDir = k.String("scripts_dir")
	if !filepath.IsAbs(scriptsDir) {
		scriptsDir = filepath.Join(s.projectRoot, scriptsDir)
	}
	statePath = k.String("state_path")
	if statePath != ":memory:" && !filepath.IsAbs(statePath) {
		statePath = filepath.Join(s.projectRoot, statePath)
	}
	return scriptsDir, statePath
}

// loadCaches rebuilds the name caches: every script file under the scripts
// tree, plus the persisted rows when a state store is attached.
func (s *Server) loadCaches() {
	paths := s.scanScripts()

	recs := make(map[string]*state.ScriptRecord)
	if s.store != nil {
		list, err := s.store.ListScripts()
		if err != nil {
			s.logger.Warn("Cannot list scripts from state store", "error", err)
		}
		for _, rec := range list {
			recs[rec.Name] = rec
		}
	}

	s.cacheMu.Lock()
	s.scriptPaths = paths
	s.scriptRecs = recs
	s.cacheMu.Unlock()

	s.logger.Info("Loaded caches", "files", len(paths), "records", len(recs))
}

// scanScripts walks the scripts tree and derives the dotted name of every
// script file, honoring frontmatter name overrides.
func (s *Server) scanScripts() map[string]string {
	paths := make(map[string]string)
	root := s.scriptsDir
	if root == "" {
		return paths
	}

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(d.Name(), parser.Ext) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		name, err := parser.NameFromPath(rel)
		if err != nil {
			return nil
		}
		if raw, err := os.ReadFile(path); err == nil {
			if fm, err := parser.ExtractFrontmatter(string(raw)); err == nil && fm.Found && fm.Meta.Name != "" {
				name = fm.Meta.Name
			}
		}
		paths[name] = path
		return nil
	})
	return paths
}

// knownTargets returns the set of resolvable dotted names: scripts on disk
// plus rows in the state store.
func (s *Server) knownTargets() map[string]bool {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()

	known := make(map[string]bool, len(s.scriptPaths)+len(s.scriptRecs))
	for name := range s.scriptPaths {
		known[name] = true
	}
	for name := range s.scriptRecs {
		known[name] = true
	}
	return known
}

// lookupScript resolves a dotted name to its file path and, when available,
// its persisted row. The disk path wins over a stale row path.
func (s *Server) lookupScript(name string) (string, *state.ScriptRecord) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()

	path := s.scriptPaths[name]
	rec := s.scriptRecs[name]
	if path == "" && rec != nil {
		path = rec.FilePath
	}
	return path, rec
}
