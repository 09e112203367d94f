package server

import (
	"context"
	"net/url"
	"path/filepath"
	"sync"

	"pylon/internal/analysis"
	"pylon/internal/config"
	"pylon/internal/document"
	"pylon/internal/format"
	"pylon/internal/resolver"
	"pylon/internal/resolver/store"
	"pylon/internal/scheduler"
	"pylon/internal/semtok"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"
)

var log = commonlog.GetLogger("pylon.server")

const name = "pylon"

// Analyzer answers the reference questions behind the language features.
type Analyzer interface {
	Track(ctx context.Context, uri string, text string) error
	Edit(ctx context.Context, uri string, inputs []sitter.EditInput, text string) error
	Forget(uri string)
	Tokens(ctx context.Context, uri string, text string) ([]semtok.Token, error)
	Completions(ctx context.Context, uri string, text string, pos protocol.Position) ([]analysis.Candidate, error)
	Lookup(ctx context.Context, uri string, text string, pos protocol.Position) (analysis.Candidate, bool, error)
	Definition(ctx context.Context, uri string, text string, pos protocol.Position) (protocol.Location, bool, error)
	Detail(ctx context.Context, key resolver.Key) (string, error)
	Doc(ctx context.Context, key resolver.Key) (string, error)
}

type Option func(*Server)

// WithAnalyzer replaces the tree-sitter analyzer created at initialize.
func WithAnalyzer(a Analyzer) Option {
	return func(s *Server) { s.analyzer = a }
}

// WithFormatter replaces the configured formatter command.
func WithFormatter(f format.Formatter) Option {
	return func(s *Server) { s.formatter = f }
}

// WithClock sets the clock of the resolution cache.
func WithClock(clock resolver.Clock) Option {
	return func(s *Server) { s.clock = clock }
}

type Server struct {
	handler *protocol.Handler
	ctx     context.Context
	cancel  context.CancelFunc

	base   config.Config
	config config.Config

	docs      *document.Store
	analyzer  Analyzer
	owned     *analysis.Analyzer
	formatter format.Formatter
	clock     resolver.Clock
	cache     *resolver.Cache

	store    *store.SQLiteStore
	schedule *scheduler.Scheduler
	stopOnce sync.Once
}

// New returns a server configured by cfg until the client's
// initializationOptions overlay it.
func New(cfg config.Config, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		ctx:    ctx,
		cancel: cancel,
		base:   cfg,
		config: cfg,
		docs:   document.NewStore(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.handler = &protocol.Handler{
		Initialize:                     s.initialize,
		Initialized:                    s.initialized,
		Shutdown:                       s.shutdown,
		TextDocumentDidOpen:            s.textDocumentDidOpen,
		TextDocumentDidChange:          s.textDocumentDidChange,
		TextDocumentDidClose:           s.textDocumentDidClose,
		TextDocumentSemanticTokensFull: s.textDocumentSemanticTokensFull,
		TextDocumentCompletion:         s.textDocumentCompletion,
		CompletionItemResolve:          s.completionItemResolve,
		TextDocumentHover:              s.textDocumentHover,
		TextDocumentDefinition:         s.textDocumentDefinition,
		TextDocumentFormatting:         s.textDocumentFormatting,
		TextDocumentRangeFormatting:    s.textDocumentRangeFormatting,
	}
	return s
}

// NewServer wraps a new Server in a glsp server.
func NewServer(cfg config.Config, opts ...Option) *server.Server {
	s := New(cfg, opts...)
	return server.NewServer(s.handler, name, false)
}

// Handler returns the protocol handler.
func (s *Server) Handler() *protocol.Handler {
	return s.handler
}

// Cache returns the resolution cache; nil before initialize.
func (s *Server) Cache() *resolver.Cache {
	return s.cache
}

// Document returns the current snapshot of an open document.
func (s *Server) Document(uri protocol.DocumentUri) (document.Document, bool) {
	return s.docs.Get(uri)
}

// uriToPath returns the file system path of a file URI, or "" for other
// schemes.
func uriToPath(uri protocol.DocumentUri) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return ""
	}
	return filepath.FromSlash(u.Path)
}
