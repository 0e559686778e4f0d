// Package api implements the qengine.v1.Evaluator gRPC service.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/qengine/internal/rules"
	"github.com/solatis/qengine/internal/types"
)

// Definitions loads stored query definitions by name.
type Definitions interface {
	LoadQuery(ctx context.Context, name string) (*types.Definition, error)
}

// Service evaluates stored or inline query definitions against documents.
// Thin orchestration layer over rules and the definitions store.
type Service struct {
	engine       *rules.Engine
	defs         Definitions
	defaults     types.Parameters
	static       map[string]bool
	maxDocuments int
	logger       *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithDefaults supplies parameter values used when neither the definition
// nor the request sets them.
func WithDefaults(p types.Parameters) Option {
	return func(s *Service) { s.defaults = p.Clone() }
}

// WithStaticParameters names parameters that requests may not override.
func WithStaticParameters(names ...string) Option {
	return func(s *Service) {
		s.static = make(map[string]bool, len(names))
		for _, n := range names {
			s.static[n] = true
		}
	}
}

// WithMaxDocuments bounds the documents accepted per request.
func WithMaxDocuments(n int) Option {
	return func(s *Service) { s.maxDocuments = n }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a service. defs may be nil, in which case only inline
// definitions are accepted.
func NewService(engine *rules.Engine, defs Definitions, opts ...Option) (*Service, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	s := &Service{engine: engine, defs: defs, maxDocuments: 1000, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Evaluate runs one query over a batch of documents.
//
// Request fields:
//
//	query       string, name of a stored definition
//	definition  struct, inline definition document (exclusive with query)
//	parameters  struct, parameter overrides; values are stringified
//	documents   list, the documents to test
//
// Response fields:
//
//	results  list of bool, one per document
//	cost     number, estimated cost of the condition
//
// The query is validated once before any document is evaluated; the first
// document that fails evaluation fails the request.
func (s *Service) Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()

	def, err := s.definition(ctx, fields)
	if err != nil {
		return nil, toStatus(err)
	}

	docs := fields["documents"].GetListValue().GetValues()
	if len(docs) > s.maxDocuments {
		return nil, status.Errorf(codes.InvalidArgument, "too many documents: %d (max %d)", len(docs), s.maxDocuments)
	}

	params, err := parameters(fields["parameters"])
	if err != nil {
		return nil, toStatus(err)
	}
	for name := range params {
		if s.static[name] {
			return nil, status.Errorf(codes.InvalidArgument, "parameter %s is static and cannot be overridden", name)
		}
	}

	for name, value := range s.defaults {
		if _, ok := def.Parameters[name]; ok {
			continue
		}
		if def.Parameters == nil {
			def.Parameters = map[string]string{}
		}
		def.Parameters[name] = value
	}

	q, _, err := rules.CompileDynamic(s.engine, def)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := q.Validate(s.engine.Limits(), params); err != nil {
		return nil, toStatus(err)
	}

	results := make([]any, 0, len(docs))
	for i, doc := range docs {
		ok, err := q.EvaluateWith(ctx, s.engine, doc.AsInterface(), params)
		if err != nil {
			s.logger.Debug("evaluation failed", "query", q.Name(), "document", i, "error", err)
			return nil, toStatus(fmt.Errorf("document %d: %w", i, err))
		}
		results = append(results, ok)
	}

	s.logger.Debug("query evaluated", "query", q.Name(), "documents", len(docs))
	resp, err := structpb.NewStruct(map[string]any{
		"results": results,
		"cost":    q.Cost(),
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

// definition resolves the query named in the request or decodes the inline one.
func (s *Service) definition(ctx context.Context, fields map[string]*structpb.Value) (*types.Definition, error) {
	name := fields["query"].GetStringValue()
	inline := fields["definition"].GetStructValue()

	switch {
	case name != "" && inline != nil:
		return nil, types.NewValidationError("request", types.ErrInvalidOperator, "query and definition are exclusive")
	case name != "":
		if s.defs == nil {
			return nil, types.NewValidationError("request", types.ErrUnknownOperand, "no definitions store; send an inline definition")
		}
		return s.defs.LoadQuery(ctx, name)
	case inline != nil:
		data, err := json.Marshal(inline.AsMap())
		if err != nil {
			return nil, types.NewValidationError("definition", types.ErrMalformedType, "%v", err)
		}
		def, err := rules.DecodeDefinition(data, rules.FormatJSON)
		if err != nil {
			return nil, types.NewValidationError("definition", types.ErrMalformedType, "%v", err)
		}
		return def, nil
	}
	return nil, types.NewValidationError("request", types.ErrMissingOperand, "query or definition is required")
}

// parameters flattens the request parameters into their text form.
func parameters(v *structpb.Value) (types.Parameters, error) {
	st := v.GetStructValue()
	if st == nil {
		return nil, nil
	}
	out := make(types.Parameters, len(st.GetFields()))
	for name, value := range st.GetFields() {
		switch x := value.AsInterface().(type) {
		case string:
			out[name] = x
		case bool, float64:
			out[name] = fmt.Sprint(x)
		default:
			return nil, types.NewValidationError("parameters", types.ErrTypeMismatch, "parameter %s must be a scalar", name)
		}
	}
	return out, nil
}
