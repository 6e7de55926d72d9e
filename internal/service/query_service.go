package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/scribe/internal/ai"
	"github.com/xxxsen/scribe/internal/model"
	appErr "github.com/xxxsen/scribe/internal/pkg/errors"
	"github.com/xxxsen/scribe/internal/prompt"
	"github.com/xxxsen/scribe/internal/vectorindex"
)

const (
	minResults = 1
	maxResults = 50

	NoInformationAnswer = "No relevant information was found in the selected rulebook."
)

type IRetriever interface {
	Retrieve(ctx context.Context, collectionID, queryText string, k int) ([]model.RetrievedChunk, error)
}

type ICollectionChecker interface {
	Exists(ctx context.Context, collectionID string) (bool, error)
}

type QueryOptions struct {
	DefaultK int
	// MaxK is capped at 50.
	MaxK           int
	PromptMaxChars int
	// GenerateOnEmpty calls the generator even when retrieval found nothing,
	// otherwise NoInformationAnswer is returned directly.
	GenerateOnEmpty      bool
	MaxOutputTokensLimit int
	AnswerCacheSize      int
	AnswerCacheTTL       time.Duration
}

type QueryService struct {
	retriever   IRetriever
	generator   ai.IGenerator
	collections ICollectionChecker
	opts        QueryOptions
	answers     *expirable.LRU[string, model.QueryResponse]
}

// NewQueryService wires the query pipeline. generator may be nil, in which
// case every generation request degrades to a retrieval-only response.
func NewQueryService(retriever IRetriever, generator ai.IGenerator, collections ICollectionChecker, opts QueryOptions) *QueryService {
	if opts.MaxK <= 0 || opts.MaxK > maxResults {
		opts.MaxK = maxResults
	}
	if opts.DefaultK <= 0 {
		opts.DefaultK = 10
	}
	if opts.DefaultK > opts.MaxK {
		opts.DefaultK = opts.MaxK
	}
	s := &QueryService{
		retriever:   retriever,
		generator:   generator,
		collections: collections,
		opts:        opts,
	}
	if opts.AnswerCacheSize > 0 {
		s.answers = expirable.NewLRU[string, model.QueryResponse](opts.AnswerCacheSize, nil, opts.AnswerCacheTTL)
	}
	return s
}

// Query runs validate, resolve, retrieve, generate and respond for one
// request. Rejected and not found outcomes return the response describing
// them together with the error; a retrieval failure returns only the error.
// A generation failure is not an error: the response keeps its citations
// and sets GenerationFailed.
func (s *QueryService) Query(ctx context.Context, req model.QueryRequest) (*model.QueryResponse, error) {
	logger := logutil.GetLogger(ctx).With(
		zap.String("collection_id", req.CollectionID),
		zap.Bool("generate", req.InvokeGeneration),
	)

	k, err := s.validate(&req)
	if err != nil {
		logger.Info("query rejected", zap.Error(err))
		return &model.QueryResponse{
			Status:    model.QueryStatusRejected,
			Citations: []model.Citation{},
			Message:   err.Error(),
		}, err
	}
	style := prompt.StyleDirect
	if req.Conversational {
		style = prompt.StyleConversational
	}

	var cacheKey string
	if req.InvokeGeneration && s.answers != nil {
		cacheKey = answerCacheKey(req, k, style)
		if cached, ok := s.answers.Get(cacheKey); ok {
			logger.Debug("answer cache hit")
			cached.Cached = true
			return &cached, nil
		}
	}

	start := time.Now()
	chunks, err := s.retriever.Retrieve(ctx, req.CollectionID, req.QueryText, k)
	if err != nil {
		switch {
		case appErr.IsCollectionNotFound(err):
			logger.Info("query against unknown collection")
			return &model.QueryResponse{
				Status:    model.QueryStatusNotFound,
				Citations: []model.Citation{},
				Message:   fmt.Sprintf("collection %q has no ingested documents", req.CollectionID),
			}, err
		case appErr.IsInvalid(err):
			return &model.QueryResponse{
				Status:    model.QueryStatusRejected,
				Citations: []model.Citation{},
				Message:   err.Error(),
			}, err
		}
		logger.Error("retrieve failed", zap.Error(err))
		return nil, err
	}
	logger.Debug("retrieve stage finished", zap.Int("k", k), zap.Int("chunks", len(chunks)), zap.Duration("cost", time.Since(start)))

	resp := &model.QueryResponse{
		Status:    model.QueryStatusRetrievedOnly,
		Citations: DedupeCitations(chunks),
	}
	if !req.InvokeGeneration {
		resp.Passages = toPassages(chunks)
		return resp, nil
	}

	if len(chunks) == 0 && !s.opts.GenerateOnEmpty {
		resp.Status = model.QueryStatusAnswered
		resp.Answer = NoInformationAnswer
		return resp, nil
	}

	answer, err := s.generate(ctx, req, chunks, style)
	if err != nil {
		logger.Warn("generation failed, returning retrieved sources", zap.Error(err))
		resp.GenerationFailed = true
		resp.Passages = toPassages(chunks)
		resp.Message = generationFailureMessage(err)
		return resp, nil
	}
	resp.Status = model.QueryStatusAnswered
	resp.Answer = answer
	if cacheKey != "" {
		s.answers.Add(cacheKey, *resp)
	}
	logger.Info("query answered", zap.Int("citations", len(resp.Citations)), zap.Duration("cost", time.Since(start)))
	return resp, nil
}

// Exists reports whether collectionID has been ingested.
func (s *QueryService) Exists(ctx context.Context, collectionID string) (bool, error) {
	if err := vectorindex.ValidateCollectionID(collectionID); err != nil {
		return false, err
	}
	if s.collections == nil {
		return false, fmt.Errorf("collection lookup not configured: %w", appErr.ErrInternal)
	}
	return s.collections.Exists(ctx, collectionID)
}

// ClampK maps a requested result count onto [1, maxK], nil meaning
// defaultK.
func ClampK(requested *int, defaultK, maxK int) int {
	if requested == nil {
		return defaultK
	}
	k := *requested
	if k < minResults {
		return minResults
	}
	if k > maxK {
		return maxK
	}
	return k
}

// DedupeCitations keeps the first chunk of every (source, page) pair in
// rank order.
func DedupeCitations(chunks []model.RetrievedChunk) []model.Citation {
	type citationKey struct {
		source  string
		hasPage bool
		page    int
	}
	seen := make(map[citationKey]struct{}, len(chunks))
	out := make([]model.Citation, 0, len(chunks))
	for _, c := range chunks {
		key := citationKey{source: c.Source}
		if c.Page != nil {
			key.hasPage = true
			key.page = *c.Page
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, model.Citation{Source: c.Source, Page: c.Page})
	}
	return out
}

func (s *QueryService) validate(req *model.QueryRequest) (int, error) {
	var errs []error
	req.QueryText = strings.TrimSpace(req.QueryText)
	if req.QueryText == "" {
		errs = append(errs, appErr.NewFieldError("queryText", "must not be empty"))
	}
	if req.CollectionID == "" {
		errs = append(errs, appErr.NewFieldError("collectionId", "is required"))
	} else if err := vectorindex.ValidateCollectionID(req.CollectionID); err != nil {
		errs = append(errs, err)
	}
	if err := req.Generation.Validate(s.opts.MaxOutputTokensLimit); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return 0, errors.Join(errs...)
	}
	return ClampK(req.NumberOfResults, s.opts.DefaultK, s.opts.MaxK), nil
}

func (s *QueryService) generate(ctx context.Context, req model.QueryRequest, chunks []model.RetrievedChunk, style prompt.Style) (string, error) {
	if s.generator == nil {
		return "", fmt.Errorf("generator not configured: %w", ai.ErrProviderUnavailable)
	}
	text := prompt.Assemble(req.QueryText, chunks, style, s.opts.PromptMaxChars)
	start := time.Now()
	answer, err := s.generator.Generate(ctx, text, req.Generation)
	if err != nil {
		return "", err
	}
	logutil.GetLogger(ctx).Debug("generate stage finished",
		zap.Int("prompt_chars", len(text)),
		zap.Duration("cost", time.Since(start)),
	)
	return answer, nil
}

func generationFailureMessage(err error) string {
	switch {
	case appErr.IsRejected(err):
		return "the generation provider declined the request"
	case errors.Is(err, context.Canceled):
		return "generation was cancelled"
	default:
		return "the generation provider is unavailable"
	}
}

func toPassages(chunks []model.RetrievedChunk) []model.Passage {
	out := make([]model.Passage, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, model.Passage{Source: c.Source, Page: c.Page, Text: c.Text, Score: c.Score})
	}
	return out
}

func answerCacheKey(req model.QueryRequest, k int, style prompt.Style) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(req.QueryText), " "))
	raw := fmt.Sprintf("%s\x00%s\x00%d\x00%s\x00%s", req.CollectionID, normalized, k, style, req.Generation.Key())
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
