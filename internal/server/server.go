package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/careops/lattice/internal/config"
	"github.com/careops/lattice/internal/core"
	"github.com/careops/lattice/internal/core/cache"
	"github.com/careops/lattice/internal/core/curate"
	"github.com/careops/lattice/internal/core/execute"
	"github.com/careops/lattice/internal/core/generate"
	"github.com/careops/lattice/internal/core/model"
	"github.com/careops/lattice/internal/core/schema"
	"github.com/careops/lattice/internal/core/validate"
	"github.com/careops/lattice/internal/driver"
	"github.com/careops/lattice/internal/llm"
)

type Server struct {
	Lattice *core.Lattice
	log     *zap.Logger
}

// NewServer wires the full pipeline from configuration: graph driver, LLM
// clients, schema provider, semantic cache, curator, and the facade.
func NewServer(cfg *config.Config, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}

	uri := cfg.Memgraph.URI
	if uri == "" {
		uri = "bolt://localhost:7687"
	}
	d, err := driver.NewMemgraphDriver(uri, cfg.Memgraph.User, cfg.Memgraph.Password, log)
	if err != nil {
		return nil, err
	}

	llmClient, embedder, err := llm.NewClient(context.Background(), cfg.LLM)
	if err != nil {
		return nil, err
	}

	var seed *schema.Catalog
	if cfg.Schema.SeedPath != "" {
		seed, err = schema.LoadSeed(cfg.Schema.SeedPath)
		if err != nil {
			return nil, err
		}
	}
	provider := schema.NewProvider(d, seed, log)
	if _, err := provider.Refresh(context.Background()); err != nil {
		// The seed (or an empty catalog) keeps serving; live introspection
		// can land on the next explicit refresh.
		log.Warn("initial catalog refresh failed", zap.Error(err))
	}

	executor := execute.NewExecutor(d, cfg.Loop.InfraRetries, log)
	generator := generate.NewGenerator(llmClient, cfg.Prompts.Generation)

	var sc *cache.SemanticCache
	if embedder != nil {
		var store cache.EntryStore
		if cfg.Cache.Backend == "redis" {
			rs, err := cache.NewRedisStore(cfg.Redis)
			if err != nil {
				return nil, err
			}
			store = rs
		} else {
			store = cache.NewMemoryStore()
		}
		sc = cache.New(embedder, store, cfg.Cache.Threshold, cfg.Cache.TTL(), log)
	} else {
		log.Warn("no embedder available, running without semantic cache",
			zap.String("provider", cfg.LLM.Provider))
	}

	goldenStore, err := curate.OpenGoldenStore(cfg.SQLite.Path)
	if err != nil {
		return nil, err
	}
	curator := curate.NewCurator(goldenStore,
		func(q model.CandidateQuery) model.ValidationResult {
			return validate.Validate(q, provider.Current())
		},
		executor.Execute,
		cfg.Curator.FlagOnly,
		log,
	)
	if cfg.Curator.SeedPath != "" {
		seedExamples, err := curate.LoadSeedExamples(cfg.Curator.SeedPath)
		if err != nil {
			log.Warn("loading golden seed failed", zap.Error(err))
		} else if err := curator.SeedExamples(seedExamples); err != nil {
			log.Warn("seeding golden examples failed", zap.Error(err))
		}
	}

	lattice := core.NewLattice(provider, generator, executor, sc, curator,
		cfg.Loop.MaxAttempts, cfg.Loop.SafetyBudget, cfg.Loop.RequestTimeout(), log)

	return &Server{Lattice: lattice, log: log}, nil
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.Default()

	r.POST("/answer", s.Answer)
	r.POST("/feedback", s.Feedback)
	r.POST("/schema/refresh", s.RefreshSchema)
	r.POST("/golden/audit", s.GoldenAudit)
	r.GET("/golden/reviews", s.Reviews)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

type AnswerRequest struct {
	Question string `json:"question" binding:"required"`
}

func (s *Server) Answer(c *gin.Context) {
	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	result := s.Lattice.Answer(c.Request.Context(), req.Question)
	if !result.Available {
		// Honest failure: the caller gets the reason, never a guess.
		c.JSON(http.StatusOK, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

type FeedbackRequest struct {
	Question string      `json:"question" binding:"required"`
	Query    string      `json:"query" binding:"required"`
	Rows     []model.Row `json:"rows"`
	Signal   string      `json:"signal" binding:"required"`
}

func (s *Server) Feedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	signal := model.FeedbackSignal(req.Signal)
	if signal != model.SignalAccept && signal != model.SignalReject {
		c.JSON(http.StatusBadRequest, gin.H{"error": "signal must be 'accept' or 'reject'"})
		return
	}

	outcome := model.Succeeded(req.Rows)
	if err := s.Lattice.SubmitFeedback(c.Request.Context(), req.Question, req.Query, outcome, signal); err != nil {
		s.log.Error("feedback submission failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record feedback"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

func (s *Server) RefreshSchema(c *gin.Context) {
	if err := s.Lattice.RefreshSchema(c.Request.Context()); err != nil {
		s.log.Error("schema refresh failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Catalog unavailable, serving last-good snapshot"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "refreshed"})
}

func (s *Server) GoldenAudit(c *gin.Context) {
	evicted, err := s.Lattice.RunGoldenSetAudit(c.Request.Context())
	if err != nil {
		s.log.Error("golden set audit failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Audit failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"evicted": evicted})
}

func (s *Server) Reviews(c *gin.Context) {
	reviews, err := s.Lattice.Curator.Reviews()
	if err != nil {
		s.log.Error("listing reviews failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list reviews"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviews": reviews})
}
