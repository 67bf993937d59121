// Package server exposes the ingestion and query operations over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vidsim/vidsim/internal/models"
)

// Ingestor adds one uploaded video under a caller-assigned id.
type Ingestor interface {
	AddVideo(ctx context.Context, r io.Reader, videoID string) (int, error)
}

// Searcher ranks stored videos by similarity to an uploaded query video.
type Searcher interface {
	Search(ctx context.Context, r io.Reader, topK int) ([]models.Candidate, error)
}

// Deleter removes all segments stored under a video id.
type Deleter interface {
	DeleteVideo(ctx context.Context, videoID string) (int64, error)
}

type Config struct {
	AllowedOrigins []string
	DefaultTopK    int
}

type Server struct {
	ingestor Ingestor
	searcher Searcher
	deleter  Deleter
	logger   *slog.Logger
	cfg      Config
}

func New(ing Ingestor, s Searcher, d Deleter, logger *slog.Logger, cfg Config) *Server {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 5
	}
	return &Server{
		ingestor: ing,
		searcher: s,
		deleter:  d,
		logger:   logger,
		cfg:      cfg,
	}
}

// Router builds the gin engine with CORS restricted to the configured
// origin allow-list.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
	}))

	router.POST("/add_video", s.handleAddVideo)
	router.POST("/query_video", s.handleQueryVideo)
	router.DELETE("/videos/:video_id", s.handleDeleteVideo)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

func (s *Server) handleAddVideo(c *gin.Context) {
	videoID := c.PostForm("video_id")
	if videoID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "video_id is required"})
		return
	}

	file, ok := s.openUpload(c)
	if !ok {
		return
	}
	defer file.Close()

	count, err := s.ingestor.AddVideo(c.Request.Context(), file, videoID)
	if err != nil {
		s.writeError(c, err, "add_video", videoID)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  fmt.Sprintf("%d frames uploaded for video %s", count, videoID),
		"video_id": videoID,
		"frames":   count,
	})
}

func (s *Server) handleQueryVideo(c *gin.Context) {
	topK := s.cfg.DefaultTopK
	if raw := c.PostForm("top_k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "top_k must be a positive integer"})
			return
		}
		topK = parsed
	}

	file, ok := s.openUpload(c)
	if !ok {
		return
	}
	defer file.Close()

	results, err := s.searcher.Search(c.Request.Context(), file, topK)
	if err != nil {
		s.writeError(c, err, "query_video", "")
		return
	}
	if results == nil {
		results = []models.Candidate{}
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) handleDeleteVideo(c *gin.Context) {
	videoID := c.Param("video_id")

	deleted, err := s.deleter.DeleteVideo(c.Request.Context(), videoID)
	if err != nil {
		s.logger.Error("delete video failed", "video_id", videoID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete video"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"video_id": videoID, "deleted": deleted})
}

func (s *Server) openUpload(c *gin.Context) (io.ReadCloser, bool) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return nil, false
	}
	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
		return nil, false
	}
	return file, true
}

func (s *Server) writeError(c *gin.Context, err error, op, videoID string) {
	switch {
	case errors.Is(err, models.ErrEmptyVideo):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No frames extracted"})
	case errors.Is(err, models.ErrEmbedding):
		s.logger.Error("embedding failure", "op", op, "video_id", videoID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "embedding provider failure"})
	default:
		s.logger.Error("request failed", "op", op, "video_id", videoID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
