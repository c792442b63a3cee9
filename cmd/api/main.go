package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cotton-extractor/extractor"
	"cotton-extractor/internal/app"
	"cotton-extractor/internal/config"
	"cotton-extractor/internal/types"
	scrapeerrors "cotton-extractor/pkg/errors"
	"cotton-extractor/services/storage"
	"github.com/gin-gonic/gin"
)

// defaultKeepAlive is how often an idle event stream is pinged
const defaultKeepAlive = 30 * time.Second

// ScrapeRequest represents the request body for starting a scrape
type ScrapeRequest struct {
	Region    string   `json:"region"`
	Retailers []string `json:"retailers"`
	Genders   []string `json:"genders"`
}

// RetailerInfo is one entry of the retailer listing
type RetailerInfo struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Server exposes the extractor over HTTP
type Server struct {
	extractor     *extractor.Extractor
	catalog       *config.Catalog
	files         *storage.FileSink
	defaultRegion string
	logger        types.Logger
	keepAlive     time.Duration
	router        *gin.Engine
}

// NewServer creates a new API server
func NewServer(ex *extractor.Extractor, catalog *config.Catalog, files *storage.FileSink, defaultRegion string, logger types.Logger) *Server {
	s := &Server{
		extractor:     ex,
		catalog:       catalog,
		files:         files,
		defaultRegion: defaultRegion,
		logger:        logger,
		keepAlive:     defaultKeepAlive,
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())
	router.Use(corsMiddleware())

	router.GET("/health", s.handleHealth)

	api := router.Group("/api")
	{
		api.GET("/config", s.handleConfig)
		api.GET("/retailers/:region", s.handleRetailers)
		api.POST("/scrape", s.handleScrape)
		api.POST("/stop", s.handleStop)
		api.GET("/status", s.handleStatus)
		api.GET("/products", s.handleProducts)
		api.GET("/products/files", s.handleProductFiles)
		api.GET("/products/file/:filename", s.handleProductFile)
		api.GET("/download/:filename", s.handleDownload)
		api.GET("/stream", s.handleStream)
	}

	return router
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// handleConfig returns the regions and the retailer names
func (s *Server) handleConfig(c *gin.Context) {
	regions := make(map[string]types.Region)
	for _, code := range s.catalog.RegionCodes() {
		region, err := s.catalog.Region(code)
		if err == nil {
			regions[code] = region
		}
	}

	retailers := make(map[string]string)
	for _, key := range s.catalog.Keys() {
		if spec, err := s.catalog.Retailer(key); err == nil {
			retailers[key] = spec.Name
		}
	}

	c.JSON(http.StatusOK, gin.H{"regions": regions, "retailers": retailers})
}

// handleRetailers lists the retailers available in a region
func (s *Server) handleRetailers(c *gin.Context) {
	specs, err := s.catalog.RetailersFor(c.Param("region"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid region"})
		return
	}

	retailers := make([]RetailerInfo, 0, len(specs))
	for _, spec := range specs {
		retailers = append(retailers, RetailerInfo{Key: spec.Key, Name: spec.Name})
	}
	c.JSON(http.StatusOK, retailers)
}

// handleScrape starts a new scraping job
func (s *Server) handleScrape(c *gin.Context) {
	var req ScrapeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}

	if strings.TrimSpace(req.Region) == "" {
		req.Region = s.defaultRegion
	}
	genders := make([]types.Gender, 0, len(req.Genders))
	for _, gender := range req.Genders {
		genders = append(genders, types.Gender(gender))
	}

	s.logger.Infof("API scrape request: region=%s retailers=%v genders=%v", req.Region, req.Retailers, req.Genders)

	jobID, err := s.extractor.Start(c.Request.Context(), extractor.Request{
		Region:    req.Region,
		Retailers: req.Retailers,
		Genders:   genders,
	})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "started", "job_id": jobID})
	case errors.Is(err, scrapeerrors.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"error": "Scraping already in progress"})
	case scrapeerrors.IsType(err, scrapeerrors.ErrorTypeBrowser):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

// handleStop stops the current scraping job
func (s *Server) handleStop(c *gin.Context) {
	if err := s.extractor.Stop(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopping"})
}

// handleStatus returns the current scraping status
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.extractor.Status())
}

// handleProducts returns the products of the most recent batch file
func (s *Server) handleProducts(c *gin.Context) {
	batch, err := s.files.Latest()
	if err != nil {
		s.logger.Warnf("Failed to load latest batch: %v", err)
		c.JSON(http.StatusOK, []types.Product{})
		return
	}
	c.JSON(http.StatusOK, batch.Products)
}

// handleProductFiles lists the stored batch files
func (s *Server) handleProductFiles(c *gin.Context) {
	files, err := s.files.ListFiles()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, files)
}

// handleProductFile returns the products of one batch file
func (s *Server) handleProductFile(c *gin.Context) {
	batch, err := s.files.LoadFile(c.Param("filename"))
	if err != nil {
		c.JSON(fileErrorStatus(err), gin.H{"error": fileErrorMessage(err)})
		return
	}
	c.JSON(http.StatusOK, batch.Products)
}

// handleDownload sends a batch file as an attachment
func (s *Server) handleDownload(c *gin.Context) {
	filename := c.Param("filename")
	path, err := s.files.Path(filename)
	if err != nil {
		c.JSON(fileErrorStatus(err), gin.H{"error": fileErrorMessage(err)})
		return
	}
	c.FileAttachment(path, filename)
}

// handleStream pushes job events as server-sent events until the client leaves
func (s *Server) handleStream(c *gin.Context) {
	events, unsubscribe := s.extractor.Subscribe()
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent("message", event)
		case <-ticker.C:
			c.SSEvent("message", extractor.Event{Type: "keepalive"})
		case <-c.Request.Context().Done():
			return
		}
		c.Writer.Flush()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debugf("%s %s %d %v", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// corsMiddleware allows the browser UI to call the API from any origin
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		// Handle preflight requests
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func fileErrorStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidName):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fileErrorMessage(err error) string {
	if errors.Is(err, storage.ErrNotFound) {
		return "File not found"
	}
	return err.Error()
}

func main() {
	logger := app.NewLogger(false)

	settings, err := config.Load(os.Getenv("COTTON_CONFIG"))
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, settings, logger)
	if err != nil {
		logger.Fatalf("Failed to initialise: %v", err)
	}
	defer a.Close()

	server := NewServer(a.Extractor, a.Catalog, a.Files, settings.Scrape.Region, logger)
	httpServer := &http.Server{
		Addr:    ":" + settings.Server.Port,
		Handler: server.router,
		// Request contexts end on shutdown so open event streams return
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		logger.Infof("Starting API server on port %s", settings.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.Extractor.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Scrape job did not stop cleanly: %v", err)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Server shutdown failed: %v", err)
	}
}
