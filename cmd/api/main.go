package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tardiness/internal/arrival"
	"tardiness/internal/backup"
	"tardiness/internal/cloudinary"
	"tardiness/internal/config"
	"tardiness/internal/httpmiddleware"
	"tardiness/internal/kvstore"
	"tardiness/internal/queue"
	"tardiness/internal/report"
	"tardiness/internal/schedule"
	"tardiness/internal/student"
)

var (
	arrivalsMarked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tardiness_arrivals_marked_total",
		Help: "Arrivals recorded, by lateness status.",
	}, []string{"status"})

	reportsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tardiness_reports_generated_total",
		Help: "Monthly reports generated.",
	})
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

// openStore picks the persistence backend from config.
func openStore(cfg config.App) (kvstore.Store, error) {
	switch cfg.StorageBackend {
	case "redis":
		return kvstore.NewRedis(cfg.RedisAddr, cfg.StoreNamespace), nil
	case "postgres":
		return kvstore.OpenPostgres(cfg.DatabaseURL, cfg.StoreNamespace)
	case "memory":
		return kvstore.NewMemory(), nil
	default:
		return kvstore.OpenBolt(cfg.BoltPath, cfg.StoreNamespace)
	}
}

func runHTTP(cfg config.App) error {
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	// Caches load in dependency order before any request is served.
	startCtx := context.Background()
	registry, err := schedule.NewRegistry(startCtx, store)
	if err != nil {
		return fmt.Errorf("load classes: %w", err)
	}
	directory, err := student.NewDirectory(startCtx, store)
	if err != nil {
		return fmt.Errorf("load students: %w", err)
	}
	ledger, err := arrival.NewLedger(startCtx, store, registry)
	if err != nil {
		return fmt.Errorf("load arrivals: %w", err)
	}
	reports := report.NewAggregator(registry, directory, ledger, cfg.CollationLocale)
	backups := backup.NewManager(store)

	var q queue.Queue
	if cfg.QueueBackend == "redis" {
		q = queue.NewRedisQueue(kvstore.NewRedisClient(cfg.RedisAddr), "tardiness:exports")
	} else {
		q = queue.NewInMemory(64)
	}

	// Cloudinary client (nil when not configured)
	var cdnClient *cloudinary.Client
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		cdnClient = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Println("Cloudinary configured:", cfg.CloudinaryCloudName)
	} else {
		log.Println("Cloudinary not configured (CLOUDINARY_CLOUD_NAME / API_KEY / API_SECRET not set)")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "backend": cfg.StorageBackend})
	})

	v1 := r.Group("/v1")

	// Classes
	v1.POST("/classes", func(c *gin.Context) {
		var req struct {
			Name     string           `json:"name" binding:"required"`
			Schedule *schedule.Weekly `json:"schedule"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cls, err := registry.Add(c.Request.Context(), req.Name, req.Schedule)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, cls)
	})

	v1.GET("/classes", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"classes": registry.List()})
	})

	v1.PATCH("/classes/:id", func(c *gin.Context) {
		var req struct {
			Name     *string          `json:"name"`
			Schedule *schedule.Weekly `json:"schedule"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cls, err := registry.Update(c.Request.Context(), c.Param("id"), schedule.Update{
			Name:     req.Name,
			Schedule: req.Schedule,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if cls == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "class not found"})
			return
		}
		c.JSON(http.StatusOK, cls)
	})

	v1.DELETE("/classes/:id", func(c *gin.Context) {
		removed, err := registry.Delete(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !removed {
			c.JSON(http.StatusNotFound, gin.H{"error": "class not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	})

	v1.GET("/classes/:id/schedule", func(c *gin.Context) {
		day, err := strconv.Atoi(c.Query("day"))
		if err != nil || day < 0 || day > 6 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "day must be 0 (Sunday) to 6 (Saturday)"})
			return
		}
		entry := registry.ScheduleForDay(c.Param("id"), time.Weekday(day))
		if entry == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "class not found"})
			return
		}
		c.JSON(http.StatusOK, entry)
	})

	v1.GET("/classes/:id/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, ledger.ClassStats(c.Param("id"), c.Query("start"), c.Query("end")))
	})

	// Students
	v1.POST("/students", func(c *gin.Context) {
		var req struct {
			Name     string `json:"name" binding:"required"`
			ClassID  string `json:"classId" binding:"required"`
			PhotoURL string `json:"photoUrl"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		st, err := directory.Add(c.Request.Context(), req.Name, req.ClassID, req.PhotoURL)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, student.ErrEmptyName) {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, st)
	})

	v1.GET("/students", func(c *gin.Context) {
		if classID := c.Query("class_id"); classID != "" {
			c.JSON(http.StatusOK, gin.H{"students": directory.ListByClass(classID)})
			return
		}
		c.JSON(http.StatusOK, gin.H{"students": directory.List()})
	})

	v1.PATCH("/students/:id", func(c *gin.Context) {
		var req struct {
			Name     *string `json:"name"`
			ClassID  *string `json:"classId"`
			PhotoURL *string `json:"photoUrl"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		st, err := directory.Update(c.Request.Context(), c.Param("id"), student.Update{
			Name:     req.Name,
			ClassID:  req.ClassID,
			PhotoURL: req.PhotoURL,
		})
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, student.ErrEmptyName) {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		if st == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
			return
		}
		c.JSON(http.StatusOK, st)
	})

	v1.DELETE("/students/:id", func(c *gin.Context) {
		removed, err := directory.Delete(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !removed {
			c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	})

	v1.GET("/students/:id/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, ledger.StudentStats(c.Param("id"), c.Query("start"), c.Query("end")))
	})

	// Arrivals
	v1.POST("/arrivals", func(c *gin.Context) {
		var req struct {
			StudentID string `json:"studentId" binding:"required"`
			ClassID   string `json:"classId" binding:"required"`
			Date      string `json:"date" binding:"required"`
			Time      string `json:"time"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		res, err := ledger.Mark(c.Request.Context(), req.StudentID, req.ClassID, req.Date, req.Time)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !res.Created {
			c.JSON(http.StatusConflict, gin.H{
				"success":        false,
				"message":        res.Message,
				"existingRecord": res.Arrival,
			})
			return
		}
		arrivalsMarked.WithLabelValues(res.Arrival.Status).Inc()
		c.JSON(http.StatusCreated, gin.H{"success": true, "arrival": res.Arrival})
	})

	v1.DELETE("/arrivals", func(c *gin.Context) {
		studentID, date := c.Query("student_id"), c.Query("date")
		if studentID == "" || date == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "student_id and date required"})
			return
		}
		removed, err := ledger.Remove(c.Request.Context(), studentID, date)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"removed": removed})
	})

	v1.GET("/arrivals/lookup", func(c *gin.Context) {
		rec := ledger.Lookup(c.Query("student_id"), c.Query("date"))
		if rec == nil {
			c.JSON(http.StatusOK, gin.H{"arrived": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"arrived": true, "arrival": rec})
	})

	// Reports
	v1.GET("/reports/monthly", func(c *gin.Context) {
		classID, year, month, ok := reportParams(c)
		if !ok {
			return
		}
		rep := reports.Monthly(classID, year, month)
		if rep == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "class not found"})
			return
		}
		reportsGenerated.Inc()
		c.JSON(http.StatusOK, rep)
	})

	v1.GET("/reports/monthly.csv", func(c *gin.Context) {
		classID, year, month, ok := reportParams(c)
		if !ok {
			return
		}
		rep := reports.Monthly(classID, year, month)
		if rep == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "class not found"})
			return
		}
		reportsGenerated.Inc()
		filename := fmt.Sprintf("rapport-%s-%04d-%02d.csv", rep.ClassName, year, month)
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
		c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(report.CSV(rep)))
	})

	v1.GET("/reports/daily", func(c *gin.Context) {
		classID, date := c.Query("class_id"), c.Query("date")
		if classID == "" || date == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "class_id and date required"})
			return
		}
		sheet := reports.Daily(classID, date)
		if sheet == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "class not found"})
			return
		}
		c.JSON(http.StatusOK, sheet)
	})

	// Async CSV export: the worker picks the job up and writes the file.
	v1.POST("/reports/export", func(c *gin.Context) {
		var job queue.ExportJob
		if err := c.ShouldBindJSON(&job); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if registry.Get(job.ClassID) == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "class not found"})
			return
		}
		body, err := job.Encode()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err := q.Publish(c.Request.Context(), queue.Message{Type: "export", Body: body}); err != nil {
			log.Printf("queue publish failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "export enqueue failed"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"queued": true})
	})

	// Backup
	v1.GET("/backup", func(c *gin.Context) {
		bundle, err := backups.Export(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "application/json", bundle)
	})

	v1.POST("/backup", func(c *gin.Context) {
		payload, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "read body failed"})
			return
		}
		res, err := backups.Import(c.Request.Context(), payload)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !res.Success {
			c.JSON(http.StatusBadRequest, res)
			return
		}
		// The caches mirror the store; refresh them in dependency order.
		ctx := c.Request.Context()
		for _, reload := range []func(context.Context) error{registry.Reload, directory.Reload, ledger.Reload} {
			if err := reload(ctx); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, res)
	})

	// Photo upload for student portraits
	v1.POST("/upload", func(c *gin.Context) {
		if cdnClient == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
			return
		}

		contentType := c.ContentType()
		var result *cloudinary.UploadResult
		var err error

		switch {
		case strings.Contains(contentType, "multipart/form-data"):
			file, header, ferr := c.Request.FormFile("file")
			if ferr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
				return
			}
			defer file.Close()
			data, ferr := io.ReadAll(file)
			if ferr != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
				return
			}
			result, err = cdnClient.UploadBytes(data, header.Filename)

		default:
			var body struct {
				Data string `json:"data" binding:"required"`
			}
			if berr := c.ShouldBindJSON(&body); berr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "provide {\"data\": \"<base64 data URL>\"}"})
				return
			}
			result, err = cdnClient.UploadBase64(body.Data)
		}

		if err != nil {
			log.Printf("cloudinary upload failed: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"url": result.SecureURL, "public_id": result.PublicID})
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// reportParams parses class_id/year/month and writes the error response on
// failure.
func reportParams(c *gin.Context) (classID string, year, month int, ok bool) {
	classID = c.Query("class_id")
	year, yerr := strconv.Atoi(c.Query("year"))
	month, merr := strconv.Atoi(c.Query("month"))
	if classID == "" || yerr != nil || merr != nil || month < 1 || month > 12 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "class_id, year and month (1-12) required"})
		return "", 0, 0, false
	}
	return classID, year, month, true
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
