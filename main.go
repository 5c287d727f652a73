// @title           TenderBid API
// @version         1.0
// @description     Bid import and normalization backend - all endpoints used in the application.
// @termsOfService  http://swagger.io/terms/

// @contact.name   API Support

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

// @schemes http https
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"tenderbid/handlers"
	"tenderbid/repository"
	"tenderbid/services"
	"tenderbid/storage"
)

func CORSConfig() cors.Config {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{
		"http://localhost:9000",
		"http://localhost:8080",
		"http://localhost:3000",
	}
	if extra := os.Getenv("CORS_ALLOWED_ORIGINS"); extra != "" {
		corsConfig.AllowOrigins = append(corsConfig.AllowOrigins, strings.Split(extra, ",")...)
	}
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Content-Type", "Content-Length", "Accept-Encoding", "X-XSRF-TOKEN",
		"Accept", "Origin", "X-Requested-With", "Authorization", "User-Agent",
		"Cache-Control", "Referer",
		"Access-Control-Request-Method", "Access-Control-Request-Headers",
	}
	corsConfig.AllowMethods = []string{
		"GET", "POST", "PUT", "DELETE", "OPTIONS", "HEAD", "PATCH",
	}
	corsConfig.ExposeHeaders = []string{
		"Content-Length", "Authorization", "Content-Type", "X-Total-Count",
	}
	corsConfig.MaxAge = 12 * time.Hour
	return corsConfig
}

var cronRunning int32

func safeGo(
	ctx context.Context,
	wg *sync.WaitGroup,
	name string,
	fn func(context.Context) error,
	cronLogger *log.Logger,
) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("PANIC in %s: %v\n%s", name, r, debug.Stack())
				if cronLogger != nil {
					cronLogger.Printf("PANIC in %s: %v\n%s", name, r, debug.Stack())
				}
			}
		}()

		if err := fn(ctx); err != nil {
			log.Printf("%s failed: %v", name, err)
			if cronLogger != nil {
				cronLogger.Printf("%s failed: %v", name, err)
			}
		} else {
			log.Printf("%s completed successfully", name)
		}
	}()
}

// ginPathToSwaggerPath converts Gin path params :param to Swagger {param}
var ginPathParamRe = regexp.MustCompile(`:([^/]+)`)

func ginPathToSwaggerPath(path string) string {
	return ginPathParamRe.ReplaceAllString(path, "{$1}")
}

// Common API models for Swagger so Example Value shows real JSON structure.
var swaggerDefinitions = map[string]interface{}{
	"ApiResponseDataItem": map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id":          map[string]interface{}{"type": "integer", "example": 7},
			"tender_id":   map[string]interface{}{"type": "integer", "example": 1},
			"vendor_id":   map[string]interface{}{"type": "integer", "example": 3},
			"status":      map[string]interface{}{"type": "string", "example": "mapped"},
			"currency":    map[string]interface{}{"type": "string", "example": "USD"},
			"grand_total": map[string]interface{}{"type": "number", "example": 1845210.50},
			"created_at":  map[string]interface{}{"type": "string", "format": "date-time", "example": "2026-01-15T10:30:00Z"},
		},
	},
	"ApiResponse": map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"data": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"$ref": "#/definitions/ApiResponseDataItem"},
				"description": "List of items (structure may vary by endpoint)",
			},
			"message": map[string]interface{}{"type": "string", "example": "bids fetched successfully"},
		},
	},
	"ApiRequest": map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"tender_id": map[string]interface{}{"type": "integer", "example": 1},
			"bid_id":    map[string]interface{}{"type": "integer", "example": 7},
			"force":     map[string]interface{}{"type": "boolean", "example": false},
		},
		"description": "Request body (fields may vary by endpoint)",
	},
}

// buildSwaggerFromRoutes returns a handler that serves Swagger 2.0 JSON with
// all registered routes.
func buildSwaggerFromRoutes(engine *gin.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		paths := make(map[string]interface{})
		for _, route := range engine.Routes() {
			if strings.HasPrefix(route.Path, "/swagger") {
				continue
			}
			path := ginPathToSwaggerPath(route.Path)
			if paths[path] == nil {
				paths[path] = make(map[string]interface{})
			}
			method := strings.ToLower(route.Method)

			op := map[string]interface{}{
				"summary":     route.Method + " " + route.Path,
				"description": "API endpoint: " + route.Path,
				"tags":        []string{"API"},
				"produces":    []string{"application/json"},
				"responses": map[string]interface{}{
					"200": map[string]interface{}{
						"description": "Success - returns JSON",
						"schema":      map[string]interface{}{"$ref": "#/definitions/ApiResponse"},
					},
					"400": map[string]interface{}{
						"description": "Bad Request",
						"schema": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"error": map[string]interface{}{"type": "string"},
							},
						},
					},
					"500": map[string]interface{}{
						"description": "Internal Server Error",
						"schema": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"error": map[string]interface{}{"type": "string"},
							},
						},
					},
				},
			}

			if method == "post" || method == "put" || method == "patch" {
				op["consumes"] = []string{"application/json"}
				op["parameters"] = []map[string]interface{}{
					{
						"in":          "body",
						"name":        "body",
						"required":    true,
						"description": "JSON body. See model below; fields may vary by endpoint.",
						"schema":      map[string]interface{}{"$ref": "#/definitions/ApiRequest"},
					},
				}
			}

			(paths[path].(map[string]interface{}))[method] = op
		}

		doc := map[string]interface{}{
			"swagger":     "2.0",
			"definitions": swaggerDefinitions,
			"info": map[string]interface{}{
				"title":       "TenderBid API",
				"description": "Bid import and normalization backend.",
				"version":     "1.0",
			},
			"host":     c.Request.Host,
			"basePath": "/",
			"schemes":  []string{"http", "https"},
			"paths":    paths,
		}
		c.Header("Content-Type", "application/json")
		c.JSON(http.StatusOK, doc)
	}
}

func main() {
	db := storage.InitDB()
	gormDB := storage.InitGormDB()

	uploadDir := os.Getenv("UPLOAD_DIR")
	fileStore, err := storage.NewLocalFileStore(uploadDir)
	if err != nil {
		log.Fatalf("Failed to initialize file store: %v", err)
	}

	submissionRepo := repository.NewSubmissionRepository(db)
	masterRepo := repository.NewMasterDataRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(gormDB)

	sheetParser := services.NewExcelSheetParser()
	importService := services.NewImportService(submissionRepo, masterRepo, fileStore, sheetParser)

	// Daily maintenance at 02:30.
	c := cron.New(
		cron.WithLogger(cron.VerbosePrintfLogger(log.New(os.Stdout, "cron: ", log.LstdFlags))),
	)

	cronLogFile, err := os.OpenFile("cron_errors.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Printf("Failed to open cron error log file: %v", err)
	}
	cronLogger := log.New(cronLogFile, "CRON_ERROR: ", log.LstdFlags)

	_, err = c.AddFunc("30 2 * * *", func() {
		if !atomic.CompareAndSwapInt32(&cronRunning, 0, 1) {
			log.Println("Previous cron still running. Skipping this run.")
			return
		}
		defer atomic.StoreInt32(&cronRunning, 0)

		log.Println("Starting daily maintenance cron job")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		var wg sync.WaitGroup

		safeGo(ctx, &wg, "CleanupExpiredSessions", func(ctx context.Context) error {
			return storage.CleanupExpiredSessions(db)
		}, cronLogger)

		safeGo(ctx, &wg, "CleanupStaleUploads", func(ctx context.Context) error {
			removed, err := fileStore.CleanupStaleFiles(30 * 24 * time.Hour)
			if err != nil {
				return err
			}
			log.Printf("Removed %d stale uploads", removed)
			return nil
		}, cronLogger)

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			log.Println("All cron jobs finished")
		case <-ctx.Done():
			log.Println("Cron timeout reached, jobs cancelled")
			if cronLogger != nil {
				cronLogger.Println("Cron timeout reached, jobs cancelled")
			}
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule daily maintenance cron job: %v", err)
	}

	c.Start()

	r := gin.Default()
	r.MaxMultipartMemory = 8 << 20

	r.Use(cors.New(CORSConfig()))

	// ==================== 1. AUTH & LOGIN ====================
	r.POST("/api/login", handlers.LoginHandler(db))
	r.POST("/api/refresh-token", handlers.RefreshTokenHandler(db))
	r.POST("/api/logout", handlers.LogoutHandler(db))

	// ==================== 2. TENDERS & MASTER BOQ ====================
	r.POST("/api/tenders", handlers.CreateTender(db))
	r.GET("/api/tenders", handlers.GetTenders(db))
	r.GET("/api/tenders/:tender_id", handlers.GetTenderByID(db))
	r.PUT("/api/tenders/:tender_id", handlers.UpdateTender(db))
	r.GET("/api/tenders/:tender_id/boq", handlers.GetMasterBoq(masterRepo))
	r.PUT("/api/tenders/:tender_id/boq", handlers.ReplaceMasterBoq(db, masterRepo))

	// ==================== 3. BID SUBMISSIONS ====================
	r.POST("/api/tenders/:tender_id/bids", handlers.UploadBidSubmission(db, submissionRepo, fileStore, sheetParser))
	r.GET("/api/tenders/:tender_id/bids", handlers.GetBidSubmissions(submissionRepo))
	r.GET("/api/tenders/:tender_id/bids/:bid_id", handlers.GetBidSubmission(submissionRepo))
	r.GET("/api/tenders/:tender_id/bids/:bid_id/sheets", handlers.GetBidSheets(submissionRepo, fileStore, sheetParser))
	r.GET("/api/tenders/:tender_id/bids/:bid_id/lines", handlers.GetBidRawLines(submissionRepo))
	r.GET("/api/tenders/:tender_id/bids/:bid_id/items", handlers.GetBidNormalizedLines(submissionRepo))

	// ==================== 4. IMPORT PIPELINE ====================
	r.POST("/api/tenders/:tender_id/bids/:bid_id/map_columns", handlers.MapBidColumns(db, importService))
	r.POST("/api/tenders/:tender_id/bids/:bid_id/validate", handlers.ValidateBid(importService))
	r.POST("/api/tenders/:tender_id/bids/:bid_id/normalize", handlers.NormalizeBid(db, importService))
	r.POST("/api/tenders/:tender_id/bids/:bid_id/execute_import", handlers.ExecuteBidImport(db, importService))

	// ==================== 5. SNAPSHOTS & COMPARISON ====================
	r.GET("/api/snapshots/:id", handlers.GetPricingSnapshot(snapshotRepo))
	r.GET("/api/tenders/:tender_id/comparison", handlers.GetTenderComparison(snapshotRepo))

	// ==================== 6. REFERENCE DATA ====================
	r.POST("/api/currency", handlers.CreateCurrency(db))
	r.GET("/api/currency", handlers.GetCurrencies(db))
	r.GET("/api/currency/:id", handlers.GetCurrencyByID(db))
	r.PUT("/api/currency/:id", handlers.UpdateCurrency(db))
	r.DELETE("/api/currency/:id", handlers.DeleteCurrency(db))
	r.GET("/api/uom", handlers.GetUomDefinitions(masterRepo))
	r.POST("/api/uom", handlers.CreateUomDefinition(masterRepo))
	r.GET("/api/uom/convert", handlers.ConvertUom(masterRepo))

	// ==================== 7. ACTIVITY LOGS ====================
	r.GET("/api/logs", handlers.GetActivityLogsHandler(db))

	// ==================== SWAGGER ====================
	// A catch-all route cannot coexist with /swagger/doc.json, so the doc
	// endpoint is dispatched inside the wildcard handler.
	swaggerDoc := buildSwaggerFromRoutes(r)
	swaggerUI := ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json"))
	r.GET("/swagger/*any", func(c *gin.Context) {
		if c.Param("any") == "/doc.json" {
			swaggerDoc(c)
			return
		}
		swaggerUI(c)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "9000"
	}
	portInt, err := strconv.Atoi(port)
	if err != nil || portInt < 0 || portInt > 65535 {
		log.Fatalf("Invalid PORT environment variable: %s", port)
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c.Stop()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exiting")
}
