package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/catalog-cli/internal/metrics"
	"github.com/sells-group/catalog-cli/internal/model"
	"github.com/sells-group/catalog-cli/internal/monitoring"
	"github.com/sells-group/catalog-cli/internal/pipeline"
	"github.com/sells-group/catalog-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only catalog query server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		cfg.Server.Port = port

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env.Store, env.Metrics, cfg.Enrich.TopTags),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(env.Store),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
				env.Metrics,
			)
			g.Go(func() error {
				checker.Run(gctx)
				return nil
			})
		}
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return eris.Wrap(srv.Shutdown(shutdownCtx), "server shutdown")
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds the query API. All routes are read-only.
func newRouter(st store.Store, m *metrics.Metrics, topTags int) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(r.Context()); err != nil {
			writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		writeJSONStatus(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		top := topTags
		if v := r.URL.Query().Get("top"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, &model.ValidationError{Field: "top", Reason: "must be a positive integer"})
				return
			}
			top = n
		}
		s, err := pipeline.Stats(r.Context(), st, top)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSONStatus(w, http.StatusOK, s)
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			filter, err := filterFromQuery(r)
			if err != nil {
				writeError(w, err)
				return
			}
			products, err := st.ListProducts(r.Context(), filter)
			if err != nil {
				writeError(w, err)
				return
			}
			if products == nil {
				products = []model.EnrichedProduct{}
			}
			writeJSONStatus(w, http.StatusOK, products)
		})
		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, err := parseProductID(chi.URLParam(r, "id"))
			if err != nil {
				writeError(w, &model.ValidationError{Field: "id", Reason: "must be a positive integer"})
				return
			}
			detail, err := pipeline.ProductDetail(r.Context(), st, id)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSONStatus(w, http.StatusOK, detail)
		})
	})

	r.Get("/export", func(w http.ResponseWriter, r *http.Request) {
		format := strings.ToLower(r.URL.Query().Get("format"))
		if format == "" {
			format = pipeline.ExportJSON
		}
		filter, err := filterFromQuery(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var buf bytes.Buffer
		if _, err := pipeline.Export(r.Context(), st, &buf, format, filter); err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", exportContentTypes[format])
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="products.%s"`, format))
		_, _ = w.Write(buf.Bytes())
	})

	r.Get("/runs", func(w http.ResponseWriter, r *http.Request) {
		runs, err := st.ListRuns(r.Context(), model.RunFilter{
			Status: model.RunStatus(r.URL.Query().Get("status")),
			Limit:  queryInt(r, "limit"),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		if runs == nil {
			runs = []model.Run{}
		}
		writeJSONStatus(w, http.StatusOK, runs)
	})
	r.Get("/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		run, err := st.GetRun(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSONStatus(w, http.StatusOK, run)
	})

	r.Method(http.MethodGet, "/metrics", m.Handler())
	return r
}

var exportContentTypes = map[string]string{
	pipeline.ExportJSON: "application/json",
	pipeline.ExportCSV:  "text/csv",
	pipeline.ExportXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// filterFromQuery builds a product filter from query parameters.
func filterFromQuery(r *http.Request) (model.ProductFilter, error) {
	q := r.URL.Query()
	f := model.ProductFilter{
		Category:     q.Get("category"),
		FlaggedOnly:  q.Get("flagged") == "true",
		EnrichedOnly: q.Get("enriched") == "true",
		Limit:        queryInt(r, "limit"),
	}
	for _, p := range []struct {
		key string
		dst **float64
	}{
		{"min_conf", &f.MinConfidence},
		{"max_conf", &f.MaxConfidence},
	} {
		v := q.Get(p.key)
		if v == "" {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || n < 0 || n > 1 {
			return f, &model.ValidationError{Field: p.key, Reason: "must be a number between 0 and 1"}
		}
		*p.dst = &n
	}
	if v := q.Get("source"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return f, &model.ValidationError{Field: "source", Reason: "must be a positive integer"}
		}
		f.SourceID = n
	}
	return f, nil
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, pipeline.ErrUnsupportedFormat), model.IsValidation(err):
		status = http.StatusBadRequest
	default:
		zap.L().Error("request failed", zap.Error(err))
	}
	writeJSONStatus(w, status, map[string]string{"error": err.Error()})
}

// requestLogger logs each request with its status and latency.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
