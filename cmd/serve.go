package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/transitlab/destchoice/internal/expr"
	"github.com/transitlab/destchoice/internal/spec"
	"github.com/transitlab/destchoice/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve utility evaluation and run history over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(st),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutCtx); err != nil {
				zap.L().Error("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("server listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "serve")
		}
		return nil
	},
}

// specCache caches compiled spec tables by file name.
type specCache struct {
	mu     sync.Mutex
	tables map[string]*spec.Table
}

func (c *specCache) get(name string) (*spec.Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.tables[name]; ok {
		return t, nil
	}
	t, err := loadSpecTable(resolveConfigPath(name), "")
	if err != nil {
		return nil, err
	}
	if c.tables == nil {
		c.tables = make(map[string]*spec.Table)
	}
	c.tables[name] = t
	return t, nil
}

func newRouter(st store.Store) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	limiter := rate.NewLimiter(rate.Limit(cfg.Server.RateLimit), cfg.Server.Burst)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !limiter.Allow() {
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, req)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	specs := &specCache{}

	r.Post("/v1/utility", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Spec      string             `json:"spec"`
			Segment   string             `json:"segment"`
			Fields    map[string]float64 `json:"fields"`
			Skims     map[string]float64 `json:"skims"`
			Breakdown bool               `json:"breakdown"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.Spec == "" {
			writeJSONError(w, http.StatusBadRequest, "spec is required")
			return
		}

		table, err := specs.get(body.Spec)
		if err != nil {
			writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}

		ctx := expr.MapContext{Fields: body.Fields, Skims: body.Skims}

		if body.Breakdown {
			rows, total, err := table.Breakdown(body.Segment, ctx)
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"utility": total,
				"rows":    rows,
			})
			return
		}

		utility, err := table.Utility(body.Segment, ctx)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"utility": utility})
	})

	r.Get("/v1/runs", func(w http.ResponseWriter, req *http.Request) {
		runs, err := st.ListRuns(req.Context(), 50)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if runs == nil {
			runs = []store.ModelRun{}
		}
		writeJSON(w, http.StatusOK, runs)
	})

	r.Get("/v1/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
		run, err := st.GetRun(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	r.Get("/v1/runs/{id}/choices", func(w http.ResponseWriter, req *http.Request) {
		choices, err := st.Choices(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if choices == nil {
			choices = []store.ChoiceRow{}
		}
		writeJSON(w, http.StatusOK, choices)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
