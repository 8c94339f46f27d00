package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/korrekturpilot/internal/analysis"
	"github.com/pavelanni/korrekturpilot/internal/grade"
	"github.com/pavelanni/korrekturpilot/internal/handler"
	appI18n "github.com/pavelanni/korrekturpilot/internal/i18n"
	"github.com/pavelanni/korrekturpilot/internal/llm"
	"github.com/pavelanni/korrekturpilot/internal/llm/prompts"
	"github.com/pavelanni/korrekturpilot/internal/model"
	"github.com/pavelanni/korrekturpilot/internal/storage"
	"github.com/pavelanni/korrekturpilot/internal/store"
)

const envPrefix = "KORREKTURPILOT"

func main() {
	// Development secrets may live in .env; a missing file is fine.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "korrekturpilot",
		Short:        "AI-assisted grading of handwritten exams",
		SilenceUsage: true,
	}

	serve := serveCmd()
	root.AddCommand(serve, renderCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `korrekturpilot --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(cmd *cobra.Command) {
	cmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "korrekturpilot.db", "SQLite database path")
	f.String("blob-dir", "data", "Directory for uploaded exam PDFs")
	f.String("llm-url", "https://api.openai.com/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for the grading model (or set KORREKTURPILOT_LLM_KEY)")
	f.String("llm-model", "gpt-4o-mini", "Grading model name")
	f.Bool("llm-ping", true, "Check the grading endpoint at startup")
	f.String("gemini-key", "", "Gemini API key for handwriting extraction (or set KORREKTURPILOT_GEMINI_KEY)")
	f.String("gemini-model", "gemini-1.5-flash", "Gemini model for handwriting extraction")
	f.StringP("lang", "l", appI18n.DefaultLang, "Fallback UI language (de, en)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /korrektur)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.StringSlice("cors-origins", nil, "Origins allowed to call the API from a browser (repeatable)")
	f.String("prompt-variant", string(prompts.PromptStandard), "Grading prompt variant (strict, standard, lenient)")
	f.Duration("analysis-timeout", 3*time.Minute, "Deadline for extraction plus grading of one exam")
	f.Int64("max-upload-bytes", 20<<20, "Maximum size of an uploaded PDF")
	f.String("admin-password", "", "Initial admin password (or set KORREKTURPILOT_ADMIN_PASSWORD)")
	addLogFlags(cmd)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetConfigName("korrekturpilot")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/korrekturpilot")
	v.AddConfigPath("/etc/korrekturpilot")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}
	return v
}

// gradeCalculator builds the grade calculator from the optional grade_bands
// config key, falling back to the built-in table.
func gradeCalculator(v *viper.Viper) (*grade.Calculator, error) {
	if !v.IsSet("grade_bands") {
		return grade.Default(), nil
	}
	var table grade.Table
	if err := v.UnmarshalKey("grade_bands", &table); err != nil {
		return nil, fmt.Errorf("decode grade_bands: %w", err)
	}
	c, err := grade.NewCalculator(table)
	if err != nil {
		return nil, err
	}
	slog.Info("using configured grade bands", "bands", len(table.Bands), "default", table.Default)
	return c, nil
}

func normalizePromptVariant(s string) string {
	variant := strings.ToLower(strings.TrimSpace(s))
	if !prompts.IsValidVariant(variant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", variant)
		return string(prompts.PromptStandard)
	}
	return variant
}

func normalizeBasePath(s string) string {
	basePath := strings.TrimRight(s, "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	return basePath
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	blobs, err := storage.NewFSStore(v.GetString("blob-dir"))
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	lib, err := prompts.Load(prompts.FS())
	if err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}
	promptVariant := normalizePromptVariant(v.GetString("prompt-variant"))

	grader, err := llm.New(v.GetString("llm-url"), v.GetString("llm-key"), v.GetString("llm-model"), lib, promptVariant)
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}
	if v.GetBool("llm-ping") {
		pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := grader.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
	}

	extractor, err := llm.NewGeminiExtractor(ctx, v.GetString("gemini-key"), v.GetString("gemini-model"), lib.ExtractPrompt())
	if err != nil {
		return fmt.Errorf("create extractor: %w", err)
	}
	defer extractor.Close()

	calc, err := gradeCalculator(v)
	if err != nil {
		return err
	}

	basePath := normalizeBasePath(v.GetString("base-path"))
	cfg := model.ExamConfig{
		BasePath:        basePath,
		SecureCookies:   v.GetBool("secure-cookies"),
		PromptVariant:   promptVariant,
		AnalysisTimeout: v.GetDuration("analysis-timeout"),
		MaxUploadBytes:  v.GetInt64("max-upload-bytes"),
	}

	h, err := handler.New(db, blobs, extractor, grader, analysis.NewNormalizer(calc), cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	if origins := v.GetStringSlice("cors-origins"); len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept-Language", "Content-Type", "X-CSRF-Token"},
			ExposedHeaders:   []string{"Content-Disposition", "Content-Language", "X-CSRF-Token"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(appI18n.Middleware())

	if basePath != "" {
		r.Route(basePath, h.Routes)
	} else {
		h.Routes(r)
	}

	go cleanupSessions(ctx, db)

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("starting server",
		"addr", addr,
		"llm_url", v.GetString("llm-url"),
		"llm_model", v.GetString("llm-model"),
		"gemini_model", v.GetString("gemini-model"),
		"lang", lang,
		"prompt_variant", promptVariant,
		"base_path", basePath,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func cleanupSessions(ctx context.Context, db *store.Store) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := db.CleanupExpiredSessions(); err != nil {
				slog.Warn("session cleanup failed", "error", err)
			}
		}
	}
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or %s_ADMIN_PASSWORD env var", envPrefix)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
