// Package server is the HTTP front end: a form, a render endpoint and a
// template listing.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ByLCY/infograph/internal/pipeline"
	"github.com/ByLCY/infograph/internal/usage"
	"github.com/ByLCY/infograph/layout"
	"github.com/ByLCY/infograph/renderer"
	"github.com/ByLCY/infograph/templates"
)

//go:embed ui/*.html
var uiFS embed.FS

var tmpl = template.Must(template.ParseFS(uiFS, "ui/*.html"))

// Generator renders one request. *pipeline.Generator implements it.
type Generator interface {
	Generate(ctx context.Context, req pipeline.Request) (*pipeline.Output, error)
}

// Catalog lists templates. templates.Catalog implements it.
type Catalog interface {
	Names() ([]string, error)
}

type Options struct {
	Title           string
	DefaultTemplate string
	DefaultFormat   string
	MaxUploadMB     int
	Usage           usage.Recorder
	Logger          *log.Logger
}

type Server struct {
	gen     Generator
	catalog Catalog
	opts    Options
	logger  *log.Logger
	mux     *http.ServeMux
}

func New(gen Generator, catalog Catalog, opts Options) *Server {
	if opts.Title == "" {
		opts.Title = "infograph"
	}
	if opts.DefaultTemplate == "" {
		opts.DefaultTemplate = templates.DefaultName
	}
	if opts.DefaultFormat == "" {
		opts.DefaultFormat = string(renderer.PNG)
	}
	if opts.MaxUploadMB <= 0 {
		opts.MaxUploadMB = 10
	}
	if opts.Usage == nil {
		opts.Usage = usage.Noop{}
	}
	s := &Server{gen: gen, catalog: catalog, opts: opts, logger: opts.Logger, mux: http.NewServeMux()}
	if s.logger == nil {
		s.logger = log.New(os.Stderr, "[server] ", log.LstdFlags)
	}
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /render", s.handleRender)
	s.mux.HandleFunc("GET /templates", s.handleTemplates)
	s.mux.HandleFunc("GET /usage", s.handleUsage)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("infograph starting on http://%s", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	names, err := s.catalog.Names()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = tmpl.ExecuteTemplate(w, "index.html", map[string]any{
		"Title":           s.opts.Title,
		"Templates":       names,
		"DefaultTemplate": s.opts.DefaultTemplate,
		"DefaultFormat":   s.opts.DefaultFormat,
	})
	if err != nil {
		s.logger.Printf("render index: %v", err)
	}
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	names, err := s.catalog.Names()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": names, "default": s.opts.DefaultTemplate})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	total, err := s.opts.Usage.TotalCost(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"total_cost": total})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	limit := int64(s.opts.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		http.Error(w, fmt.Sprintf("invalid form: %v", err), http.StatusBadRequest)
		return
	}

	text := r.FormValue("text")
	if upload, err := readUpload(r, "file"); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	} else if upload != nil {
		text = string(upload)
	}

	req := pipeline.Request{
		Text:     text,
		Template: orDefault(r.FormValue("template"), s.opts.DefaultTemplate),
		SkipAI:   r.FormValue("no_ai") != "",
	}
	format, err := renderer.ParseFormat(orDefault(r.FormValue("format"), s.opts.DefaultFormat))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.Format = format

	img, err := readUpload(r, "image")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if img != nil {
		req.Images = map[string][]byte{"upload": img}
	}

	out, err := s.gen.Generate(r.Context(), req)
	if err != nil {
		s.logger.Printf("render failed: %v", err)
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	name := "infographic" + out.Format.Ext()
	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if out.RequestID != "" {
		w.Header().Set("X-Request-ID", out.RequestID)
	}
	if truncated(out.Result) {
		w.Header().Set("X-Infograph-Truncated", "true")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out.Data); err != nil {
		s.logger.Printf("write response: %v", err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, templates.ErrUnknownTemplate):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrEmptyText), errors.Is(err, renderer.ErrUnsupportedFormat):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func truncated(res *layout.Result) bool {
	if res == nil {
		return false
	}
	for _, tb := range res.Page.Texts {
		if tb.Truncated {
			return true
		}
	}
	return false
}

// readUpload returns nil when the field was not sent.
func readUpload(r *http.Request, field string) ([]byte, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取上传文件 %s 失败: %w", field, err)
	}
	defer file.Close()
	if field == "file" {
		if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != ".txt" && ext != ".md" && ext != "" {
			return nil, fmt.Errorf("不支持的文件类型 %s", ext)
		}
	}
	return readAll(file)
}

func readAll(f multipart.File) ([]byte, error) {
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("读取上传内容失败: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
