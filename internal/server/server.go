// Package server exposes a read-only HTTP view of the pipeline: health,
// queue and article JSON, briefing pages and an RSS feed of briefings.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/TobiSchelling/lex/internal/clock"
	"github.com/TobiSchelling/lex/internal/database"
	"github.com/TobiSchelling/lex/internal/queue"
)

const defaultListLimit = 50

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Server is the HTTP server for inspecting the pipeline.
type Server struct {
	db     *database.DB
	queue  *queue.Store
	router *chi.Mux
	pages  map[string]*template.Template
	clock  clock.Clock
	logger *slog.Logger
}

// New creates a new Server.
func New(db *database.DB, q *queue.Store, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pages, err := parsePages()
	if err != nil {
		return nil, err
	}
	s := &Server{
		db:     db,
		queue:  q,
		router: chi.NewRouter(),
		pages:  pages,
		clock:  clock.System(),
		logger: logger,
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/briefings", http.StatusFound)
	})
	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/queue", s.handleQueueList)
		r.Get("/queue/{id}", s.handleQueueItem)
		r.Get("/articles", s.handleArticles)
	})

	s.router.Get("/briefings", s.handleBriefings)
	s.router.Get("/briefings/{id}", s.handleBriefing)
	s.router.Get("/feed.xml", s.handleFeed)
}

type statsResponse struct {
	TotalArticles    int            `json:"total_articles"`
	Articles         map[string]int `json:"articles"`
	DedupTitles      int            `json:"dedup_titles"`
	Briefings        int            `json:"briefings"`
	Queue            map[string]int `json:"queue"`
	PublishedToday   int            `json:"published_today"`
	LastRunStartedAt *time.Time     `json:"last_run_started_at"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.db.GetStats(r.Context(), s.clock.Now())
	if err != nil {
		s.serverError(w, "loading stats", err)
		return
	}
	resp := statsResponse{
		TotalArticles:    st.TotalArticles,
		Articles:         make(map[string]int, len(st.Articles)),
		DedupTitles:      st.DedupTitles,
		Briefings:        st.Briefings,
		Queue:            st.Queue,
		PublishedToday:   st.PublishedToday,
		LastRunStartedAt: st.LastRunStartedAt,
	}
	for k, v := range st.Articles {
		resp.Articles[string(k)] = v
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQueueList(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	f := queue.Filter{
		Platform: r.URL.Query().Get("platform"),
		Status:   queue.Status(r.URL.Query().Get("status")),
		Limit:    limit,
	}
	switch f.Status {
	case "", queue.StatusQueued, queue.StatusRetryQueued, queue.StatusPublished, queue.StatusFailed:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status " + string(f.Status)})
		return
	}

	items, err := s.queue.List(r.Context(), f)
	if err != nil {
		s.serverError(w, "listing queue", err)
		return
	}
	if items == nil {
		items = []queue.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleQueueItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.queue.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, queue.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if err != nil {
		s.serverError(w, "loading queue item", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type articleView struct {
	ID           string     `json:"id"`
	Source       string     `json:"source"`
	Title        string     `json:"title"`
	EnglishTitle *string    `json:"english_title"`
	URL          *string    `json:"url"`
	Status       string     `json:"status"`
	Category     *string    `json:"category"`
	Relevance    *int       `json:"relevance"`
	PublishedAt  *time.Time `json:"published_at"`
	ScrapedAt    time.Time  `json:"scraped_at"`
}

func (s *Server) handleArticles(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	status := database.ArticleStatus(r.URL.Query().Get("status"))
	articles, err := s.db.ListArticles(r.Context(), status, limit)
	if err != nil {
		s.serverError(w, "listing articles", err)
		return
	}
	out := make([]articleView, len(articles))
	for i, a := range articles {
		out[i] = articleView{
			ID:           a.ID,
			Source:       a.Source,
			Title:        a.Title,
			EnglishTitle: a.EnglishTitle,
			URL:          a.URL,
			Status:       string(a.Status),
			Category:     a.Category,
			Relevance:    a.Relevance,
			PublishedAt:  a.PublishedAt,
			ScrapedAt:    a.ScrapedAt,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBriefings(w http.ResponseWriter, r *http.Request) {
	briefings, err := s.db.ListBriefings(r.Context(), defaultListLimit)
	if err != nil {
		s.serverError(w, "listing briefings", err)
		return
	}
	s.render(w, "index", map[string]any{"Briefings": briefings})
}

func (s *Server) handleBriefing(w http.ResponseWriter, r *http.Request) {
	b, err := s.db.GetBriefing(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.serverError(w, "loading briefing", err)
		return
	}
	if b == nil {
		http.NotFound(w, r)
		return
	}
	s.render(w, "briefing", map[string]any{"Briefing": b})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	briefings, err := s.db.ListBriefings(r.Context(), feedItems)
	if err != nil {
		s.serverError(w, "listing briefings", err)
		return
	}
	rss, err := briefingFeed(briefings, baseURL(r), s.clock.Now())
	if err != nil {
		s.serverError(w, "generating feed", err)
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.Write([]byte(rss))
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.serverError(w, "rendering", fmt.Errorf("template %s not found", name))
		return
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		s.serverError(w, "rendering "+name, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func (s *Server) serverError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, "error", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "url", "http://"+addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
