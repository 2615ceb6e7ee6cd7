package web

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/abdulachik/threadbot/internal/poster"
	"github.com/abdulachik/threadbot/internal/store"
	"github.com/abdulachik/threadbot/internal/workflow"
)

// scheduleLayout matches the value of an <input type="datetime-local">.
const scheduleLayout = "2006-01-02T15:04"

const previewLength = 60

type messagePage struct {
	Title    string
	Message  string
	Link     string
	LinkText string
}

type chunkField struct {
	Number  int
	Content string
	Count   int
	Over    bool
}

type composePage struct {
	Title        string
	Message      string
	ChunkCount   int
	ChunkOptions []int
	Chunks       []chunkField
	Credentials  store.Credentials
	CredsID      string
	Owner        string
	ScheduledAt  string
	Timezone     string
	Limit        int
}

type jobView struct {
	store.Job
	ChunkCount int
	Preview    string
}

type jobsPage struct {
	Title string
	Owner string
	Jobs  []jobView
}

func (s *Server) handleCompose(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := newComposePage(q.Get("chunks"), nil)

	if id := strings.TrimSpace(q.Get("creds")); id != "" {
		creds, err := s.svc.LoadCredentials(r.Context(), id)
		if err != nil {
			page.Message = "Could not load saved credentials: " + err.Error()
		} else {
			page.CredsID = id
			page.Credentials = creds
		}
	}

	s.render(w, http.StatusOK, "compose", page)
}

// handleRecompose redraws the form with a new chunk count, keeping what was
// typed so far. File inputs cannot be refilled, so the image is not kept.
func (s *Server) handleRecompose(w http.ResponseWriter, r *http.Request) {
	if err := s.parseForm(w, r); err != nil {
		s.renderError(w, r, err)
		return
	}

	page := newComposePage(r.PostFormValue("chunks"), r.PostForm["chunk"])
	page.Credentials = credentialsFromForm(r)
	page.CredsID = strings.TrimSpace(r.PostFormValue("creds_id"))
	page.Owner = strings.TrimSpace(r.PostFormValue("owner"))
	page.ScheduledAt = strings.TrimSpace(r.PostFormValue("scheduled_at"))
	if tz := strings.TrimSpace(r.PostFormValue("timezone")); tz != "" {
		page.Timezone = tz
	}

	s.render(w, http.StatusOK, "compose", page)
}

// newComposePage builds a form with count chunk fields (1..MaxChunks, 1 when
// unparsable), filled from contents where given.
func newComposePage(count string, contents []string) composePage {
	n, err := strconv.Atoi(count)
	if err != nil || n < 1 {
		n = 1
	}
	n = min(n, workflow.MaxChunks)

	page := composePage{
		Title:      "Post a thread",
		ChunkCount: n,
		Chunks:     make([]chunkField, n),
		Timezone:   "UTC",
		Limit:      poster.TwitterMaxLength,
	}
	for i := range workflow.MaxChunks {
		page.ChunkOptions = append(page.ChunkOptions, i+1)
	}
	for i := range page.Chunks {
		field := chunkField{Number: i + 1}
		if i < len(contents) {
			field.Content = contents[i]
			field.Count = poster.CharCount(field.Content)
			field.Over = field.Count > page.Limit
		}
		page.Chunks[i] = field
	}
	return page
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	form, err := s.parseThreadForm(w, r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	result, err := s.svc.Send(r.Context(), workflow.SendRequest{
		Credentials: form.creds,
		Chunks:      form.chunks,
		Image:       form.image,
	})
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	msg := fmt.Sprintf("Tweets posted successfully! %d posts, root post %s.", len(result.PostIDs), result.RootID)
	if result.MediaSkipped {
		msg += " The image could not be attached."
	}
	s.render(w, http.StatusOK, "message", messagePage{Title: "Sent", Message: msg})
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	form, err := s.parseThreadForm(w, r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	at, err := parseScheduleTime(r.PostFormValue("scheduled_at"), r.PostFormValue("timezone"))
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	owner := strings.TrimSpace(r.PostFormValue("owner"))
	id, err := s.svc.Schedule(r.Context(), workflow.ScheduleRequest{
		OwnerID:     owner,
		Credentials: form.creds,
		Chunks:      form.chunks,
		Image:       form.image,
		ScheduledAt: at,
	})
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	page := messagePage{
		Title:   "Scheduled",
		Message: fmt.Sprintf("Thread scheduled as job %d for %s UTC.", id, at.UTC().Format("2006-01-02 15:04")),
	}
	if owner != "" {
		page.Link = "/jobs?owner=" + url.QueryEscape(owner)
		page.LinkText = "Scheduled threads"
	}
	s.render(w, http.StatusOK, "message", page)
}

func (s *Server) handleSaveCredentials(w http.ResponseWriter, r *http.Request) {
	if err := s.parseForm(w, r); err != nil {
		s.renderError(w, r, err)
		return
	}

	id, err := s.svc.SaveCredentials(r.Context(), credentialsFromForm(r))
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	s.render(w, http.StatusOK, "message", messagePage{
		Title:    "Credentials saved",
		Message:  "Credentials saved as " + id + ".",
		Link:     "/?creds=" + url.QueryEscape(id),
		LinkText: "Compose with these credentials",
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	page := jobsPage{
		Title: "Scheduled threads",
		Owner: strings.TrimSpace(r.URL.Query().Get("owner")),
	}
	if page.Owner == "" {
		s.render(w, http.StatusOK, "jobs", page)
		return
	}

	jobs, err := s.svc.ListJobs(r.Context(), page.Owner)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	for _, job := range jobs {
		chunks, err := s.svc.JobChunks(r.Context(), job.ID)
		if err != nil {
			s.renderError(w, r, err)
			return
		}
		page.Jobs = append(page.Jobs, jobView{
			Job:        job,
			ChunkCount: len(chunks),
			Preview:    preview(chunks),
		})
	}

	s.render(w, http.StatusOK, "jobs", page)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.renderError(w, r, fmt.Errorf("%w: bad job id", workflow.ErrInvalidInput))
		return
	}

	if err := s.svc.DeleteJob(r.Context(), id); err != nil {
		s.renderError(w, r, err)
		return
	}

	target := "/jobs"
	if owner := strings.TrimSpace(r.PostFormValue("owner")); owner != "" {
		target += "?owner=" + url.QueryEscape(owner)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

type threadForm struct {
	creds  store.Credentials
	chunks []string
	image  []byte
}

func (s *Server) parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	err := r.ParseMultipartForm(s.maxUpload)
	if err == nil || errors.Is(err, http.ErrNotMultipart) {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return fmt.Errorf("%w: %v", workflow.ErrInvalidInput, err)
}

func (s *Server) parseThreadForm(w http.ResponseWriter, r *http.Request) (*threadForm, error) {
	if err := s.parseForm(w, r); err != nil {
		return nil, err
	}

	form := &threadForm{
		creds:  credentialsFromForm(r),
		chunks: r.PostForm["chunk"],
	}

	if id := strings.TrimSpace(r.PostFormValue("creds_id")); id != "" && form.creds == (store.Credentials{}) {
		creds, err := s.svc.LoadCredentials(r.Context(), id)
		if err != nil {
			return nil, fmt.Errorf("load credentials: %w", err)
		}
		form.creds = creds
	}

	if r.MultipartForm != nil {
		image, err := readImage(r)
		if err != nil {
			return nil, err
		}
		form.image = image
	}

	return form, nil
}

func credentialsFromForm(r *http.Request) store.Credentials {
	return store.Credentials{
		APIKey:            strings.TrimSpace(r.PostFormValue("api_key")),
		APISecret:         strings.TrimSpace(r.PostFormValue("api_secret")),
		AccessToken:       strings.TrimSpace(r.PostFormValue("access_token")),
		AccessTokenSecret: strings.TrimSpace(r.PostFormValue("access_token_secret")),
	}
}

// readImage returns the uploaded image, or nil when none was attached.
func readImage(r *http.Request) ([]byte, error) {
	file, _, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: image: %v", workflow.ErrInvalidInput, err)
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if buf.Len() == 0 {
		return nil, nil
	}

	switch http.DetectContentType(buf.Bytes()) {
	case "image/png", "image/jpeg":
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: image must be png or jpeg", workflow.ErrInvalidInput)
	}
}

func parseScheduleTime(value, timezone string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: schedule time is required", workflow.ErrInvalidInput)
	}

	timezone = strings.TrimSpace(timezone)
	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: unknown time zone %q", workflow.ErrInvalidInput, timezone)
	}

	at, err := time.ParseInLocation(scheduleLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: schedule time must look like 2006-01-02T15:04", workflow.ErrInvalidInput)
	}
	return at, nil
}

func preview(chunks []store.Chunk) string {
	for _, c := range chunks {
		text := strings.TrimSpace(c.Content)
		if text == "" {
			continue
		}
		runes := []rune(text)
		if len(runes) > previewLength {
			return string(runes[:previewLength]) + "…"
		}
		return text
	}
	return ""
}

func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, workflow.ErrInvalidInput), errors.Is(err, poster.ErrEmptyThread):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, poster.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, poster.ErrMediaUpload), errors.Is(err, poster.ErrPostCreation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.logger.Warn("request rejected", "method", r.Method, "path", r.URL.Path, "status", code, "error", err)
	}
	s.render(w, code, "message", messagePage{Title: "Failed", Message: err.Error()})
}

func (s *Server) render(w http.ResponseWriter, code int, name string, data any) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.Error("render template", "template", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_, _ = buf.WriteTo(w)
}
