package handlers

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"image"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Brownie44l1/snaplabel/internal/content"
	"github.com/Brownie44l1/snaplabel/internal/imaging"
	"github.com/Brownie44l1/snaplabel/internal/metrics"
	"github.com/Brownie44l1/snaplabel/internal/model"
	"github.com/Brownie44l1/snaplabel/internal/session"
)

//go:embed templates/index.html
var indexHTML string

var indexTemplate = template.Must(template.New("index").Parse(indexHTML))

// Classifier labels canonical images.
type Classifier interface {
	Labels() []string
	Classify(img image.Image) (*model.PredictionResult, error)
}

// Options configures a Handler.
type Options struct {
	CookieName     string
	MaxUploadBytes int64
}

type Handler struct {
	classifier Classifier
	content    *content.Table
	sessions   *session.Store
	opts       Options
	log        zerolog.Logger
}

func NewHandler(classifier Classifier, table *content.Table, sessions *session.Store, opts Options, log zerolog.Logger) *Handler {
	if opts.CookieName == "" {
		opts.CookieName = "snaplabel_session"
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	return &Handler{
		classifier: classifier,
		content:    table,
		sessions:   sessions,
		opts:       opts,
		log:        log,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

// Index renders the page for the caller's session. ?label= picks the label
// whose content is shown.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	st := h.session(w, r)
	h.render(w, http.StatusOK, h.buildPage(st, r.URL.Query().Get("label"), ""))
}

// Submit classifies an uploaded or captured image and stores it in the
// session. A submission that fails leaves the session as it was.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	st := h.session(w, r)

	data, err := h.readUpload(w, r)
	if err != nil {
		h.render(w, http.StatusBadRequest, h.buildPage(st, "", err.Error()))
		return
	}

	img, err := imaging.Decode(data)
	if err != nil {
		metrics.DecodeFailures.Inc()
		h.log.Warn().Err(err).Str("session", st.ID).Int("bytes", len(data)).Msg("rejected submission")
		h.render(w, http.StatusBadRequest, h.buildPage(st, "", "The file could not be read as an image. Supported formats: JPEG, PNG, WEBP, TIFF."))
		return
	}

	result, err := h.classifier.Classify(img.Pixels)
	if err != nil {
		h.log.Error().Err(err).Str("session", st.ID).Msg("prediction error")
		h.render(w, http.StatusInternalServerError, h.buildPage(st, "", "The image could not be classified. Please try another one."))
		return
	}

	h.sessions.Commit(st.ID, data, result)
	h.log.Info().
		Str("session", st.ID).
		Str("format", img.Format).
		Int("orientation", img.Orientation).
		Str("label", result.Label).
		Float64("confidence", result.Confidence).
		Msg("image classified")

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Preview serves the session's last image, orientation-corrected, as JPEG.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	st := h.session(w, r)
	if !st.HasImage() {
		http.NotFound(w, r)
		return
	}

	img, err := imaging.Decode(st.LastImage)
	if err != nil {
		h.log.Error().Err(err).Str("session", st.ID).Msg("stored image no longer decodes")
		http.Error(w, "Failed to render image", http.StatusInternalServerError)
		return
	}
	out, err := imaging.EncodeJPEG(img.Pixels)
	if err != nil {
		http.Error(w, "Failed to render image", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(out)
}

// PredictFromImage is the stateless JSON variant of Submit.
func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, err := h.readUpload(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	img, err := imaging.Decode(data)
	if err != nil {
		metrics.DecodeFailures.Inc()
		http.Error(w, "Invalid image format. Supported: JPEG, PNG, WEBP, TIFF", http.StatusBadRequest)
		return
	}

	h.log.Debug().Str("format", img.Format).
		Int("width", img.Pixels.Bounds().Dx()).
		Int("height", img.Pixels.Bounds().Dy()).
		Msg("decoded image")

	result, err := h.classifier.Classify(img.Pixels)
	if err != nil {
		h.log.Error().Err(err).Msg("prediction error")
		http.Error(w, "Prediction failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

var errNoImage = errors.New("No image file provided. Use 'image' as the form field name")

func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("Image is larger than %d MB", h.opts.MaxUploadBytes>>20)
		}
		return nil, errNoImage
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		return nil, errNoImage
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.New("Failed to read image")
	}
	h.log.Debug().Str("file", header.Filename).Int64("size", header.Size).Msg("received file")
	return data, nil
}

// session returns the caller's session, issuing a cookie for new ones.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) session.State {
	var id string
	if c, err := r.Cookie(h.opts.CookieName); err == nil {
		id = c.Value
	}

	st, created := h.sessions.Acquire(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     h.opts.CookieName,
			Value:    st.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return st
}

func (h *Handler) render(w http.ResponseWriter, status int, p page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := indexTemplate.Execute(w, p); err != nil {
		h.log.Error().Err(err).Msg("render page")
	}
}
