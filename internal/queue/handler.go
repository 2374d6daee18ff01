package queue

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/radif/dropzone/internal/response"
)

const maxMemory = 32 << 20

// Handler exposes a Manager over HTTP.
type Handler struct {
	mgr *Manager
}

// NewHandler creates a new queue Handler.
func NewHandler(mgr *Manager) *Handler {
	return &Handler{mgr: mgr}
}

// Routes returns the queue router, to be mounted under /queue.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Add)
	r.Get("/", h.List)
	r.Delete("/{id}", h.Remove)
	return r
}

type rejectedFile struct {
	Name  string `json:"name"  example:"huge.mov"`
	Error string `json:"error" example:"File huge.mov is too large. Maximum size is 10MB."`
}

type addData struct {
	Accepted []Entry        `json:"accepted"`
	Rejected []rejectedFile `json:"rejected"`
}

// Add godoc
//
//	@Summary		Queue files
//	@Description	Adds files to the queue. Progress is simulated until each entry succeeds.
//	@Tags			queue
//	@Accept			mpfd
//	@Produce		json
//	@Param			files	formData	file	true	"Files"
//	@Success		201		{object}	response.Envelope{data=addData}
//	@Failure		400		{object}	response.Envelope
//	@Failure		503		{object}	response.Envelope
//	@Router			/api/v1/queue [post]
func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		response.BadRequest(w, "invalid multipart form")
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		response.BadRequest(w, "no files provided")
		return
	}

	files := make([]File, 0, len(headers))
	for _, fh := range headers {
		files = append(files, File{
			Name:        fh.Filename,
			Size:        fh.Size,
			ContentType: fh.Header.Get("Content-Type"),
		})
	}

	res, err := h.mgr.Add(files)
	switch {
	case errors.Is(err, ErrClosed):
		response.Unavailable(w, "queue is shutting down")
		return
	case err != nil:
		response.BadRequest(w, err.Error())
		return
	}

	data := addData{Accepted: make([]Entry, 0, len(res.Accepted)), Rejected: make([]rejectedFile, 0, len(res.Rejected))}
	data.Accepted = append(data.Accepted, res.Accepted...)
	for _, rj := range res.Rejected {
		data.Rejected = append(data.Rejected, rejectedFile{Name: rj.Name, Error: rj.Message()})
	}
	response.Created(w, data)
}

// List godoc
//
//	@Summary		List queue
//	@Description	Returns every entry of the queue in insertion order.
//	@Tags			queue
//	@Produce		json
//	@Success		200	{object}	response.Envelope{data=[]Entry}
//	@Router			/api/v1/queue [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.mgr.Entries())
}

// Remove godoc
//
//	@Summary		Remove entry
//	@Description	Drops an entry from the queue. Unknown ids are ignored.
//	@Tags			queue
//	@Produce		json
//	@Param			id	path		string	true	"Entry id"
//	@Success		200	{object}	response.Envelope
//	@Router			/api/v1/queue/{id} [delete]
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.mgr.Remove(id)
	response.OKMessage(w, "File removed", map[string]string{"id": id})
}
