package gateway

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/radif/dropzone/internal/queue"
	"github.com/radif/dropzone/internal/response"
	"github.com/radif/dropzone/internal/storage"
)

const maxMemory = 32 << 20

// Handler holds HTTP handlers for namespaced storage.
type Handler struct {
	svc           *Service
	limits        queue.Limits
	defaultFolder string
}

// NewHandler creates a new storage Handler. Batches are validated against limits.
func NewHandler(svc *Service, limits queue.Limits, defaultFolder string) *Handler {
	return &Handler{svc: svc, limits: limits, defaultFolder: defaultFolder}
}

// Routes returns the storage router, to be mounted under /storage.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/{namespace}", func(r chi.Router) {
		r.Get("/", h.Status)
		r.Post("/ensure", h.Ensure)
		r.Get("/records", h.Records)
		r.Post("/objects", h.Upload)
		r.Get("/objects", h.List)
		r.Delete("/objects/*", h.Remove)
	})
	return r
}

type uploadData struct {
	BatchResult
	Rejected []rejectedFile `json:"rejected"`
}

type rejectedFile struct {
	Name  string `json:"name"  example:"huge.mov"`
	Error string `json:"error" example:"File huge.mov is too large. Maximum size is 10MB."`
}

// Status godoc
//
//	@Summary		Namespace status
//	@Description	Returns the lifecycle state of a namespace: checking, creating, ready or error.
//	@Tags			storage
//	@Produce		json
//	@Param			namespace	path		string	true	"Namespace"
//	@Success		200			{object}	response.Envelope{data=NamespaceStatus}
//	@Failure		404			{object}	response.Envelope
//	@Router			/api/v1/storage/{namespace} [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st, ok := h.svc.NamespaceStatus(chi.URLParam(r, "namespace"))
	if !ok {
		response.NotFound(w, "namespace not found")
		return
	}
	response.OK(w, st)
}

// Ensure godoc
//
//	@Summary		Ensure namespace
//	@Description	Creates the namespace bucket with a public-read policy unless it already exists.
//	@Tags			storage
//	@Produce		json
//	@Security		BearerAuth
//	@Param			namespace	path		string	true	"Namespace"
//	@Success		200			{object}	response.Envelope{data=NamespaceStatus}
//	@Failure		400			{object}	response.Envelope
//	@Failure		502			{object}	response.Envelope
//	@Router			/api/v1/storage/{namespace}/ensure [post]
func (h *Handler) Ensure(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.EnsureNamespace(r.Context(), chi.URLParam(r, "namespace"))
	if errors.Is(err, ErrInvalidNamespace) {
		response.BadRequest(w, err.Error())
		return
	}
	if err != nil {
		response.BadGateway(w, st.Error)
		return
	}
	response.OK(w, st)
}

// Upload godoc
//
//	@Summary		Upload files
//	@Description	Uploads a batch of files into folder. Oversized files are rejected one by one; a batch over the file limit is rejected whole.
//	@Tags			storage
//	@Accept			mpfd
//	@Produce		json
//	@Security		BearerAuth
//	@Param			namespace	path		string	true	"Namespace"
//	@Param			folder		query		string	false	"Folder"
//	@Param			files		formData	file	true	"Files"
//	@Success		200			{object}	response.Envelope{data=uploadData}
//	@Failure		400			{object}	response.Envelope
//	@Failure		503			{object}	response.Envelope
//	@Router			/api/v1/storage/{namespace}/objects [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	if st, ok := h.svc.NamespaceStatus(namespace); !ok || st.State != StateReady {
		response.Unavailable(w, NotReadyError().Error())
		return
	}

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		response.BadRequest(w, "invalid multipart form")
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		response.BadRequest(w, "no files provided")
		return
	}

	candidates := make([]queue.File, 0, len(headers))
	for _, fh := range headers {
		candidates = append(candidates, formFile(fh))
	}

	limits := h.limits
	limits.MaxSize = min(limits.MaxSize, h.svc.MaxSize())
	accepted, rejected, err := queue.Validate(limits, 0, candidates)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	files := make([]File, 0, len(accepted))
	var openFailed []Failure
	for _, c := range accepted {
		f, err := c.Open()
		if err != nil {
			openFailed = append(openFailed, Failure{Name: c.Name, Error: (&UploadError{Name: c.Name, Err: err}).Error()})
			continue
		}
		defer f.Close()
		files = append(files, File{Name: c.Name, Size: c.Size, ContentType: c.ContentType, Body: f})
	}

	res := h.svc.UploadBatch(r.Context(), namespace, h.folder(r), files)
	res.Failed = append(res.Failed, openFailed...)

	data := uploadData{BatchResult: res, Rejected: make([]rejectedFile, 0, len(rejected))}
	for _, rj := range rejected {
		data.Rejected = append(data.Rejected, rejectedFile{Name: rj.Name, Error: rj.Message()})
	}
	response.OK(w, data)
}

// List godoc
//
//	@Summary		List objects
//	@Description	Lists the objects under folder. Folder marker objects are left out.
//	@Tags			storage
//	@Produce		json
//	@Security		BearerAuth
//	@Param			namespace	path		string	true	"Namespace"
//	@Param			folder		query		string	false	"Folder"
//	@Success		200			{object}	response.Envelope{data=[]storage.Object}
//	@Failure		404			{object}	response.Envelope
//	@Failure		502			{object}	response.Envelope
//	@Router			/api/v1/storage/{namespace}/objects [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	objs, err := h.svc.List(r.Context(), chi.URLParam(r, "namespace"), h.folder(r))
	if errors.Is(err, storage.ErrBucketNotFound) {
		response.NotFound(w, "namespace not found")
		return
	}
	if err != nil {
		response.BadGateway(w, err.Error())
		return
	}
	response.OK(w, objs)
}

// Remove godoc
//
//	@Summary		Remove object
//	@Description	Deletes one object by its path inside the namespace.
//	@Tags			storage
//	@Produce		json
//	@Security		BearerAuth
//	@Param			namespace	path		string	true	"Namespace"
//	@Param			path		path		string	true	"Object path"
//	@Success		200			{object}	response.Envelope
//	@Failure		400			{object}	response.Envelope
//	@Failure		502			{object}	response.Envelope
//	@Router			/api/v1/storage/{namespace}/objects/{path} [delete]
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" {
		response.BadRequest(w, "object path is required")
		return
	}
	if err := h.svc.Remove(r.Context(), chi.URLParam(r, "namespace"), key); err != nil {
		response.BadGateway(w, err.Error())
		return
	}
	response.OKMessage(w, "File removed", map[string]string{"path": key})
}

// Records godoc
//
//	@Summary		Uploaded records
//	@Description	Returns every file uploaded into the namespace through this service.
//	@Tags			storage
//	@Produce		json
//	@Security		BearerAuth
//	@Param			namespace	path		string	true	"Namespace"
//	@Success		200			{object}	response.Envelope{data=[]Record}
//	@Failure		500			{object}	response.Envelope
//	@Router			/api/v1/storage/{namespace}/records [get]
func (h *Handler) Records(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.Records(r.Context(), chi.URLParam(r, "namespace"))
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, recs)
}

func formFile(fh *multipart.FileHeader) queue.File {
	return queue.File{
		Name:        fh.Filename,
		Size:        fh.Size,
		ContentType: fh.Header.Get("Content-Type"),
		Open:        func() (io.ReadCloser, error) { return fh.Open() },
	}
}

func (h *Handler) folder(r *http.Request) string {
	if f := r.URL.Query().Get("folder"); f != "" {
		return f
	}
	return h.defaultFolder
}
