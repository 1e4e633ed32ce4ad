package handlers

import (
	"errors"
	"net/http"

	"creatively/internal/handlers/dto"
	"creatively/internal/logger"
	"creatively/internal/service"

	"go.uber.org/zap"
)

const multipartMemory = 8 << 20

type FileHandler struct {
	FileService FileService
	MaxUpload   int64
}

func NewFileHandler(fileService FileService, maxUpload int64) FileHandler {
	return FileHandler{FileService: fileService, MaxUpload: maxUpload}
}

// Contents: GET /folders/contents?folder_id= (без параметра корень).
func (s *FileHandler) Contents(w http.ResponseWriter, r *http.Request) {
	contents, err := s.FileService.Contents(r.Context(), queryOptional(r, "folder_id"))
	if err != nil {
		handleListError(w, r, err, "files", "folder_contents")
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("contents", contents))
}

func (s *FileHandler) PostFolder(w http.ResponseWriter, r *http.Request) {
	var request dto.CreateFolderRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	folder, err := s.FileService.CreateFolder(r.Context(), request.Name, request.ParentID)
	if err != nil {
		handleError(w, r, err, "create_folder")
		return
	}
	responseWithNotice(w, http.StatusCreated, "Папка создана", toPayload("folder", folder))
}

func (s *FileHandler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.FileService.DeleteFolder(r.Context(), id); err != nil {
		handleError(w, r, err, "delete_folder")
		return
	}
	responseWithNotice(w, http.StatusOK, "Папка удалена", toPayload("id", id))
}

// Upload принимает multipart/form-data с полем file и необязательным folder_id.
func (s *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if !checkContentType(r, "multipart/form-data") {
		responseWithError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "ожидается multipart/form-data")
		return
	}
	if s.MaxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.MaxUpload+multipartMemory)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			responseWithError(w, http.StatusRequestEntityTooLarge, "VALIDATION_ERROR", "файл слишком большой")
			return
		}
		logger.Warn("HTTP: Ошибка чтения формы", zap.Error(err), zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, http.StatusBadRequest, "INVALID_BODY", "не удалось прочитать форму")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		responseWithError(w, http.StatusBadRequest, "VALIDATION_ERROR", "поле file обязательно")
		return
	}
	defer file.Close()

	var folderID *string
	if v := r.FormValue("folder_id"); v != "" {
		folderID = &v
	}
	created, err := s.FileService.Upload(r.Context(), service.UploadInput{
		Name:        header.Filename,
		FolderID:    folderID,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		handleError(w, r, err, "upload_file")
		return
	}
	responseWithNotice(w, http.StatusCreated, "Файл загружен", toPayload("file", created))
}

func (s *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	url, err := s.FileService.DownloadURL(r.Context(), id)
	if err != nil {
		handleError(w, r, err, "download_file")
		return
	}
	if queryBool(r, "redirect") {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("url", url))
}

func (s *FileHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.FileService.DeleteFile(r.Context(), id); err != nil {
		handleError(w, r, err, "delete_file")
		return
	}
	responseWithNotice(w, http.StatusOK, "Файл удалён", toPayload("id", id))
}
