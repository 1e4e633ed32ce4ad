package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"creatively/internal/logger"
	"creatively/internal/models"
	repo "creatively/internal/repository"
	"creatively/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxFolderDepth = 32

type FolderContents struct {
	Folder      *models.Folder  `json:"folder,omitempty"`
	Folders     []models.Folder `json:"folders"`
	Files       []models.File   `json:"files"`
	Breadcrumbs []models.Folder `json:"breadcrumbs"`
}

type UploadInput struct {
	Name        string
	FolderID    *string
	ContentType string
	Size        int64
	Body        io.Reader
}

type FileService struct {
	deps       *Deps
	blobs      storage.Blobs
	maxSize    int64
	presignTTL time.Duration
}

func NewFileService(deps *Deps, blobs storage.Blobs, maxSize int64, presignTTL time.Duration) *FileService {
	return &FileService{deps: deps, blobs: blobs, maxSize: maxSize, presignTTL: presignTTL}
}

func (s *FileService) ready() error {
	if err := s.deps.requireResource(repo.Folders); err != nil {
		return err
	}
	return s.deps.requireResource(repo.Files)
}

// Contents отдаёт содержимое папки (nil - корень) и хлебные крошки.
func (s *FileService) Contents(ctx context.Context, folderID *string) (*FolderContents, error) {
	me, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	folderID = trimmed(folderID)

	scope := "root"
	if folderID != nil {
		scope = *folderID
	}
	return cached(ctx, s.deps, KeyFiles.With(me.ID, "contents", scope), func(ctx context.Context) (*FolderContents, error) {
		var err error
		out := &FolderContents{Breadcrumbs: []models.Folder{}}

		folders := repo.From(repo.Folders).OrderBy("name", false)
		files := repo.From(repo.Files).OrderBy("name", false)
		if folderID == nil {
			folders.Where(repo.IsNull("parent_id"))
			files.Where(repo.IsNull("folder_id"))
		} else {
			current, err := repo.GetByID[models.Folder](ctx, s.deps.Store, repo.Folders, *folderID)
			if err != nil {
				return nil, s.deps.storeError(repo.Folders, *folderID, err)
			}
			out.Folder = current
			out.Breadcrumbs = s.breadcrumbs(ctx, current)
			folders.Where(repo.Eq("parent_id", *folderID))
			files.Where(repo.Eq("folder_id", *folderID))
		}

		if out.Folders, err = repo.SelectInto[models.Folder](ctx, s.deps.Store, folders); err != nil {
			return nil, s.deps.storeError(repo.Folders, "", err)
		}
		if out.Files, err = repo.SelectInto[models.File](ctx, s.deps.Store, files); err != nil {
			return nil, s.deps.storeError(repo.Files, "", err)
		}
		return out, nil
	})
}

// breadcrumbs идёт от папки к корню. На цикле или битой ссылке
// цепочка обрывается.
func (s *FileService) breadcrumbs(ctx context.Context, folder *models.Folder) []models.Folder {
	trail := []models.Folder{*folder}
	seen := map[string]bool{folder.ID: true}
	parent := folder.ParentID
	for parent != nil && len(trail) < maxFolderDepth {
		if seen[*parent] {
			logger.Warn("Service: Цикл в иерархии папок", zap.String("folder_id", *parent))
			break
		}
		f, err := repo.GetByID[models.Folder](ctx, s.deps.Store, repo.Folders, *parent)
		if err != nil {
			logPartialFailure("Service: Не удалось построить путь папки", err, zap.String("folder_id", *parent))
			break
		}
		seen[f.ID] = true
		trail = append(trail, *f)
		parent = f.ParentID
	}
	for i, j := 0, len(trail)-1; i < j; i, j = i+1, j-1 {
		trail[i], trail[j] = trail[j], trail[i]
	}
	return trail
}

func (s *FileService) CreateFolder(ctx context.Context, name string, parentID *string) (*models.Folder, error) {
	me, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, "/\\") {
		return nil, NewValidationError("name", "пустое имя или недопустимые символы")
	}
	parentID = trimmed(parentID)
	if parentID != nil {
		if _, err := repo.GetByID[models.Folder](ctx, s.deps.Store, repo.Folders, *parentID); err != nil {
			return nil, s.deps.storeError(repo.Folders, *parentID, err)
		}
	}

	id := uuid.NewString()
	f, err := repo.InsertOne[models.Folder](ctx, s.deps.Store, repo.Folders, map[string]any{
		"id":         id,
		"name":       name,
		"parent_id":  parentID,
		"created_by": me.ID,
	})
	if err != nil {
		return nil, s.deps.storeError(repo.Folders, id, err)
	}
	s.deps.invalidate(KeyFiles)
	return f, nil
}

// DeleteFolder удаляет только пустую папку.
func (s *FileService) DeleteFolder(ctx context.Context, id string) error {
	if _, err := currentUser(ctx); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	children, err := s.deps.Store.Select(ctx, repo.From(repo.Folders).Where(repo.Eq("parent_id", id)).Take(1))
	if err != nil {
		return s.deps.storeError(repo.Folders, id, err)
	}
	files, err := s.deps.Store.Select(ctx, repo.From(repo.Files).Where(repo.Eq("folder_id", id)).Take(1))
	if err != nil {
		return s.deps.storeError(repo.Files, id, err)
	}
	if len(children) > 0 || len(files) > 0 {
		return NewBusinessError(CodeConflict, "Папка не пуста", ToDetail("folder_id", id))
	}

	n, err := s.deps.Store.Delete(ctx, repo.Folders, repo.Eq("id", id))
	if err != nil {
		return s.deps.storeError(repo.Folders, id, err)
	}
	if n == 0 {
		return NewNotFound(repo.Folders, id)
	}
	s.deps.invalidate(KeyFiles)
	return nil
}

// Upload сначала кладёт файл в хранилище, потом строку. Если строку
// записать не вышло, файл удаляется.
func (s *FileService) Upload(ctx context.Context, in UploadInput) (*models.File, error) {
	me, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	if s.blobs == nil {
		return nil, NewBusinessError(CodeNotProvisioned, "Хранилище файлов не настроено")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, NewValidationError("name", "обязательное поле")
	}
	if s.maxSize > 0 && in.Size > s.maxSize {
		return nil, NewValidationError("size", fmt.Sprintf("файл больше %d байт", s.maxSize))
	}
	folderID := trimmed(in.FolderID)
	if folderID != nil {
		if _, err := repo.GetByID[models.Folder](ctx, s.deps.Store, repo.Folders, *folderID); err != nil {
			return nil, s.deps.storeError(repo.Folders, *folderID, err)
		}
	}
	contentType := in.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := storage.ObjectKey(me.ID, folderID, name)
	obj, err := s.blobs.Put(ctx, key, in.Body, in.Size, contentType)
	if err != nil {
		return nil, &BusinessError{
			Code:    CodeBackend,
			Message: "Не удалось загрузить файл",
			Details: map[string]any{"name": name},
			Retry:   true,
			Err:     err,
		}
	}

	id := uuid.NewString()
	f, err := repo.InsertOne[models.File](ctx, s.deps.Store, repo.Files, map[string]any{
		"id":           id,
		"name":         name,
		"folder_id":    folderID,
		"type":         obj.ContentType,
		"size":         obj.Size,
		"storage_path": obj.Key,
		"created_by":   me.ID,
	})
	if err != nil {
		if derr := s.blobs.Delete(context.WithoutCancel(ctx), obj.Key); derr != nil {
			logger.Error("Service: Не удалось удалить осиротевший объект", derr, zap.String("key", obj.Key))
		}
		return nil, s.deps.storeError(repo.Files, id, err)
	}
	s.deps.invalidate(KeyFiles)
	logger.Info("Service: Файл загружен", zap.String("file_id", f.ID), zap.Int64("size", f.Size), zap.String("sha256", obj.Hash))
	return f, nil
}

func (s *FileService) get(ctx context.Context, id string) (*models.File, error) {
	if _, err := currentUser(ctx); err != nil {
		return nil, err
	}
	if err := s.deps.requireResource(repo.Files); err != nil {
		return nil, err
	}
	f, err := repo.GetByID[models.File](ctx, s.deps.Store, repo.Files, id)
	if err != nil {
		return nil, s.deps.storeError(repo.Files, id, err)
	}
	return f, nil
}

// DownloadURL отдаёт короткоживущую ссылку на файл.
func (s *FileService) DownloadURL(ctx context.Context, id string) (string, error) {
	f, err := s.get(ctx, id)
	if err != nil {
		return "", err
	}
	if s.blobs == nil {
		return "", NewBusinessError(CodeNotProvisioned, "Хранилище файлов не настроено")
	}
	url, err := s.blobs.PresignGet(ctx, f.StoragePath, s.presignTTL)
	if errors.Is(err, storage.ErrNotFound) {
		return "", NewBusinessError(CodeNotFound, "Содержимое файла не найдено в хранилище", ToDetail("file_id", id))
	}
	if err != nil {
		return "", &BusinessError{Code: CodeBackend, Message: "Не удалось получить ссылку", Retry: true, Err: err}
	}
	return url, nil
}

// DeleteFile удаляет строку, потом файл. Оставшийся файл только логируется.
func (s *FileService) DeleteFile(ctx context.Context, id string) error {
	f, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	n, err := s.deps.Store.Delete(ctx, repo.Files, repo.Eq("id", id))
	if err != nil {
		return s.deps.storeError(repo.Files, id, err)
	}
	if n == 0 {
		return NewNotFound(repo.Files, id)
	}
	s.deps.invalidate(KeyFiles)

	if s.blobs != nil {
		if err := s.blobs.Delete(ctx, f.StoragePath); err != nil {
			logPartialFailure("Service: Объект файла не удалён", err, zap.String("key", f.StoragePath))
		}
	}
	return nil
}
