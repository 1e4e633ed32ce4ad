package models

import "errors"

type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ParentID  *string   `json:"parent_id"` // nil = корень
	CreatedBy string    `json:"created_by"`
	CreatedAt *DateTime `json:"created_at,omitempty"`
}

func (f *Folder) Validate() error {
	if f.ID == "" {
		return errors.New("folder: пустой id")
	}
	if f.Name == "" {
		return errors.New("folder: пустое имя")
	}
	return nil
}

type File struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	FolderID    *string   `json:"folder_id"`
	Type        string    `json:"type"`
	Size        int64     `json:"size"`
	StoragePath string    `json:"storage_path"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   *DateTime `json:"created_at,omitempty"`
}

func (f *File) Validate() error {
	if f.ID == "" {
		return errors.New("file: пустой id")
	}
	if f.StoragePath == "" {
		return errors.New("file: пустой storage_path")
	}
	return nil
}
