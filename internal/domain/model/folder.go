// Пакет model — доменные модели ri-transfer.
package model

import "time"

// Folder — папка, создаваемая одним запросом загрузки.
// Группирует файлы с общей политикой истечения срока.
type Folder struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	// FileCount — количество файлов, зафиксированное при запечатывании папки
	FileCount int `json:"fileCount"`
	// SealedAt — момент фиксации набора файлов (nil до завершения загрузки)
	SealedAt *time.Time `json:"sealedAt,omitempty"`
	// Files — файлы папки в порядке отправки
	Files []*File `json:"files,omitempty"`
}

// IsExpired проверяет, истёк ли срок жизни папки на момент now.
func (f *Folder) IsExpired(now time.Time) bool {
	return !now.Before(f.ExpiresAt)
}

// TotalSize возвращает суммарный размер файлов папки.
func (f *Folder) TotalSize() int64 {
	var total int64
	for _, file := range f.Files {
		total += file.Size
	}
	return total
}

// File — запись о загруженном файле. Неизменяема после создания;
// физически представлена одним артефактом в директории контента.
type File struct {
	ID       string `json:"id"`
	FolderID string `json:"folderId"`
	// Name — имя хранения: "<folderId>_<санитизированное имя>"
	Name string `json:"name"`
	// OriginalName — имя файла, переданное клиентом
	OriginalName string `json:"originalName"`
	// Size — заявленный размер в байтах
	Size int64 `json:"size"`
	// Type — заявленный MIME-тип
	Type string `json:"type"`
	// Checksum — SHA-256 содержимого (hex)
	Checksum string `json:"checksum"`
	// Position — порядковый номер в запросе загрузки (с нуля)
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"createdAt"`
}
