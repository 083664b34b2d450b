// naming.go — имена хранения артефактов.
//
// Имя хранения: "<folderId>_<санитизированное имя>", где каждый символ
// вне [a-zA-Z0-9.] заменён на "_" (по одному на кодовую единицу UTF-16,
// символ вне BMP даёт "__", как у браузерных клиентов). Разные исходные имена могут дать одно
// имя хранения (a#1.txt и a_1.txt). Внутри одной папки такие совпадения
// разрешаются суффиксом перед расширением: a_1.txt, a_1_2.txt, a_1_3.txt.
package service

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// maxStoredNameLen — предельная длина имени хранения (ограничение ФС и колонки files.name).
const maxStoredNameLen = 255

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9.]`)

// SanitizeName заменяет каждый символ вне [a-zA-Z0-9.] на "_"
// по числу его кодовых единиц UTF-16.
func SanitizeName(name string) string {
	return unsafeNameChars.ReplaceAllStringFunc(name, func(m string) string {
		r, _ := utf8.DecodeRuneInString(m)
		n := utf16.RuneLen(r)
		if n < 1 {
			n = 1
		}
		return strings.Repeat("_", n)
	})
}

// StoredName возвращает имя хранения без учёта коллизий.
func StoredName(folderID, originalName string) string {
	stem, ext := splitExt(SanitizeName(originalName))
	return composeName(folderID, stem, ext, 1)
}

// nameAllocator выдаёт уникальные в пределах папки имена хранения.
type nameAllocator struct {
	folderID string
	used     map[string]struct{}
	// taken сообщает, занято ли имя вне текущего запроса
	taken func(name string) (bool, error)
}

func newNameAllocator(folderID string, taken func(string) (bool, error)) *nameAllocator {
	return &nameAllocator{
		folderID: folderID,
		used:     make(map[string]struct{}),
		taken:    taken,
	}
}

// next возвращает первое свободное имя для originalName.
func (a *nameAllocator) next(originalName string) (string, error) {
	stem, ext := splitExt(SanitizeName(originalName))

	for n := 1; ; n++ {
		name := composeName(a.folderID, stem, ext, n)
		if _, ok := a.used[name]; ok {
			continue
		}
		if a.taken != nil {
			busy, err := a.taken(name)
			if err != nil {
				return "", err
			}
			if busy {
				continue
			}
		}
		a.used[name] = struct{}{}
		return name, nil
	}
}

// splitExt отделяет расширение. Имя из одного расширения (".env")
// считается именем без расширения.
func splitExt(name string) (stem, ext string) {
	ext = filepath.Ext(name)
	if ext == name {
		return name, ""
	}
	return name[:len(name)-len(ext)], ext
}

// composeName собирает имя хранения с суффиксом n (n > 1) и
// укорачивает основу, чтобы уложиться в maxStoredNameLen.
func composeName(folderID, stem, ext string, n int) string {
	prefix := folderID + "_"
	suffix := ""
	if n > 1 {
		suffix = "_" + strconv.Itoa(n)
	}

	room := maxStoredNameLen - len(prefix) - len(suffix) - len(ext)
	if room < 0 {
		ext = ""
		room = maxStoredNameLen - len(prefix) - len(suffix)
	}
	// После санитизации имя ASCII, байтовая обрезка безопасна
	if len(stem) > room {
		stem = stem[:room]
	}
	return prefix + stem + suffix + ext
}
