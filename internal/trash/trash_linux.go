//go:build linux

package trash

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Trash layout per freedesktop.org:
//
//	$XDG_DATA_HOME/Trash/files/<name>            trashed entry
//	$XDG_DATA_HOME/Trash/info/<name>.trashinfo   metadata
//
// .trashinfo format:
//
//	[Trash Info]
//	Path=/original/path/to/file
//	DeletionDate=2024-01-15T10:30:45

const deletionDateLayout = "2006-01-02T15:04:05"

func getPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "Trash")
}

func moveToTrash(path string) error {
	root := getPath()
	if root == "" {
		return errors.New("trash directory not found")
	}
	filesPath := filepath.Join(root, "files")
	infoPath := filepath.Join(root, "info")
	if err := os.MkdirAll(filesPath, 0o700); err != nil {
		return fmt.Errorf("cannot create trash files directory: %w", err)
	}
	if err := os.MkdirAll(infoPath, 0o700); err != nil {
		return fmt.Errorf("cannot create trash info directory: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	// The info file is created exclusively and reserves the name.
	baseName := filepath.Base(absPath)
	ext := filepath.Ext(baseName)
	stem := strings.TrimSuffix(baseName, ext)
	destName := baseName
	var infoFile *os.File
	for counter := 1; ; counter++ {
		infoFile, err = os.OpenFile(filepath.Join(infoPath, destName+".trashinfo"),
			os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			if _, serr := os.Lstat(filepath.Join(filesPath, destName)); errors.Is(serr, os.ErrNotExist) {
				break
			}
			infoFile.Close()
			os.Remove(infoFile.Name())
		} else if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("cannot create trashinfo file: %w", err)
		}
		destName = fmt.Sprintf("%s.%d%s", stem, counter, ext)
	}
	infoFilePath := infoFile.Name()

	content := fmt.Sprintf("[Trash Info]\nPath=%s\nDeletionDate=%s\n",
		url.PathEscape(absPath), time.Now().Format(deletionDateLayout))
	_, err = infoFile.WriteString(content)
	if cerr := infoFile.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(infoFilePath)
		return fmt.Errorf("cannot write trashinfo file: %w", err)
	}

	if err := os.Rename(absPath, filepath.Join(filesPath, destName)); err != nil {
		os.Remove(infoFilePath)
		return fmt.Errorf("cannot move file to trash: %w", err)
	}
	return nil
}

func list() ([]Item, error) {
	root := getPath()
	filesPath := filepath.Join(root, "files")
	infoPath := filepath.Join(root, "info")

	entries, err := os.ReadDir(filesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	items := make([]Item, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		item := Item{
			Name:      entry.Name(),
			TrashPath: filepath.Join(filesPath, entry.Name()),
			DeletedAt: info.ModTime(),
			Size:      info.Size(),
			IsDir:     entry.IsDir(),
		}
		if orig, deleted, err := parseTrashInfo(filepath.Join(infoPath, entry.Name()+".trashinfo")); err == nil {
			item.OriginalPath = orig
			if !deleted.IsZero() {
				item.DeletedAt = deleted
			}
		}
		items = append(items, item)
	}
	return items, nil
}

func parseTrashInfo(path string) (originalPath string, deletionDate time.Time, err error) {
	file, err := os.Open(path)
	if err != nil {
		return "", time.Time{}, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "Path="):
			encoded := strings.TrimPrefix(line, "Path=")
			if decoded, err := url.PathUnescape(encoded); err == nil {
				originalPath = decoded
			} else {
				originalPath = encoded
			}
		case strings.HasPrefix(line, "DeletionDate="):
			if t, err := time.ParseInLocation(deletionDateLayout, strings.TrimPrefix(line, "DeletionDate="), time.Local); err == nil {
				deletionDate = t
			}
		}
	}
	return originalPath, deletionDate, scanner.Err()
}
