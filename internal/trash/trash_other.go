//go:build !linux

package trash

func getPath() string { return "" }

func moveToTrash(string) error { return ErrUnsupported }

func list() ([]Item, error) { return nil, ErrUnsupported }
