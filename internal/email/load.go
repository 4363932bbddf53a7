package email

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

// LoadFile reads messages from a .eml file or a .json file holding either a
// single message object or an array of them.
func LoadFile(path string) ([]*Content, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".eml":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		c, err := ParseMIME(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return []*Content{c}, nil
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return decodeJSON(data)
	default:
		return nil, fmt.Errorf("%s: unsupported message file extension", path)
	}
}

// LoadPaths expands directories (non-recursively) and loads every supported file.
func LoadPaths(paths []string) ([]*Content, error) {
	var messages []*Content
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}

		files := []string{path}
		if info.IsDir() {
			files, err = supportedFiles(path)
			if err != nil {
				return nil, err
			}
		}

		for _, file := range files {
			loaded, err := LoadFile(file)
			if err != nil {
				return nil, err
			}
			messages = append(messages, loaded...)
		}
	}

	return messages, nil
}

func supportedFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".eml", ".json":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)

	return files, nil
}

func decodeJSON(data []byte) ([]*Content, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var list []*Content
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("decode message list: %w", err)
		}
		return list, nil
	}

	var single Content
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return []*Content{&single}, nil
}
