package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"artist_ipo/internal/domain"
)

// WriteAddressFile writes book as a flat name -> address JSON object.
func WriteAddressFile(path string, book domain.AddressBook) error {
	data, err := json.MarshalIndent(book, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create address file directory: %w", err)
		}
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// ReadAddressFile reads a book written by WriteAddressFile.
func ReadAddressFile(path string) (domain.AddressBook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.AddressBook{}, err
	}
	var book domain.AddressBook
	if err := json.Unmarshal(data, &book); err != nil {
		return domain.AddressBook{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return book, nil
}
