package install

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/thrushlang/thrushdeps/internal/model"
)

// ReceiptName is the receipt file kept in the install directory.
const ReceiptName = ".thrushdeps-receipt.json"

// ReadReceipt returns the receipt in dir, or nil when there is none. An
// unreadable receipt is treated as absent so a damaged install is redone.
func ReadReceipt(dir string) (*model.Receipt, error) {
	// #nosec G304 -- dir is the resolved install dir
	data, err := os.ReadFile(filepath.Join(dir, ReceiptName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r model.Receipt
	if err := json.Unmarshal(data, &r); err != nil || r.Asset == "" {
		return nil, nil
	}
	return &r, nil
}

// WriteReceipt stores r in dir, replacing any previous receipt atomically.
func WriteReceipt(dir string, r model.Receipt) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ReceiptName+".*")
	if err != nil {
		return fmt.Errorf("create receipt: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write receipt: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write receipt: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, ReceiptName)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename receipt: %w", err)
	}
	return nil
}
