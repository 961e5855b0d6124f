package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/alexxcrz/IXORA-sub001/internal/model"
)

const (
	configKeyImportMode  = "import_mode"
	configKeyInventoryID = "inventory_id"
)

// GetConfig 获取配置项
func (s *Store) GetConfig(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("config key %s: %w", key, ErrNotFound)
		}
		return "", err
	}
	return value, nil
}

// SetConfig 设置配置项
func (s *Store) SetConfig(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = CURRENT_TIMESTAMP
	`, key, value, value)
	return err
}

// ImportPreferences 上次导入使用的模式与库存
type ImportPreferences struct {
	Mode        model.ImportMode `json:"mode"`
	InventoryID int64            `json:"inventoryId"`
}

// GetImportPreferences 读取上次导入偏好；缺失项使用传入的默认值
func (s *Store) GetImportPreferences(defaults ImportPreferences) (ImportPreferences, error) {
	prefs := defaults

	mode, err := s.GetConfig(configKeyImportMode)
	switch {
	case err == nil:
		if m, perr := model.ParseImportMode(mode); perr == nil {
			prefs.Mode = m
		}
	case !errors.Is(err, ErrNotFound):
		return prefs, fmt.Errorf("failed to get import mode: %w", err)
	}

	inv, err := s.GetConfig(configKeyInventoryID)
	switch {
	case err == nil:
		if id, perr := strconv.ParseInt(inv, 10, 64); perr == nil && id > 0 {
			prefs.InventoryID = id
		}
	case !errors.Is(err, ErrNotFound):
		return prefs, fmt.Errorf("failed to get inventory id: %w", err)
	}

	return prefs, nil
}

// SetImportPreferences 记住本次导入的模式与库存
func (s *Store) SetImportPreferences(prefs ImportPreferences) error {
	if err := s.SetConfig(configKeyImportMode, string(prefs.Mode)); err != nil {
		return fmt.Errorf("failed to save import mode: %w", err)
	}
	if err := s.SetConfig(configKeyInventoryID, strconv.FormatInt(prefs.InventoryID, 10)); err != nil {
		return fmt.Errorf("failed to save inventory id: %w", err)
	}
	return nil
}
