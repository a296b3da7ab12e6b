/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package backups copies the persisted ledgers and pending receipts to dated
// directories and ships zipped copies to S3.
package backups

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/payrecon/config"
	"github.com/blnkfinance/payrecon/database"
)

// BlobSource is the read side of the datasource.
type BlobSource interface {
	LoadBlob(ctx context.Context, key string) ([]byte, error)
}

// Uploader stores a finished archive remotely.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader) error
}

type BackupManager struct {
	Config   *config.Configuration
	Source   BlobSource
	S3Client Uploader
	now      func() time.Time
}

func NewBackupManager(cfg *config.Configuration, source BlobSource, uploader Uploader) *BackupManager {
	return &BackupManager{Config: cfg, Source: source, S3Client: uploader, now: time.Now}
}

func (bm *BackupManager) clock() time.Time {
	if bm.now == nil {
		return time.Now()
	}
	return bm.now()
}

// BackupToDisk writes every stored blob to <backup_dir>/<date>/<key>-<time>.json
// and returns the dated directory.
func (bm *BackupManager) BackupToDisk(ctx context.Context) (string, error) {
	if bm.Config == nil || bm.Source == nil {
		return "", fmt.Errorf("backup manager is not configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	now := bm.clock()
	dir := filepath.Join(bm.Config.BackupDir, now.Format("2006-01-02"))
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	written := 0
	for _, key := range []string{database.LedgersKey, database.PendingKey} {
		data, err := bm.Source.LoadBlob(ctx, key)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", key, err)
		}
		if data == nil {
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("%s-%s.json", key, now.Format("150405")))
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", path, err)
		}
		written++
	}

	logrus.WithFields(logrus.Fields{"dir": dir, "files": written}).Info("backup written to disk")
	return dir, nil
}

// BackupToS3 takes a disk backup, zips the day's directory and uploads it.
func (bm *BackupManager) BackupToS3(ctx context.Context) error {
	dir, err := bm.BackupToDisk(ctx)
	if err != nil {
		return fmt.Errorf("failed to backup to disk: %w", err)
	}
	if bm.S3Client == nil {
		return fmt.Errorf("no S3 client configured")
	}

	zipPath := dir + ".zip"
	if err := zipDir(dir, zipPath); err != nil {
		return fmt.Errorf("failed to zip %s: %w", dir, err)
	}
	defer os.Remove(zipPath)

	f, err := os.Open(zipPath)
	if err != nil {
		return err
	}
	defer f.Close()

	key := filepath.Base(zipPath)
	if err := bm.S3Client.Upload(ctx, key, f); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	logrus.WithField("key", key).Info("backup uploaded to S3")
	return nil
}

func zipDir(srcDir, destZip string) error {
	zipFile, err := os.Create(destZip)
	if err != nil {
		return err
	}
	defer zipFile.Close()

	writer := zip.NewWriter(zipFile)
	err = filepath.Walk(srcDir, func(filePath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		relPath, err := filepath.Rel(srcDir, filePath)
		if err != nil {
			return err
		}
		w, err := writer.Create(filepath.ToSlash(relPath))
		if err != nil {
			return err
		}
		src, err := os.Open(filePath)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(w, src)
		return err
	})
	if err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}
