package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	localTempDir   = "temp"
	localOriginDir = "origin"
)

// LocalChunkStore keeps chunks on disk under {base}/temp/{uploadId}/chunk_N
// and assembles them into {base}/origin/{uploadId}_{fileName}. Storage paths
// it returns are relative to base, slash separated.
type LocalChunkStore struct {
	baseDir string
}

func NewLocalChunkStore(baseDir string) (*LocalChunkStore, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, err
	}
	for _, dir := range []string{localTempDir, localOriginDir} {
		if err := os.MkdirAll(filepath.Join(abs, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	return &LocalChunkStore{baseDir: abs}, nil
}

func (s *LocalChunkStore) uploadDir(uploadID uuid.UUID) string {
	return filepath.Join(s.baseDir, localTempDir, uploadID.String())
}

func (s *LocalChunkStore) chunkPath(uploadID uuid.UUID, chunkNumber int) string {
	return filepath.Join(s.uploadDir(uploadID), chunkName(chunkNumber))
}

// Store writes the chunk to a temp file and renames it into place, so a
// chunk file is either absent or complete.
func (s *LocalChunkStore) Store(ctx context.Context, uploadID uuid.UUID, chunkNumber int, body io.Reader) (int64, error) {
	dir := s.uploadDir(uploadID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create chunk dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, chunkName(chunkNumber)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp chunk: %w", err)
	}
	tmpPath := tmp.Name()

	written, err := io.Copy(tmp, readerWithContext(ctx, body))
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return 0, err
	}

	if err := os.Rename(tmpPath, s.chunkPath(uploadID, chunkNumber)); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("commit chunk: %w", err)
	}
	return written, nil
}

// Assemble concatenates the chunks in ascending order. The output is written
// to a temp file first; the final path only appears after a full merge.
func (s *LocalChunkStore) Assemble(ctx context.Context, uploadID uuid.UUID, chunkNumbers []int, fileName string) (string, error) {
	if len(chunkNumbers) == 0 {
		return "", fmt.Errorf("no chunks to assemble for upload %s", uploadID)
	}
	ordered := append([]int(nil), chunkNumbers...)
	sort.Ints(ordered)

	for _, n := range ordered {
		if _, err := os.Stat(s.chunkPath(uploadID, n)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", fmt.Errorf("%w: chunk %d", ErrChunkMissing, n)
			}
			return "", err
		}
	}

	name := finalName(uploadID, fileName)
	originDir := filepath.Join(s.baseDir, localOriginDir)
	out, err := os.CreateTemp(originDir, "."+uploadID.String()+".*.assembling")
	if err != nil {
		return "", fmt.Errorf("create output: %w", err)
	}
	outPath := out.Name()

	err = s.mergeInto(ctx, out, uploadID, ordered)
	if err == nil {
		err = out.Sync()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(outPath)
		return "", err
	}

	if err := os.Rename(outPath, filepath.Join(originDir, name)); err != nil {
		_ = os.Remove(outPath)
		return "", fmt.Errorf("commit assembled file: %w", err)
	}
	return localOriginDir + "/" + name, nil
}

func (s *LocalChunkStore) mergeInto(ctx context.Context, dst io.Writer, uploadID uuid.UUID, ordered []int) error {
	for _, n := range ordered {
		if err := ctx.Err(); err != nil {
			return err
		}
		in, err := os.Open(s.chunkPath(uploadID, n))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("%w: chunk %d", ErrChunkMissing, n)
			}
			return err
		}
		_, err = io.Copy(dst, in)
		in.Close()
		if err != nil {
			return fmt.Errorf("merge chunk %d: %w", n, err)
		}
	}
	return nil
}

// Discard removes the upload's chunk directory.
func (s *LocalChunkStore) Discard(_ context.Context, uploadID uuid.UUID) error {
	return os.RemoveAll(s.uploadDir(uploadID))
}

// Delete removes an assembled file by the storage path Assemble returned.
func (s *LocalChunkStore) Delete(_ context.Context, storagePath string) error {
	full, err := s.resolve(storagePath)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *LocalChunkStore) resolve(storagePath string) (string, error) {
	full := filepath.Join(s.baseDir, filepath.FromSlash(storagePath))
	if !strings.HasPrefix(full, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("storage path %q escapes base dir", storagePath)
	}
	return full, nil
}

// SweepAbandoned removes chunk directories untouched for longer than
// olderThan, i.e. uploads whose session already expired.
func (s *LocalChunkStore) SweepAbandoned(ctx context.Context, olderThan time.Duration) (int, error) {
	root := filepath.Join(s.baseDir, localTempDir)
	entries, err := os.ReadDir(root)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, entry.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
